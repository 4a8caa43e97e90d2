// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package compute

import (
	"cmp"
	"math"

	treemap "github.com/liyue201/gostl/ds/map"
	"go.uber.org/zap"

	"github.com/daviszhen/rowbuf/pkg/chunk"
	"github.com/daviszhen/rowbuf/pkg/util"
)

// Session carries what a result needs from the connection that runs
// the query: the memory policy, the comparison rules and a place to
// keep the LOBs copied into results alive.
type Session struct {
	cfg         *util.Config
	compareMode chunk.CompareMode
	metrics     *Metrics
	newExternal ExternalFactory

	//lob id -> lob
	tempLobs  *treemap.Map[int64, chunk.Lob]
	nextLobId int64
}

type SessionOption func(*Session)

func WithExternalFactory(factory ExternalFactory) SessionOption {
	return func(s *Session) {
		s.newExternal = factory
	}
}

func WithMetrics(metrics *Metrics) SessionOption {
	return func(s *Session) {
		s.metrics = metrics
	}
}

func NewSession(cfg *util.Config, opts ...SessionOption) *Session {
	if cfg == nil {
		cfg = util.DefaultConfig()
	}
	s := &Session{
		cfg: cfg,
		compareMode: chunk.CompareMode{
			IgnoreCase: cfg.Debug.IgnoreCase,
		},
		metrics:  defaultMetrics,
		tempLobs: treemap.New[int64, chunk.Lob](cmp.Compare[int64]),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.newExternal == nil {
		s.newExternal = TempResultFactory(cfg.Spill.TempDir)
	}
	return s
}

func (s *Session) Config() *util.Config {
	return s.cfg
}

func (s *Session) CompareMode() chunk.CompareMode {
	return s.compareMode
}

// MaxMemoryRows is the number of rows a result may keep in memory.
// Without spilling it is unlimited.
func (s *Session) MaxMemoryRows() int {
	if !s.cfg.Spill.Enabled {
		return math.MaxInt
	}
	if s.cfg.Spill.MaxMemoryRows <= 0 {
		return util.DefaultMaxMemoryRows
	}
	return s.cfg.Spill.MaxMemoryRows
}

func (s *Session) CreateExternal(opts ExternalOptions) (ResultExternal, error) {
	return s.newExternal(opts)
}

// AddTemporaryLob keeps lob until the session is closed.
func (s *Session) AddTemporaryLob(lob chunk.Lob) {
	s.nextLobId++
	s.tempLobs.Insert(s.nextLobId, lob)
}

func (s *Session) TemporaryLobCount() int {
	return s.tempLobs.Size()
}

func (s *Session) TemporaryLobBytes() int64 {
	sum := int64(0)
	for iter := s.tempLobs.Begin(); iter.IsValid(); iter.Next() {
		sum += iter.Value().Length()
	}
	return sum
}

// Close drops the temporary LOBs.
func (s *Session) Close() {
	if s.tempLobs.Size() != 0 {
		util.Debug("drop temporary lobs",
			zap.Int("count", s.tempLobs.Size()),
			zap.Int64("bytes", s.TemporaryLobBytes()))
	}
	s.tempLobs.Clear()
}
