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
package chunk

import (
	"github.com/huandu/go-clone"
)

// Lob is a large object value. The data behind a Lob may belong to
// the statement that produced it, so a result that keeps a Lob past
// the producing call has to take its own copy with CopyToResult.
type Lob interface {
	Length() int64
	Bytes() []byte
	// CopyToResult returns a Lob owned by the result. It may return
	// the receiver when no copy is needed.
	CopyToResult() Lob
}

// MemLob is a Lob held in memory.
type MemLob struct {
	Data      []byte
	Temporary bool
}

func NewMemLob(data []byte) *MemLob {
	return &MemLob{Data: data}
}

func (lob *MemLob) Length() int64 {
	return int64(len(lob.Data))
}

func (lob *MemLob) Bytes() []byte {
	return lob.Data
}

func (lob *MemLob) CopyToResult() Lob {
	if lob.Temporary {
		return lob
	}
	cp := clone.Clone(lob).(*MemLob)
	cp.Temporary = true
	return cp
}

var _ Lob = (*MemLob)(nil)
