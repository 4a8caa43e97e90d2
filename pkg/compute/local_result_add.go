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
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/daviszhen/rowbuf/pkg/chunk"
	"github.com/daviszhen/rowbuf/pkg/util"
)

// AddRow adds a row of resultColumnCount values. The result keeps the
// row, the caller must not change it afterwards.
func (r *LocalResult) AddRow(values chunk.Row) error {
	r.owner.Check("AddRow")
	switch r.state {
	case RS_CLOSED:
		return ErrResultClosed
	case RS_FINALIZED:
		panic("AddRow after Done")
	}
	if len(values) != r.resultColumnCount {
		panic(fmt.Sprintf("row has %d values, result has %d columns",
			len(values), r.resultColumnCount))
	}
	r.cloneLobs(values)
	r.containsNull = nil
	if r.isAnyDistinct() {
		return r.addDistinct(values)
	}
	//a lookup map built by ContainsDistinct does not see the new row
	r.distinctRows = nil
	switch st := r.store.(type) {
	case *residentStore:
		st.rows = append(st.rows, values)
		r.rowCount++
		if len(st.rows) > r.maxMemoryRows {
			count, err := r.spill(st.rows)
			if err != nil {
				return err
			}
			r.rowCount = count
		}
	case *spilledStore:
		st.tail = append(st.tail, values)
		r.rowCount++
		if len(st.tail) > r.maxMemoryRows {
			count, err := r.flushTail(st)
			if err != nil {
				return err
			}
			r.rowCount = count
		}
	}
	return nil
}

func (r *LocalResult) addDistinct(values chunk.Row) error {
	switch st := r.store.(type) {
	case *spilledStore:
		count, err := st.external.AddRow(values)
		if err != nil {
			return err
		}
		r.rowCount = count
	case *residentStore:
		if r.distinctRows == nil {
			r.distinctRows = newDistinctMap(r.compareMode())
		}
		r.distinctRows.put(r.distinctKey(values), values, r.sort)
		r.rowCount = int64(r.distinctRows.len())
		if r.distinctRows.len() > r.maxMemoryRows {
			count, err := r.spill(r.distinctRows.values())
			if err != nil {
				return err
			}
			r.rowCount = count
			r.distinctRows = nil
		}
	}
	return nil
}

func (r *LocalResult) distinctKey(values chunk.Row) chunk.Row {
	if r.distinctIndexes != nil {
		return values.Project(r.distinctIndexes)
	}
	return values.Visible(r.visibleColumnCount)
}

// cloneLobs gives the result its own copy of every LOB in values.
func (r *LocalResult) cloneLobs(values chunk.Row) {
	for i := range values {
		lob := values[i].Lob
		if lob == nil {
			continue
		}
		r.containsLobs = true
		cp := lob.CopyToResult()
		if cp != lob {
			values[i].Lob = cp
			if r.session != nil {
				r.session.AddTemporaryLob(cp)
			}
		}
	}
}

func (r *LocalResult) createExternal() (ResultExternal, error) {
	opts := ExternalOptions{
		VisibleColumnCount: r.visibleColumnCount,
		ResultColumnCount:  r.resultColumnCount,
		Distinct:           r.distinct,
		DistinctIndexes:    r.distinctIndexes,
		Sort:               r.sort,
		CompareMode:        r.compareMode(),
	}
	if r.session == nil {
		return TempResultFactory(os.TempDir())(opts)
	}
	return r.session.CreateExternal(opts)
}

// spill moves rows into a new external store. It returns the row count
// of the store.
func (r *LocalResult) spill(rows []chunk.Row) (int64, error) {
	external, err := r.createExternal()
	if err != nil {
		return 0, fmt.Errorf("create temporary result: %w", err)
	}
	count, err := external.AddRows(rows)
	if err != nil {
		_ = external.Close()
		return 0, fmt.Errorf("spill result: %w", err)
	}
	//the old row slice may be shared by a shallow copy, start a new one
	r.store = &spilledStore{external: external}
	r.metrics.spills.Inc()
	r.metrics.spilledRows.Add(float64(len(rows)))
	util.Debug("spill result",
		zap.Int("rows", len(rows)),
		zap.Int("maxMemoryRows", r.maxMemoryRows),
		zap.Bool("distinct", r.isAnyDistinct()))
	return count, nil
}

func (r *LocalResult) flushTail(st *spilledStore) (int64, error) {
	count, err := st.external.AddRows(st.tail)
	if err != nil {
		return 0, fmt.Errorf("spill result: %w", err)
	}
	r.metrics.spilledRows.Add(float64(len(st.tail)))
	st.tail = st.tail[:0]
	return count, nil
}
