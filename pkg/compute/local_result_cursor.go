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

	"go.uber.org/zap"

	"github.com/daviszhen/rowbuf/pkg/chunk"
	"github.com/daviszhen/rowbuf/pkg/util"
)

// Reset moves the cursor before the first row.
func (r *LocalResult) Reset() error {
	r.owner.Check("Reset")
	if r.state == RS_CLOSED {
		return ErrResultClosed
	}
	return r.resetCursor()
}

func (r *LocalResult) resetCursor() error {
	r.rowId = -1
	r.currentRow = nil
	if st, ok := r.store.(*spilledStore); ok {
		return st.external.Reset()
	}
	return nil
}

// Next moves to the next row. It returns false after the last row.
func (r *LocalResult) Next() (bool, error) {
	r.owner.Check("Next")
	switch r.state {
	case RS_CLOSED:
		return false, ErrResultClosed
	case RS_ACCUMULATING:
		return false, ErrResultNotFinalized
	}
	if r.rowId >= r.rowCount {
		return false, nil
	}
	r.rowId++
	if r.rowId >= r.rowCount {
		r.currentRow = nil
		return false, nil
	}
	switch st := r.store.(type) {
	case *spilledStore:
		row, err := st.external.Next()
		if err != nil {
			return false, err
		}
		if row == nil {
			return false, fmt.Errorf("temporary result ended at row %d of %d", r.rowId, r.rowCount)
		}
		r.currentRow = row
	case *residentStore:
		r.currentRow = st.rows[r.rowId]
	}
	return true, nil
}

// CurrentRow returns the row Next moved to, nil before the first and
// after the last row.
func (r *LocalResult) CurrentRow() chunk.Row {
	return r.currentRow
}

func (r *LocalResult) HasNext() bool {
	return r.state != RS_CLOSED && r.rowId < r.rowCount-1
}

func (r *LocalResult) IsAfterLast() bool {
	return r.rowId >= r.rowCount
}

// CreateShallowCopy returns a result reading the same rows with its
// own cursor, offset and limit not applied again. It returns nil when
// the rows can not be shared: the result is closed, still has rows
// that are not stored, or holds LOBs.
func (r *LocalResult) CreateShallowCopy(session *Session) *LocalResult {
	if r.state == RS_CLOSED || r.containsLobs {
		return nil
	}
	var store rowStore
	switch st := r.store.(type) {
	case *residentStore:
		if int64(len(st.rows)) < r.rowCount {
			return nil
		}
		store = &residentStore{rows: st.rows}
	case *spilledStore:
		if r.state != RS_FINALIZED || len(st.tail) != 0 {
			return nil
		}
		e2 := st.external.CreateShallowCopy()
		if e2 == nil {
			return nil
		}
		store = &spilledStore{external: e2}
	}
	cp := &LocalResult{
		session:            session,
		maxMemoryRows:      r.maxMemoryRows,
		exprs:              r.exprs,
		visibleColumnCount: r.visibleColumnCount,
		resultColumnCount:  r.resultColumnCount,
		state:              RS_FINALIZED,
		store:              store,
		rowCount:           r.rowCount,
		rowId:              -1,
		sort:               r.sort,
		distinct:           r.distinct,
		distinctIndexes:    r.distinctIndexes,
		distinctRows:       r.distinctRows,
		limit:              -1,
		metrics:            r.metrics,
	}
	if r.containsNull != nil {
		containsNull := *r.containsNull
		cp.containsNull = &containsNull
	}
	if session != nil {
		cp.owner = util.NewOwnerCheck(session.Config().Debug.CheckOwner)
	}
	return cp
}

// Close releases the temporary store. Closing twice does nothing.
func (r *LocalResult) Close() error {
	if r.state == RS_CLOSED {
		return nil
	}
	r.state = RS_CLOSED
	r.currentRow = nil
	st, ok := r.store.(*spilledStore)
	if !ok {
		return nil
	}
	r.store = &residentStore{}
	r.metrics.storesClosed.Inc()
	if err := st.external.Close(); err != nil {
		util.Error("close temporary result", zap.Error(err))
		return err
	}
	return nil
}
