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
	"go.uber.org/zap"

	"github.com/daviszhen/rowbuf/pkg/chunk"
	"github.com/daviszhen/rowbuf/pkg/util"
)

// Done ends the adding of rows. It sorts the rows, applies OFFSET,
// LIMIT, FETCH PERCENT and WITH TIES and moves the cursor before the
// first row.
func (r *LocalResult) Done() error {
	r.owner.Check("Done")
	switch r.state {
	case RS_CLOSED:
		return ErrResultClosed
	case RS_FINALIZED:
		panic("Done called twice")
	}
	switch st := r.store.(type) {
	case *spilledStore:
		if len(st.tail) != 0 {
			count, err := r.flushTail(st)
			if err != nil {
				return err
			}
			r.rowCount = count
		}
	case *residentStore:
		if r.isAnyDistinct() && r.distinctRows != nil {
			st.rows = r.distinctRows.values()
		}
		if r.sort != nil && r.limit != 0 && !r.limitsWereApplied {
			r.sortRows(st.rows)
		}
	}
	if err := r.applyOffsetAndLimit(); err != nil {
		return err
	}
	r.state = RS_FINALIZED
	return r.resetCursor()
}

// sortRows sorts only the rows OFFSET and LIMIT keep when that is
// possible. WITH TIES and FETCH PERCENT need to see the rows after the
// limit in order.
func (r *LocalResult) sortRows(rows []chunk.Row) {
	withLimit := r.limit > 0 && r.withTiesSortOrder == nil && !r.fetchPercent
	if r.offset > 0 || withLimit {
		limit := len(rows)
		if withLimit {
			limit = int(min(r.limit, int64(len(rows))))
		}
		r.sort.SortRange(rows, int(min(r.offset, int64(len(rows)))), limit)
	} else {
		r.sort.Sort(rows)
	}
}

func (r *LocalResult) applyOffsetAndLimit() error {
	if r.limitsWereApplied {
		return nil
	}
	offset := max(r.offset, 0)
	limit := r.limit
	if offset == 0 && limit < 0 && !r.fetchPercent || r.rowCount == 0 {
		return nil
	}
	if r.fetchPercent {
		if limit < 0 || limit > 100 {
			return &InvalidValueError{Param: "FETCH PERCENT", Value: limit}
		}
		limit = util.CeilDiv(limit*r.rowCount, 100)
	}
	clearAll := offset >= r.rowCount || limit == 0
	if !clearAll {
		remaining := r.rowCount - offset
		if limit < 0 {
			limit = remaining
		} else {
			limit = min(remaining, limit)
		}
		if offset == 0 && remaining <= limit {
			return nil
		}
	} else {
		limit = 0
	}
	r.distinctRows = nil
	r.rowCount = limit
	switch st := r.store.(type) {
	case *residentStore:
		if clearAll {
			st.rows = nil
			return nil
		}
		to := offset + limit
		if r.withTiesSortOrder != nil {
			expected := st.rows[to-1]
			for to < int64(len(st.rows)) && r.withTiesSortOrder.Compare(expected, st.rows[to]) == 0 {
				to++
				r.rowCount++
			}
		}
		if offset != 0 || to != int64(len(st.rows)) {
			st.rows = util.CopyTo(st.rows[offset:to])
		}
		return nil
	case *spilledStore:
		if clearAll {
			r.store = &residentStore{}
			r.metrics.storesClosed.Inc()
			return st.external.Close()
		}
		return r.trimExternal(st, offset, limit)
	default:
		panic("usp")
	}
}

// trimExternal copies the rows OFFSET, LIMIT and WITH TIES keep into a
// new store and closes the old one.
func (r *LocalResult) trimExternal(st *spilledStore, offset, limit int64) (err error) {
	temp := st.external
	r.store = &residentStore{}
	defer func() {
		r.metrics.storesClosed.Inc()
		if cerr := temp.Close(); err == nil {
			err = cerr
		}
	}()
	if err = temp.Reset(); err != nil {
		return err
	}
	for ; offset > 0; offset-- {
		if _, err = temp.Next(); err != nil {
			return err
		}
	}
	var row chunk.Row
	copied := int64(0)
	for ; limit > 0; limit-- {
		if row, err = temp.Next(); err != nil {
			return err
		}
		if row == nil {
			break
		}
		if err = r.addTrimmed(row); err != nil {
			return err
		}
		copied++
	}
	if r.withTiesSortOrder != nil && row != nil {
		expected := row
		for {
			if row, err = temp.Next(); err != nil {
				return err
			}
			if row == nil || r.withTiesSortOrder.Compare(expected, row) != 0 {
				break
			}
			if err = r.addTrimmed(row); err != nil {
				return err
			}
			copied++
		}
	}
	r.rowCount = copied
	if sp, ok := r.store.(*spilledStore); ok {
		if r.rowCount, err = r.flushTail(sp); err != nil {
			return err
		}
	}
	r.metrics.externalTrims.Inc()
	util.Debug("trim temporary result",
		zap.Int64("rows", r.rowCount),
		zap.Bool("spilled", r.NeedToClose()))
	return nil
}

func (r *LocalResult) addTrimmed(row chunk.Row) error {
	switch st := r.store.(type) {
	case *residentStore:
		st.rows = append(st.rows, row)
		if len(st.rows) > r.maxMemoryRows {
			_, err := r.spill(st.rows)
			return err
		}
	case *spilledStore:
		st.tail = append(st.tail, row)
		if len(st.tail) > r.maxMemoryRows {
			_, err := r.flushTail(st)
			return err
		}
	}
	return nil
}
