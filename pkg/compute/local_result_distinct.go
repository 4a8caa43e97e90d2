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
	"github.com/tidwall/btree"

	"github.com/daviszhen/rowbuf/pkg/chunk"
	"github.com/daviszhen/rowbuf/pkg/util"
)

type distinctEntry struct {
	key chunk.Row
	row chunk.Row
}

// distinctMap maps a distinct key to the row that represents it. Keys
// are ordered by the compare mode, so equal values of different types
// share one entry.
type distinctMap struct {
	tree *btree.BTreeG[*distinctEntry]
}

func newDistinctMap(cm chunk.CompareMode) *distinctMap {
	less := func(a, b *distinctEntry) bool {
		return cm.Compare(a.key, b.key) < 0
	}
	return &distinctMap{
		tree: btree.NewBTreeGOptions(less, btree.Options{NoLocks: true}),
	}
}

// put stores row under key unless an entry exists that sort does not
// rank after row.
func (m *distinctMap) put(key, row chunk.Row, sort *SortOrder) {
	entry := &distinctEntry{key: key, row: row}
	if old, has := m.tree.Get(entry); has {
		if sort == nil || sort.Compare(row, old.row) >= 0 {
			return
		}
	}
	m.tree.Set(entry)
}

func (m *distinctMap) contains(key chunk.Row) bool {
	_, has := m.tree.Get(&distinctEntry{key: key})
	return has
}

func (m *distinctMap) remove(key chunk.Row) {
	m.tree.Delete(&distinctEntry{key: key})
}

func (m *distinctMap) len() int {
	return m.tree.Len()
}

func (m *distinctMap) scan(fn func(row chunk.Row) bool) {
	m.tree.Scan(func(entry *distinctEntry) bool {
		return fn(entry.row)
	})
}

// values returns the representative rows in key order.
func (m *distinctMap) values() []chunk.Row {
	rows := make([]chunk.Row, 0, m.tree.Len())
	m.scan(func(row chunk.Row) bool {
		rows = append(rows, row)
		return true
	})
	return rows
}

// ContainsDistinct reports whether a row with the distinct key values
// was added. values has visibleColumnCount columns.
func (r *LocalResult) ContainsDistinct(values chunk.Row) (bool, error) {
	r.owner.Check("ContainsDistinct")
	if r.state == RS_CLOSED {
		return false, ErrResultClosed
	}
	util.AssertFunc(len(values) == r.visibleColumnCount)
	switch st := r.store.(type) {
	case *spilledStore:
		has, err := st.external.Contains(values)
		if err != nil || has {
			return has, err
		}
		cm := r.compareMode()
		for _, row := range st.tail {
			if cm.Compare(r.distinctKey(row), values) == 0 {
				return true, nil
			}
		}
		return false, nil
	case *residentStore:
		if r.distinctRows == nil {
			r.distinctRows = newDistinctMap(r.compareMode())
			for _, row := range st.rows {
				key := r.distinctKey(row)
				r.distinctRows.put(key, key, nil)
			}
		}
		return r.distinctRows.contains(values), nil
	default:
		panic("usp")
	}
}

// RemoveDistinct removes the row whose visible columns equal values.
// It is only valid for a DISTINCT result that is still accumulating.
func (r *LocalResult) RemoveDistinct(values chunk.Row) error {
	r.owner.Check("RemoveDistinct")
	if !r.distinct {
		panic("RemoveDistinct on a result without DISTINCT")
	}
	switch r.state {
	case RS_CLOSED:
		return ErrResultClosed
	case RS_FINALIZED:
		panic("RemoveDistinct after Done")
	}
	util.AssertFunc(len(values) == r.visibleColumnCount)
	switch st := r.store.(type) {
	case *spilledStore:
		count, err := st.external.RemoveRow(values)
		if err != nil {
			return err
		}
		r.rowCount = count
	case *residentStore:
		if r.distinctRows != nil {
			r.distinctRows.remove(values)
			r.rowCount = int64(r.distinctRows.len())
		}
	}
	r.containsNull = nil
	return nil
}

// ContainsNull reports whether a visible column of some row is NULL.
// The answer is cached until the rows change.
func (r *LocalResult) ContainsNull() (bool, error) {
	r.owner.Check("ContainsNull")
	if r.state == RS_CLOSED {
		return false, ErrResultClosed
	}
	if r.containsNull != nil {
		return *r.containsNull, nil
	}
	found := false
	err := r.scanRows(func(row chunk.Row) bool {
		if row.HasNull(r.visibleColumnCount) {
			found = true
		}
		return !found
	})
	if err != nil {
		return false, err
	}
	r.containsNull = &found
	return found, nil
}

// scanRows calls fn for every row present so far until fn returns
// false. The cursor is where it was before when scanRows returns.
func (r *LocalResult) scanRows(fn func(row chunk.Row) bool) (err error) {
	switch st := r.store.(type) {
	case *residentStore:
		if r.state == RS_ACCUMULATING && r.isAnyDistinct() && r.distinctRows != nil {
			r.distinctRows.scan(fn)
			return nil
		}
		for _, row := range st.rows {
			if !fn(row) {
				return nil
			}
		}
		return nil
	case *spilledStore:
		release := r.acquireExternalScan(st)
		defer func() {
			if rerr := release(); err == nil {
				err = rerr
			}
		}()
		if err = st.external.Reset(); err != nil {
			return err
		}
		for {
			row, err := st.external.Next()
			if err != nil {
				return err
			}
			if row == nil {
				break
			}
			if !fn(row) {
				return nil
			}
		}
		for _, row := range st.tail {
			if !fn(row) {
				return nil
			}
		}
		return nil
	default:
		panic("usp")
	}
}

// acquireExternalScan saves the cursor of a spilled result. The
// returned function moves the store back to the saved position.
func (r *LocalResult) acquireExternalScan(st *spilledStore) func() error {
	pos := r.rowId
	readable := r.state == RS_FINALIZED
	return func() error {
		if err := st.external.Reset(); err != nil {
			return err
		}
		if !readable {
			return nil
		}
		for i := int64(0); i <= pos && i < r.rowCount; i++ {
			if _, err := st.external.Next(); err != nil {
				return err
			}
		}
		return nil
	}
}
