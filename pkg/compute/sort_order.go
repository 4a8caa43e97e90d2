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
	"fmt"
	"slices"
	"strings"

	"github.com/daviszhen/rowbuf/pkg/chunk"
	"github.com/daviszhen/rowbuf/pkg/common"
)

type SortColumn struct {
	Index int
	Order OrderType
	Nulls OrderByNullType
}

func (sc SortColumn) nullsFirst() bool {
	switch sc.Nulls {
	case OBNT_NULLS_FIRST:
		return true
	case OBNT_NULLS_LAST:
		return false
	default:
		// NULL is the lowest value
		return sc.Order != OT_DESC
	}
}

// SortOrder compares rows by a list of columns. It is used for ORDER
// BY, for choosing DISTINCT ON representatives and for WITH TIES.
type SortOrder struct {
	compareMode chunk.CompareMode
	columns     []SortColumn
}

func NewSortOrder(compareMode chunk.CompareMode, columns ...SortColumn) *SortOrder {
	if len(columns) == 0 {
		panic("sort order without columns")
	}
	return &SortOrder{
		compareMode: compareMode,
		columns:     columns,
	}
}

// Asc is a shortcut for ascending columns with default null ordering.
func Asc(compareMode chunk.CompareMode, indexes ...int) *SortOrder {
	cols := make([]SortColumn, len(indexes))
	for i, idx := range indexes {
		cols[i] = SortColumn{Index: idx, Order: OT_ASC}
	}
	return NewSortOrder(compareMode, cols...)
}

func (so *SortOrder) Columns() []SortColumn {
	return so.columns
}

func (so *SortOrder) Compare(a, b chunk.Row) int {
	for _, col := range so.columns {
		va, vb := a[col.Index], b[col.Index]
		aNull, bNull := isNullValue(va), isNullValue(vb)
		if aNull || bNull {
			if aNull && bNull {
				continue
			}
			if aNull == col.nullsFirst() {
				return -1
			}
			return 1
		}
		ret := so.compareMode.CompareValues(va, vb)
		if ret == 0 {
			continue
		}
		if col.Order == OT_DESC {
			return -ret
		}
		return ret
	}
	return 0
}

func isNullValue(val chunk.Value) bool {
	return val.IsNull || val.Typ.Id == common.LTID_NULL ||
		(val.Typ.IsLob() && val.Lob == nil)
}

// Sort sorts all rows. Rows that compare equal keep their order.
func (so *SortOrder) Sort(rows []chunk.Row) {
	slices.SortStableFunc(rows, so.Compare)
}

// SortRange sorts only the rows that end up in [offset, offset+limit)
// of the fully sorted sequence. Rows before offset are the smallest
// ones and rows after the range the largest ones, both left unordered.
// The range holds the same rows, in the same order, as Sort would put
// there.
func (so *SortOrder) SortRange(rows []chunk.Row, offset, limit int) {
	n := len(rows)
	if offset < 0 {
		offset = 0
	}
	if n == 0 || offset >= n || limit == 0 {
		return
	}
	if limit < 0 || offset+limit > n {
		limit = n - offset
	}
	if offset == 0 && limit == 1 {
		// the first of several equal minimums
		minIdx := 0
		for i := 1; i < n; i++ {
			if so.Compare(rows[i], rows[minIdx]) < 0 {
				minIdx = i
			}
		}
		rows[0], rows[minIdx] = rows[minIdx], rows[0]
		return
	}
	// equal rows are told apart by their position so that the
	// selection picks the rows a stable sort would.
	items := make([]positioned, n)
	for i, row := range rows {
		items[i] = positioned{row: row, pos: i}
	}
	to := offset + limit
	if offset > 0 {
		so.selectNth(items, 0, n, offset)
	}
	if to < n {
		so.selectNth(items, offset, n, to)
	}
	slices.SortFunc(items[offset:to], so.comparePositioned)
	for i, item := range items {
		rows[i] = item.row
	}
}

type positioned struct {
	row chunk.Row
	pos int
}

func (so *SortOrder) comparePositioned(a, b positioned) int {
	if ret := so.Compare(a.row, b.row); ret != 0 {
		return ret
	}
	return cmp.Compare(a.pos, b.pos)
}

// selectNth reorders items[lo:hi] so that items[k] is the item that
// would be there after sorting, nothing before k is greater and
// nothing after k is smaller.
func (so *SortOrder) selectNth(items []positioned, lo, hi, k int) {
	for hi-lo > 1 {
		if hi-lo <= INSERTION_SORT_THRESHOLD {
			slices.SortFunc(items[lo:hi], so.comparePositioned)
			return
		}
		pivot := items[so.medianOfThree(items, lo, lo+(hi-lo)/2, hi-1)]
		// [lo,lt) < pivot, [lt,gt) == pivot, [gt,hi) > pivot
		lt, i, gt := lo, lo, hi
		for i < gt {
			ret := so.comparePositioned(items[i], pivot)
			switch {
			case ret < 0:
				items[lt], items[i] = items[i], items[lt]
				lt++
				i++
			case ret > 0:
				gt--
				items[i], items[gt] = items[gt], items[i]
			default:
				i++
			}
		}
		switch {
		case k < lt:
			hi = lt
		case k >= gt:
			lo = gt
		default:
			return
		}
	}
}

func (so *SortOrder) medianOfThree(items []positioned, a, b, c int) int {
	if so.comparePositioned(items[a], items[b]) > 0 {
		a, b = b, a
	}
	if so.comparePositioned(items[b], items[c]) > 0 {
		b = c
		if so.comparePositioned(items[a], items[b]) > 0 {
			b = a
		}
	}
	return b
}

func (so *SortOrder) String() string {
	parts := make([]string, 0, len(so.columns))
	for _, col := range so.columns {
		s := fmt.Sprintf("#%d %v", col.Index, col.Order)
		if nulls := col.Nulls.String(); nulls != "" {
			s += " " + nulls
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}

var _ chunk.RowComparator = (*SortOrder)(nil)
