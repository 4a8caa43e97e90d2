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
	"math"

	"github.com/daviszhen/rowbuf/pkg/chunk"
	"github.com/daviszhen/rowbuf/pkg/common"
	"github.com/daviszhen/rowbuf/pkg/util"
)

type ResultState int

const (
	RS_ACCUMULATING ResultState = iota
	RS_FINALIZED
	RS_CLOSED
)

func (state ResultState) String() string {
	switch state {
	case RS_ACCUMULATING:
		return "accumulating"
	case RS_FINALIZED:
		return "finalized"
	case RS_CLOSED:
		return "closed"
	default:
		panic("usp")
	}
}

// rowStore is either *residentStore or *spilledStore. A result starts
// resident and turns spilled when it exceeds its memory rows. It does
// not go back until OFFSET and LIMIT rebuild it.
type rowStore interface {
	isRowStore()
}

type residentStore struct {
	rows []chunk.Row
}

type spilledStore struct {
	external ResultExternal
	//rows not written to external yet
	tail []chunk.Row
}

func (*residentStore) isRowStore() {}
func (*spilledStore) isRowStore() {}

// LocalResult collects the rows of a query result. Rows are added
// with AddRow. Done applies DISTINCT, ORDER BY, OFFSET and LIMIT, after
// that the rows are read with Next.
//
// The leading visibleColumnCount columns of a row are the result
// columns, the others only feed ORDER BY and DISTINCT ON.
//
// A LocalResult is used by one goroutine at a time.
type LocalResult struct {
	session            *Session
	maxMemoryRows      int
	exprs              []Expression
	visibleColumnCount int
	resultColumnCount  int

	state      ResultState
	store      rowStore
	rowCount   int64
	rowId      int64
	currentRow chunk.Row

	sort              *SortOrder
	distinct          bool
	distinctIndexes   []int
	distinctRows      *distinctMap
	offset            int64
	limit             int64
	fetchPercent      bool
	withTiesSortOrder *SortOrder
	limitsWereApplied bool

	containsLobs bool
	containsNull *bool

	metrics *Metrics
	owner   util.OwnerCheck
}

// NewLocalResult creates a result for rows of resultColumnCount
// columns. session may be nil, then the result never spills.
func NewLocalResult(
	session *Session,
	exprs []Expression,
	visibleColumnCount int,
	resultColumnCount int,
) *LocalResult {
	if visibleColumnCount > resultColumnCount {
		panic(fmt.Sprintf("visible column count %d > result column count %d",
			visibleColumnCount, resultColumnCount))
	}
	ret := &LocalResult{
		session:            session,
		maxMemoryRows:      math.MaxInt,
		exprs:              exprs,
		visibleColumnCount: visibleColumnCount,
		resultColumnCount:  resultColumnCount,
		store:              &residentStore{},
		rowId:              -1,
		limit:              -1,
		metrics:            defaultMetrics,
	}
	if session != nil {
		ret.maxMemoryRows = session.MaxMemoryRows()
		ret.metrics = session.metrics
		ret.owner = util.NewOwnerCheck(session.Config().Debug.CheckOwner)
	}
	return ret
}

func (r *LocalResult) compareMode() chunk.CompareMode {
	if r.session == nil {
		return chunk.CompareMode{}
	}
	return r.session.CompareMode()
}

func (r *LocalResult) SetMaxMemoryRows(maxValue int) {
	r.maxMemoryRows = maxValue
}

func (r *LocalResult) SetSortOrder(sort *SortOrder) {
	r.sort = sort
}

// SetDistinct removes rows whose visible columns are equal.
func (r *LocalResult) SetDistinct() {
	if r.distinctIndexes != nil {
		panic("DISTINCT and DISTINCT ON on one result")
	}
	r.distinct = true
	r.distinctRows = newDistinctMap(r.compareMode())
}

// SetDistinctIndexes removes rows whose columns at indexes are equal.
// Which of them is kept is decided by the sort order.
func (r *LocalResult) SetDistinctIndexes(indexes []int) {
	if r.distinct {
		panic("DISTINCT and DISTINCT ON on one result")
	}
	r.distinctIndexes = indexes
	r.distinctRows = newDistinctMap(r.compareMode())
}

func (r *LocalResult) isAnyDistinct() bool {
	return r.distinct || r.distinctIndexes != nil
}

func (r *LocalResult) IsDistinct() bool {
	return r.distinct
}

// SetOffset sets the number of leading rows to skip.
func (r *LocalResult) SetOffset(offset int64) {
	r.offset = offset
}

// SetLimit sets the row limit. -1 means no limit.
func (r *LocalResult) SetLimit(limit int64) {
	r.limit = limit
}

// SetFetchPercent makes the limit a percentage of the row count.
func (r *LocalResult) SetFetchPercent(fetchPercent bool) {
	r.fetchPercent = fetchPercent
}

// SetWithTies also returns the rows after the limit that are equal to
// the last row under withTiesSortOrder, the sort order of the result.
func (r *LocalResult) SetWithTies(withTiesSortOrder *SortOrder) {
	if r.sort != nil && r.sort != withTiesSortOrder {
		panic("WITH TIES order differs from the sort order")
	}
	r.withTiesSortOrder = withTiesSortOrder
}

// LimitsWereApplied tells the result that its rows already respect
// ORDER BY, OFFSET and LIMIT.
func (r *LocalResult) LimitsWereApplied() {
	r.limitsWereApplied = true
}

func (r *LocalResult) RowCount() int64 {
	return r.rowCount
}

func (r *LocalResult) RowId() int64 {
	return r.rowId
}

func (r *LocalResult) VisibleColumnCount() int {
	return r.visibleColumnCount
}

func (r *LocalResult) ResultColumnCount() int {
	return r.resultColumnCount
}

func (r *LocalResult) State() ResultState {
	return r.state
}

func (r *LocalResult) IsClosed() bool {
	return r.state == RS_CLOSED
}

// NeedToClose reports whether Close releases something.
func (r *LocalResult) NeedToClose() bool {
	_, ok := r.store.(*spilledStore)
	return ok
}

func (r *LocalResult) IsLazy() bool {
	return false
}

func (r *LocalResult) FetchSize() int {
	return 0
}

// SetFetchSize does nothing. All rows of a local result are present.
func (r *LocalResult) SetFetchSize(int) {
}

func (r *LocalResult) Alias(i int) string {
	return r.exprs[i].Alias(i)
}

func (r *LocalResult) TableName(i int) string {
	return r.exprs[i].TableName()
}

func (r *LocalResult) SchemaName(i int) string {
	return r.exprs[i].SchemaName()
}

func (r *LocalResult) ColumnName(i int) string {
	return r.exprs[i].ColumnName(i)
}

func (r *LocalResult) ColumnType(i int) common.LType {
	return r.exprs[i].Type()
}

func (r *LocalResult) Nullable(i int) Nullability {
	return r.exprs[i].Nullable()
}

func (r *LocalResult) IsIdentity(i int) bool {
	return r.exprs[i].IsIdentity()
}

func (r *LocalResult) String() string {
	return fmt.Sprintf("columns: %d rows: %d pos: %d",
		r.visibleColumnCount, r.rowCount, r.rowId)
}
