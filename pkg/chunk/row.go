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
	"strings"
)

// Row is one result row. The leading visible columns are returned to
// the consumer, the trailing ones only feed ORDER BY and DISTINCT ON.
type Row []Value

// Visible returns the first n columns.
func (row Row) Visible(n int) Row {
	if len(row) <= n {
		return row
	}
	return row[:n]
}

// Project returns a new row with the columns at indexes, in that order.
func (row Row) Project(indexes []int) Row {
	ret := make(Row, len(indexes))
	for i, idx := range indexes {
		ret[i] = row[idx]
	}
	return ret
}

// HasNull reports whether one of the first n columns is NULL.
func (row Row) HasNull(n int) bool {
	for i := 0; i < n && i < len(row); i++ {
		if row[i].IsNull || (row[i].Typ.IsLob() && row[i].Lob == nil) {
			return true
		}
	}
	return false
}

func (row Row) HasLob() bool {
	for i := range row {
		if row[i].Lob != nil {
			return true
		}
	}
	return false
}

func (row Row) String() string {
	sb := strings.Builder{}
	sb.WriteByte('(')
	for i, val := range row {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(val.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

// RowComparator orders rows. Sort orders and compare modes both
// satisfy it.
type RowComparator interface {
	Compare(a, b Row) int
}
