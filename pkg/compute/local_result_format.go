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
	"time"

	wire "github.com/jeroenrinzema/psql-wire"
	"github.com/lib/pq/oid"
	"github.com/xlab/treeprint"

	"github.com/daviszhen/rowbuf/pkg/chunk"
	"github.com/daviszhen/rowbuf/pkg/common"
)

// Format writes the shape and the windowing of the result into tree.
func (r *LocalResult) Format(tree treeprint.Tree) {
	tree.AddMetaNode("state", r.state.String())
	storage := "memory"
	if r.NeedToClose() {
		storage = "temporary store"
	}
	tree.AddMetaNode("storage", storage)
	tree.AddMetaNode("rows", fmt.Sprintf("%d", r.rowCount))
	cols := tree.AddMetaBranch("columns", fmt.Sprintf("%d/%d", r.visibleColumnCount, r.resultColumnCount))
	for i := 0; i < r.resultColumnCount && i < len(r.exprs); i++ {
		meta := fmt.Sprintf("%d %s", i, r.exprs[i].Alias(i))
		if i >= r.visibleColumnCount {
			meta += " hidden"
		}
		cols.AddMetaNode(meta, r.exprs[i].Type().String())
	}
	if r.distinct {
		tree.AddNode("distinct")
	}
	if r.distinctIndexes != nil {
		tree.AddMetaNode("distinct on", fmt.Sprintf("%v", r.distinctIndexes))
	}
	if r.sort != nil {
		tree.AddMetaNode("order by", r.sort.String())
	}
	if r.offset > 0 {
		tree.AddMetaNode("offset", fmt.Sprintf("%d", r.offset))
	}
	if r.limit >= 0 {
		limit := fmt.Sprintf("%d", r.limit)
		if r.fetchPercent {
			limit += " percent"
		}
		if r.withTiesSortOrder != nil {
			limit += " with ties"
		}
		tree.AddMetaNode("limit", limit)
	}
}

func (r *LocalResult) Explain() string {
	tree := treeprint.NewWithRoot("LocalResult")
	r.Format(tree)
	return tree.String()
}

func typeOid(typ common.LType) (oid.Oid, int16) {
	switch typ.Id {
	case common.LTID_BOOLEAN:
		return oid.T_bool, 1
	case common.LTID_TINYINT, common.LTID_SMALLINT:
		return oid.T_int2, 2
	case common.LTID_INTEGER:
		return oid.T_int4, 4
	case common.LTID_BIGINT:
		return oid.T_int8, 8
	case common.LTID_FLOAT, common.LTID_DOUBLE:
		return oid.T_float8, 8
	case common.LTID_DATE:
		return oid.T_date, 4
	case common.LTID_BLOB:
		return oid.T_bytea, -1
	default:
		//decimal and ubigint are sent as text
		return oid.T_text, -1
	}
}

// Columns describes the visible columns for the wire protocol.
func (r *LocalResult) Columns() wire.Columns {
	cols := make(wire.Columns, 0, r.visibleColumnCount)
	for i := 0; i < r.visibleColumnCount; i++ {
		typOid, width := typeOid(r.ColumnType(i))
		cols = append(cols, wire.Column{
			Name:  r.Alias(i),
			Oid:   typOid,
			Width: width,
		})
	}
	return cols
}

func wireValue(val chunk.Value) any {
	if val.IsNull || (val.Typ.IsLob() && val.Lob == nil) {
		return nil
	}
	switch val.Typ.Id {
	case common.LTID_BOOLEAN:
		return val.Bool
	case common.LTID_TINYINT, common.LTID_SMALLINT:
		return int16(val.I64)
	case common.LTID_INTEGER:
		return int32(val.I64)
	case common.LTID_BIGINT:
		return val.I64
	case common.LTID_FLOAT, common.LTID_DOUBLE:
		return val.F64
	case common.LTID_DATE:
		return time.Date(int(val.I64), time.Month(val.I64_1), int(val.I64_2), 0, 0, 0, 0, time.UTC)
	case common.LTID_BLOB:
		return val.Lob.Bytes()
	default:
		return val.String()
	}
}

// WriteTo sends the visible columns of the rows from the cursor on and
// returns the number of rows written.
func (r *LocalResult) WriteTo(writer wire.DataWriter) (int64, error) {
	cnt := int64(0)
	row := make([]any, r.visibleColumnCount)
	for {
		has, err := r.Next()
		if err != nil {
			return cnt, err
		}
		if !has {
			break
		}
		for j := range row {
			row[j] = wireValue(r.currentRow[j])
		}
		if err = writer.Row(row); err != nil {
			return cnt, err
		}
		cnt++
	}
	return cnt, nil
}
