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
	"errors"
	"fmt"

	wire "github.com/jeroenrinzema/psql-wire"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/daviszhen/rowbuf/pkg/chunk"
	"github.com/daviszhen/rowbuf/pkg/parser"
	"github.com/daviszhen/rowbuf/pkg/storage"
	"github.com/daviszhen/rowbuf/pkg/util"
)

// WindowOptions are the result settings that have no SQL syntax in
// the parser.
type WindowOptions struct {
	FetchPercent bool
}

// RunWindow reads every row of ds into a new result shaped by w and
// finalizes it. ORDER BY and DISTINCT ON columns that are not selected
// become hidden columns.
func RunWindow(
	session *Session,
	ds *storage.Dataset,
	w *parser.Window,
	opts WindowOptions,
) (*LocalResult, error) {
	result, colIndice, err := newWindowResult(session, ds, w, opts)
	if err != nil {
		return nil, err
	}
	err = ds.Scan(func(row chunk.Row) error {
		return result.AddRow(row.Project(colIndice))
	})
	if err == nil {
		err = result.Done()
	}
	if err != nil {
		closeResult(result)
		return nil, err
	}
	return result, nil
}

// WindowColumns describes the visible columns RunWindow would return
// for w without reading ds.
func WindowColumns(ds *storage.Dataset, w *parser.Window) (wire.Columns, error) {
	result, _, err := newWindowResult(nil, ds, w, WindowOptions{})
	if err != nil {
		return nil, err
	}
	defer closeResult(result)
	return result.Columns(), nil
}

func closeResult(result *LocalResult) {
	if err := result.Close(); err != nil {
		util.Error("close result", zap.Error(err))
	}
}

// newWindowResult returns an empty result configured for w and the
// dataset column index of every result column.
func newWindowResult(
	session *Session,
	ds *storage.Dataset,
	w *parser.Window,
	opts WindowOptions,
) (*LocalResult, []int, error) {
	if w.Table != ds.Name {
		return nil, nil, fmt.Errorf("query reads %s, dataset is %s", w.Table, ds.Name)
	}
	//dataset column index of every result column
	colIndice := make([]int, 0)
	aliases := make([]string, 0)
	if w.Columns == nil {
		colIndice = lo.Range(len(ds.Names))
		aliases = make([]string, len(ds.Names))
	} else {
		for i, name := range w.Columns {
			idx := ds.ColumnIndex(name)
			if idx < 0 {
				return nil, nil, fmt.Errorf("no such column %s in %s", name, ds.Name)
			}
			colIndice = append(colIndice, idx)
			aliases = append(aliases, w.Aliases[i])
		}
	}
	visible := len(colIndice)

	//result position of a column, adding a hidden column when needed
	position := func(name string) (int, error) {
		for i := 0; i < visible; i++ {
			if aliases[i] == name {
				return i, nil
			}
		}
		idx := ds.ColumnIndex(name)
		if idx < 0 {
			return 0, fmt.Errorf("no such column %s in %s", name, ds.Name)
		}
		if pos := lo.IndexOf(colIndice, idx); pos >= 0 {
			return pos, nil
		}
		colIndice = append(colIndice, idx)
		aliases = append(aliases, "")
		return len(colIndice) - 1, nil
	}

	sortCols := make([]SortColumn, 0, len(w.OrderBy))
	for _, key := range w.OrderBy {
		pos, err := position(key.Column)
		if err != nil {
			return nil, nil, err
		}
		col := SortColumn{Index: pos, Order: OT_ASC}
		if key.Desc {
			col.Order = OT_DESC
		}
		switch key.Nulls {
		case parser.NULLS_FIRST:
			col.Nulls = OBNT_NULLS_FIRST
		case parser.NULLS_LAST:
			col.Nulls = OBNT_NULLS_LAST
		default:
			col.Nulls = OBNT_DEFAULT
		}
		sortCols = append(sortCols, col)
	}
	var distinctIndexes []int
	for _, name := range w.DistinctOn {
		pos, err := position(name)
		if err != nil {
			return nil, nil, err
		}
		distinctIndexes = append(distinctIndexes, pos)
	}

	exprs := make([]Expression, len(colIndice))
	for i, idx := range colIndice {
		exprs[i] = &ColumnExpr{
			Name:    ds.Names[idx],
			AsName:  aliases[i],
			Table:   ds.Name,
			DataTyp: ds.Types[idx],
		}
	}
	result := NewLocalResult(session, exprs, visible, len(colIndice))
	var sort *SortOrder
	if len(sortCols) != 0 {
		sort = NewSortOrder(result.compareMode(), sortCols...)
		result.SetSortOrder(sort)
	}
	if w.Distinct {
		result.SetDistinct()
	}
	if distinctIndexes != nil {
		result.SetDistinctIndexes(distinctIndexes)
	}
	result.SetOffset(w.Offset)
	result.SetLimit(w.Limit)
	result.SetFetchPercent(opts.FetchPercent)
	if w.WithTies {
		if sort == nil {
			closeResult(result)
			return nil, nil, errors.New("WITH TIES requires ORDER BY")
		}
		result.SetWithTies(sort)
	}
	return result, colIndice, nil
}
