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

package parser

import (
	"errors"
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v5"
	"github.com/samber/lo"
)

type NullsOrder int

const (
	NULLS_DEFAULT NullsOrder = iota
	NULLS_FIRST
	NULLS_LAST
)

type OrderKey struct {
	Column string
	Desc   bool
	Nulls  NullsOrder
}

// Window is the shape of a single table SELECT as far as a result
// buffer cares: which columns, DISTINCT, ORDER BY and the row window.
type Window struct {
	Table string
	//nil means all columns
	Columns    []string
	Aliases    []string
	Distinct   bool
	DistinctOn []string
	OrderBy    []OrderKey
	Offset     int64
	//-1 means no limit
	Limit    int64
	WithTies bool
}

var errUnsupported = errors.New("only SELECT <columns> FROM <table> [ORDER BY] [LIMIT/OFFSET/FETCH] is supported")

// ParseWindow extracts the Window of a query like
//
//	SELECT DISTINCT ON (a) a, b FROM t ORDER BY a, b DESC NULLS LAST
//	OFFSET 2 FETCH FIRST 3 ROWS WITH TIES
func ParseWindow(sql string) (*Window, error) {
	stmts, err := Parse(sql)
	if err != nil {
		return nil, err
	}
	if len(stmts) != 1 {
		return nil, fmt.Errorf("want one statement, got %d", len(stmts))
	}
	sel := stmts[0].GetStmt().GetSelectStmt()
	if sel == nil || len(sel.GetFromClause()) != 1 {
		return nil, errUnsupported
	}
	if sel.GetWhereClause() != nil || len(sel.GetGroupClause()) != 0 ||
		sel.GetHavingClause() != nil || sel.GetWithClause() != nil {
		return nil, errUnsupported
	}
	rangeVar := sel.GetFromClause()[0].GetRangeVar()
	if rangeVar == nil {
		return nil, errUnsupported
	}
	w := &Window{
		Table: strings.ToLower(rangeVar.GetRelname()),
		Limit: -1,
	}

	//target list
	for _, target := range sel.GetTargetList() {
		res := target.GetResTarget()
		colRef := res.GetVal().GetColumnRef()
		if colRef == nil {
			return nil, fmt.Errorf("select list item is not a column: %w", errUnsupported)
		}
		if len(colRef.GetFields()) == 1 && colRef.GetFields()[0].GetAStar() != nil {
			if len(sel.GetTargetList()) != 1 {
				return nil, fmt.Errorf("* mixed with columns: %w", errUnsupported)
			}
			break
		}
		name, err := columnName(colRef)
		if err != nil {
			return nil, err
		}
		w.Columns = append(w.Columns, name)
		w.Aliases = append(w.Aliases, strings.ToLower(res.GetName()))
	}

	//distinct
	for _, node := range sel.GetDistinctClause() {
		colRef := node.GetColumnRef()
		if colRef == nil {
			//DISTINCT without ON is a single empty node
			w.Distinct = true
			continue
		}
		name, err := columnName(colRef)
		if err != nil {
			return nil, err
		}
		w.DistinctOn = append(w.DistinctOn, name)
	}
	if w.Distinct && len(w.DistinctOn) != 0 {
		return nil, errors.New("DISTINCT and DISTINCT ON together")
	}

	//order by
	for _, node := range sel.GetSortClause() {
		sortBy := node.GetSortBy()
		colRef := sortBy.GetNode().GetColumnRef()
		if colRef == nil {
			return nil, fmt.Errorf("order by item is not a column: %w", errUnsupported)
		}
		name, err := columnName(colRef)
		if err != nil {
			return nil, err
		}
		key := OrderKey{Column: name}
		switch sortBy.GetSortbyDir() {
		case pg_query.SortByDir_SORTBY_DEFAULT,
			pg_query.SortByDir_SORTBY_ASC:
		case pg_query.SortByDir_SORTBY_DESC:
			key.Desc = true
		default:
			return nil, fmt.Errorf("usp orderbydir %v", sortBy.GetSortbyDir())
		}
		switch sortBy.GetSortbyNulls() {
		case pg_query.SortByNulls_SORTBY_NULLS_FIRST:
			key.Nulls = NULLS_FIRST
		case pg_query.SortByNulls_SORTBY_NULLS_LAST:
			key.Nulls = NULLS_LAST
		}
		w.OrderBy = append(w.OrderBy, key)
	}

	//offset, limit
	if sel.GetLimitOffset() != nil {
		w.Offset, err = constInt(sel.GetLimitOffset(), 0)
		if err != nil {
			return nil, fmt.Errorf("offset: %w", err)
		}
	}
	if sel.GetLimitCount() != nil {
		w.Limit, err = constInt(sel.GetLimitCount(), -1)
		if err != nil {
			return nil, fmt.Errorf("limit: %w", err)
		}
	}
	if sel.GetLimitOption() == pg_query.LimitOption_LIMIT_OPTION_WITH_TIES {
		if len(w.OrderBy) == 0 {
			return nil, errors.New("WITH TIES cannot be specified without ORDER BY clause")
		}
		w.WithTies = true
	}
	return w, nil
}

func columnName(colRef *pg_query.ColumnRef) (string, error) {
	fields := colRef.GetFields()
	if len(fields) == 0 || len(fields) > 2 {
		return "", errUnsupported
	}
	name := lo.LastOrEmpty(fields).GetString_().GetSval()
	if name == "" {
		return "", errUnsupported
	}
	return strings.ToLower(name), nil
}

// constInt returns the integer constant of node. NULL, as in LIMIT ALL,
// gives def.
func constInt(node *pg_query.Node, def int64) (int64, error) {
	aConst := node.GetAConst()
	if aConst == nil {
		return 0, errors.New("not a constant")
	}
	if aConst.GetIsnull() {
		return def, nil
	}
	if ival := aConst.GetIval(); ival != nil {
		return int64(ival.GetIval()), nil
	}
	return 0, errors.New("not an integer")
}
