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

	"github.com/daviszhen/rowbuf/pkg/common"
)

type Nullability int

const (
	NULLABLE_NO Nullability = iota
	NULLABLE
	NULLABLE_UNKNOWN
)

func (n Nullability) String() string {
	switch n {
	case NULLABLE_NO:
		return "not null"
	case NULLABLE:
		return "null"
	default:
		return "unknown"
	}
}

// Expression describes one column of a result.
type Expression interface {
	Alias(idx int) string
	TableName() string
	SchemaName() string
	ColumnName(idx int) string
	Type() common.LType
	Nullable() Nullability
	IsIdentity() bool
}

// ColumnExpr is a column read from a table, optionally renamed.
type ColumnExpr struct {
	Name     string
	AsName   string
	Table    string
	Schema   string
	DataTyp  common.LType
	NotNull  bool
	Identity bool
}

func NewColumnExpr(name string, typ common.LType) *ColumnExpr {
	return &ColumnExpr{
		Name:    name,
		DataTyp: typ,
	}
}

func (e *ColumnExpr) Alias(idx int) string {
	if e.AsName != "" {
		return e.AsName
	}
	if e.Name != "" {
		return e.Name
	}
	return fmt.Sprintf("_col%d", idx)
}

func (e *ColumnExpr) TableName() string {
	return e.Table
}

func (e *ColumnExpr) SchemaName() string {
	return e.Schema
}

func (e *ColumnExpr) ColumnName(idx int) string {
	if e.Name != "" {
		return e.Name
	}
	return e.Alias(idx)
}

func (e *ColumnExpr) Type() common.LType {
	return e.DataTyp
}

func (e *ColumnExpr) Nullable() Nullability {
	if e.NotNull {
		return NULLABLE_NO
	}
	return NULLABLE
}

func (e *ColumnExpr) IsIdentity() bool {
	return e.Identity
}

var _ Expression = (*ColumnExpr)(nil)
