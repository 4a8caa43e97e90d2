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
package common

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type LType struct {
	Id    LTypeId
	Width int
	Scale int
}

func MakeLType(id LTypeId) LType {
	return LType{Id: id}
}

func Null() LType {
	return MakeLType(LTID_NULL)
}

func DecimalType(width, scale int) LType {
	ret := MakeLType(LTID_DECIMAL)
	ret.Width = width
	ret.Scale = scale
	return ret
}

func BigintType() LType {
	return MakeLType(LTID_BIGINT)
}

func IntegerType() LType {
	return MakeLType(LTID_INTEGER)
}

func SmallintType() LType {
	return MakeLType(LTID_SMALLINT)
}

func TinyintType() LType {
	return MakeLType(LTID_TINYINT)
}

func UbigintType() LType {
	return MakeLType(LTID_UBIGINT)
}

func FloatType() LType {
	return MakeLType(LTID_FLOAT)
}

func DoubleType() LType {
	return MakeLType(LTID_DOUBLE)
}

func VarcharType() LType {
	return MakeLType(LTID_VARCHAR)
}

func VarcharType2(width int) LType {
	ret := MakeLType(LTID_VARCHAR)
	ret.Width = width
	return ret
}

func DateType() LType {
	return MakeLType(LTID_DATE)
}

func BooleanType() LType {
	return MakeLType(LTID_BOOLEAN)
}

func BlobType() LType {
	return MakeLType(LTID_BLOB)
}

var Numerics = map[LTypeId]int{
	LTID_TINYINT:  0,
	LTID_SMALLINT: 0,
	LTID_INTEGER:  0,
	LTID_BIGINT:   0,
	LTID_FLOAT:    0,
	LTID_DOUBLE:   0,
	LTID_DECIMAL:  0,
	LTID_UBIGINT:  0,
}

func (lt LType) IsNumeric() bool {
	if _, has := Numerics[lt.Id]; has {
		return true
	}
	return false
}

var Integrals = map[LTypeId]int{
	LTID_TINYINT:  0,
	LTID_SMALLINT: 0,
	LTID_INTEGER:  0,
	LTID_BIGINT:   0,
	LTID_UBIGINT:  0,
}

func (lt LType) IsIntegral() bool {
	if _, has := Integrals[lt.Id]; has {
		return true
	}
	return false
}

func (lt LType) IsFloat() bool {
	return lt.Id == LTID_FLOAT || lt.Id == LTID_DOUBLE
}

func (lt LType) IsLob() bool {
	return lt.Id == LTID_BLOB
}

func (lt LType) Equal(o LType) bool {
	if lt.Id != o.Id {
		return false
	}
	switch lt.Id {
	case LTID_DECIMAL:
		return lt.Width == o.Width && lt.Scale == o.Scale
	default:
	}
	return true
}

func (lt LType) String() string {
	name := strings.ToLower(strings.TrimPrefix(lt.Id.String(), "LTID_"))
	if lt.Id == LTID_DECIMAL {
		return fmt.Sprintf("%s(%d,%d)", name, lt.Width, lt.Scale)
	}
	if lt.Id == LTID_VARCHAR && lt.Width > 0 {
		return fmt.Sprintf("%s(%d)", name, lt.Width)
	}
	return name
}

var typeNamePattern = regexp.MustCompile(`^\s*([a-zA-Z]+)\s*(?:\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\))?\s*$`)

// ParseLType parses a type name as written in dataset definitions,
// e.g. "integer", "varchar(20)", "decimal(15,2)".
func ParseLType(s string) (LType, error) {
	m := typeNamePattern.FindStringSubmatch(s)
	if m == nil {
		return LType{}, fmt.Errorf("invalid type name %q", s)
	}
	id, has := lTypeNameToId[strings.ToLower(m[1])]
	if !has {
		return LType{}, fmt.Errorf("unsupported type %q", m[1])
	}
	ret := MakeLType(id)
	if m[2] != "" {
		ret.Width, _ = strconv.Atoi(m[2])
	}
	if m[3] != "" {
		ret.Scale, _ = strconv.Atoi(m[3])
	}
	if id == LTID_DECIMAL && m[2] == "" {
		ret.Width = 18
		ret.Scale = 3
	}
	if id == LTID_DECIMAL && (ret.Width <= 0 || ret.Width > 18 || ret.Scale > ret.Width) {
		return LType{}, fmt.Errorf("invalid decimal %q", s)
	}
	return ret, nil
}
