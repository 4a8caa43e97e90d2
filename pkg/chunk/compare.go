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
	"bytes"
	"cmp"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/daviszhen/rowbuf/pkg/common"
)

// type families. Values of different families are ordered by family.
const (
	familyNull = iota
	familyBool
	familyNumeric
	familyString
	familyDate
	familyLob
)

func family(val Value) int {
	if val.IsNull {
		return familyNull
	}
	switch val.Typ.Id {
	case common.LTID_NULL:
		return familyNull
	case common.LTID_BOOLEAN:
		return familyBool
	case common.LTID_VARCHAR:
		return familyString
	case common.LTID_DATE:
		return familyDate
	case common.LTID_BLOB:
		if val.Lob == nil {
			return familyNull
		}
		return familyLob
	default:
		if val.Typ.IsNumeric() {
			return familyNumeric
		}
		panic(fmt.Sprintf("usp compare type %v", val.Typ))
	}
}

// CompareMode is the value comparison used for DISTINCT keys and
// ORDER BY. Numeric values compare by value, not by declared type, so
// INTEGER 1, DECIMAL(5,2) 1.00 and DOUBLE 1.0 are equal. NULLs are
// equal to each other and smaller than everything else.
type CompareMode struct {
	IgnoreCase bool
}

func (cm CompareMode) CompareValues(a, b Value) int {
	fa, fb := family(a), family(b)
	if fa != fb {
		return cmp.Compare(fa, fb)
	}
	switch fa {
	case familyNull:
		return 0
	case familyBool:
		switch {
		case a.Bool == b.Bool:
			return 0
		case a.Bool:
			return 1
		default:
			return -1
		}
	case familyNumeric:
		return compareNumeric(a, b)
	case familyString:
		if cm.IgnoreCase {
			return strings.Compare(strings.ToLower(a.Str), strings.ToLower(b.Str))
		}
		return strings.Compare(a.Str, b.Str)
	case familyDate:
		if ret := cmp.Compare(a.I64, b.I64); ret != 0 {
			return ret
		}
		if ret := cmp.Compare(a.I64_1, b.I64_1); ret != 0 {
			return ret
		}
		return cmp.Compare(a.I64_2, b.I64_2)
	case familyLob:
		return bytes.Compare(a.Lob.Bytes(), b.Lob.Bytes())
	default:
		panic("usp")
	}
}

func compareNumeric(a, b Value) int {
	if a.Typ.IsIntegral() && b.Typ.IsIntegral() {
		return compareIntegral(a, b)
	}
	return toNumKey(a).compare(toNumKey(b))
}

func compareIntegral(a, b Value) int {
	aU, bU := a.Typ.Id == common.LTID_UBIGINT, b.Typ.Id == common.LTID_UBIGINT
	switch {
	case aU && bU:
		return cmp.Compare(a.U64, b.U64)
	case aU:
		if b.I64 < 0 {
			return 1
		}
		return cmp.Compare(a.U64, uint64(b.I64))
	case bU:
		if a.I64 < 0 {
			return -1
		}
		return cmp.Compare(uint64(a.I64), b.U64)
	default:
		return cmp.Compare(a.I64, b.I64)
	}
}

// numKey is a numeric value in the form it is ordered and keyed by.
// Exact values are decimals or unsigned integers too large for a
// decimal. The rest are floats a decimal cannot hold exactly and
// are kept as is.
type numKey struct {
	exact bool
	big   bool
	dec   common.Decimal
	u     uint64
	f     float64
}

func toNumKey(val Value) numKey {
	if d, ok := val.ToDecimal(); ok {
		return numKey{exact: true, dec: d}
	}
	switch val.Typ.Id {
	case common.LTID_UBIGINT:
		return numKey{exact: true, big: true, u: val.U64}
	case common.LTID_FLOAT, common.LTID_DOUBLE:
		f := val.F64
		if f >= 0 && f < 1<<64 && f == math.Trunc(f) {
			return numKey{exact: true, big: true, u: uint64(f)}
		}
		return numKey{f: f}
	}
	return numKey{f: val.ToFloat64()}
}

func (k numKey) float() float64 {
	switch {
	case !k.exact:
		return k.f
	case k.big:
		return float64(k.u)
	default:
		return k.dec.Float64()
	}
}

// compare orders by nearest float first. Exact values with equal
// floats are then ordered by exact value and come before an inexact
// float of the same float value. Two inexact floats are equal only
// when their floats are.
func (k numKey) compare(o numKey) int {
	if k.exact && o.exact {
		switch {
		case k.big && o.big:
			return cmp.Compare(k.u, o.u)
		case k.big:
			return 1
		case o.big:
			return -1
		default:
			return k.dec.Compare(o.dec)
		}
	}
	if ret := compareFloat(k.float(), o.float()); ret != 0 {
		return ret
	}
	switch {
	case k.exact:
		return -1
	case o.exact:
		return 1
	default:
		return 0
	}
}

func (k numKey) String() string {
	switch {
	case !k.exact:
		return "f" + strconv.FormatFloat(k.f, 'g', -1, 64)
	case k.big:
		return strconv.FormatUint(k.u, 10)
	default:
		return k.dec.Canonical()
	}
}

// compareFloat puts NaN after every other number and equal to itself.
func compareFloat(a, b float64) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	}
	return cmp.Compare(a, b)
}

// Compare orders rows column by column. A shorter row that is a
// prefix of a longer one is smaller.
func (cm CompareMode) Compare(a, b Row) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if ret := cm.CompareValues(a[i], b[i]); ret != 0 {
			return ret
		}
	}
	return cmp.Compare(len(a), len(b))
}

func (cm CompareMode) Less(a, b Row) bool {
	return cm.Compare(a, b) < 0
}

// KeyBytes encodes row so that two rows get equal bytes exactly when
// Compare returns 0 for them. Stores that index rows by bytes use it.
func (cm CompareMode) KeyBytes(row Row) []byte {
	buf := make([]byte, 0, 16*len(row))
	for _, val := range row {
		fam := family(val)
		buf = append(buf, byte(fam))
		switch fam {
		case familyNull:
		case familyBool:
			if val.Bool {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		case familyNumeric:
			buf = appendBytes(buf, []byte(toNumKey(val).String()))
		case familyString:
			s := val.Str
			if cm.IgnoreCase {
				s = strings.ToLower(s)
			}
			buf = appendBytes(buf, []byte(s))
		case familyDate:
			buf = binary.BigEndian.AppendUint64(buf, uint64(val.I64))
			buf = binary.BigEndian.AppendUint64(buf, uint64(val.I64_1))
			buf = binary.BigEndian.AppendUint64(buf, uint64(val.I64_2))
		case familyLob:
			buf = appendBytes(buf, val.Lob.Bytes())
		}
	}
	return buf
}

func appendBytes(buf []byte, data []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(data)))
	return append(buf, data...)
}

var _ RowComparator = CompareMode{}
