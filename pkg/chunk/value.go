package chunk

import (
	"fmt"
	"math"
	"time"

	"github.com/daviszhen/rowbuf/pkg/common"
)

type Value struct {
	Typ    common.LType
	IsNull bool
	//value
	Bool  bool
	I64   int64
	I64_1 int64
	I64_2 int64
	U64   uint64
	F64   float64
	Str   string
	Lob   Lob
}

func NewNull(typ common.LType) Value {
	return Value{Typ: typ, IsNull: true}
}

func NewBoolean(b bool) Value {
	return Value{Typ: common.BooleanType(), Bool: b}
}

func NewInteger(v int32) Value {
	return Value{Typ: common.IntegerType(), I64: int64(v)}
}

func NewBigint(v int64) Value {
	return Value{Typ: common.BigintType(), I64: v}
}

func NewUbigint(v uint64) Value {
	return Value{Typ: common.UbigintType(), U64: v}
}

func NewDouble(v float64) Value {
	return Value{Typ: common.DoubleType(), F64: v}
}

// NewDecimal builds coef * 10^-scale typed as decimal(width,scale).
func NewDecimal(coef int64, width, scale int) Value {
	return Value{Typ: common.DecimalType(width, scale), I64: coef}
}

func NewVarchar(s string) Value {
	return Value{Typ: common.VarcharType(), Str: s}
}

func NewDate(year, month, day int) Value {
	return Value{
		Typ:   common.DateType(),
		I64:   int64(year),
		I64_1: int64(month),
		I64_2: int64(day),
	}
}

func NewLobValue(lob Lob) Value {
	if lob == nil {
		return NewNull(common.BlobType())
	}
	return Value{Typ: common.BlobType(), Lob: lob}
}

func (val Value) String() string {
	if val.IsNull {
		return "NULL"
	}
	switch val.Typ.Id {
	case common.LTID_TINYINT, common.LTID_SMALLINT,
		common.LTID_INTEGER, common.LTID_BIGINT:
		return fmt.Sprintf("%d", val.I64)
	case common.LTID_BOOLEAN:
		return fmt.Sprintf("%v", val.Bool)
	case common.LTID_VARCHAR:
		return val.Str
	case common.LTID_DECIMAL:
		d, err := common.DecimalFromCoef(val.I64, val.Typ.Scale)
		if err != nil {
			panic(err)
		}
		return d.String()
	case common.LTID_DATE:
		dat := time.Date(int(val.I64), time.Month(val.I64_1), int(val.I64_2),
			0, 0, 0, 0, time.UTC)
		return dat.Format(time.DateOnly)
	case common.LTID_UBIGINT:
		return fmt.Sprintf("%d", val.U64)
	case common.LTID_DOUBLE, common.LTID_FLOAT:
		return fmt.Sprintf("%v", val.F64)
	case common.LTID_BLOB:
		if val.Lob == nil {
			return "NULL"
		}
		return fmt.Sprintf("lob(%d)", val.Lob.Length())
	default:
		panic("usp")
	}
}

// ToDecimal converts a numeric value to a decimal. ok is false for
// non numeric values and for values a decimal cannot hold exactly: NaN,
// Inf and floats whose shortest form needs more digits than a decimal
// keeps.
func (val Value) ToDecimal() (common.Decimal, bool) {
	var d common.Decimal
	var err error
	switch val.Typ.Id {
	case common.LTID_TINYINT, common.LTID_SMALLINT,
		common.LTID_INTEGER, common.LTID_BIGINT:
		d, err = common.DecimalFromCoef(val.I64, 0)
	case common.LTID_UBIGINT:
		d, err = common.DecimalFromUint64(val.U64)
	case common.LTID_DECIMAL:
		d, err = common.DecimalFromCoef(val.I64, val.Typ.Scale)
	case common.LTID_FLOAT, common.LTID_DOUBLE:
		if math.IsNaN(val.F64) || math.IsInf(val.F64, 0) {
			return d, false
		}
		d, err = common.DecimalFromFloat64(val.F64)
		if err == nil && d.Float64() != val.F64 {
			return d, false
		}
	default:
		return d, false
	}
	return d, err == nil
}

// ToFloat64 is the nearest float64 to the value.
func (val Value) ToFloat64() float64 {
	switch val.Typ.Id {
	case common.LTID_UBIGINT:
		return float64(val.U64)
	case common.LTID_DECIMAL:
		d, err := common.DecimalFromCoef(val.I64, val.Typ.Scale)
		if err != nil {
			return float64(val.I64) / math.Pow10(val.Typ.Scale)
		}
		return d.Float64()
	case common.LTID_FLOAT, common.LTID_DOUBLE:
		return val.F64
	default:
		return float64(val.I64)
	}
}
