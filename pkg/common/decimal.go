package common

import (
	"math"
	"strconv"

	decimal2 "github.com/govalues/decimal"
)

type Decimal struct {
	decimal2.Decimal
}

// DecimalFromCoef builds coef * 10^-scale.
func DecimalFromCoef(coef int64, scale int) (Decimal, error) {
	d, err := decimal2.New(coef, scale)
	if err != nil {
		return Decimal{}, err
	}
	return Decimal{Decimal: d}, nil
}

func DecimalFromUint64(v uint64) (Decimal, error) {
	if v <= math.MaxInt64 {
		return DecimalFromCoef(int64(v), 0)
	}
	d, err := decimal2.Parse(strconv.FormatUint(v, 10))
	if err != nil {
		return Decimal{}, err
	}
	return Decimal{Decimal: d}, nil
}

func DecimalFromFloat64(f float64) (Decimal, error) {
	d, err := decimal2.NewFromFloat64(f)
	if err != nil {
		return Decimal{}, err
	}
	return Decimal{Decimal: d}, nil
}

func ParseDecimal(s string) (Decimal, error) {
	d, err := decimal2.Parse(s)
	if err != nil {
		return Decimal{}, err
	}
	return Decimal{Decimal: d}, nil
}

func (dec Decimal) Equal(o Decimal) bool {
	return dec.Decimal.Cmp(o.Decimal) == 0
}

func (dec Decimal) Compare(o Decimal) int {
	return dec.Decimal.Cmp(o.Decimal)
}

// Canonical is the same string for every decimal of equal value,
// whatever its scale: 1, 1.0 and 1.00 all give "1".
func (dec Decimal) Canonical() string {
	return dec.Decimal.Trim(0).String()
}

func (dec Decimal) String() string {
	return dec.Decimal.String()
}

// Float64 is the nearest float64 to dec.
func (dec Decimal) Float64() float64 {
	f, _ := dec.Decimal.Float64()
	return f
}
