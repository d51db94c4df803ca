package strategy

import (
	"math"

	"stoplossbot/internal/models"

	"github.com/shopspring/decimal"
)

// Precision is the number of fractional digits kept by every division.
const Precision int32 = 8

var (
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
)

// DivHalfEven divides a by b, rounding the quotient half-to-even at Precision.
// b must not be zero.
func DivHalfEven(a, b decimal.Decimal) decimal.Decimal {
	return divHalfEven(a, b, Precision)
}

func divHalfEven(a, b decimal.Decimal, prec int32) decimal.Decimal {
	ulp := decimal.New(1, -prec)
	q, r := a.QuoRem(b, prec)
	if r.IsZero() {
		return q
	}

	cmp := r.Abs().Mul(two).Cmp(b.Abs().Mul(ulp))
	odd := !q.Shift(prec).Mod(two).IsZero()
	if cmp < 0 || (cmp == 0 && !odd) {
		return q
	}
	if a.Sign()*b.Sign() < 0 {
		return q.Sub(ulp)
	}
	return q.Add(ulp)
}

func Midpoint(c models.Candle) decimal.Decimal {
	return DivHalfEven(c.Highest.Add(c.Lowest), two)
}

// PercentDiff returns |a - b| / (b / 100). Both divisions keep Precision
// digits beyond the scale of b, so b / 100 never rounds to zero.
func PercentDiff(a, b decimal.Decimal) decimal.Decimal {
	prec := Precision + max(0, -b.Exponent())
	return divHalfEven(a.Sub(b).Abs(), divHalfEven(b, hundred, prec), prec)
}

// CalcLots returns floor(capital / (price * lot)) clamped to int32.
func CalcLots(capital, price decimal.Decimal, lot int) int32 {
	perLot := price.Mul(decimal.NewFromInt(int64(lot)))
	if !perLot.IsPositive() || !capital.IsPositive() {
		return 0
	}
	q, _ := capital.QuoRem(perLot, 0)
	if q.GreaterThan(decimal.NewFromInt(math.MaxInt32)) {
		return math.MaxInt32
	}
	return int32(q.IntPart())
}
