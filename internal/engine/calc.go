package engine

import (
	"github.com/shopspring/decimal"
)

func roundDown(value, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return value
	}
	return value.Div(step).Floor().Mul(step)
}

// maxLots is how many whole lots of lotQty fit into budget at price.
func maxLots(budget, price, lotQty decimal.Decimal) int64 {
	unit := price.Mul(lotQty)
	if !unit.IsPositive() || !budget.IsPositive() {
		return 0
	}
	return budget.Div(unit).Floor().IntPart()
}
