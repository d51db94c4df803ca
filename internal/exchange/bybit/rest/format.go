package rest

import (
	"github.com/shopspring/decimal"
)

// formatWithStep truncates value down to a multiple of step and prints it
// with as many decimals as the step has.
func formatWithStep(value, step decimal.Decimal) string {
	if !step.IsPositive() {
		return value.String()
	}

	quantized := value.Div(step).Floor().Mul(step)
	places := -step.Exponent()
	if places < 0 {
		places = 0
	}
	return quantized.StringFixed(places)
}
