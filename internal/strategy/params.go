package strategy

import (
	"fmt"
	"strings"

	"stoplossbot/internal/models"

	"github.com/shopspring/decimal"
)

// Params holds the immutable settings of one StopLoss instance.
// Percent fields are percentage points: 1.5 means 1.5 %.
type Params struct {
	Instrument        models.Instrument
	MaxOperationValue decimal.Decimal
	OrderbookDepth    int
	CandleInterval    models.CandleInterval
	GrowToFall        decimal.Decimal
	FallToGrow        decimal.Decimal
	Profit            decimal.Decimal
	StopLoss          decimal.Decimal
}

type InvalidConfigError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("Некорректный параметр %s: %s", e.Field, e.Reason)
}

func NewParams(instrument models.Instrument, maxOperationValue decimal.Decimal, orderbookDepth int, interval models.CandleInterval,
	growToFall, fallToGrow, profit, stopLoss decimal.Decimal) (Params, error) {
	p := Params{
		Instrument:        instrument,
		MaxOperationValue: maxOperationValue,
		OrderbookDepth:    orderbookDepth,
		CandleInterval:    interval,
		GrowToFall:        growToFall,
		FallToGrow:        fallToGrow,
		Profit:            profit,
		StopLoss:          stopLoss,
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

func (p Params) Validate() error {
	if strings.TrimSpace(p.Instrument.Figi) == "" {
		return &InvalidConfigError{Field: "figi", Reason: "должен быть задан"}
	}
	if p.Instrument.Lot <= 0 {
		return &InvalidConfigError{Field: "lot", Reason: "должно быть положительным"}
	}
	if !p.MaxOperationValue.IsPositive() {
		return &InvalidConfigError{Field: "max_operation_value", Reason: "должно быть положительным"}
	}
	if p.OrderbookDepth <= 0 {
		return &InvalidConfigError{Field: "orderbook_depth", Reason: "должно быть положительным"}
	}
	if _, err := models.ParseCandleInterval(string(p.CandleInterval)); err != nil {
		return &InvalidConfigError{Field: "candle_interval", Reason: err.Error()}
	}

	percents := []struct {
		field string
		value decimal.Decimal
	}{
		{"grow_to_fall", p.GrowToFall},
		{"fall_to_grow", p.FallToGrow},
		{"profit", p.Profit},
		{"stop_loss", p.StopLoss},
	}
	for _, item := range percents {
		if !item.value.IsPositive() {
			return &InvalidConfigError{Field: item.field, Reason: "должно быть положительным"}
		}
	}
	return nil
}
