package strategy

import (
	"errors"
	"strconv"

	"github.com/shopspring/decimal"
)

// Outcome is the result of the last sell emitted by the strategy.
type Outcome uint8

const (
	OutcomeNone Outcome = iota
	OutcomeProfit
	OutcomeLoss
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeProfit:
		return "profit"
	case OutcomeLoss:
		return "loss"
	}
	return "outcome(" + strconv.Itoa(int(o)) + ")"
}

func (o Outcome) MarshalText() ([]byte, error) {
	switch o {
	case OutcomeNone, OutcomeProfit, OutcomeLoss:
		return []byte(o.String()), nil
	}
	return nil, errors.New("invalid outcome: " + strconv.Itoa(int(o)))
}

type State struct {
	CanTrade    bool                `json:"can_trade"`
	LastOutcome Outcome             `json:"last_outcome"`
	Extremum    decimal.NullDecimal `json:"extremum"`
}

func initialState() State {
	return State{CanTrade: false, LastOutcome: OutcomeNone}
}
