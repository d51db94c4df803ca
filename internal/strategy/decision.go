package strategy

import (
	"errors"
	"strconv"

	"stoplossbot/internal/models"

	"github.com/shopspring/decimal"
)

type Kind uint8

const (
	KindPass Kind = iota
	KindPlaceLimitOrder
)

func (k Kind) String() string {
	switch k {
	case KindPass:
		return "pass"
	case KindPlaceLimitOrder:
		return "place_limit_order"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

func (k Kind) MarshalText() ([]byte, error) {
	switch k {
	case KindPass, KindPlaceLimitOrder:
		return []byte(k.String()), nil
	}
	return nil, errors.New("invalid decision kind: " + strconv.Itoa(int(k)))
}

// Reason names the branch of the state machine that produced a decision.
type Reason string

const (
	ReasonNoCandle          Reason = "no_candle"
	ReasonInvalidPrice      Reason = "invalid_price"
	ReasonClosed            Reason = "closed"
	ReasonOrderOutstanding  Reason = "order_outstanding"
	ReasonTradingDisabled   Reason = "trading_disabled"
	ReasonColdStartBuy      Reason = "cold_start_buy"
	ReasonTrackLow          Reason = "track_low"
	ReasonReentryBuy        Reason = "reentry_buy"
	ReasonRiseInsufficient  Reason = "rise_insufficient"
	ReasonTrailHigh         Reason = "trail_high"
	ReasonTakeProfit        Reason = "take_profit"
	ReasonHold              Reason = "hold"
	ReasonProfitNotArmed    Reason = "profit_not_armed"
	ReasonTrailLow          Reason = "trail_low"
	ReasonStopLoss          Reason = "stop_loss"
	ReasonDrawdownTolerated Reason = "drawdown_tolerated"
	ReasonAtEntry           Reason = "at_entry"
)

type Decision struct {
	Kind     Kind               `json:"kind"`
	Order    *models.LimitOrder `json:"order,omitempty"`
	Reason   Reason             `json:"reason"`
	Midpoint decimal.Decimal    `json:"midpoint"`
}

func Pass(reason Reason, midpoint decimal.Decimal) Decision {
	return Decision{Kind: KindPass, Reason: reason, Midpoint: midpoint}
}

func PlaceLimitOrder(order models.LimitOrder, reason Reason) Decision {
	return Decision{Kind: KindPlaceLimitOrder, Order: &order, Reason: reason, Midpoint: order.Price}
}

func (d Decision) IsPass() bool {
	return d.Kind == KindPass
}
