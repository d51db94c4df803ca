package engine

import (
	"time"

	"stoplossbot/internal/models"
	"stoplossbot/internal/strategy"

	"github.com/shopspring/decimal"
)

// Status is a point-in-time view of the engine for the HTTP API.
type Status struct {
	Symbol        string                   `json:"symbol"`
	Running       bool                     `json:"running"`
	State         strategy.State           `json:"state"`
	LastDecision  *strategy.Decision       `json:"last_decision,omitempty"`
	LastMidpoint  decimal.Decimal          `json:"last_midpoint"`
	LastCandleAt  time.Time                `json:"last_candle_at"`
	Position      *models.PositionInfo     `json:"position,omitempty"`
	Order         *models.OutstandingOrder `json:"order,omitempty"`
	Decisions     int64                    `json:"decisions"`
	OrdersPlaced  int64                    `json:"orders_placed"`
	OrdersFailed  int64                    `json:"orders_failed"`
	OrdersDropped int64                    `json:"orders_dropped"`
	Fills         int64                    `json:"fills"`
	Reconnects    int64                    `json:"reconnects"`
	UpstreamError string                   `json:"upstream_error,omitempty"`
}

func (s *Status) record(dec strategy.Decision, state strategy.State, snap models.Snapshot) {
	s.Decisions++
	s.State = state
	d := dec
	s.LastDecision = &d
	if snap.Candle != nil {
		s.LastMidpoint = dec.Midpoint
		s.LastCandleAt = snap.Candle.Time
	}
}
