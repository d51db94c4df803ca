package strategy

import (
	"errors"
	"fmt"

	"stoplossbot/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var ErrInternal = errors.New("внутренняя ошибка стратегии")

type region uint8

const (
	regionOrderOutstanding region = iota
	regionColdStart
	regionCooldown
	regionFavourable
	regionAdverse
	regionAtEntry
)

func (r region) String() string {
	switch r {
	case regionOrderOutstanding:
		return "order_outstanding"
	case regionColdStart:
		return "cold_start"
	case regionCooldown:
		return "cooldown"
	case regionFavourable:
		return "favourable"
	case regionAdverse:
		return "adverse"
	case regionAtEntry:
		return "at_entry"
	}
	return fmt.Sprintf("region(%d)", uint8(r))
}

func classify(st State, snap models.Snapshot) region {
	switch {
	case snap.Order != nil:
		return regionOrderOutstanding
	case snap.Position == nil && st.LastOutcome == OutcomeNone:
		return regionColdStart
	case snap.Position == nil:
		return regionCooldown
	case !st.Extremum.Valid:
		// position opened before this instance started: extremum is the entry price
		return regionAtEntry
	}

	switch st.Extremum.Decimal.Cmp(snap.Position.EnterPrice) {
	case 1:
		return regionFavourable
	case -1:
		return regionAdverse
	}
	return regionAtEntry
}

// Decide is the pure transition function of the strategy.
func Decide(st State, snap models.Snapshot, p Params) (State, Decision) {
	if snap.InstrumentInfo != nil {
		st.CanTrade = snap.InstrumentInfo.CanTrade
	}
	if snap.Candle == nil {
		return st, Pass(ReasonNoCandle, decimal.Zero)
	}

	price := Midpoint(*snap.Candle)
	if !price.IsPositive() {
		return st, Pass(ReasonInvalidPrice, price)
	}

	switch r := classify(st, snap); r {
	case regionOrderOutstanding:
		return st, Pass(ReasonOrderOutstanding, price)
	case regionColdStart:
		if !st.CanTrade {
			return st, Pass(ReasonTradingDisabled, price)
		}
		return placeLimit(st, p, price, models.OrderSideBuy, ReasonColdStartBuy)
	case regionCooldown:
		return decideCooldown(st, p, price)
	case regionFavourable:
		return decideFavourable(st, p, price, snap.Position.EnterPrice)
	case regionAdverse:
		return decideAdverse(st, p, price, snap.Position.EnterPrice)
	case regionAtEntry:
		st.Extremum = decimal.NewNullDecimal(price)
		return st, Pass(ReasonAtEntry, price)
	default:
		panic(fmt.Errorf("%w: необработанная область %s", ErrInternal, r))
	}
}

func decideCooldown(st State, p Params, price decimal.Decimal) (State, Decision) {
	if !st.Extremum.Valid || price.LessThanOrEqual(st.Extremum.Decimal) {
		st.Extremum = decimal.NewNullDecimal(price)
		return st, Pass(ReasonTrackLow, price)
	}

	rise := PercentDiff(price, st.Extremum.Decimal)
	if !rise.GreaterThan(p.FallToGrow) {
		return st, Pass(ReasonRiseInsufficient, price)
	}
	if !st.CanTrade {
		return st, Pass(ReasonTradingDisabled, price)
	}
	return placeLimit(st, p, price, models.OrderSideBuy, ReasonReentryBuy)
}

func decideFavourable(st State, p Params, price, enter decimal.Decimal) (State, Decision) {
	extremum := st.Extremum.Decimal
	if price.GreaterThanOrEqual(extremum) {
		st.Extremum = decimal.NewNullDecimal(price)
		return st, Pass(ReasonTrailHigh, price)
	}

	gain := PercentDiff(extremum, enter)
	if gain.LessThan(p.Profit) {
		// TODO: this pulls the trailing high down before take-profit is armed; confirm whether it should hold instead.
		st.Extremum = decimal.NewNullDecimal(price)
		return st, Pass(ReasonProfitNotArmed, price)
	}

	drop := PercentDiff(price, extremum)
	if drop.LessThan(p.GrowToFall) {
		return st, Pass(ReasonHold, price)
	}
	st.LastOutcome = OutcomeProfit
	return placeLimit(st, p, price, models.OrderSideSell, ReasonTakeProfit)
}

func decideAdverse(st State, p Params, price, enter decimal.Decimal) (State, Decision) {
	if price.GreaterThanOrEqual(st.Extremum.Decimal) {
		st.Extremum = decimal.NewNullDecimal(price)
		return st, Pass(ReasonTrailLow, price)
	}

	loss := PercentDiff(price, enter)
	if loss.LessThan(p.StopLoss) {
		st.Extremum = decimal.NewNullDecimal(price)
		return st, Pass(ReasonDrawdownTolerated, price)
	}
	st.LastOutcome = OutcomeLoss
	return placeLimit(st, p, price, models.OrderSideSell, ReasonStopLoss)
}

// placeLimit emits an order even when lots is zero; the order placer drops it.
func placeLimit(st State, p Params, price decimal.Decimal, side models.OrderSide, reason Reason) (State, Decision) {
	st.Extremum = decimal.NewNullDecimal(price)
	order := models.LimitOrder{
		Figi:  p.Instrument.Figi,
		Lots:  CalcLots(p.MaxOperationValue, price, p.Instrument.Lot),
		Side:  side,
		Price: price,
	}
	return st, PlaceLimitOrder(order, reason)
}

// StopLoss owns the strategy state for one instrument. It is not safe for
// concurrent use; the host serializes OnSnapshot calls.
type StopLoss struct {
	params Params
	log    logrus.FieldLogger
	state  State
	closed bool
}

func New(params Params, log logrus.FieldLogger) (*StopLoss, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	s := &StopLoss{params: params, log: log}
	s.Init()
	return s, nil
}

func (s *StopLoss) Instrument() models.Instrument {
	return s.params.Instrument
}

func (s *StopLoss) CandleInterval() models.CandleInterval {
	return s.params.CandleInterval
}

func (s *StopLoss) OrderbookDepth() int {
	return s.params.OrderbookDepth
}

func (s *StopLoss) Params() Params {
	return s.params
}

func (s *StopLoss) Init() {
	s.state = initialState()
	s.closed = false
}

func (s *StopLoss) State() State {
	return s.state
}

func (s *StopLoss) Cleanup() {
	s.closed = true
}

func (s *StopLoss) OnSnapshot(snap models.Snapshot) Decision {
	if s.closed {
		return Pass(ReasonClosed, decimal.Zero)
	}

	prev := s.state
	next, decision := Decide(prev, snap, s.params)
	s.state = next

	if next.CanTrade != prev.CanTrade {
		s.log.WithFields(logrus.Fields{
			"can_trade":    next.CanTrade,
			"trade_status": snap.InstrumentInfo.TradeStatus,
		}).Debug("Изменился торговый статус инструмента.")
	}

	fields := logrus.Fields{
		"reason":       decision.Reason,
		"price":        decision.Midpoint.String(),
		"extremum":     nullString(prev.Extremum),
		"new_extremum": nullString(next.Extremum),
		"outcome":      next.LastOutcome.String(),
	}
	if snap.Position != nil {
		fields["enter_price"] = snap.Position.EnterPrice.String()
	}
	if decision.Order != nil {
		fields["side"] = decision.Order.Side
		fields["lots"] = decision.Order.Lots
	}
	s.log.WithFields(fields).Debug("Состояние поменялось.")

	return decision
}

func nullString(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.String()
}
