package engine

import (
	"sort"

	"stoplossbot/internal/models"
	"stoplossbot/internal/strategy"

	"github.com/shopspring/decimal"
)

// Tracker folds exchange events into the snapshot the strategy sees.
// Only orders whose link ID carries the bot prefix are counted. Not safe
// for concurrent use.
type Tracker struct {
	symbol string

	candle  *models.Candle
	orders  map[string]models.Order
	done    map[string]struct{}
	pending *models.OutstandingOrder
	execs   map[string]struct{}

	qty  decimal.Decimal
	cost decimal.Decimal
}

func NewTracker(symbol string) *Tracker {
	return &Tracker{
		symbol: symbol,
		orders: map[string]models.Order{},
		done:   map[string]struct{}{},
		execs:  map[string]struct{}{},
	}
}

func (t *Tracker) OnCandle(c models.Candle) {
	t.candle = &c
}

func (t *Tracker) LastCandle() *models.Candle {
	return t.candle
}

// OnOrder applies an order update and reports whether it belongs to the bot.
func (t *Tracker) OnOrder(o models.Order) bool {
	if !isBotLinkID(o.LinkID) || (o.Symbol != "" && o.Symbol != t.symbol) {
		return false
	}
	if o.Status.IsOpen() {
		if _, closed := t.done[o.ID]; !closed {
			t.orders[o.ID] = o
		}
		return true
	}
	delete(t.orders, o.ID)
	t.done[o.ID] = struct{}{}
	return true
}

// OnFill books an execution of a bot order into the position. Repeated
// exec IDs are ignored.
func (t *Tracker) OnFill(f models.Fill) bool {
	if !isBotLinkID(f.LinkID) || (f.Symbol != "" && f.Symbol != t.symbol) {
		return false
	}
	if f.ExecID != "" {
		if _, seen := t.execs[f.ExecID]; seen {
			return false
		}
		t.execs[f.ExecID] = struct{}{}
	}

	switch f.Side {
	case models.OrderSideBuy:
		t.cost = t.cost.Add(f.Price.Mul(f.Qty))
		t.qty = t.qty.Add(f.Qty)
	case models.OrderSideSell:
		enter := t.enterPrice()
		t.qty = t.qty.Sub(f.Qty)
		t.cost = enter.Mul(t.qty)
	}
	if !t.qty.IsPositive() {
		t.qty = decimal.Zero
		t.cost = decimal.Zero
	}
	return true
}

// SetOpenOrders replaces the open order book with a fresh listing.
func (t *Tracker) SetOpenOrders(orders []models.Order) {
	t.orders = map[string]models.Order{}
	for _, o := range orders {
		if isBotLinkID(o.LinkID) && o.Status.IsOpen() {
			t.orders[o.ID] = o
		}
	}
}

func (t *Tracker) OpenOrders() []models.Order {
	out := make([]models.Order, 0, len(t.orders))
	for _, o := range t.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreateTime.Before(out[j].CreateTime) })
	return out
}

// MarkPending counts an order the strategy asked for as outstanding until
// the placer resolves it.
func (t *Tracker) MarkPending(o models.LimitOrder) {
	t.pending = &models.OutstandingOrder{
		Side:  o.Side,
		Price: o.Price,
		Qty:   decimal.NewFromInt32(o.Lots),
	}
}

// Resolve clears the pending order. A non-nil order was accepted by the
// exchange and stays outstanding until an update closes it.
func (t *Tracker) Resolve(placed *models.Order) {
	t.pending = nil
	if placed == nil || placed.ID == "" {
		return
	}
	if _, closed := t.done[placed.ID]; closed {
		return
	}
	o := *placed
	if o.Status == "" {
		o.Status = models.OrderStatusNew
	}
	t.orders[o.ID] = o
}

func (t *Tracker) enterPrice() decimal.Decimal {
	if !t.qty.IsPositive() {
		return decimal.Zero
	}
	return strategy.DivHalfEven(t.cost, t.qty)
}

func (t *Tracker) Position() *models.PositionInfo {
	if !t.qty.IsPositive() {
		return nil
	}
	return &models.PositionInfo{Figi: t.symbol, EnterPrice: t.enterPrice(), Quantity: t.qty}
}

func (t *Tracker) Outstanding() *models.OutstandingOrder {
	if t.pending != nil {
		p := *t.pending
		return &p
	}
	open := t.OpenOrders()
	if len(open) == 0 {
		return nil
	}
	last := open[len(open)-1]
	return &models.OutstandingOrder{
		ID:     last.ID,
		LinkID: last.LinkID,
		Side:   last.Side,
		Price:  last.Price,
		Qty:    last.Qty.Sub(last.FilledQty),
	}
}

// CandleSnapshot is evaluated for every candle.
func (t *Tracker) CandleSnapshot() models.Snapshot {
	return models.Snapshot{
		Candle:   t.candle,
		Position: t.Position(),
		Order:    t.Outstanding(),
	}
}

// InstrumentSnapshot carries a trading status change and no candle.
func (t *Tracker) InstrumentSnapshot(info models.InstrumentInfo) models.Snapshot {
	return models.Snapshot{
		InstrumentInfo: &info,
		Position:       t.Position(),
		Order:          t.Outstanding(),
	}
}
