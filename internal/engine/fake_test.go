package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"stoplossbot/internal/exchange"
	"stoplossbot/internal/logger"
	"stoplossbot/internal/models"
	"stoplossbot/internal/strategy"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testSymbol = "BTCUSDT"

var fastRetry = retryPolicy{attempts: 3, base: time.Millisecond, max: 5 * time.Millisecond}

type fakeClient struct {
	mu        sync.Mutex
	rules     exchange.InstrumentRules
	events    chan exchange.Event
	open      []models.Order
	placed    []models.Order
	cancelled []string
	balances  map[string]exchange.Balance
	placeErrs []error
	seq       int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		rules: exchange.InstrumentRules{
			TickSize:  d("0.01"),
			LotSize:   d("0.0001"),
			BaseCoin:  "BTC",
			QuoteCoin: "USDT",
			Status:    "Trading",
			CanTrade:  true,
		},
		events:   make(chan exchange.Event),
		balances: map[string]exchange.Balance{},
	}
}

func (f *fakeClient) setRules(fn func(r *exchange.InstrumentRules)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(&f.rules)
}

func (f *fakeClient) GetInstrumentRules(ctx context.Context, symbol string) (exchange.InstrumentRules, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rules, nil
}

func (f *fakeClient) Subscribe(ctx context.Context, symbol string, interval models.CandleInterval) (<-chan exchange.Event, error) {
	return f.events, nil
}

func (f *fakeClient) CancelOrder(ctx context.Context, symbol, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeClient) GetOpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Order(nil), f.open...), nil
}

func (f *fakeClient) PlaceOrder(ctx context.Context, order models.Order) (models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.placeErrs) > 0 {
		err := f.placeErrs[0]
		f.placeErrs = f.placeErrs[1:]
		if err != nil {
			return models.Order{}, err
		}
	}
	f.seq++
	order.ID = fmt.Sprintf("ord-%d", f.seq)
	order.Status = models.OrderStatusNew
	f.placed = append(f.placed, order)
	return order, nil
}

func (f *fakeClient) GetBalances(ctx context.Context, coins []string) (map[string]exchange.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]exchange.Balance{}
	for _, c := range coins {
		out[c] = f.balances[c]
	}
	return out, nil
}

func (f *fakeClient) placedOrders() []models.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Order(nil), f.placed...)
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testStrategy(t *testing.T) *strategy.StopLoss {
	t.Helper()
	p, err := strategy.NewParams(
		models.Instrument{Figi: testSymbol, Lot: 1},
		d("1000"), 1, models.CandleInterval1Min,
		d("1"), d("1"), d("2"), d("2"),
	)
	require.NoError(t, err)
	s, err := strategy.New(p, nil)
	require.NoError(t, err)
	return s
}

func newTestEngine(t *testing.T, client *fakeClient, opts Options) *Engine {
	t.Helper()
	e := New(opts, testStrategy(t), client, logger.Nop())
	e.retry = fastRetry
	return e
}

func candleEvent(price string) exchange.Event {
	return exchange.Event{Type: exchange.EventTypeCandle, Candle: &models.Candle{
		Figi:    testSymbol,
		Highest: d(price),
		Lowest:  d(price),
		Time:    time.Now(),
	}}
}

func nextDecision(t *testing.T, e *Engine) strategy.Decision {
	t.Helper()
	select {
	case dec, ok := <-e.Decisions():
		require.True(t, ok, "decisions closed")
		return dec
	case <-time.After(2 * time.Second):
		t.Fatal("no decision")
		return strategy.Decision{}
	}
}

func send(t *testing.T, ch chan exchange.Event, ev exchange.Event) {
	t.Helper()
	select {
	case ch <- ev:
	case <-time.After(2 * time.Second):
		t.Fatal("engine not reading events")
	}
}
