package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"stoplossbot/internal/exchange"
	"stoplossbot/internal/models"
	"stoplossbot/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startEngine(t *testing.T, e *Engine) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Start(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
		return nil
	}
}

func TestEngine_TradeCycle(t *testing.T) {
	client := newFakeClient()
	e := newTestEngine(t, client, Options{})
	_, done := startEngine(t, e)

	dec := nextDecision(t, e)
	assert.Equal(t, strategy.ReasonNoCandle, dec.Reason)

	send(t, client.events, candleEvent("100"))
	dec = nextDecision(t, e)
	require.Equal(t, strategy.KindPlaceLimitOrder, dec.Kind)
	assert.Equal(t, strategy.ReasonColdStartBuy, dec.Reason)
	assert.Equal(t, int32(10), dec.Order.Lots)

	send(t, client.events, candleEvent("101"))
	assert.Equal(t, strategy.ReasonOrderOutstanding, nextDecision(t, e).Reason)

	e.Resolve(&models.Order{ID: "o1", LinkID: "slb-aaa-buy", Side: models.OrderSideBuy, Price: d("100"), Qty: d("10")})
	send(t, client.events, candleEvent("101"))
	assert.Equal(t, strategy.ReasonOrderOutstanding, nextDecision(t, e).Reason)

	send(t, client.events, exchange.Event{Type: exchange.EventTypeOrder, Order: &models.Order{
		ID: "o1", LinkID: "slb-aaa-buy", Symbol: testSymbol, Status: models.OrderStatusFilled,
	}})
	send(t, client.events, exchange.Event{Type: exchange.EventTypeFill, Fill: &models.Fill{
		OrderID: "o1", LinkID: "slb-aaa-buy", ExecID: "e1", Symbol: testSymbol,
		Side: models.OrderSideBuy, Price: d("100"), Qty: d("10"),
	}})

	send(t, client.events, candleEvent("100"))
	assert.Equal(t, strategy.ReasonAtEntry, nextDecision(t, e).Reason)

	send(t, client.events, candleEvent("103"))
	assert.Equal(t, strategy.ReasonAtEntry, nextDecision(t, e).Reason)

	send(t, client.events, candleEvent("103"))
	assert.Equal(t, strategy.ReasonTrailHigh, nextDecision(t, e).Reason)

	send(t, client.events, candleEvent("101.9"))
	dec = nextDecision(t, e)
	require.Equal(t, strategy.KindPlaceLimitOrder, dec.Kind)
	assert.Equal(t, strategy.ReasonTakeProfit, dec.Reason)
	assert.Equal(t, models.OrderSideSell, dec.Order.Side)

	st := e.Status()
	assert.True(t, st.Running)
	assert.Equal(t, int64(8), st.Decisions)
	assert.Equal(t, int64(1), st.Fills)
	require.NotNil(t, st.Position)
	assert.True(t, st.Position.EnterPrice.Equal(d("100")))
	assert.True(t, st.Position.Quantity.Equal(d("10")))
	assert.Equal(t, strategy.OutcomeProfit, st.State.LastOutcome)
	require.NotNil(t, st.Order)

	close(client.events)
	err := waitDone(t, done)
	assert.ErrorIs(t, err, ErrUpstreamClosed)

	_, ok := <-e.Decisions()
	assert.False(t, ok)
	assert.False(t, e.Status().Running)
}

func TestEngine_UpstreamErrorStopsDecisions(t *testing.T) {
	client := newFakeClient()
	e := newTestEngine(t, client, Options{})
	_, done := startEngine(t, e)

	nextDecision(t, e)

	cause := errors.New("socket gone")
	send(t, client.events, exchange.Event{Type: exchange.EventTypeError, Err: cause})

	err := waitDone(t, done)
	assert.ErrorIs(t, err, ErrUpstreamClosed)
	assert.ErrorIs(t, err, cause)
	assert.NotEmpty(t, e.Status().UpstreamError)

	_, ok := <-e.Decisions()
	assert.False(t, ok)
}

func TestEngine_ForeignCandleIgnored(t *testing.T) {
	client := newFakeClient()
	e := newTestEngine(t, client, Options{})
	_, _ = startEngine(t, e)
	nextDecision(t, e)

	send(t, client.events, exchange.Event{Type: exchange.EventTypeCandle, Candle: &models.Candle{
		Figi: "ETHUSDT", Highest: d("1"), Lowest: d("1"),
	}})
	send(t, client.events, candleEvent("100"))

	assert.Equal(t, strategy.ReasonColdStartBuy, nextDecision(t, e).Reason)
}

func TestEngine_InstrumentPollChange(t *testing.T) {
	client := newFakeClient()
	e := newTestEngine(t, client, Options{InstrumentPoll: 5 * time.Millisecond})
	_, _ = startEngine(t, e)

	assert.Equal(t, strategy.ReasonNoCandle, nextDecision(t, e).Reason)

	client.setRules(func(r *exchange.InstrumentRules) {
		r.CanTrade = false
		r.Status = "Break"
	})
	dec := nextDecision(t, e)
	assert.Equal(t, strategy.ReasonNoCandle, dec.Reason)
	assert.False(t, e.Status().State.CanTrade)

	send(t, client.events, candleEvent("100"))
	assert.Equal(t, strategy.ReasonTradingDisabled, nextDecision(t, e).Reason)
}

func TestEngine_ReconnectResyncsOrders(t *testing.T) {
	client := newFakeClient()
	e := newTestEngine(t, client, Options{})
	_, _ = startEngine(t, e)
	nextDecision(t, e)

	client.mu.Lock()
	client.open = []models.Order{
		{ID: "x", LinkID: "manual-1", Status: models.OrderStatusNew},
		{ID: "y", LinkID: "slb-bbb-buy", Side: models.OrderSideBuy, Price: d("99"), Qty: d("1"), Status: models.OrderStatusNew},
	}
	client.mu.Unlock()

	send(t, client.events, exchange.Event{Type: exchange.EventTypeReconnect})
	send(t, client.events, candleEvent("100"))

	assert.Equal(t, strategy.ReasonOrderOutstanding, nextDecision(t, e).Reason)
	st := e.Status()
	require.NotNil(t, st.Order)
	assert.Equal(t, "y", st.Order.ID)
	assert.Equal(t, int64(1), st.Reconnects)
}

func TestEngine_CancelOnExit(t *testing.T) {
	client := newFakeClient()
	client.open = []models.Order{
		{ID: "x", LinkID: "manual-1", Status: models.OrderStatusNew},
		{ID: "y", LinkID: "slb-bbb-buy", Status: models.OrderStatusNew},
	}
	e := newTestEngine(t, client, Options{CancelOnExit: true})
	cancel, done := startEngine(t, e)
	nextDecision(t, e)

	cancel()
	assert.NoError(t, waitDone(t, done))

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Equal(t, []string{"y"}, client.cancelled)
}

func TestEngine_ClosedAfterStop(t *testing.T) {
	client := newFakeClient()
	e := newTestEngine(t, client, Options{})
	cancel, done := startEngine(t, e)
	nextDecision(t, e)
	cancel()
	require.NoError(t, waitDone(t, done))

	dec := e.strategy.OnSnapshot(models.Snapshot{Candle: &models.Candle{Highest: d("1"), Lowest: d("1")}})
	assert.Equal(t, strategy.ReasonClosed, dec.Reason)
}
