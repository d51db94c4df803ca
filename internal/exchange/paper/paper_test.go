package paper

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"stoplossbot/internal/exchange"
	"stoplossbot/internal/exchange/replay"
	"stoplossbot/internal/logger"
	"stoplossbot/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newPaper(t *testing.T, csv string) *Client {
	t.Helper()
	path := filepath.Join(t.TempDir(), "candles.csv")
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	inner := replay.New(path, exchange.InstrumentRules{
		TickSize:  d("0.01"),
		LotSize:   d("1"),
		BaseCoin:  "BTC",
		QuoteCoin: "USDT",
	}, logger.Nop())

	c := New(inner, d("1000"), logger.Nop())
	_, err := c.GetInstrumentRules(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	return c
}

func limit(side models.OrderSide, price, qty string) models.Order {
	return models.Order{
		LinkID: "slb-test",
		Symbol: "BTCUSDT",
		Side:   side,
		Type:   models.OrderTypeLimit,
		Price:  d(price),
		Qty:    d(qty),
	}
}

func TestPlaceOrder_LocksQuote(t *testing.T) {
	c := newPaper(t, "")

	placed, err := c.PlaceOrder(context.Background(), limit(models.OrderSideBuy, "100", "3"))
	require.NoError(t, err)
	assert.NotEmpty(t, placed.ID)
	assert.Equal(t, models.OrderStatusNew, placed.Status)

	balances, err := c.GetBalances(context.Background(), []string{"USDT"})
	require.NoError(t, err)
	assert.True(t, balances["USDT"].Wallet.Equal(d("1000")))
	assert.True(t, balances["USDT"].Available.Equal(d("700")))

	open, err := c.GetOpenOrders(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestPlaceOrder_InsufficientBalance(t *testing.T) {
	c := newPaper(t, "")

	_, err := c.PlaceOrder(context.Background(), limit(models.OrderSideBuy, "100", "11"))
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = c.PlaceOrder(context.Background(), limit(models.OrderSideSell, "100", "1"))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestCancelOrder(t *testing.T) {
	c := newPaper(t, "")

	placed, err := c.PlaceOrder(context.Background(), limit(models.OrderSideBuy, "100", "3"))
	require.NoError(t, err)
	require.NoError(t, c.CancelOrder(context.Background(), "BTCUSDT", placed.ID))

	balances, _ := c.GetBalances(context.Background(), []string{"USDT"})
	assert.True(t, balances["USDT"].Available.Equal(d("1000")))

	err = c.CancelOrder(context.Background(), "BTCUSDT", placed.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestSubscribe_FillsBeforeCandle(t *testing.T) {
	c := newPaper(t, "1700000000000,101,102,100.5,101,1\n"+
		"1700000060000,101,101,99.5,100,1\n")

	_, err := c.PlaceOrder(context.Background(), limit(models.OrderSideBuy, "100", "2"))
	require.NoError(t, err)

	events, err := c.Subscribe(context.Background(), "BTCUSDT", models.CandleInterval1Min)
	require.NoError(t, err)

	var types []exchange.EventType
	var fill *models.Fill
	for ev := range events {
		types = append(types, ev.Type)
		if ev.Type == exchange.EventTypeFill {
			fill = ev.Fill
		}
	}

	assert.Equal(t, []exchange.EventType{
		exchange.EventTypeInstrument,
		exchange.EventTypeCandle,
		exchange.EventTypeBarrier,
		exchange.EventTypeOrder,
		exchange.EventTypeFill,
		exchange.EventTypeCandle,
		exchange.EventTypeBarrier,
	}, types)
	require.NotNil(t, fill)
	assert.True(t, fill.Price.Equal(d("100")))
	assert.Equal(t, "slb-test", fill.LinkID)

	balances, _ := c.GetBalances(context.Background(), []string{"USDT", "BTC"})
	assert.True(t, balances["USDT"].Wallet.Equal(d("800")))
	assert.True(t, balances["BTC"].Available.Equal(d("2")))

	open, _ := c.GetOpenOrders(context.Background(), "BTCUSDT")
	assert.Empty(t, open)
}

type feed struct {
	exchange.Client
	events chan exchange.Event
}

func (f *feed) GetInstrumentRules(ctx context.Context, symbol string) (exchange.InstrumentRules, error) {
	return exchange.InstrumentRules{BaseCoin: "BTC", QuoteCoin: "USDT", CanTrade: true}, nil
}

func (f *feed) Subscribe(ctx context.Context, symbol string, interval models.CandleInterval) (<-chan exchange.Event, error) {
	return f.events, nil
}

func candleEvent(high, low string) exchange.Event {
	return exchange.Event{Type: exchange.EventTypeCandle, Candle: &models.Candle{
		Figi: "BTCUSDT", Highest: d(high), Lowest: d(low),
	}}
}

func TestSubscribe_SellFillsOnHigh(t *testing.T) {
	inner := &feed{events: make(chan exchange.Event)}
	c := New(inner, d("1000"), logger.Nop())
	_, err := c.GetInstrumentRules(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	events, err := c.Subscribe(context.Background(), "BTCUSDT", models.CandleInterval1Min)
	require.NoError(t, err)

	_, err = c.PlaceOrder(context.Background(), limit(models.OrderSideBuy, "100", "1"))
	require.NoError(t, err)

	inner.events <- candleEvent("100", "99")
	assert.Equal(t, exchange.EventTypeOrder, (<-events).Type)
	assert.Equal(t, exchange.EventTypeFill, (<-events).Type)
	assert.Equal(t, exchange.EventTypeCandle, (<-events).Type)
	assert.Equal(t, exchange.EventTypeBarrier, (<-events).Type)

	_, err = c.PlaceOrder(context.Background(), limit(models.OrderSideSell, "102.5", "1"))
	require.NoError(t, err)

	inner.events <- candleEvent("102", "100")
	assert.Equal(t, exchange.EventTypeCandle, (<-events).Type)
	assert.Equal(t, exchange.EventTypeBarrier, (<-events).Type)

	inner.events <- candleEvent("103", "100")
	assert.Equal(t, exchange.EventTypeOrder, (<-events).Type)
	ev := <-events
	require.Equal(t, exchange.EventTypeFill, ev.Type)
	assert.Equal(t, models.OrderSideSell, ev.Fill.Side)
	assert.Equal(t, exchange.EventTypeCandle, (<-events).Type)
	assert.Equal(t, exchange.EventTypeBarrier, (<-events).Type)

	close(inner.events)
	_, ok := <-events
	assert.False(t, ok)

	balances, _ := c.GetBalances(context.Background(), []string{"USDT", "BTC"})
	assert.True(t, balances["USDT"].Wallet.Equal(d("1002.5")))
	assert.True(t, balances["BTC"].Wallet.IsZero())
}

func TestSubscribe_DropsUpstreamOrderEvents(t *testing.T) {
	inner := &feed{events: make(chan exchange.Event, 2)}
	c := New(inner, d("1000"), logger.Nop())

	inner.events <- exchange.Event{Type: exchange.EventTypeFill, Fill: &models.Fill{}}
	inner.events <- candleEvent("1", "1")
	close(inner.events)

	events, err := c.Subscribe(context.Background(), "BTCUSDT", models.CandleInterval1Min)
	require.NoError(t, err)

	var types []exchange.EventType
	for ev := range events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []exchange.EventType{exchange.EventTypeCandle, exchange.EventTypeBarrier}, types)
}
