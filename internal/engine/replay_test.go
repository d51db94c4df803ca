package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"stoplossbot/internal/exchange"
	"stoplossbot/internal/exchange/paper"
	"stoplossbot/internal/exchange/replay"
	"stoplossbot/internal/logger"
	"stoplossbot/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu      sync.Mutex
	reasons []strategy.Reason
}

func (r *recordingSink) Publish(_ context.Context, _ string, d strategy.Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, d.Reason)
	return nil
}

func TestEngine_PaperReplay(t *testing.T) {
	rows := "time,open,high,low,close,volume\n"
	for i, price := range []string{"100", "100", "103", "103", "101.9", "102"} {
		rows += "17000000" + string(rune('0'+i)) + "0000," + price + "," + price + "," + price + "," + price + ",1\n"
	}
	path := filepath.Join(t.TempDir(), "candles.csv")
	require.NoError(t, os.WriteFile(path, []byte(rows), 0o644))

	source := replay.New(path, exchange.InstrumentRules{
		TickSize:  d("0.01"),
		LotSize:   d("0.0001"),
		BaseCoin:  "BTC",
		QuoteCoin: "USDT",
	}, logger.Nop())
	client := paper.New(source, d("1000"), logger.Nop())

	sink := &recordingSink{}
	e := New(Options{AwaitPlacement: true}, testStrategy(t), client, logger.Nop(), sink)
	e.retry = fastRetry
	p := NewPlacer(e, client, logger.Nop())
	p.retry = fastRetry

	placed := make(chan struct{})
	go func() {
		p.Run(context.Background(), e.Decisions())
		close(placed)
	}()

	err := e.Start(context.Background())
	assert.ErrorIs(t, err, ErrUpstreamClosed)
	<-placed

	assert.Equal(t, []strategy.Reason{
		strategy.ReasonNoCandle,
		strategy.ReasonNoCandle,
		strategy.ReasonColdStartBuy,
		strategy.ReasonAtEntry,
		strategy.ReasonAtEntry,
		strategy.ReasonTrailHigh,
		strategy.ReasonTakeProfit,
		strategy.ReasonTrailHigh,
	}, sink.reasons)

	st := e.Status()
	assert.Equal(t, int64(2), st.OrdersPlaced)
	assert.Equal(t, int64(2), st.Fills)
	require.NotNil(t, st.Position)
	assert.True(t, st.Position.Quantity.Equal(d("1")))
	assert.True(t, st.Position.EnterPrice.Equal(d("100")))

	balances, err := client.GetBalances(context.Background(), []string{"BTC", "USDT"})
	require.NoError(t, err)
	assert.True(t, balances["USDT"].Wallet.Equal(d("917.1")))
	assert.True(t, balances["BTC"].Wallet.Equal(d("1")))
}
