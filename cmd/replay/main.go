package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"stoplossbot/internal/config"
	"stoplossbot/internal/engine"
	"stoplossbot/internal/exchange"
	"stoplossbot/internal/exchange/paper"
	"stoplossbot/internal/exchange/replay"
	"stoplossbot/internal/logger"
	"stoplossbot/internal/strategy"

	jsoniter "github.com/json-iterator/go"
)

// printSink writes each decision as one JSON line to stdout.
type printSink struct {
	enc *jsoniter.Encoder
}

func (p printSink) Publish(_ context.Context, symbol string, d strategy.Decision) error {
	return p.enc.Encode(struct {
		Symbol string `json:"symbol"`
		strategy.Decision
	}{symbol, d})
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	file := cfg.Replay.File
	if len(os.Args) > 1 {
		file = os.Args[1]
	}
	if file == "" {
		fmt.Fprintln(os.Stderr, "usage: replay <candles.csv>")
		os.Exit(2)
	}

	logCfg := cfg.Runtime.Log.LoggerConfig()
	if logCfg.Output == "" || logCfg.Output == "stdout" {
		logCfg.Output = "stderr"
	}
	log := logger.New(logCfg)

	params, err := cfg.StrategyParams()
	if err != nil {
		log.WithError(err).Fatal("Некорректные параметры стратегии.")
	}
	strat, err := strategy.New(params, log.Entry("strategy", params.Instrument.Figi))
	if err != nil {
		log.WithError(err).Fatal("Не удалось создать стратегию.")
	}

	source := replay.New(file, exchange.InstrumentRules{
		TickSize:  cfg.Replay.TickSize,
		LotSize:   cfg.Replay.LotSize,
		BaseCoin:  cfg.Replay.BaseCoin,
		QuoteCoin: cfg.Replay.QuoteCoin,
	}, log)
	client := paper.New(source, cfg.Runtime.PaperBalance, log)

	sink := printSink{enc: jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(os.Stdout)}
	eng := engine.New(engine.Options{AwaitPlacement: true}, strat, client, log, sink)
	placer := engine.NewPlacer(eng, client, log)

	ctx := context.Background()
	placed := make(chan struct{})
	go func() {
		placer.Run(ctx, eng.Decisions())
		close(placed)
	}()

	err = eng.Start(ctx)
	<-placed

	st := eng.Status()
	balances, _ := client.GetBalances(ctx, []string{cfg.Replay.BaseCoin, cfg.Replay.QuoteCoin})
	log.WithFields(map[string]interface{}{
		"decisions":     st.Decisions,
		"orders_placed": st.OrdersPlaced,
		"fills":         st.Fills,
		"base":          balances[cfg.Replay.BaseCoin].Wallet.String(),
		"quote":         balances[cfg.Replay.QuoteCoin].Wallet.String(),
	}).Info("Прогон завершён.")

	if err != nil && !errors.Is(err, engine.ErrUpstreamClosed) {
		log.WithError(err).Fatal("Прогон завершился с ошибкой.")
	}
}
