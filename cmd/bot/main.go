package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"stoplossbot/internal/api"
	"stoplossbot/internal/config"
	"stoplossbot/internal/engine"
	"stoplossbot/internal/exchange"
	"stoplossbot/internal/exchange/bybit"
	"stoplossbot/internal/exchange/paper"
	"stoplossbot/internal/logger"
	"stoplossbot/internal/publish"
	"stoplossbot/internal/strategy"
)

func main() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.Runtime.Log.LoggerConfig())

	params, err := cfg.StrategyParams()
	if err != nil {
		log.WithError(err).Fatal("Некорректные параметры стратегии.")
	}
	if err := bybit.SupportsInterval(params.CandleInterval); err != nil {
		log.WithError(err).Fatal("Некорректные параметры стратегии.")
	}
	strat, err := strategy.New(params, log.Entry("strategy", params.Instrument.Figi))
	if err != nil {
		log.WithError(err).Fatal("Не удалось создать стратегию.")
	}

	var client exchange.Client = bybit.New(bybit.Config{
		BaseURL:      cfg.Exchange.BaseUrl,
		WSPublicURL:  cfg.Exchange.WSPublicURL,
		WSPrivateURL: cfg.Exchange.WSPrivateURL,
		AccountType:  cfg.Exchange.AccountType,
		APIKey:       cfg.Exchange.ApiKey,
		Secret:       cfg.Exchange.Secret,
	}, log)
	if cfg.Runtime.DryRun {
		log.WithFields(map[string]interface{}{
			"paper_balance": cfg.Runtime.PaperBalance.String(),
		}).Warn("Режим dry run: ордера исполняются на бумаге.")
		client = paper.New(client, cfg.Runtime.PaperBalance, log)
	}

	var sinks []engine.Sink
	if cfg.Nats.URL != "" {
		pub, err := publish.Connect(cfg.Nats.URL, cfg.Nats.Subject, cfg.Nats.PublishPass, log)
		if err != nil {
			log.WithError(err).Fatal("Не удалось подключиться к NATS.")
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	eng := engine.New(engine.Options{
		InstrumentPoll: cfg.Runtime.InstrumentPoll,
		CancelOnExit:   cfg.Runtime.CancelOnExit,
	}, strat, client, log, sinks...)
	placer := engine.NewPlacer(eng, client, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.HTTP.Addr != "" {
		srv := api.New(cfg.HTTP.Addr, eng, log)
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.WithError(err).Error("HTTP сервер завершился с ошибкой.")
			}
		}()
	}

	placed := make(chan struct{})
	go func() {
		placer.Run(ctx, eng.Decisions())
		close(placed)
	}()

	engineErr := make(chan error, 1)
	go func() {
		engineErr <- eng.Start(ctx)
	}()

	select {
	case <-sigCh:
		log.Info("Получен сигнал остановки.")
		cancel()
		err = <-engineErr
	case err = <-engineErr:
		cancel()
	}
	<-placed

	if err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("\"Двигатель\" завершился с ошибкой.")
	}
	log.Info("Бот остановлен.")
}
