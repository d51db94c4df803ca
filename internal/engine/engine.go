package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"stoplossbot/internal/exchange"
	"stoplossbot/internal/logger"
	"stoplossbot/internal/metrics"
	"stoplossbot/internal/models"
	"stoplossbot/internal/strategy"

	"github.com/sirupsen/logrus"
)

// ErrUpstreamClosed is returned by Start when the market stream fails or ends.
var ErrUpstreamClosed = errors.New("Поток рыночных данных закрыт.")

type Options struct {
	InstrumentPoll time.Duration
	CancelOnExit   bool
	// AwaitPlacement holds the event loop after an order decision until the
	// placer resolves it. Replays use it to stay deterministic.
	AwaitPlacement bool
}

// Sink receives every decision after it is handed to the placer.
type Sink interface {
	Publish(ctx context.Context, symbol string, d strategy.Decision) error
}

// Engine drives one StopLoss instance from an exchange stream.
type Engine struct {
	opts     Options
	strategy *strategy.StopLoss
	client   exchange.Client
	log      *logger.Logger
	sinks    []Sink
	symbol   string
	retry    retryPolicy

	decisions chan strategy.Decision
	resolved  chan struct{}

	mu       sync.Mutex
	rules    exchange.InstrumentRules
	tracker  *Tracker
	lastInfo *models.InstrumentInfo
	status   Status
}

func New(opts Options, strat *strategy.StopLoss, client exchange.Client, log *logger.Logger, sinks ...Sink) *Engine {
	symbol := strat.Instrument().Figi
	return &Engine{
		opts:      opts,
		strategy:  strat,
		client:    client,
		log:       log,
		sinks:     sinks,
		symbol:    symbol,
		retry:     defaultRetry,
		decisions: make(chan strategy.Decision, 100),
		resolved:  make(chan struct{}, 1),
		tracker:   NewTracker(symbol),
		status:    Status{Symbol: symbol},
	}
}

// Decisions yields one decision per evaluated snapshot. It is closed when
// Start returns.
func (e *Engine) Decisions() <-chan strategy.Decision {
	return e.decisions
}

func (e *Engine) Rules() exchange.InstrumentRules {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rules
}

func (e *Engine) Start(ctx context.Context) error {
	defer e.shutdown()

	rules, err := e.withRetryRules(ctx)
	if err != nil {
		return fmt.Errorf("Не удалось получить ограничения торговой пары: %w", err)
	}
	e.mu.Lock()
	e.rules = rules
	e.status.Running = true
	e.mu.Unlock()

	e.logEntry().WithFields(logrus.Fields{
		"tick_size":    rules.TickSize.String(),
		"lot_size":     rules.LotSize.String(),
		"min_qty":      rules.MinQty.String(),
		"min_notional": rules.MinNotional.String(),
		"status":       rules.Status,
	}).Info("Получены ограничения торговой пары.")

	if err := e.syncOpenOrders(ctx); err != nil {
		e.logEntry().WithError(err).Warn("Не удалось получить открытые ордера.")
	}

	if err := e.onInstrument(ctx, rules.Info(e.symbol), false); err != nil {
		// context ended
		return nil
	}

	events, err := e.client.Subscribe(ctx, e.symbol, e.strategy.CandleInterval())
	if err != nil {
		return fmt.Errorf("Не удалось подписаться на поток: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	polls := make(chan models.InstrumentInfo, 1)
	if e.opts.InstrumentPoll > 0 {
		go e.pollInstrument(loopCtx, polls)
	}

	e.logEntry().WithField("interval", e.strategy.CandleInterval()).Info("Бот запущен.")
	return e.handleEvents(loopCtx, events, polls)
}

func (e *Engine) shutdown() {
	e.mu.Lock()
	e.strategy.Cleanup()
	e.status.Running = false
	e.mu.Unlock()

	if e.opts.CancelOnExit {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		n, err := e.cancelOpenBotOrders(ctx)
		cancel()
		if err != nil {
			e.logEntry().WithError(err).Error("Не удалось отменить ордера бота.")
		} else if n > 0 {
			e.logEntry().WithField("count", n).Info("Ордера бота отменены.")
		}
	}

	close(e.decisions)
	e.logEntry().Info("Бот остановлен.")
}

func (e *Engine) pollInstrument(ctx context.Context, out chan<- models.InstrumentInfo) {
	ticker := time.NewTicker(e.opts.InstrumentPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		rules, err := e.client.GetInstrumentRules(ctx, e.symbol)
		if err != nil {
			e.logEntry().WithError(err).Warn("Не удалось обновить статус инструмента.")
			continue
		}
		select {
		case out <- rules.Info(e.symbol):
		case <-ctx.Done():
			return
		}
	}
}

// evaluate runs the strategy on snap and hands the decision out.
func (e *Engine) evaluate(ctx context.Context, snap models.Snapshot) error {
	e.mu.Lock()
	dec := e.strategy.OnSnapshot(snap)
	if !dec.IsPass() && dec.Order != nil {
		e.tracker.MarkPending(*dec.Order)
	}
	state := e.strategy.State()
	e.status.record(dec, state, snap)
	e.mu.Unlock()

	metrics.Decisions.WithLabelValues(e.symbol, dec.Kind.String(), string(dec.Reason)).Inc()
	metrics.CanTrade.WithLabelValues(e.symbol).Set(metrics.BoolGauge(state.CanTrade))
	if snap.Candle != nil {
		metrics.LastMidpoint.WithLabelValues(e.symbol).Set(dec.Midpoint.InexactFloat64())
	}

	if !dec.IsPass() {
		e.logEntry().WithFields(logrus.Fields{
			"reason": dec.Reason,
			"side":   dec.Order.Side,
			"lots":   dec.Order.Lots,
			"price":  dec.Order.Price.String(),
		}).Info("Стратегия выставляет ордер.")
	}

	await := e.opts.AwaitPlacement && !dec.IsPass()
	if await {
		select {
		case <-e.resolved:
		default:
		}
	}

	select {
	case e.decisions <- dec:
	case <-ctx.Done():
		return ctx.Err()
	}

	if await {
		select {
		case <-e.resolved:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for _, sink := range e.sinks {
		if err := sink.Publish(ctx, e.symbol, dec); err != nil {
			e.logEntry().WithError(err).Warn("Не удалось опубликовать решение.")
		}
	}
	return nil
}

// Resolve is called by the placer once a decision has been acted upon.
func (e *Engine) Resolve(placed *models.Order) {
	e.mu.Lock()
	e.tracker.Resolve(placed)
	if placed != nil {
		e.status.OrdersPlaced++
	}
	e.mu.Unlock()

	select {
	case e.resolved <- struct{}{}:
	default:
	}
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.status
	st.State = e.strategy.State()
	st.Position = e.tracker.Position()
	st.Order = e.tracker.Outstanding()
	return st
}
