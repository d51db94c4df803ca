package engine

import (
	"context"
	"fmt"

	"stoplossbot/internal/exchange"
	"stoplossbot/internal/metrics"
	"stoplossbot/internal/models"

	"github.com/sirupsen/logrus"
)

func (e *Engine) handleEvents(ctx context.Context, events <-chan exchange.Event, polls <-chan models.InstrumentInfo) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case info := <-polls:
			if err := e.onInstrument(ctx, info, true); err != nil {
				return nil
			}
		case event, ok := <-events:
			if !ok {
				return e.upstreamClosed(fmt.Errorf("%w: канал событий закрыт", ErrUpstreamClosed))
			}
			switch event.Type {
			case exchange.EventTypeCandle:
				if event.Candle == nil {
					continue
				}
				if err := e.onCandle(ctx, *event.Candle); err != nil {
					return nil
				}
			case exchange.EventTypeInstrument:
				if event.Instrument == nil {
					continue
				}
				if err := e.onInstrument(ctx, *event.Instrument, false); err != nil {
					return nil
				}
			case exchange.EventTypeOrder:
				if event.Order != nil {
					e.onOrder(*event.Order)
				}
			case exchange.EventTypeFill:
				if event.Fill != nil {
					e.onFill(*event.Fill)
				}
			case exchange.EventTypeReconnect:
				e.onReconnect(ctx)
			case exchange.EventTypeError:
				return e.upstreamClosed(fmt.Errorf("%w: %w", ErrUpstreamClosed, event.Err))
			}
		}
	}
}

// upstreamClosed leaves the engine idle: no snapshot is evaluated after it.
func (e *Engine) upstreamClosed(err error) error {
	e.mu.Lock()
	e.status.UpstreamError = err.Error()
	e.mu.Unlock()

	metrics.UpstreamErrors.WithLabelValues(e.symbol).Inc()
	e.logEntry().WithError(err).Error("Ошибка потока рыночных данных, бот простаивает.")
	return err
}

func (e *Engine) onCandle(ctx context.Context, candle models.Candle) error {
	if candle.Figi != "" && candle.Figi != e.symbol {
		return nil
	}
	e.mu.Lock()
	e.tracker.OnCandle(candle)
	snap := e.tracker.CandleSnapshot()
	e.mu.Unlock()

	return e.evaluate(ctx, snap)
}

// onInstrument evaluates a trading status update. Polled updates are
// skipped while nothing changed.
func (e *Engine) onInstrument(ctx context.Context, info models.InstrumentInfo, onlyOnChange bool) error {
	e.mu.Lock()
	unchanged := e.lastInfo != nil && e.lastInfo.CanTrade == info.CanTrade && e.lastInfo.TradeStatus == info.TradeStatus
	e.lastInfo = &info
	snap := e.tracker.InstrumentSnapshot(info)
	e.mu.Unlock()

	if onlyOnChange && unchanged {
		return nil
	}
	if !unchanged {
		e.logEntry().WithFields(logrus.Fields{
			"can_trade":    info.CanTrade,
			"trade_status": info.TradeStatus,
		}).Info("Статус инструмента.")
	}
	return e.evaluate(ctx, snap)
}

func (e *Engine) onOrder(order models.Order) {
	e.mu.Lock()
	relevant := e.tracker.OnOrder(order)
	e.mu.Unlock()
	if !relevant {
		return
	}

	entry := e.logEntry().WithFields(logrus.Fields{
		"order_id": order.ID,
		"link_id":  order.LinkID,
		"status":   order.Status,
		"side":     order.Side,
	})
	if order.Status == models.OrderStatusRejected || order.Status == models.OrderStatusCanceled {
		entry.Warn("Ордер бота закрыт без исполнения.")
		return
	}
	entry.Debug("Обновление ордера.")
}

func (e *Engine) onFill(fill models.Fill) {
	e.mu.Lock()
	booked := e.tracker.OnFill(fill)
	if booked {
		e.status.Fills++
	}
	pos := e.tracker.Position()
	e.mu.Unlock()
	if !booked {
		return
	}

	metrics.Fills.WithLabelValues(e.symbol, string(fill.Side)).Inc()

	fields := logrus.Fields{
		"order_id": fill.OrderID,
		"link_id":  fill.LinkID,
		"side":     fill.Side,
		"price":    fill.Price.String(),
		"qty":      fill.Qty.String(),
	}
	if pos != nil {
		fields["enter_price"] = pos.EnterPrice.String()
		fields["position_qty"] = pos.Quantity.String()
	}
	e.logEntry().WithFields(fields).Info("Исполнение ордера.")
}

func (e *Engine) onReconnect(ctx context.Context) {
	e.mu.Lock()
	e.status.Reconnects++
	e.mu.Unlock()
	metrics.Reconnects.WithLabelValues(e.symbol).Inc()

	e.logEntry().Info("Получен сигнал реконнекта WS, сверка ордеров.")
	if err := e.syncOpenOrders(ctx); err != nil {
		e.logEntry().WithError(err).Warn("Не удалось сверить ордера после реконнекта.")
	}
}

func (e *Engine) syncOpenOrders(ctx context.Context) error {
	orders, err := e.withRetryOrders(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.tracker.SetOpenOrders(orders)
	n := len(e.tracker.OpenOrders())
	e.mu.Unlock()

	e.logEntry().WithField("open_orders", n).Debug("Открытые ордера бота сверены.")
	return nil
}
