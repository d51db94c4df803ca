package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stoplossbot/internal/exchange"
	"stoplossbot/internal/logger"
	"stoplossbot/internal/metrics"
	"stoplossbot/internal/models"
	"stoplossbot/internal/strategy"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Placer turns strategy decisions into exchange orders.
type Placer struct {
	engine *Engine
	client exchange.Client
	log    *logger.Logger
	retry  retryPolicy
}

func NewPlacer(e *Engine, client exchange.Client, log *logger.Logger) *Placer {
	return &Placer{engine: e, client: client, log: log, retry: defaultRetry}
}

func (p *Placer) logEntry() *logrus.Entry {
	return p.log.Entry("placer", p.engine.symbol)
}

// Run consumes decisions until the channel is closed.
func (p *Placer) Run(ctx context.Context, decisions <-chan strategy.Decision) {
	for dec := range decisions {
		if dec.IsPass() || dec.Order == nil {
			continue
		}
		p.handle(ctx, *dec.Order, dec.Reason)
	}
}

func (p *Placer) handle(ctx context.Context, lo models.LimitOrder, reason strategy.Reason) {
	side := string(lo.Side)

	order, ok := p.buildOrder(ctx, lo)
	if !ok {
		p.engine.Resolve(nil)
		p.engine.countOrder(metrics.ResultDropped)
		metrics.Orders.WithLabelValues(p.engine.symbol, side, metrics.ResultDropped).Inc()
		return
	}

	placed, err := p.placeOrderIdempotent(ctx, order)
	if err != nil {
		p.logEntry().WithError(err).WithFields(logrus.Fields{
			"link_id": order.LinkID,
			"reason":  reason,
		}).Error("Не удалось выставить ордер.")
		p.engine.Resolve(nil)
		p.engine.countOrder(metrics.ResultFailed)
		metrics.Orders.WithLabelValues(p.engine.symbol, side, metrics.ResultFailed).Inc()
		return
	}

	p.logEntry().WithFields(logrus.Fields{
		"order_id": placed.ID,
		"link_id":  placed.LinkID,
		"side":     placed.Side,
		"price":    placed.Price.String(),
		"qty":      placed.Qty.String(),
		"reason":   reason,
	}).Info("Ордер выставлен.")
	p.engine.Resolve(&placed)
	metrics.Orders.WithLabelValues(p.engine.symbol, side, metrics.ResultPlaced).Inc()
}

// buildOrder sizes the order against the wallet and exchange filters.
// ok is false when nothing should be sent.
func (p *Placer) buildOrder(ctx context.Context, lo models.LimitOrder) (models.Order, bool) {
	rules := p.engine.Rules()
	entry := p.logEntry().WithFields(logrus.Fields{
		"side":  lo.Side,
		"lots":  lo.Lots,
		"price": lo.Price.String(),
	})

	if lo.Lots <= 0 {
		entry.Warn("Ордер с нулевым количеством лотов пропущен.")
		return models.Order{}, false
	}

	lotQty := decimal.NewFromInt(int64(p.engine.strategy.Instrument().Lot))
	price := roundDown(lo.Price, rules.TickSize)
	lots := int64(lo.Lots)

	if limit, ok := p.walletLimit(ctx, rules, lo.Side, price, lotQty); ok && lots > limit {
		entry.WithField("max_lots", limit).Warn("Количество лотов ограничено балансом.")
		lots = limit
	}
	if lots <= 0 {
		entry.Warn("Недостаточно средств для ордера, пропуск.")
		return models.Order{}, false
	}

	qty := roundDown(lotQty.Mul(decimal.NewFromInt(lots)), rules.LotSize)
	if qty.LessThan(rules.MinQty) || !qty.IsPositive() {
		entry.WithFields(logrus.Fields{
			"qty":     qty.String(),
			"min_qty": rules.MinQty.String(),
		}).Warn("Ордер пропущен, объём меньше минимального.")
		return models.Order{}, false
	}

	order := models.Order{
		LinkID:      newLinkID(lo.Side),
		Symbol:      lo.Figi,
		Side:        lo.Side,
		Type:        models.OrderTypeLimit,
		Price:       price,
		Qty:         qty,
		TimeInForce: "GTC",
		PriceStep:   rules.TickSize,
		QtyStep:     rules.LotSize,
	}
	if err := validateMinNotional(rules, order); err != nil {
		entry.WithError(err).Warn("Ордер пропущен из-за min notional.")
		return models.Order{}, false
	}
	return order, true
}

// walletLimit returns how many lots the wallet covers: quote for buys,
// base for sells. ok is false when balances are unknown.
func (p *Placer) walletLimit(ctx context.Context, rules exchange.InstrumentRules, side models.OrderSide, price, lotQty decimal.Decimal) (int64, bool) {
	coin := rules.QuoteCoin
	if side == models.OrderSideSell {
		coin = rules.BaseCoin
	}
	if coin == "" {
		return 0, false
	}

	balances, err := p.client.GetBalances(ctx, []string{coin})
	if err != nil {
		p.logEntry().WithError(err).Warn("Не удалось получить баланс перед ордером.")
		return 0, false
	}
	available := balances[coin].Available

	if side == models.OrderSideSell {
		if !lotQty.IsPositive() {
			return 0, false
		}
		return available.Div(lotQty).Floor().IntPart(), true
	}
	return maxLots(available, price, lotQty), true
}

func validateMinNotional(rules exchange.InstrumentRules, order models.Order) error {
	if !rules.MinNotional.IsPositive() {
		return nil
	}
	notional := order.Price.Mul(order.Qty)
	if notional.LessThan(rules.MinNotional) {
		return fmt.Errorf("Объём меньше min notional: %s < %s", notional, rules.MinNotional)
	}
	return nil
}

func (p *Placer) placeOrderIdempotent(ctx context.Context, order models.Order) (models.Order, error) {
	if order.LinkID == "" {
		return models.Order{}, fmt.Errorf("Пустой orderLinkId.")
	}

	placed, err := withRetry(ctx, p.retry, p.logEntry(), func() (models.Order, error) {
		return p.client.PlaceOrder(ctx, order)
	})
	if err == nil {
		return placed, nil
	}
	if isDuplicateClientOrderID(err) {
		if existing, ok := p.findOrderAfterDuplicate(ctx, order.Symbol, order.LinkID); ok {
			return existing, nil
		}
	}
	return models.Order{}, err
}

func (p *Placer) findOrderAfterDuplicate(ctx context.Context, symbol, linkID string) (models.Order, bool) {
	const attempts = 3
	const delay = 300 * time.Millisecond
	for i := 0; i < attempts; i++ {
		orders, err := p.client.GetOpenOrders(ctx, symbol)
		if err == nil {
			for _, ord := range orders {
				if ord.LinkID == linkID {
					p.logEntry().WithField("link_id", linkID).Debug("Найден ордер после duplicate clientOrderId.")
					return ord, true
				}
			}
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return models.Order{}, false
			case <-time.After(delay):
			}
		}
	}
	return models.Order{}, false
}

func (e *Engine) countOrder(result string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch result {
	case metrics.ResultFailed:
		e.status.OrdersFailed++
	case metrics.ResultDropped:
		e.status.OrdersDropped++
	}
}

func (e *Engine) cancelOpenBotOrders(ctx context.Context) (int, error) {
	openOrders, err := e.withRetryOrders(ctx)
	if err != nil {
		return 0, err
	}
	orderIDs := make([]string, 0, len(openOrders))
	for _, ord := range openOrders {
		if !isBotLinkID(ord.LinkID) || ord.ID == "" {
			continue
		}
		orderIDs = append(orderIDs, ord.ID)
	}
	if len(orderIDs) == 0 {
		return 0, nil
	}

	const workers = 3
	jobs := make(chan string, len(orderIDs))
	errCh := make(chan error, len(orderIDs))
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for orderID := range jobs {
			if ctx.Err() != nil {
				return
			}
			_, err := withRetry(ctx, e.retry, e.logEntry(), func() (struct{}, error) {
				return struct{}{}, e.client.CancelOrder(ctx, e.symbol, orderID)
			})
			if err != nil && !isOrderNotExistError(err) {
				errCh <- err
			}
		}
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go worker()
	}
	for _, orderID := range orderIDs {
		jobs <- orderID
	}
	close(jobs)
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return len(orderIDs), err
		}
	}
	return len(orderIDs), nil
}
