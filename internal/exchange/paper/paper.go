// Package paper simulates order execution on top of a real market data feed.
package paper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"stoplossbot/internal/exchange"
	"stoplossbot/internal/logger"
	"stoplossbot/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	ErrOrderNotFound       = errors.New("Ордер не найден.")
	ErrInsufficientBalance = fmt.Errorf("%w: недостаточно средств", exchange.ErrOrderRejected)
)

// Client forwards market data from the wrapped client and fills resting
// limit orders against incoming candles.
type Client struct {
	inner exchange.Client
	log   *logger.Logger

	mu       sync.Mutex
	base     string
	quote    string
	balances map[string]*wallet
	orders   map[string]*models.Order
	seq      int64
}

type wallet struct {
	total  decimal.Decimal
	locked decimal.Decimal
}

var _ exchange.Client = (*Client)(nil)

func New(inner exchange.Client, quoteBalance decimal.Decimal, log *logger.Logger) *Client {
	return &Client{
		inner: inner,
		log:   log,
		balances: map[string]*wallet{
			"": {total: quoteBalance},
		},
		orders: map[string]*models.Order{},
	}
}

func (c *Client) logEntry() *logrus.Entry {
	return c.log.WithComponent("paper")
}

// GetInstrumentRules also learns the coin pair so balances can be booked.
func (c *Client) GetInstrumentRules(ctx context.Context, symbol string) (exchange.InstrumentRules, error) {
	rules, err := c.inner.GetInstrumentRules(ctx, symbol)
	if err != nil {
		return rules, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.quote == "" {
		c.base = rules.BaseCoin
		c.quote = rules.QuoteCoin
		if start, ok := c.balances[""]; ok {
			delete(c.balances, "")
			c.balances[c.quote] = start
		}
	}
	return rules, nil
}

func (c *Client) Subscribe(ctx context.Context, symbol string, interval models.CandleInterval) (<-chan exchange.Event, error) {
	upstream, err := c.inner.Subscribe(ctx, symbol, interval)
	if err != nil {
		return nil, err
	}

	// Unbuffered, with a barrier after each candle: matching of the next
	// candle starts only when the consumer has handled the previous one.
	out := make(chan exchange.Event)
	go func() {
		defer close(out)
		send := func(ev exchange.Event) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for ev := range upstream {
			switch ev.Type {
			case exchange.EventTypeOrder, exchange.EventTypeFill:
				continue
			case exchange.EventTypeCandle:
				for _, fill := range c.match(ev.Candle) {
					if !send(fill) {
						return
					}
				}
				if !send(ev) || !send(exchange.Event{Type: exchange.EventTypeBarrier}) {
					return
				}
				continue
			}
			if !send(ev) {
				return
			}
		}
	}()
	return out, nil
}

// match fills every resting order the candle crossed and returns the
// resulting Order and Fill events.
func (c *Client) match(candle *models.Candle) []exchange.Event {
	if candle == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var events []exchange.Event
	for _, order := range c.sortedOrders() {
		id := order.ID
		if order.Symbol != candle.Figi && candle.Figi != "" {
			continue
		}
		crossed := false
		switch order.Side {
		case models.OrderSideBuy:
			crossed = candle.Lowest.LessThanOrEqual(order.Price)
		case models.OrderSideSell:
			crossed = candle.Highest.GreaterThanOrEqual(order.Price)
		}
		if !crossed {
			continue
		}

		c.settle(order)
		delete(c.orders, id)

		c.seq++
		filled := *order
		filled.FilledQty = order.Qty
		filled.Status = models.OrderStatusFilled
		filled.UpdateTime = candle.Time
		filled.Sequence = c.seq

		c.logEntry().WithFields(logrus.Fields{
			"order_id": order.ID,
			"side":     order.Side,
			"price":    order.Price.String(),
			"qty":      order.Qty.String(),
		}).Info("Бумажный ордер исполнен.")

		events = append(events,
			exchange.Event{Type: exchange.EventTypeOrder, Order: &filled},
			exchange.Event{Type: exchange.EventTypeFill, Fill: &models.Fill{
				OrderID:   order.ID,
				LinkID:    order.LinkID,
				ExecID:    order.ID + "-fill",
				Symbol:    order.Symbol,
				Side:      order.Side,
				Price:     order.Price,
				Qty:       order.Qty,
				Timestamp: candle.Time,
				Sequence:  c.seq,
			}},
		)
	}
	return events
}

// settle moves funds for a fully filled order. Caller holds mu.
func (c *Client) settle(order *models.Order) {
	notional := order.Price.Mul(order.Qty)
	quote := c.wallet(c.quote)
	base := c.wallet(c.base)

	switch order.Side {
	case models.OrderSideBuy:
		quote.locked = quote.locked.Sub(notional)
		quote.total = quote.total.Sub(notional)
		base.total = base.total.Add(order.Qty)
	case models.OrderSideSell:
		base.locked = base.locked.Sub(order.Qty)
		base.total = base.total.Sub(order.Qty)
		quote.total = quote.total.Add(notional)
	}
}

// sortedOrders lists resting orders in placement order. Caller holds mu.
func (c *Client) sortedOrders() []*models.Order {
	orders := make([]*models.Order, 0, len(c.orders))
	for _, order := range c.orders {
		orders = append(orders, order)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].Sequence < orders[j].Sequence })
	return orders
}

func (c *Client) wallet(coin string) *wallet {
	w, ok := c.balances[coin]
	if !ok {
		w = &wallet{}
		c.balances[coin] = w
	}
	return w
}

func (c *Client) PlaceOrder(ctx context.Context, order models.Order) (models.Order, error) {
	if err := ctx.Err(); err != nil {
		return models.Order{}, err
	}
	if order.Type != models.OrderTypeLimit {
		return models.Order{}, fmt.Errorf("Бумажная торговля поддерживает только лимитные ордера: %s", order.Type)
	}
	if !order.Qty.IsPositive() || !order.Price.IsPositive() {
		return models.Order{}, fmt.Errorf("Некорректный ордер: qty=%s price=%s", order.Qty, order.Price)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch order.Side {
	case models.OrderSideBuy:
		w := c.wallet(c.quote)
		need := order.Price.Mul(order.Qty)
		if w.total.Sub(w.locked).LessThan(need) {
			return models.Order{}, ErrInsufficientBalance
		}
		w.locked = w.locked.Add(need)
	case models.OrderSideSell:
		w := c.wallet(c.base)
		if w.total.Sub(w.locked).LessThan(order.Qty) {
			return models.Order{}, ErrInsufficientBalance
		}
		w.locked = w.locked.Add(order.Qty)
	default:
		return models.Order{}, fmt.Errorf("Неизвестная сторона ордера: %s", order.Side)
	}

	c.seq++
	order.ID = "paper-" + strconv.FormatInt(c.seq, 10)
	order.Status = models.OrderStatusNew
	order.FilledQty = decimal.Zero
	order.CreateTime = time.Now()
	order.UpdateTime = order.CreateTime
	order.Sequence = c.seq

	stored := order
	c.orders[order.ID] = &stored

	c.logEntry().WithFields(logrus.Fields{
		"order_id": order.ID,
		"link_id":  order.LinkID,
		"side":     order.Side,
		"price":    order.Price.String(),
		"qty":      order.Qty.String(),
	}).Info("Бумажный ордер выставлен.")

	return order, nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	order, ok := c.orders[orderID]
	if !ok || order.Symbol != symbol {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}

	switch order.Side {
	case models.OrderSideBuy:
		w := c.wallet(c.quote)
		w.locked = w.locked.Sub(order.Price.Mul(order.Qty))
	case models.OrderSideSell:
		w := c.wallet(c.base)
		w.locked = w.locked.Sub(order.Qty)
	}
	delete(c.orders, orderID)
	return nil
}

func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var orders []models.Order
	for _, order := range c.sortedOrders() {
		if order.Symbol == symbol {
			orders = append(orders, *order)
		}
	}
	return orders, nil
}

func (c *Client) GetBalances(ctx context.Context, coins []string) (map[string]exchange.Balance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(coins) == 0 {
		for coin := range c.balances {
			coins = append(coins, coin)
		}
	}

	balances := make(map[string]exchange.Balance, len(coins))
	for _, coin := range coins {
		w, ok := c.balances[coin]
		if !ok {
			balances[coin] = exchange.Balance{Coin: coin}
			continue
		}
		balances[coin] = exchange.Balance{
			Coin:      coin,
			Wallet:    w.total,
			Available: w.total.Sub(w.locked),
		}
	}
	return balances, nil
}
