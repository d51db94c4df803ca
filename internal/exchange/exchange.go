package exchange

import (
	"context"
	"errors"

	"stoplossbot/internal/models"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventTypeCandle     EventType = "Candle"
	EventTypeInstrument EventType = "Instrument"
	EventTypeOrder      EventType = "Order"
	EventTypeFill       EventType = "Fill"
	EventTypeReconnect  EventType = "Reconnect"
	EventTypeError      EventType = "Error"
	// EventTypeBarrier carries no data. Its delivery means the consumer is
	// done with every event sent before it.
	EventTypeBarrier EventType = "Barrier"
)

type Event struct {
	Type       EventType
	Candle     *models.Candle
	Instrument *models.InstrumentInfo
	Order      *models.Order
	Fill       *models.Fill
	Err        error
}

type InstrumentRules struct {
	TickSize    decimal.Decimal
	LotSize     decimal.Decimal
	MinQty      decimal.Decimal
	MinNotional decimal.Decimal
	BaseCoin    string
	QuoteCoin   string
	Status      string
	CanTrade    bool
}

func (r InstrumentRules) Info(symbol string) models.InstrumentInfo {
	return models.InstrumentInfo{Figi: symbol, CanTrade: r.CanTrade, TradeStatus: r.Status}
}

type Client interface {
	GetInstrumentRules(ctx context.Context, symbol string) (InstrumentRules, error)
	Subscribe(ctx context.Context, symbol string, interval models.CandleInterval) (<-chan Event, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	GetOpenOrders(ctx context.Context, symbol string) ([]models.Order, error)
	PlaceOrder(ctx context.Context, order models.Order) (models.Order, error)
	GetBalances(ctx context.Context, coins []string) (map[string]Balance, error)
}

type Balance struct {
	Coin      string
	Wallet    decimal.Decimal
	Available decimal.Decimal
}

// ErrOrderRejected marks placement errors that repeating the request will
// not fix.
var ErrOrderRejected = errors.New("Ордер отклонён биржей.")
