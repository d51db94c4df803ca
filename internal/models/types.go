package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderSide string
type OrderType string
type OrderStatus string

const (
	OrderSideBuy  OrderSide = "Buy"
	OrderSideSell OrderSide = "Sell"

	OrderTypeMarket OrderType = "Market"
	OrderTypeLimit  OrderType = "Limit"

	OrderStatusNew             OrderStatus = "New"
	OrderStatusPartiallyFilled OrderStatus = "PartiallyFilled"
	OrderStatusFilled          OrderStatus = "Filled"
	OrderStatusCanceled        OrderStatus = "Cancelled"
	OrderStatusRejected        OrderStatus = "Rejected"
)

// IsOpen reports whether the order still rests in the book.
func (s OrderStatus) IsOpen() bool {
	return s == OrderStatusNew || s == OrderStatusPartiallyFilled
}

// Instrument identifies the traded instrument and its lot multiplier.
type Instrument struct {
	Figi string `json:"figi"`
	Lot  int    `json:"lot"`
}

// LimitOrder is the wire-neutral order produced by the strategy.
type LimitOrder struct {
	Figi  string          `json:"figi"`
	Lots  int32           `json:"lots"`
	Side  OrderSide       `json:"side"`
	Price decimal.Decimal `json:"price"`
}

type Order struct {
	ID          string          `json:"id"`
	LinkID      string          `json:"link_id"`
	Symbol      string          `json:"symbol"`
	Side        OrderSide       `json:"side"`
	Type        OrderType       `json:"type"`
	Price       decimal.Decimal `json:"price"`
	Qty         decimal.Decimal `json:"qty"`
	FilledQty   decimal.Decimal `json:"filled_qty"`
	Status      OrderStatus     `json:"status"`
	Sequence    int64           `json:"sequence"`
	CreateTime  time.Time       `json:"create_time"`
	UpdateTime  time.Time       `json:"update_time"`
	TimeInForce string          `json:"time_in_force"`
	PriceStep   decimal.Decimal `json:"-"`
	QtyStep     decimal.Decimal `json:"-"`
}

type Fill struct {
	OrderID   string          `json:"order_id"`
	LinkID    string          `json:"link_id"`
	ExecID    string          `json:"exec_id"`
	Symbol    string          `json:"symbol"`
	Side      OrderSide       `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Qty       decimal.Decimal `json:"qty"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
}
