package ws

import (
	"encoding/json"
	"strconv"
	"time"

	"stoplossbot/internal/exchange"
	"stoplossbot/internal/models"

	"github.com/shopspring/decimal"
)

func parseDecimal(value string) decimal.Decimal {
	if value == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (w *Client) handleKline(msg Message) {
	var data []struct {
		Start     int64  `json:"start"`
		Open      string `json:"open"`
		Close     string `json:"close"`
		High      string `json:"high"`
		Low       string `json:"low"`
		Volume    string `json:"volume"`
		Confirm   bool   `json:"confirm"`
		Timestamp int64  `json:"timestamp"`
	}

	if err := json.Unmarshal(msg.Data, &data); err != nil {
		w.logEntry().WithError(err).Warn("Не удалось разобрать kline.")
		return
	}

	for _, item := range data {
		w.emit(exchange.Event{
			Type: exchange.EventTypeCandle,
			Candle: &models.Candle{
				Figi:     w.symbol,
				Interval: w.interval,
				Open:     parseDecimal(item.Open),
				Close:    parseDecimal(item.Close),
				Highest:  parseDecimal(item.High),
				Lowest:   parseDecimal(item.Low),
				Volume:   parseDecimal(item.Volume),
				Time:     time.UnixMilli(item.Start),
			},
		})
	}
}

func (w *Client) handleExecution(msg Message) {
	var data []struct {
		OrderID   string `json:"orderId"`
		OrderLink string `json:"orderLinkId"`
		ExecID    string `json:"execId"`
		Symbol    string `json:"symbol"`
		Side      string `json:"side"`
		ExecPrice string `json:"execPrice"`
		ExecQty   string `json:"execQty"`
		ExecTime  string `json:"execTime"`
		Seq       int64  `json:"seq"`
	}

	if err := json.Unmarshal(msg.Data, &data); err != nil {
		w.logEntry().WithError(err).Warn("Не удалось разобрать execution.")
		return
	}

	for _, item := range data {
		w.logEntry().WithFields(map[string]interface{}{
			"side":          item.Side,
			"exec_id":       item.ExecID,
			"order_id":      item.OrderID,
			"order_link_id": item.OrderLink,
			"price":         item.ExecPrice,
			"qty":           item.ExecQty,
			"seq":           item.Seq,
		}).Debug("execution")

		tsMs, _ := strconv.ParseInt(item.ExecTime, 10, 64)

		w.emit(exchange.Event{
			Type: exchange.EventTypeFill,
			Fill: &models.Fill{
				OrderID:   item.OrderID,
				LinkID:    item.OrderLink,
				ExecID:    item.ExecID,
				Symbol:    item.Symbol,
				Side:      models.OrderSide(item.Side),
				Price:     parseDecimal(item.ExecPrice),
				Qty:       parseDecimal(item.ExecQty),
				Timestamp: time.UnixMilli(tsMs),
				Sequence:  item.Seq,
			},
		})
	}
}

func (w *Client) handleOrder(msg Message) {
	var data []struct {
		OrderID      string `json:"orderId"`
		OrderLink    string `json:"orderLinkId"`
		Symbol       string `json:"symbol"`
		Side         string `json:"side"`
		OrderType    string `json:"orderType"`
		Price        string `json:"price"`
		Qty          string `json:"qty"`
		LeavesQty    string `json:"leavesQty"`
		OrderStatus  string `json:"orderStatus"`
		RejectReason string `json:"rejectReason"`
		Seq          int64  `json:"seq"`
	}

	if err := json.Unmarshal(msg.Data, &data); err != nil {
		w.logEntry().WithError(err).Warn("Не удалось разобрать order.")
		return
	}

	for _, item := range data {
		w.logEntry().WithFields(map[string]interface{}{
			"order_id":      item.OrderID,
			"order_link_id": item.OrderLink,
			"status":        item.OrderStatus,
			"reject_reason": item.RejectReason,
			"price":         item.Price,
			"qty":           item.Qty,
			"leaves_qty":    item.LeavesQty,
		}).Debug("order")

		qty := parseDecimal(item.Qty)

		w.emit(exchange.Event{
			Type: exchange.EventTypeOrder,
			Order: &models.Order{
				ID:        item.OrderID,
				LinkID:    item.OrderLink,
				Symbol:    item.Symbol,
				Side:      models.OrderSide(item.Side),
				Type:      models.OrderType(item.OrderType),
				Price:     parseDecimal(item.Price),
				Qty:       qty,
				FilledQty: qty.Sub(parseDecimal(item.LeavesQty)),
				Status:    models.OrderStatus(item.OrderStatus),
				Sequence:  item.Seq,
			},
		})
	}
}
