package rest

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"stoplossbot/internal/models"

	"github.com/shopspring/decimal"
)

func (c *Client) PlaceOrder(ctx context.Context, order models.Order) (models.Order, error) {
	tif := order.TimeInForce
	if tif == "" {
		tif = "GTC"
	}

	body := map[string]any{
		"category":    "spot",
		"symbol":      order.Symbol,
		"side":        order.Side,
		"orderType":   order.Type,
		"qty":         formatWithStep(order.Qty, order.QtyStep),
		"price":       formatWithStep(order.Price, order.PriceStep),
		"timeInForce": tif,
		"orderLinkId": order.LinkID,
	}

	if order.Type == models.OrderTypeMarket {
		delete(body, "price")
	}

	var resp bybitResponse[struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}]

	if err := c.doRequest(ctx, http.MethodPost, "/v5/order/create", nil, body, true, &resp); err != nil {
		return models.Order{}, err
	}

	order.ID = resp.Result.OrderID
	order.Status = models.OrderStatusNew
	order.CreateTime = time.Now()
	order.UpdateTime = order.CreateTime
	return order, nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	body := map[string]any{
		"category": "spot",
		"symbol":   symbol,
		"orderId":  orderID,
	}

	var resp bybitResponse[struct{}]

	return c.doRequest(ctx, http.MethodPost, "/v5/order/cancel", nil, body, true, &resp)
}

func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	params := url.Values{}
	params.Set("category", "spot")
	params.Set("symbol", symbol)

	var resp bybitResponse[struct {
		List []struct {
			OrderID     string `json:"orderId"`
			OrderLink   string `json:"orderLinkId"`
			Side        string `json:"side"`
			OrderType   string `json:"orderType"`
			Price       string `json:"price"`
			Qty         string `json:"qty"`
			LeavesQty   string `json:"leavesQty"`
			OrderStatus string `json:"orderStatus"`
			CreatedTime string `json:"createdTime"`
		} `json:"list"`
	}]

	if err := c.doRequest(ctx, http.MethodGet, "/v5/order/realtime", params, nil, true, &resp); err != nil {
		return nil, err
	}

	var orders []models.Order
	for _, item := range resp.Result.List {
		price, _ := parseDecimalOrZero(item.Price)
		qty, _ := parseDecimalOrZero(item.Qty)
		leaves, _ := parseDecimalOrZero(item.LeavesQty)
		created, _ := decimal.NewFromString(item.CreatedTime)

		orders = append(orders, models.Order{
			ID:         item.OrderID,
			LinkID:     item.OrderLink,
			Symbol:     symbol,
			Side:       models.OrderSide(item.Side),
			Type:       models.OrderType(item.OrderType),
			Price:      price,
			Qty:        qty,
			FilledQty:  qty.Sub(leaves),
			Status:     models.OrderStatus(item.OrderStatus),
			CreateTime: time.UnixMilli(created.IntPart()),
		})
	}
	return orders, nil
}
