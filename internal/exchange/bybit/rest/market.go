package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"stoplossbot/internal/exchange"

	"github.com/shopspring/decimal"
)

const statusTrading = "Trading"

func (c *Client) GetInstrumentRules(ctx context.Context, symbol string) (exchange.InstrumentRules, error) {
	params := url.Values{}
	params.Set("category", "spot")
	params.Set("symbol", symbol)

	var resp bybitResponse[instrumentInfo]

	if err := c.doRequest(ctx, http.MethodGet, "/v5/market/instruments-info", params, nil, false, &resp); err != nil {
		return exchange.InstrumentRules{}, err
	}

	if len(resp.Result.List) == 0 {
		return exchange.InstrumentRules{}, fmt.Errorf("Торговая пара не найдена: %s", symbol)
	}

	info := resp.Result.List[0]

	tick, err := decimal.NewFromString(info.PriceFilter.TickSize)
	if err != nil {
		return exchange.InstrumentRules{}, fmt.Errorf("Некорректное значение tickSize=%q: %w", info.PriceFilter.TickSize, err)
	}

	lot, err := parseDecimalOrZero(info.LotSizeFilter.QtyStep)
	if err != nil {
		return exchange.InstrumentRules{}, fmt.Errorf("Некорректное значение qtyStep=%q: %w", info.LotSizeFilter.QtyStep, err)
	}

	if lot.IsZero() {
		lot, err = parseDecimalOrZero(info.LotSizeFilter.BasePrecision)
		if err != nil {
			return exchange.InstrumentRules{}, fmt.Errorf("Некорректное значение basePrecision=%q: %w", info.LotSizeFilter.BasePrecision, err)
		}
	}

	if lot.IsZero() {
		return exchange.InstrumentRules{}, fmt.Errorf("Не удалось определить lot size для торговой пары: %s", symbol)
	}

	minQty, err := parseDecimalOrZero(info.LotSizeFilter.MinOrderQty)
	if err != nil {
		return exchange.InstrumentRules{}, fmt.Errorf("Некорректное значение minOrderQty=%q: %w", info.LotSizeFilter.MinOrderQty, err)
	}

	minNotional, err := parseDecimalOrZero(info.LotSizeFilter.MinOrderAmt)
	if err != nil {
		return exchange.InstrumentRules{}, fmt.Errorf("Некорректное значение minOrderAmt=%q: %w", info.LotSizeFilter.MinOrderAmt, err)
	}

	return exchange.InstrumentRules{
		TickSize:    tick,
		LotSize:     lot,
		MinQty:      minQty,
		MinNotional: minNotional,
		BaseCoin:    info.BaseCoin,
		QuoteCoin:   info.QuoteCoin,
		Status:      info.Status,
		CanTrade:    info.Status == statusTrading,
	}, nil
}
