package rest

import (
	"net/http"

	"stoplossbot/internal/logger"
)

type Client struct {
	baseURL     string
	accountType string
	apiKey      string
	secret      string
	httpClient  *http.Client
	log         *logger.Logger
}

type bybitResponse[T any] struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  T      `json:"result"`
	Time    int64  `json:"time"`
}

type instrumentInfo struct {
	List []struct {
		Symbol      string `json:"symbol"`
		BaseCoin    string `json:"baseCoin"`
		QuoteCoin   string `json:"quoteCoin"`
		Status      string `json:"status"`
		PriceFilter struct {
			TickSize string `json:"tickSize"`
		} `json:"priceFilter"`
		LotSizeFilter struct {
			BasePrecision  string `json:"basePrecision"`
			QuotePrecision string `json:"quotePrecision"`
			MinOrderQty    string `json:"minOrderQty"`
			MinOrderAmt    string `json:"minOrderAmt"`
			QtyStep        string `json:"qtyStep"`
		} `json:"lotSizeFilter"`
	} `json:"list"`
}
