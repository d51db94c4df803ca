package rest

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"stoplossbot/internal/exchange"

	"github.com/shopspring/decimal"
)

func (c *Client) GetBalances(ctx context.Context, coins []string) (map[string]exchange.Balance, error) {
	params := url.Values{}
	params.Set("accountType", c.accountType)

	if len(coins) > 0 {
		params.Set("coin", strings.Join(coins, ","))
	}

	var resp bybitResponse[struct {
		List []struct {
			Coin []struct {
				Coin                string `json:"coin"`
				WalletBalance       string `json:"walletBalance"`
				AvailableToWithdraw string `json:"availableToWithdraw"`
				Locked              string `json:"locked"`
			} `json:"coin"`
		} `json:"list"`
	}]

	if err := c.doRequest(ctx, http.MethodGet, "/v5/account/wallet-balance", params, nil, true, &resp); err != nil {
		return nil, err
	}

	balances := map[string]exchange.Balance{}
	for _, account := range resp.Result.List {
		for _, item := range account.Coin {
			wallet, _ := parseDecimalOrZero(item.WalletBalance)
			locked, _ := parseDecimalOrZero(item.Locked)

			available, _ := parseDecimalOrZero(item.AvailableToWithdraw)
			if available.IsZero() {
				available = wallet.Sub(locked)
			}
			if available.IsNegative() {
				available = decimal.Zero
			}

			balances[item.Coin] = exchange.Balance{
				Coin:      item.Coin,
				Wallet:    wallet,
				Available: available,
			}
		}
	}
	return balances, nil
}

func parseDecimalOrZero(value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(value)
}
