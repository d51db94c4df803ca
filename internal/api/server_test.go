package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"stoplossbot/internal/engine"
	"stoplossbot/internal/logger"
	"stoplossbot/internal/models"
	"stoplossbot/internal/strategy"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticStatus engine.Status

func (s staticStatus) Status() engine.Status {
	return engine.Status(s)
}

func serve(t *testing.T, path string, status engine.Status) *httptest.ResponseRecorder {
	t.Helper()
	r := NewRouter(staticStatus(status), logger.Nop())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	w := serve(t, "/healthz", engine.Status{})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestStatus(t *testing.T) {
	st := engine.Status{
		Symbol:  "BTCUSDT",
		Running: true,
		State: strategy.State{
			CanTrade:    true,
			LastOutcome: strategy.OutcomeProfit,
			Extremum:    decimal.NewNullDecimal(decimal.RequireFromString("101.9")),
		},
		Position:  &models.PositionInfo{Figi: "BTCUSDT", EnterPrice: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(10)},
		Decisions: 8,
	}

	w := serve(t, "/status", st)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, jsoniter.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "BTCUSDT", body["symbol"])
	assert.Equal(t, true, body["running"])
	assert.EqualValues(t, 8, body["decisions"])

	state := body["state"].(map[string]interface{})
	assert.Equal(t, "profit", state["last_outcome"])
	assert.Equal(t, "101.9", state["extremum"])

	pos := body["position"].(map[string]interface{})
	assert.Equal(t, "100", pos["enter_price"])
}

func TestMetrics(t *testing.T) {
	w := serve(t, "/metrics", engine.Status{})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
