package rest

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"stoplossbot/internal/exchange"
)

const recvWindow = "5000"

// APIError is a non-zero retCode returned by bybit.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Ошибка bybit: %s (code=%d)", e.Message, e.Code)
}

// Codes that mean the order itself is unacceptable.
var rejectCodes = map[int]bool{
	170131: true, // insufficient balance
	170136: true, // quantity above max
	170137: true, // too many decimals
	170140: true, // order value below min
}

func (e *APIError) Is(target error) bool {
	return target == exchange.ErrOrderRejected && rejectCodes[e.Code]
}

type retCoder interface {
	retCode() (int, string)
}

func (r *bybitResponse[T]) retCode() (int, string) {
	return r.RetCode, r.RetMsg
}

func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, body any, auth bool, out retCoder) error {
	var bodyReader io.Reader
	var bodyStr string
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("Не удалось подготовить тело запроса: %w", err)
		}
		bodyStr = string(payload)
		bodyReader = bytes.NewReader(payload)
	}

	urlStr := c.baseURL + path
	query := ""
	if len(params) > 0 {
		query = params.Encode()
		urlStr += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, bodyReader)
	if err != nil {
		return fmt.Errorf("Не удалось создать запрос: %w", err)
	}

	if auth {
		timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
		payload := bodyStr
		if method == http.MethodGet {
			payload = query
		}

		req.Header.Set("X-BAPI-API-KEY", c.apiKey)
		req.Header.Set("X-BAPI-SIGN", sign(c.secret, timestamp+c.apiKey+recvWindow+payload))
		req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
		req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
	}

	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Ошибка запроса: %w", err)
	}

	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("Не удалось прочитать ответ: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("Неуспешный статус: %s", resp.Status)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("Не удалось разобрать ответ: %w", err)
	}

	if code, msg := out.retCode(); code != 0 {
		return &APIError{Code: code, Message: msg}
	}

	return nil
}

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
