// Package replay feeds recorded candles from a CSV file as a market stream.
package replay

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"stoplossbot/internal/exchange"
	"stoplossbot/internal/logger"
	"stoplossbot/internal/models"

	"github.com/shopspring/decimal"
)

var ErrReadOnly = fmt.Errorf("%w: источник replay не исполняет ордера", exchange.ErrOrderRejected)

// Client replays time,open,high,low,close,volume rows. It has no order
// book of its own; wrap it with paper.Client to simulate fills.
type Client struct {
	path  string
	rules exchange.InstrumentRules
	log   *logger.Logger
}

var _ exchange.Client = (*Client)(nil)

func New(path string, rules exchange.InstrumentRules, log *logger.Logger) *Client {
	if rules.Status == "" {
		rules.Status = "Trading"
		rules.CanTrade = true
	}
	return &Client{path: path, rules: rules, log: log}
}

func (c *Client) GetInstrumentRules(ctx context.Context, symbol string) (exchange.InstrumentRules, error) {
	return c.rules, nil
}

func (c *Client) Subscribe(ctx context.Context, symbol string, interval models.CandleInterval) (<-chan exchange.Event, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return nil, fmt.Errorf("Не удалось открыть файл свечей: %w", err)
	}

	out := make(chan exchange.Event)
	go func() {
		defer close(out)
		defer f.Close()

		send := func(ev exchange.Event) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		info := c.rules.Info(symbol)
		if !send(exchange.Event{Type: exchange.EventTypeInstrument, Instrument: &info}) {
			return
		}

		r := csv.NewReader(f)
		r.FieldsPerRecord = 6
		r.TrimLeadingSpace = true

		line := 0
		rows := 0
		for {
			rec, err := r.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			line++
			if err != nil {
				send(exchange.Event{Type: exchange.EventTypeError, Err: fmt.Errorf("Ошибка чтения CSV: %w", err)})
				return
			}
			if line == 1 && strings.EqualFold(rec[0], "time") {
				continue
			}

			candle, err := parseRow(rec, symbol, interval)
			if err != nil {
				send(exchange.Event{Type: exchange.EventTypeError, Err: fmt.Errorf("Строка %d: %w", line, err)})
				return
			}
			if !send(exchange.Event{Type: exchange.EventTypeCandle, Candle: candle}) {
				return
			}
			rows++
		}

		c.log.Entry("replay", symbol).WithField("candles", rows).Info("Файл свечей прочитан.")
	}()
	return out, nil
}

func parseRow(rec []string, symbol string, interval models.CandleInterval) (*models.Candle, error) {
	ts, err := parseTime(rec[0])
	if err != nil {
		return nil, err
	}

	values := make([]decimal.Decimal, 5)
	for i, field := range rec[1:] {
		v, err := decimal.NewFromString(field)
		if err != nil {
			return nil, fmt.Errorf("Некорректное число %q: %w", field, err)
		}
		values[i] = v
	}

	return &models.Candle{
		Figi:     symbol,
		Interval: interval,
		Open:     values[0],
		Highest:  values[1],
		Lowest:   values[2],
		Close:    values[3],
		Volume:   values[4],
		Time:     ts,
	}, nil
}

// parseTime accepts RFC3339 or unix milliseconds.
func parseTime(value string) (time.Time, error) {
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("Некорректное время %q: %w", value, err)
	}
	return ts, nil
}

func (c *Client) PlaceOrder(ctx context.Context, order models.Order) (models.Order, error) {
	return models.Order{}, ErrReadOnly
}

func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return ErrReadOnly
}

func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	return nil, nil
}

func (c *Client) GetBalances(ctx context.Context, coins []string) (map[string]exchange.Balance, error) {
	return map[string]exchange.Balance{}, nil
}
