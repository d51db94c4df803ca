package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type CandleInterval string

const (
	CandleInterval1Min  CandleInterval = "1min"
	CandleInterval2Min  CandleInterval = "2min"
	CandleInterval3Min  CandleInterval = "3min"
	CandleInterval5Min  CandleInterval = "5min"
	CandleInterval10Min CandleInterval = "10min"
	CandleInterval15Min CandleInterval = "15min"
	CandleInterval30Min CandleInterval = "30min"
	CandleIntervalHour  CandleInterval = "hour"
	CandleInterval2Hour CandleInterval = "2hour"
	CandleInterval4Hour CandleInterval = "4hour"
	CandleIntervalDay   CandleInterval = "day"
	CandleIntervalWeek  CandleInterval = "week"
	CandleIntervalMonth CandleInterval = "month"
)

var candleIntervals = []CandleInterval{
	CandleInterval1Min, CandleInterval2Min, CandleInterval3Min, CandleInterval5Min,
	CandleInterval10Min, CandleInterval15Min, CandleInterval30Min, CandleIntervalHour,
	CandleInterval2Hour, CandleInterval4Hour, CandleIntervalDay, CandleIntervalWeek,
	CandleIntervalMonth,
}

func ParseCandleInterval(value string) (CandleInterval, error) {
	v := CandleInterval(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range candleIntervals {
		if v == known {
			return v, nil
		}
	}
	return "", fmt.Errorf("Неизвестный интервал свечей: %q", value)
}

func (i CandleInterval) String() string {
	return string(i)
}

func (i *CandleInterval) UnmarshalText(text []byte) error {
	parsed, err := ParseCandleInterval(string(text))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

type Candle struct {
	Figi     string          `json:"figi"`
	Interval CandleInterval  `json:"interval"`
	Open     decimal.Decimal `json:"o"`
	Close    decimal.Decimal `json:"c"`
	Highest  decimal.Decimal `json:"h"`
	Lowest   decimal.Decimal `json:"l"`
	Volume   decimal.Decimal `json:"v"`
	Time     time.Time       `json:"t"`
}

type InstrumentInfo struct {
	Figi        string `json:"figi"`
	CanTrade    bool   `json:"can_trade"`
	TradeStatus string `json:"trade_status"`
}

// PositionInfo describes an open long position and its cost basis.
type PositionInfo struct {
	Figi       string          `json:"figi"`
	EnterPrice decimal.Decimal `json:"enter_price"`
	Quantity   decimal.Decimal `json:"quantity"`
}

type OutstandingOrder struct {
	ID     string          `json:"id"`
	LinkID string          `json:"link_id"`
	Side   OrderSide       `json:"side"`
	Price  decimal.Decimal `json:"price"`
	Qty    decimal.Decimal `json:"qty"`
}

// Snapshot is the market view handed to the strategy on every tick.
// Every part is optional.
type Snapshot struct {
	Candle         *Candle           `json:"candle,omitempty"`
	InstrumentInfo *InstrumentInfo   `json:"instrument_info,omitempty"`
	Position       *PositionInfo     `json:"position,omitempty"`
	Order          *OutstandingOrder `json:"order,omitempty"`
}
