package bybit

import (
	"fmt"

	"stoplossbot/internal/models"
)

var intervalCodes = map[models.CandleInterval]string{
	models.CandleInterval1Min:  "1",
	models.CandleInterval3Min:  "3",
	models.CandleInterval5Min:  "5",
	models.CandleInterval15Min: "15",
	models.CandleInterval30Min: "30",
	models.CandleIntervalHour:  "60",
	models.CandleInterval2Hour: "120",
	models.CandleInterval4Hour: "240",
	models.CandleIntervalDay:   "D",
	models.CandleIntervalWeek:  "W",
	models.CandleIntervalMonth: "M",
}

func intervalCode(interval models.CandleInterval) (string, error) {
	code, ok := intervalCodes[interval]
	if !ok {
		return "", fmt.Errorf("Интервал %s не поддерживается bybit.", interval)
	}
	return code, nil
}

// SupportsInterval reports an error for candle intervals that have no kline
// stream on bybit.
func SupportsInterval(interval models.CandleInterval) error {
	_, err := intervalCode(interval)
	return err
}
