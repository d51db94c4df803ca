package ws

import (
	"context"
	"fmt"

	"stoplossbot/internal/models"
)

func (w *Client) SubscribeToTopics(ctx context.Context, symbol string, interval models.CandleInterval, topics []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.symbol = symbol
	w.interval = interval
	w.topics = topics

	msg := SubscribeMessage{
		Op:   "subscribe",
		Args: topics,
	}

	if err := w.writeJSON(msg); err != nil {
		return fmt.Errorf("Не удалось подписаться на %v: %w", topics, err)
	}
	w.logEntry().WithField("topics", topics).Info("Подписка на WS топики.")
	return nil
}
