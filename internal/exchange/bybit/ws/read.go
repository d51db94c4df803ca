package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"stoplossbot/internal/exchange"

	"github.com/gorilla/websocket"
)

func (w *Client) readLoop() {
	defer close(w.events)
	w.logEntry().Debug("readLoop запущен.")

	for {
		select {
		case <-w.stopCh:
			return
		default:
		}
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			if w.stopped() {
				return
			}
			w.logEntry().WithError(err).Warn("Ошибка чтения WS.")

			if !w.reconnect() {
				return
			}
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			w.logEntry().WithError(err).Warn("Не удалось разобрать WS сообщение.")
			continue
		}

		switch {
		case msg.Op != "":
			w.handleOp(msg)
		case strings.HasPrefix(msg.Topic, "kline"):
			w.handleKline(msg)
		case strings.HasPrefix(msg.Topic, "execution"):
			w.handleExecution(msg)
		case strings.HasPrefix(msg.Topic, "order"):
			w.handleOrder(msg)
		default:
			continue
		}
	}
}

func (w *Client) handleOp(msg Message) {
	if msg.Success == nil || *msg.Success {
		return
	}
	w.logEntry().WithFields(map[string]interface{}{
		"op":      msg.Op,
		"ret_msg": msg.RetMsg,
	}).Warn("WS операция отклонена.")
	if msg.Op == "auth" {
		w.emit(exchange.Event{Type: exchange.EventTypeError, Err: fmt.Errorf("WS авторизация отклонена: %s", msg.RetMsg)})
	}
}

func (w *Client) emit(event exchange.Event) bool {
	select {
	case <-w.stopCh:
		return false
	case w.events <- event:
		return true
	}
}

func (w *Client) stopped() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

func (w *Client) reconnect() bool {
	backoff := w.reconnectMin
	var lastErr error

	for attempt := 0; attempt < w.reconnectAttempts; attempt++ {
		w.logEntry().WithField("attempt", attempt+1).Info("Попытка переподключения к WS.")

		select {
		case <-w.stopCh:
			return false
		case <-time.After(backoff):
		}

		conn, _, err := websocket.DefaultDialer.Dial(w.url, nil)
		if err != nil {
			lastErr = err
			w.logEntry().WithError(err).Warn("Не удалось переподключиться к WS.")
			backoff = w.nextBackoff(backoff)
			continue
		}

		w.writeMu.Lock()
		if w.conn != nil {
			_ = w.conn.Close()
		}
		w.conn = conn
		w.conn.SetReadLimit(2 << 20)
		w.writeMu.Unlock()

		if w.apiKey != "" && w.secret != "" {
			if err := w.authenticate(); err != nil {
				lastErr = err
				w.logEntry().WithError(err).Warn("Не удалось повторно авторизоваться в WS.")
				backoff = w.nextBackoff(backoff)
				continue
			}
		}

		if len(w.topics) > 0 {
			if err := w.SubscribeToTopics(context.Background(), w.symbol, w.interval, w.topics); err != nil {
				lastErr = err
				w.logEntry().WithError(err).Warn("Не удалось повторно подписаться на WS.")
				backoff = w.nextBackoff(backoff)
				continue
			}
		}

		w.emit(exchange.Event{Type: exchange.EventTypeReconnect})
		w.logEntry().Info("WS переподключён и подписки восстановлены.")
		return true
	}

	w.emit(exchange.Event{
		Type: exchange.EventTypeError,
		Err:  fmt.Errorf("WS не восстановлен после %d попыток: %w", w.reconnectAttempts, lastErr),
	})
	return false
}

func (w *Client) nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > w.reconnectMax {
		return w.reconnectMax
	}
	return next
}
