package ws

import (
	"context"
	"fmt"
	"time"

	"stoplossbot/internal/exchange"
	"stoplossbot/internal/logger"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// New creates a stream client. Empty apiKey/secret means a public stream.
func New(url, apiKey, secret string, log *logger.Logger) *Client {
	return &Client{
		url:               url,
		apiKey:            apiKey,
		secret:            secret,
		log:               log,
		events:            make(chan exchange.Event, 100),
		stopCh:            make(chan struct{}),
		reconnectMin:      1 * time.Second,
		reconnectMax:      30 * time.Second,
		reconnectAttempts: 10,
		pingEvery:         20 * time.Second,
		authTimeout:       10 * time.Second,
	}
}

func (w *Client) Connect(ctx context.Context) error {
	w.logEntry().WithField("url", w.url).Info("Подключение к WS.")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("Не удалось подключиться к WS: %w", err)
	}

	w.conn = conn
	w.conn.SetReadLimit(2 << 20)

	if w.apiKey != "" && w.secret != "" {
		if err := w.authenticate(); err != nil {
			w.writeMu.Lock()
			_ = w.conn.Close()
			w.conn = nil
			w.writeMu.Unlock()
			return err
		}
	}

	w.logEntry().Info("WS соединение установлено.")

	go w.readLoop()
	go w.pingLoop()
	go func() {
		select {
		case <-ctx.Done():
			w.Close()
		case <-w.stopCh:
		}
	}()

	return nil
}

func (w *Client) Close() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.writeMu.Lock()
		if w.conn != nil {
			_ = w.conn.Close()
		}
		w.writeMu.Unlock()
	})
}

func (w *Client) writeJSON(v any) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if w.conn == nil {
		return fmt.Errorf("WS не подключён.")
	}
	return w.conn.WriteJSON(v)
}

func (w *Client) pingLoop() {
	ticker := time.NewTicker(w.pingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			if err := w.writeJSON(PingMessage{Op: "ping"}); err != nil {
				w.logEntry().WithError(err).Debug("Не удалось отправить ping.")
			}
		}
	}
}

func (w *Client) logEntry() *logrus.Entry {
	component := "bybit_ws_public"
	if w.apiKey != "" {
		component = "bybit_ws_private"
	}
	entry := w.log.WithComponent(component)
	if w.symbol != "" {
		entry = entry.WithField("symbol", w.symbol)
	}
	return entry
}

func (w *Client) Events() <-chan exchange.Event {
	return w.events
}
