package ws

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

func (w *Client) authenticate() error {
	expires := time.Now().UnixMilli() + 5_000
	payload := fmt.Sprintf("GET/realtime%d", expires)

	msg := AuthMessage{
		Op:   "auth",
		Args: []string{w.apiKey, strconv.FormatInt(expires, 10), sign(w.secret, payload)},
	}

	if err := w.writeJSON(msg); err != nil {
		return fmt.Errorf("Не удалось авторизоваться: %w", err)
	}

	return w.awaitAuth()
}

// awaitAuth reads frames until the auth reply. Only called before readLoop
// owns the connection.
func (w *Client) awaitAuth() error {
	w.writeMu.Lock()
	conn := w.conn
	w.writeMu.Unlock()

	_ = conn.SetReadDeadline(time.Now().Add(w.authTimeout))
	defer conn.SetReadDeadline(time.Time{})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("Нет ответа на авторизацию WS: %w", err)
		}
		if msg.Op != "auth" {
			continue
		}
		if msg.Success != nil && !*msg.Success {
			return fmt.Errorf("WS авторизация отклонена: %s", msg.RetMsg)
		}
		return nil
	}
}

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
