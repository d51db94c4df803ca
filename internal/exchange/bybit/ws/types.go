package ws

import (
	"encoding/json"
	"sync"
	"time"

	"stoplossbot/internal/exchange"
	"stoplossbot/internal/logger"
	"stoplossbot/internal/models"

	"github.com/gorilla/websocket"
)

type Client struct {
	url               string
	apiKey            string
	secret            string
	log               *logger.Logger
	conn              *websocket.Conn
	writeMu           sync.Mutex
	events            chan exchange.Event
	stopCh            chan struct{}
	stopOnce          sync.Once
	symbol            string
	interval          models.CandleInterval
	topics            []string
	reconnectMin      time.Duration
	reconnectMax      time.Duration
	reconnectAttempts int
	pingEvery         time.Duration
	authTimeout       time.Duration
}

type Message struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	TS      int64           `json:"ts"`
	Op      string          `json:"op"`
	Success *bool           `json:"success"`
	RetMsg  string          `json:"ret_msg"`
	Data    json.RawMessage `json:"data"`
}

type AuthMessage struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

type SubscribeMessage struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

type PingMessage struct {
	Op string `json:"op"`
}
