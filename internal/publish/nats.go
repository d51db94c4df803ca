// Package publish sends strategy decisions to a NATS subject.
package publish

import (
	"context"
	"time"

	"stoplossbot/internal/logger"
	"stoplossbot/internal/models"
	"stoplossbot/internal/strategy"

	jsoniter "github.com/json-iterator/go"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type conn interface {
	Publish(subj string, data []byte) error
}

// Message is the payload published for every decision.
type Message struct {
	Symbol   string             `json:"symbol"`
	Kind     strategy.Kind      `json:"kind"`
	Reason   strategy.Reason    `json:"reason"`
	Midpoint decimal.Decimal    `json:"midpoint"`
	Order    *models.LimitOrder `json:"order,omitempty"`
	Time     time.Time          `json:"time"`
}

type Publisher struct {
	conn        conn
	nc          *nats.Conn
	subject     string
	publishPass bool
	log         *logger.Logger
	now         func() time.Time
}

func Connect(url, subject string, publishPass bool, log *logger.Logger) (*Publisher, error) {
	entry := log.WithComponent("nats")
	nc, err := nats.Connect(url,
		nats.Name("stoplossbot"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				entry.WithError(err).Warn("Соединение с NATS потеряно.")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			entry.WithField("url", c.ConnectedUrl()).Info("Соединение с NATS восстановлено.")
		}),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "nats connect %s", url)
	}

	entry.WithFields(map[string]interface{}{
		"url":     nc.ConnectedUrl(),
		"subject": subject,
	}).Info("Подключение к NATS установлено.")

	p := newPublisher(nc, subject, publishPass, log)
	p.nc = nc
	return p, nil
}

func newPublisher(c conn, subject string, publishPass bool, log *logger.Logger) *Publisher {
	return &Publisher{
		conn:        c,
		subject:     subject,
		publishPass: publishPass,
		log:         log,
		now:         time.Now,
	}
}

// Publish sends d to <subject>.<symbol>. Pass decisions are skipped unless
// publishPass is set.
func (p *Publisher) Publish(ctx context.Context, symbol string, d strategy.Decision) error {
	if d.IsPass() && !p.publishPass {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(Message{
		Symbol:   symbol,
		Kind:     d.Kind,
		Reason:   d.Reason,
		Midpoint: d.Midpoint,
		Order:    d.Order,
		Time:     p.now(),
	})
	if err != nil {
		return errors.Wrap(err, "marshal decision")
	}

	subject := Subject(p.subject, symbol)
	if err := p.conn.Publish(subject, data); err != nil {
		return errors.Wrapf(err, "publish %s", subject)
	}
	return nil
}

func (p *Publisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.log.WithComponent("nats").WithError(err).Warn("Не удалось закрыть соединение с NATS.")
	}
}

func Subject(base, symbol string) string {
	if base == "" {
		return symbol
	}
	return base + "." + symbol
}
