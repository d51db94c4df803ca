package bybit

import (
	"context"
	"fmt"
	"sync"

	"stoplossbot/internal/exchange"
	"stoplossbot/internal/exchange/bybit/rest"
	"stoplossbot/internal/exchange/bybit/ws"
	"stoplossbot/internal/logger"
	"stoplossbot/internal/models"
)

type Config struct {
	BaseURL      string
	WSPublicURL  string
	WSPrivateURL string
	AccountType  string
	APIKey       string
	Secret       string
}

// Client talks to bybit spot: REST for orders and rules, two streams for
// candles and private order updates.
type Client struct {
	*rest.Client

	cfg Config
	log *logger.Logger
}

var _ exchange.Client = (*Client)(nil)

func New(cfg Config, log *logger.Logger) *Client {
	return &Client{
		Client: rest.New(cfg.BaseURL, cfg.APIKey, cfg.Secret, cfg.AccountType, log),
		cfg:    cfg,
		log:    log,
	}
}

func (c *Client) Subscribe(ctx context.Context, symbol string, interval models.CandleInterval) (<-chan exchange.Event, error) {
	code, err := intervalCode(interval)
	if err != nil {
		return nil, err
	}

	public := ws.New(c.cfg.WSPublicURL, "", "", c.log)
	if err := public.Connect(ctx); err != nil {
		return nil, err
	}
	topic := fmt.Sprintf("kline.%s.%s", code, symbol)
	if err := public.SubscribeToTopics(ctx, symbol, interval, []string{topic}); err != nil {
		public.Close()
		return nil, err
	}

	sources := []<-chan exchange.Event{public.Events()}

	if c.cfg.APIKey != "" && c.cfg.Secret != "" {
		private := ws.New(c.cfg.WSPrivateURL, c.cfg.APIKey, c.cfg.Secret, c.log)
		if err := private.Connect(ctx); err != nil {
			public.Close()
			return nil, err
		}
		if err := private.SubscribeToTopics(ctx, symbol, interval, []string{"order", "execution"}); err != nil {
			public.Close()
			private.Close()
			return nil, err
		}
		sources = append(sources, private.Events())
	} else {
		c.log.Entry("bybit", symbol).Warn("Ключи API не заданы, приватный поток не подключается.")
	}

	return merge(ctx, sources...), nil
}

func merge(ctx context.Context, sources ...<-chan exchange.Event) <-chan exchange.Event {
	out := make(chan exchange.Event, 100)

	var wg sync.WaitGroup
	wg.Add(len(sources))
	for _, src := range sources {
		go func(src <-chan exchange.Event) {
			defer wg.Done()
			for ev := range src {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}(src)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
