package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"stoplossbot/internal/logger"
	"stoplossbot/internal/models"
	"stoplossbot/internal/strategy"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Exchange ExchangeConfig
	Strategy StrategyConfig
	Runtime  RuntimeConfig
	Nats     NatsConfig
	HTTP     HTTPConfig
	Replay   ReplayConfig
}

type ExchangeConfig struct {
	BaseUrl      string
	WSPublicURL  string
	WSPrivateURL string
	AccountType  string
	ApiKey       string
	Secret       string
}

type StrategyConfig struct {
	Figi              string
	Lot               int
	MaxOperationValue decimal.Decimal
	OrderbookDepth    int
	CandleInterval    models.CandleInterval
	GrowToFall        decimal.Decimal
	FallToGrow        decimal.Decimal
	Profit            decimal.Decimal
	StopLoss          decimal.Decimal
}

type RuntimeConfig struct {
	DryRun         bool
	PaperBalance   decimal.Decimal
	InstrumentPoll time.Duration
	CancelOnExit   bool
	Log            LogConfig
}

type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

type NatsConfig struct {
	URL         string
	Subject     string
	PublishPass bool
}

type HTTPConfig struct {
	Addr string
}

type ReplayConfig struct {
	File      string
	BaseCoin  string
	QuoteCoin string
	TickSize  decimal.Decimal
	LotSize   decimal.Decimal
}

// Load reads configs/config.yaml, or the file named by BOT_CONFIG.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("BOT_CONFIG"))
}

func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("configs")
		v.SetConfigName("config")
	}
	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("Не удалось прочитать конфиг %s: %w", filepath.Base(path), err)
		}
	}

	cfg := &Config{}
	cfg.Exchange = ExchangeConfig{
		BaseUrl:      v.GetString("exchange.base_url"),
		WSPublicURL:  v.GetString("exchange.ws_public_url"),
		WSPrivateURL: v.GetString("exchange.ws_private_url"),
		AccountType:  v.GetString("exchange.account_type"),
		ApiKey:       envSub(v.GetString("exchange.api_key")),
		Secret:       envSub(v.GetString("exchange.secret")),
	}

	interval, err := models.ParseCandleInterval(v.GetString("strategy.candle_interval"))
	if err != nil {
		return nil, &strategy.InvalidConfigError{Field: "candle_interval", Reason: err.Error()}
	}
	cfg.Strategy = StrategyConfig{
		Figi:           strings.TrimSpace(v.GetString("strategy.figi")),
		Lot:            v.GetInt("strategy.lot"),
		OrderbookDepth: v.GetInt("strategy.orderbook_depth"),
		CandleInterval: interval,
	}
	decimals := []struct {
		key string
		dst *decimal.Decimal
	}{
		{"strategy.max_operation_value", &cfg.Strategy.MaxOperationValue},
		{"strategy.grow_to_fall", &cfg.Strategy.GrowToFall},
		{"strategy.fall_to_grow", &cfg.Strategy.FallToGrow},
		{"strategy.profit", &cfg.Strategy.Profit},
		{"strategy.stop_loss", &cfg.Strategy.StopLoss},
		{"runtime.paper_balance", &cfg.Runtime.PaperBalance},
		{"replay.tick_size", &cfg.Replay.TickSize},
		{"replay.lot_size", &cfg.Replay.LotSize},
	}
	for _, item := range decimals {
		value, err := readDecimal(v, item.key)
		if err != nil {
			return nil, err
		}
		*item.dst = value
	}

	cfg.Runtime.DryRun = v.GetBool("runtime.dry_run")
	cfg.Runtime.InstrumentPoll = v.GetDuration("runtime.instrument_poll")
	cfg.Runtime.CancelOnExit = v.GetBool("runtime.cancel_on_exit")
	cfg.Runtime.Log = LogConfig{
		Level:      v.GetString("runtime.log.level"),
		Format:     v.GetString("runtime.log.format"),
		File:       v.GetString("runtime.log.file"),
		MaxSize:    v.GetInt("runtime.log.max_size"),
		MaxBackups: v.GetInt("runtime.log.max_backups"),
		MaxAge:     v.GetInt("runtime.log.max_age"),
		Compress:   v.GetBool("runtime.log.compress"),
	}

	cfg.Nats = NatsConfig{
		URL:         envSub(v.GetString("nats.url")),
		Subject:     v.GetString("nats.subject"),
		PublishPass: v.GetBool("nats.publish_pass"),
	}
	cfg.HTTP = HTTPConfig{Addr: v.GetString("http.addr")}
	cfg.Replay.File = v.GetString("replay.file")
	cfg.Replay.BaseCoin = v.GetString("replay.base_coin")
	cfg.Replay.QuoteCoin = v.GetString("replay.quote_coin")

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("exchange.base_url", "https://api.bybit.com")
	v.SetDefault("exchange.ws_public_url", "wss://stream.bybit.com/v5/public/spot")
	v.SetDefault("exchange.ws_private_url", "wss://stream.bybit.com/v5/private")
	v.SetDefault("exchange.account_type", "UNIFIED")

	v.SetDefault("strategy.lot", 1)
	v.SetDefault("strategy.orderbook_depth", 1)
	v.SetDefault("strategy.candle_interval", string(models.CandleInterval1Min))

	v.SetDefault("runtime.dry_run", true)
	v.SetDefault("runtime.paper_balance", "10000")
	v.SetDefault("runtime.instrument_poll", 30*time.Second)
	v.SetDefault("runtime.log.level", "info")
	v.SetDefault("runtime.log.format", "text")
	v.SetDefault("runtime.log.max_size", 50)
	v.SetDefault("runtime.log.max_backups", 5)
	v.SetDefault("runtime.log.max_age", 14)

	v.SetDefault("nats.subject", "stoploss.decisions")

	v.SetDefault("replay.base_coin", "BASE")
	v.SetDefault("replay.quote_coin", "QUOTE")
}

// LoggerConfig maps the runtime.log section onto the logger.
func (c LogConfig) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Level,
		Format:     c.Format,
		Output:     c.File,
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
		Compress:   c.Compress,
	}
}

func readDecimal(v *viper.Viper, key string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		field := key[strings.LastIndexByte(key, '.')+1:]
		return decimal.Zero, &strategy.InvalidConfigError{Field: field, Reason: fmt.Sprintf("не число: %q", raw)}
	}
	return value, nil
}

// StrategyParams converts the strategy section and validates it.
func (c *Config) StrategyParams() (strategy.Params, error) {
	s := c.Strategy
	return strategy.NewParams(
		models.Instrument{Figi: s.Figi, Lot: s.Lot},
		s.MaxOperationValue,
		s.OrderbookDepth,
		s.CandleInterval,
		s.GrowToFall,
		s.FallToGrow,
		s.Profit,
		s.StopLoss,
	)
}

var envPattern = regexp.MustCompile(`\$\{(\w+)\}`)

func envSub(val string) string {
	if val == "" {
		return ""
	}
	return envPattern.ReplaceAllStringFunc(val, func(match string) string {
		envKey := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(envKey)
	})
}
