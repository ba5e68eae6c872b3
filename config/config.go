// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// Config holds all application configuration loaded from environment variables.
// Every field is named by its env tag; default tags apply when the variable is unset.
type Config struct {
	// Instrument
	Symbol       string `env:"SYMBOL" default:"USDJPY=X" validate:"required"`
	Timeframe    string `env:"TIMEFRAME" default:"15m" validate:"required"`
	LookbackDays int    `env:"LOOKBACK_DAYS" default:"60" validate:"gt=0"`
	StrategyName string `env:"STRATEGY_NAME" default:"B strategy (DD tuned)"`
	ConfigPath   string `env:"CONFIG_PATH" default:"config.yaml"`

	// Market data
	YahooURL    string        `env:"YAHOO_URL" default:"https://query1.finance.yahoo.com"`
	HTTPProxy   string        `env:"HTTP_PROXY_URL"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" default:"15s"`
	BarsFile    string        `env:"BARS_FILE"`

	// Persistence
	StateBackend  string `env:"STATE_BACKEND" default:"file" validate:"oneof=file sqlite redis"`
	StatePath     string `env:"STATE_PATH" default:".state.json"`
	SQLitePath    string `env:"SQLITE_PATH" default:"data/fxsignal.db"`
	CacheDays     int    `env:"CACHE_DAYS" default:"90" validate:"gte=0"`
	RedisAddr     string `env:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" default:"0"`
	RedisKey      string `env:"REDIS_KEY"`

	// Notification
	SlackWebhookURL  string `env:"SLACK_WEBHOOK_URL"`
	WebhookFormat    string `env:"WEBHOOK_FORMAT" default:"slack" validate:"oneof=slack json"`
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string `env:"TELEGRAM_CHAT_ID"`
	KafkaBrokers     string `env:"KAFKA_BROKERS"`
	KafkaTopic       string `env:"KAFKA_TOPIC" default:"fxsignal.alerts"`

	// Driver
	PollInterval time.Duration `env:"POLL_INTERVAL" default:"30s" validate:"gt=0"`
	MetricsAddr  string        `env:"METRICS_ADDR" default:":9090"`
	LogLevel     string        `env:"LOG_LEVEL" default:"info"`
	LogFile      string        `env:"LOG_FILE"`
}

var validate = validator.New()

// Load reads .env (if present) and the environment, applying defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[config] .env not loaded: %v", err)
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an arbitrary env lookup.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}

	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		key := t.Field(i).Tag.Get("env")
		raw, ok := lookup(key)
		if key == "" || !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		if err := setField(v.Field(i), strings.TrimSpace(raw)); err != nil {
			return nil, fmt.Errorf("config: %s: %w", key, err)
		}
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func setField(f reflect.Value, raw string) error {
	if f.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := cast.ToDurationE(raw)
		if err != nil {
			return err
		}
		f.SetInt(int64(d))
		return nil
	}
	switch f.Kind() {
	case reflect.String:
		f.SetString(raw)
	case reflect.Int:
		n, err := cast.ToIntE(raw)
		if err != nil {
			return err
		}
		f.SetInt(int64(n))
	case reflect.Bool:
		b, err := cast.ToBoolE(raw)
		if err != nil {
			return err
		}
		f.SetBool(b)
	default:
		return fmt.Errorf("unsupported field kind %s", f.Kind())
	}
	return nil
}

// Lookback returns the market-data history window.
func (c *Config) Lookback() time.Duration {
	return time.Duration(c.LookbackDays) * 24 * time.Hour
}

// Brokers splits KafkaBrokers on commas, skipping blanks.
func (c *Config) Brokers() []string {
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
