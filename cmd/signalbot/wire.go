package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"

	"fxsignal/config"
	"fxsignal/internal/cycle"
	"fxsignal/internal/dedup"
	"fxsignal/internal/filterconfig"
	"fxsignal/internal/indicator"
	"fxsignal/internal/marketdata"
	"fxsignal/internal/metrics"
	"fxsignal/internal/model"
	"fxsignal/internal/notification"
	filestore "fxsignal/internal/store/file"
	redisstore "fxsignal/internal/store/redis"
	sqlitestore "fxsignal/internal/store/sqlite"
	"fxsignal/internal/strategy"
	"fxsignal/pkg/yahoo"
)

// app holds the wired process and everything that needs closing.
type app struct {
	runner  *cycle.Runner
	server  *metrics.Server
	closers []func() error
	warmed  int
}

func (a *app) Close() error {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		a.server.Stop(ctx)
		cancel()
	}
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	return err
}

func build(ctx context.Context, cfg *config.Config, interval time.Duration) (*app, error) {
	a := &app{}

	src, err := newSource(cfg)
	if err != nil {
		return nil, err
	}

	prom := metrics.NewMetrics(nil)
	health := metrics.NewHealthStatus(cfg.Symbol, cfg.StateBackend, 3*interval)

	// ---- Bar cache (SQLite); optional ----
	var cache *sqlitestore.Store
	if cfg.SQLitePath != "" {
		cache, err = openCache(cfg.SQLitePath)
		if err != nil {
			if cfg.StateBackend == "sqlite" {
				return nil, err
			}
			log.Printf("[signalbot] WARNING: sqlite cache unavailable: %v (cold starts only)", err)
			cache = nil
		} else {
			a.closers = append(a.closers, cache.Close)
		}
	}

	// ---- State store ----
	var state model.StateStore
	var ping func(context.Context) error
	switch cfg.StateBackend {
	case "sqlite":
		if cache == nil {
			return nil, fmt.Errorf("STATE_BACKEND=sqlite needs SQLITE_PATH")
		}
		state = cache
		ping = cache.DB().PingContext
	case "redis":
		rs, err := redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.RedisKey,
			Symbol:   cfg.Symbol,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		rs.Breaker().OnStateChange = func(from, to redisstore.State) {
			prom.StateBreakerState.Set(float64(to))
			log.Printf("[signalbot] redis breaker %s -> %s", from, to)
		}
		a.closers = append(a.closers, rs.Close)
		state = rs
		ping = rs.Ping
	default:
		fs := filestore.New(cfg.StatePath)
		state = fs
		ping = func(context.Context) error {
			_, err := os.Stat(filepath.Dir(fs.Path()))
			return err
		}
	}
	health.StartLivenessChecker(ctx, ping, 30*time.Second)

	notifier, err := newNotifier(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	if c, ok := notifier.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	// ---- Indicator engine, warmed from the cache ----
	engine := indicator.NewEngine(interval)
	fcfg, cfgErr := filterconfig.Load(cfg.ConfigPath)
	if cfgErr != nil {
		log.Printf("[signalbot] WARNING: %v (using defaults)", cfgErr)
	}
	params := indicator.Params{
		BarInterval:        interval,
		H1Alignment:        fcfg.Filters.H1Alignment,
		VolumeConfirmRatio: fcfg.Filters.VolumeConfirmRatio,
		ATRTopSkipPct:      fcfg.Filters.ATRTopSkipPct,
	}
	var reader indicator.BarReader
	var barCache model.BarCache
	if cache != nil {
		reader, barCache = cache, cache
	}
	a.warmed = indicator.NewRestorer(cfg.Symbol, cfg.Lookback()).Warm(ctx, engine, reader, params, time.Now())
	if cache != nil {
		logCacheAge(ctx, cache, cfg.Symbol)
	}

	a.runner = cycle.New(cycle.Config{
		Symbol:         cfg.Symbol,
		Interval:       interval,
		Lookback:       cfg.Lookback(),
		ConfigPath:     cfg.ConfigPath,
		StrategyName:   cfg.StrategyName,
		CacheRetention: time.Duration(cfg.CacheDays) * 24 * time.Hour,
	}, cycle.Deps{
		Source:   src,
		Cache:    barCache,
		Engine:   engine,
		Strategy: strategy.NewBreakout(cfg.StrategyName),
		Gate:     dedup.NewGate(state),
		Notifier: notifier,
		Metrics:  prom,
		Health:   health,
	})

	if cfg.MetricsAddr != "" {
		a.server = metrics.NewServer(cfg.MetricsAddr, health, nil)
		a.server.Start()
	}
	return a, nil
}

// openCache creates the database directory and opens the SQLite store.
func openCache(path string) (*sqlitestore.Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite dir %s: %w", dir, err)
		}
	}
	return sqlitestore.New(sqlitestore.Config{DBPath: path})
}

// logCacheAge reports how far the cached history lags behind now, which is
// the gap the first fetch has to fill.
func logCacheAge(ctx context.Context, cache *sqlitestore.Store, symbol string) {
	last, err := cache.LastBarTS(ctx, symbol)
	switch {
	case err != nil:
		log.Printf("[signalbot] WARNING: bar cache last timestamp: %v", err)
	case last.IsZero():
		log.Printf("[signalbot] bar cache empty for %s", symbol)
	default:
		log.Printf("[signalbot] bar cache for %s ends at %s (%s ago)",
			symbol, last.UTC().Format(time.RFC3339), time.Since(last).Round(time.Minute))
	}
}

func newSource(cfg *config.Config) (model.BarSource, error) {
	if cfg.BarsFile != "" {
		log.Printf("[signalbot] reading bars from %s", cfg.BarsFile)
		return marketdata.NewFileSource(cfg.BarsFile)
	}
	return marketdata.NewYahooSource(yahoo.New(yahoo.Config{
		RootURL:  cfg.YahooURL,
		Timeout:  cfg.HTTPTimeout,
		ProxyURL: cfg.HTTPProxy,
	})), nil
}

// multiCloser is the fan-out notifier plus the producers it must close.
type multiCloser struct {
	*notification.Multi
	closers []func() error
}

func (m *multiCloser) Close() error {
	var err error
	for _, c := range m.closers {
		err = multierr.Append(err, c())
	}
	return err
}

// newNotifier attaches every configured channel; with none configured alerts
// go to the log.
func newNotifier(cfg *config.Config) (notification.Notifier, error) {
	var (
		backends []notification.Notifier
		closers  []func() error
	)
	if cfg.SlackWebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.SlackWebhookURL, notification.WebhookFormat(cfg.WebhookFormat)))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		k, err := notification.NewKafkaNotifier(notification.KafkaConfig{
			Brokers: brokers,
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			return nil, fmt.Errorf("kafka notifier: %w", err)
		}
		backends = append(backends, k)
		closers = append(closers, k.Close)
	}
	if len(backends) == 0 {
		log.Println("[signalbot] no notification endpoint configured, alerts go to the log")
		backends = append(backends, notification.NewLogNotifier())
	}
	return &multiCloser{Multi: notification.NewMulti(backends...), closers: closers}, nil
}
