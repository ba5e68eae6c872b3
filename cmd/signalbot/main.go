// cmd/signalbot polls closed bars for one instrument and posts a breakout
// signal alert at most once per bar.
//
// Usage:
//
//	go run ./cmd/signalbot                      # poll forever
//	go run ./cmd/signalbot -once                # one cycle, then exit
//	go run ./cmd/signalbot -bars-file bars.csv  # offline bars instead of Yahoo
//	go run ./cmd/signalbot -dump-bars bars.parquet
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fxsignal/config"
	"fxsignal/internal/cycle"
	"fxsignal/internal/logger"
	"fxsignal/internal/marketdata"
	"fxsignal/internal/markethours"
	"fxsignal/internal/model"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	once := flag.Bool("once", false, "Run a single cycle and exit")
	configPath := flag.String("config", "", "Strategy config document (overrides CONFIG_PATH)")
	barsFile := flag.String("bars-file", "", "Read bars from a .csv or .parquet file instead of Yahoo (overrides BARS_FILE)")
	dumpBars := flag.String("dump-bars", "", "Fetch closed bars, write them to this .csv or .parquet file, and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[signalbot] %v", err)
	}
	if *configPath != "" {
		cfg.ConfigPath = *configPath
	}
	if *barsFile != "" {
		cfg.BarsFile = *barsFile
	}

	logger.New("signalbot", logger.Options{
		Level: logger.ParseLevel(cfg.LogLevel),
		File:  cfg.LogFile,
	})

	interval, err := marketdata.ParseInterval(cfg.Timeframe)
	if err != nil {
		log.Fatalf("[signalbot] TIMEFRAME: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *dumpBars != "" {
		if err := dump(ctx, cfg, interval, *dumpBars); err != nil {
			log.Fatalf("[signalbot] dump bars: %v", err)
		}
		return
	}

	bot, err := build(ctx, cfg, interval)
	if err != nil {
		log.Fatalf("[signalbot] init failed: %v", err)
	}

	code := run(ctx, bot, cfg, interval, *once)
	if err := bot.Close(); err != nil {
		slog.Warn("shutdown", slog.Any("error", err))
	}
	os.Exit(code)
}

func run(ctx context.Context, bot *app, cfg *config.Config, interval time.Duration, once bool) int {
	slog.Info("signalbot started",
		slog.String("symbol", cfg.Symbol),
		slog.String("timeframe", cfg.Timeframe),
		slog.String("state_backend", cfg.StateBackend),
		slog.Int("warm_bars", bot.warmed),
		slog.Bool("once", once))

	if once {
		if err := bot.cycle(ctx); err != nil && !errors.Is(err, cycle.ErrDataUnavailable) {
			return 1
		}
		return 0
	}

	bot.loop(ctx, cfg.PollInterval, interval)
	slog.Info("signalbot stopped")
	return 0
}

// schedule decides which poll ticks run a cycle: the first tick inside a
// bar's opening minute, once per bar.
type schedule struct {
	interval time.Duration
	next     time.Time
}

// ran records a cycle at now; ticks before the current bar closes are skipped.
func (s *schedule) ran(now time.Time) {
	s.next = markethours.NextBarClose(now, s.interval)
}

func (s *schedule) due(now time.Time) bool {
	if now.Before(s.next) || !markethours.IsBarBoundary(now, s.interval) {
		return false
	}
	s.ran(now)
	return true
}

// loop runs a cycle at start and then once per bar on the poll tick that
// follows the bar close.
func (a *app) loop(ctx context.Context, poll, interval time.Duration) {
	sched := &schedule{interval: interval}
	sched.ran(time.Now())
	a.cycle(ctx)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !sched.due(now) {
				continue
			}
			a.cycle(ctx)
		}
	}
}

// cycle runs one evaluation and reports failures. It never aborts the process.
func (a *app) cycle(ctx context.Context) error {
	res, err := a.runner.RunOnce(ctx)
	switch {
	case errors.Is(err, cycle.ErrDataUnavailable):
		// logged by the runner
	case err != nil:
		slog.Error("cycle failed", slog.Any("error", err))
		if nerr := a.runner.ReportError(ctx, err); nerr != nil {
			slog.Error("error alert failed", slog.Any("error", nerr))
		}
	default:
		slog.Debug("cycle done", slog.String("outcome", res.Outcome), slog.Time("bar", res.BarTS))
	}
	return err
}

func dump(ctx context.Context, cfg *config.Config, interval time.Duration, path string) error {
	src, err := newSource(cfg)
	if err != nil {
		return err
	}
	bars, err := src.Fetch(ctx, model.BarRequest{
		Symbol:   cfg.Symbol,
		Interval: interval,
		Lookback: cfg.Lookback(),
	})
	if err != nil {
		return err
	}
	closed := marketdata.ClosedOnly(bars, interval, time.Now())
	if err := marketdata.WriteFile(path, closed); err != nil {
		return err
	}
	log.Printf("[signalbot] wrote %d bars to %s", len(closed), path)
	return nil
}
