// Package cycle runs one evaluation pass: fetch bars, fold indicators,
// detect, gate on the last processed bar, persist, then notify.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fxsignal/internal/alert"
	"fxsignal/internal/dedup"
	"fxsignal/internal/filterconfig"
	"fxsignal/internal/indicator"
	"fxsignal/internal/logger"
	"fxsignal/internal/marketdata"
	"fxsignal/internal/metrics"
	"fxsignal/internal/model"
	"fxsignal/internal/notification"
	"fxsignal/internal/strategy"
)

// ErrDataUnavailable means the cycle had nothing to evaluate: an empty fetch
// or no bar with enough history. Nothing is persisted or notified.
var ErrDataUnavailable = errors.New("market data unavailable")

// Config is the static part of a runner.
type Config struct {
	Symbol       string
	Interval     time.Duration
	Lookback     time.Duration
	ConfigPath   string
	StrategyName string

	// CacheRetention bounds the bar cache; zero keeps everything.
	CacheRetention time.Duration
}

// Deps are the collaborators a runner drives. Source, Strategy, Gate and
// Notifier are required; the rest are optional.
type Deps struct {
	Source   model.BarSource
	Cache    model.BarCache
	Engine   *indicator.Engine
	Strategy strategy.Strategy
	Gate     *dedup.Gate
	Notifier notification.Notifier
	Metrics  *metrics.Metrics
	Health   *metrics.HealthStatus
	Now      func() time.Time
}

// Result describes what one cycle did.
type Result struct {
	Outcome  string
	BarTS    time.Time
	Decision strategy.Decision

	// ConfigErr is set when the config document was invalid and defaults ran.
	ConfigErr error
	// NotifyErr is set when a signal was persisted but delivery failed.
	NotifyErr error
}

// pruner is implemented by caches that can drop old bars.
type pruner interface {
	PruneBars(ctx context.Context, symbol string, before time.Time) (int64, error)
}

// Runner executes evaluation cycles. It is not safe for concurrent use; the
// driver calls RunOnce sequentially.
type Runner struct {
	cfg  Config
	deps Deps
	meta alert.Meta

	// configErr is the last config failure already alerted, empty once the
	// document loads cleanly again.
	configErr string
}

// New creates a runner. A nil Engine gets a fresh one for cfg.Interval.
func New(cfg Config, deps Deps) *Runner {
	if deps.Engine == nil {
		deps.Engine = indicator.NewEngine(cfg.Interval)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	name := cfg.StrategyName
	if name == "" {
		name = deps.Strategy.Name()
	}
	return &Runner{
		cfg:  cfg,
		deps: deps,
		meta: alert.Meta{
			Strategy:  name,
			Symbol:    cfg.Symbol,
			Timeframe: marketdata.FormatInterval(cfg.Interval),
		},
	}
}

// Engine returns the runner's indicator engine.
func (r *Runner) Engine() *indicator.Engine { return r.deps.Engine }

// Meta returns the alert header used for this runner's messages.
func (r *Runner) Meta() alert.Meta { return r.meta }

// RunOnce performs one cycle. ErrDataUnavailable is returned for a skipped
// cycle; any other error means the cycle failed before notification.
func (r *Runner) RunOnce(ctx context.Context) (res Result, err error) {
	start := r.deps.Now()
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(r.cfg.Symbol, start))
	defer func() { r.observe(ctx, res, err, time.Since(start)) }()

	cfg, cfgErr := filterconfig.Load(r.cfg.ConfigPath)
	res.ConfigErr = cfgErr
	r.configFallback(ctx, cfgErr)

	bar, err := r.latestBar(ctx, cfg, start)
	if err != nil {
		return res, err
	}
	res.BarTS = bar.TS

	seen, err := r.deps.Gate.Seen(ctx, bar.TS)
	if err != nil {
		return res, fmt.Errorf("dedup: %w", err)
	}
	if seen {
		res.Outcome = metrics.OutcomeDuplicate
		slog.Debug("bar already evaluated",
			append(logger.LogWithTrace(ctx), slog.String("bar", dedup.Key(bar.TS)))...)
		return res, nil
	}

	d := r.deps.Strategy.Evaluate(bar, cfg)
	res.Decision = d

	// Persist before notifying: a crash in between loses the alert rather
	// than sending it twice.
	if err := r.deps.Gate.Mark(ctx, bar.TS); err != nil {
		return res, fmt.Errorf("dedup: %w", err)
	}

	if !d.IsSignal() {
		res.Outcome = metrics.OutcomeNoSignal
		if r.deps.Metrics != nil {
			r.deps.Metrics.RejectionsTotal.WithLabelValues(string(d.Reason)).Inc()
		}
		slog.Info(alert.Summary(d), append(logger.LogWithTrace(ctx), slog.Any("failed", d.Failed))...)
		return res, nil
	}

	res.Outcome = metrics.OutcomeSignal
	if r.deps.Metrics != nil {
		r.deps.Metrics.SignalsTotal.WithLabelValues(string(d.Side)).Inc()
	}
	meta := r.meta
	meta.VWAPDeviationATR = cfg.Filters.VWAPDeviationATR
	meta.ShockTROverATR = cfg.Risk.ShockTROverATR
	a := notification.Alert{
		Level:   notification.AlertInfo,
		Kind:    notification.KindSignal,
		Title:   fmt.Sprintf("%s %s %s", r.cfg.Symbol, d.Side.Action(), dedup.Key(bar.TS)),
		Message: alert.Format(d, meta),
		TS:      start,
	}
	if err := r.deps.Notifier.Send(ctx, a); err != nil {
		res.NotifyErr = err
		if r.deps.Metrics != nil {
			r.deps.Metrics.NotifyErrors.Inc()
		}
		slog.Error("signal notification failed",
			append(logger.LogWithTrace(ctx), slog.Any("error", err))...)
	}
	slog.Info(alert.Summary(d), logger.LogWithTrace(ctx)...)
	return res, nil
}

// configFallback logs every cycle that runs on defaults and alerts the error
// channel once per distinct config failure.
func (r *Runner) configFallback(ctx context.Context, cfgErr error) {
	if cfgErr == nil {
		r.configErr = ""
		return
	}
	slog.Warn("config invalid, using defaults",
		append(logger.LogWithTrace(ctx), slog.String("path", r.cfg.ConfigPath), slog.Any("error", cfgErr))...)
	if r.deps.Metrics != nil {
		r.deps.Metrics.ConfigFallbacks.Inc()
	}
	if cfgErr.Error() == r.configErr {
		return
	}
	r.configErr = cfgErr.Error()
	if err := r.ReportError(ctx, fmt.Errorf("%w (running on default filters)", cfgErr)); err != nil {
		slog.Error("config error alert failed", append(logger.LogWithTrace(ctx), slog.Any("error", err))...)
	}
}

// latestBar fetches, caches and folds bars and returns the newest closed
// enriched bar, which must be ready.
func (r *Runner) latestBar(ctx context.Context, cfg filterconfig.FilterConfig, now time.Time) (model.EnrichedBar, error) {
	bars, err := r.deps.Source.Fetch(ctx, model.BarRequest{
		Symbol:   r.cfg.Symbol,
		Interval: r.cfg.Interval,
		Lookback: r.cfg.Lookback,
	})
	if err != nil {
		return model.EnrichedBar{}, fmt.Errorf("fetch %s: %w", r.cfg.Symbol, err)
	}
	closed := marketdata.ClosedOnly(bars, r.cfg.Interval, now)
	if len(closed) == 0 {
		return model.EnrichedBar{}, fmt.Errorf("%w: no closed bars for %s", ErrDataUnavailable, r.cfg.Symbol)
	}

	r.cacheBars(ctx, closed, now)

	r.deps.Engine.Feed(closed, indicator.Params{
		BarInterval:        r.cfg.Interval,
		H1Alignment:        cfg.Filters.H1Alignment,
		VolumeConfirmRatio: cfg.Filters.VolumeConfirmRatio,
		ATRTopSkipPct:      cfg.Filters.ATRTopSkipPct,
	})
	if r.deps.Metrics != nil {
		r.deps.Metrics.FoldedBars.Set(float64(r.deps.Engine.Fed()))
	}

	bar, ok := r.deps.Engine.Latest()
	if !ok || !bar.Ready {
		return model.EnrichedBar{}, fmt.Errorf("%w: %d bars folded, indicators not ready",
			ErrDataUnavailable, r.deps.Engine.Fed())
	}
	return bar, nil
}

// cacheBars writes closed bars to the cache. Failures only cost warm-up
// history on the next start, so they are logged and ignored.
func (r *Runner) cacheBars(ctx context.Context, bars []model.Bar, now time.Time) {
	if r.deps.Cache == nil {
		return
	}
	if err := r.deps.Cache.UpsertBars(ctx, r.cfg.Symbol, bars); err != nil {
		slog.Warn("bar cache write failed", append(logger.LogWithTrace(ctx), slog.Any("error", err))...)
		return
	}
	p, ok := r.deps.Cache.(pruner)
	if !ok || r.cfg.CacheRetention <= 0 {
		return
	}
	if n, err := p.PruneBars(ctx, r.cfg.Symbol, now.Add(-r.cfg.CacheRetention)); err != nil {
		slog.Warn("bar cache prune failed", append(logger.LogWithTrace(ctx), slog.Any("error", err))...)
	} else if n > 0 {
		slog.Debug("bar cache pruned", slog.Int64("rows", n))
	}
}

func (r *Runner) observe(ctx context.Context, res Result, err error, d time.Duration) {
	outcome := res.Outcome
	switch {
	case errors.Is(err, ErrDataUnavailable):
		outcome = metrics.OutcomeUnavailable
		slog.Info("cycle skipped", append(logger.LogWithTrace(ctx), slog.Any("reason", err))...)
	case err != nil:
		outcome = metrics.OutcomeError
	}
	if r.deps.Metrics != nil {
		r.deps.Metrics.ObserveCycle(outcome, d)
		if !res.BarTS.IsZero() {
			r.deps.Metrics.LastBarTS.Set(float64(res.BarTS.Unix()))
		}
	}
	if r.deps.Health != nil {
		r.deps.Health.RecordCycle(outcome, res.BarTS)
	}
}

// ReportError sends a cycle failure to the error channel. ErrDataUnavailable
// is never reported.
func (r *Runner) ReportError(ctx context.Context, cycleErr error) error {
	if cycleErr == nil || errors.Is(cycleErr, ErrDataUnavailable) {
		return nil
	}
	err := r.deps.Notifier.Send(ctx, notification.Alert{
		Level:   notification.AlertWarning,
		Kind:    notification.KindError,
		Title:   r.cfg.Symbol + " cycle error",
		Message: alert.FormatError(cycleErr, r.meta),
		TS:      r.deps.Now(),
	})
	if err != nil && r.deps.Metrics != nil {
		r.deps.Metrics.NotifyErrors.Inc()
	}
	return err
}
