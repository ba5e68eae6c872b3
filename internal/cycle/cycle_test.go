package cycle

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"fxsignal/internal/dedup"
	"fxsignal/internal/filterconfig"
	"fxsignal/internal/metrics"
	"fxsignal/internal/model"
	"fxsignal/internal/notification"
	"fxsignal/internal/strategy"
)

const interval = 15 * time.Minute

var seriesStart = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func trendingBars(n int) []model.Bar {
	bars := make([]model.Bar, n)
	for i := range bars {
		c := 150 + 0.01*float64(i) + 0.02*math.Sin(float64(i))
		bars[i] = model.Bar{
			TS:    seriesStart.Add(time.Duration(i) * interval),
			Open:  c - 0.005,
			High:  c + 0.03,
			Low:   c - 0.03,
			Close: c,
		}
	}
	return bars
}

// afterClose returns a clock just past the close of the last bar.
func afterClose(bars []model.Bar) func() time.Time {
	t := bars[len(bars)-1].TS.Add(interval + time.Minute)
	return func() time.Time { return t }
}

type fakeSource struct {
	bars  []model.Bar
	err   error
	calls int
}

func (f *fakeSource) Fetch(context.Context, model.BarRequest) ([]model.Bar, error) {
	f.calls++
	return f.bars, f.err
}

type fakeStrategy struct {
	side  model.Side
	calls int
	last  model.EnrichedBar
}

func (f *fakeStrategy) Name() string { return "fake" }

func (f *fakeStrategy) Evaluate(bar model.EnrichedBar, _ filterconfig.FilterConfig) strategy.Decision {
	f.calls++
	f.last = bar
	d := strategy.Decision{Strategy: "fake", Side: f.side, Bar: bar, Price: bar.Close, ATR: bar.ATR14}
	switch f.side {
	case model.SideLong:
		d.Reason = model.ReasonLongOK
		d.StopLoss, d.Target1 = bar.Close-0.1, bar.Close+0.1
	case model.SideShort:
		d.Reason = model.ReasonShortOK
		d.StopLoss, d.Target1 = bar.Close+0.1, bar.Close-0.1
	default:
		d.Side = model.SideNone
		d.Reason = model.ReasonTimeFilter
		d.Failed = []model.Reason{model.ReasonTimeFilter}
	}
	return d
}

type recordingNotifier struct {
	alerts []notification.Alert
	err    error
}

func (r *recordingNotifier) Send(_ context.Context, a notification.Alert) error {
	r.alerts = append(r.alerts, a)
	return r.err
}

type failingStore struct{ err error }

func (f failingStore) Load(context.Context) (model.ProcessingState, error) {
	return model.ProcessingState{}, f.err
}

func (f failingStore) Save(context.Context, model.ProcessingState) error { return f.err }

type fakeCache struct {
	upserts int
	pruned  time.Time
}

func (f *fakeCache) UpsertBars(_ context.Context, _ string, bars []model.Bar) error {
	f.upserts += len(bars)
	return nil
}

func (f *fakeCache) ReadBars(context.Context, string, time.Time) ([]model.Bar, error) {
	return nil, nil
}

func (f *fakeCache) PruneBars(_ context.Context, _ string, before time.Time) (int64, error) {
	f.pruned = before
	return 1, nil
}

type harness struct {
	runner   *Runner
	source   *fakeSource
	strategy *fakeStrategy
	store    *dedup.MemoryStore
	notifier *recordingNotifier
	metrics  *metrics.Metrics
}

func newHarness(t *testing.T, bars []model.Bar, side model.Side) *harness {
	t.Helper()
	h := &harness{
		source:   &fakeSource{bars: bars},
		strategy: &fakeStrategy{side: side},
		store:    dedup.NewMemoryStore(),
		notifier: &recordingNotifier{},
		metrics:  metrics.NewMetrics(prometheus.NewRegistry()),
	}
	now := func() time.Time { return seriesStart }
	if len(bars) > 0 {
		now = afterClose(bars)
	}
	h.runner = New(Config{
		Symbol:       "USDJPY=X",
		Interval:     interval,
		Lookback:     60 * 24 * time.Hour,
		ConfigPath:   filepath.Join(t.TempDir(), "missing.yaml"),
		StrategyName: "B strategy (DD tuned)",
	}, Deps{
		Source:   h.source,
		Strategy: h.strategy,
		Gate:     dedup.NewGate(h.store),
		Notifier: h.notifier,
		Metrics:  h.metrics,
		Now:      now,
	})
	return h
}

func TestRunOnce_SignalNotifiesExactlyOnce(t *testing.T) {
	bars := trendingBars(40)
	h := newHarness(t, bars, model.SideLong)

	res, err := h.runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Outcome != metrics.OutcomeSignal || !res.BarTS.Equal(bars[39].TS) {
		t.Fatalf("result = %+v", res)
	}
	if len(h.notifier.alerts) != 1 || h.notifier.alerts[0].Kind != notification.KindSignal {
		t.Fatalf("alerts = %+v", h.notifier.alerts)
	}
	st, _ := h.store.Load(context.Background())
	if st.LastTimestamp != dedup.Key(bars[39].TS) {
		t.Errorf("state = %q, want %q", st.LastTimestamp, dedup.Key(bars[39].TS))
	}

	res, err = h.runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if res.Outcome != metrics.OutcomeDuplicate {
		t.Errorf("second outcome = %s, want duplicate", res.Outcome)
	}
	if len(h.notifier.alerts) != 1 || h.strategy.calls != 1 {
		t.Errorf("repeat cycle must not evaluate or notify: alerts=%d calls=%d", len(h.notifier.alerts), h.strategy.calls)
	}
	if got := testutil.ToFloat64(h.metrics.SignalsTotal.WithLabelValues("LONG")); got != 1 {
		t.Errorf("signals_total = %v", got)
	}
}

func TestRunOnce_NoSignalMarksWithoutNotify(t *testing.T) {
	h := newHarness(t, trendingBars(40), model.SideNone)

	res, err := h.runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Outcome != metrics.OutcomeNoSignal || res.Decision.Reason != model.ReasonTimeFilter {
		t.Errorf("result = %+v", res)
	}
	if len(h.notifier.alerts) != 0 {
		t.Errorf("no-signal must not notify, got %d alerts", len(h.notifier.alerts))
	}
	if h.store.Saves() != 1 {
		t.Errorf("saves = %d, want 1", h.store.Saves())
	}
	if got := testutil.ToFloat64(h.metrics.FoldedBars); got != 40 {
		t.Errorf("folded_bars = %v, want 40", got)
	}
	if got := testutil.ToFloat64(h.metrics.RejectionsTotal.WithLabelValues("time_filter_ng")); got != 1 {
		t.Errorf("rejections_total = %v", got)
	}
}

func TestRunOnce_EmptyFetchIsUnavailable(t *testing.T) {
	h := newHarness(t, nil, model.SideLong)

	_, err := h.runner.RunOnce(context.Background())
	if !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("err = %v, want ErrDataUnavailable", err)
	}
	if h.store.Saves() != 0 || len(h.notifier.alerts) != 0 {
		t.Errorf("unavailable cycle mutated state or notified")
	}
	if err := h.runner.ReportError(context.Background(), err); err != nil || len(h.notifier.alerts) != 0 {
		t.Errorf("ErrDataUnavailable must not be reported")
	}
	if got := testutil.ToFloat64(h.metrics.CyclesTotal.WithLabelValues(metrics.OutcomeUnavailable)); got != 1 {
		t.Errorf("unavailable cycles = %v", got)
	}
}

func TestRunOnce_NotReadyIsUnavailable(t *testing.T) {
	h := newHarness(t, trendingBars(10), model.SideLong)

	if _, err := h.runner.RunOnce(context.Background()); !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("err = %v, want ErrDataUnavailable", err)
	}
	if h.strategy.calls != 0 || h.store.Saves() != 0 {
		t.Error("short history must not be evaluated")
	}
}

func TestRunOnce_SkipsFormingBar(t *testing.T) {
	bars := trendingBars(41)
	h := newHarness(t, bars, model.SideNone)
	// Clock sits inside the last bar.
	h.runner.deps.Now = func() time.Time { return bars[40].TS.Add(5 * time.Minute) }

	res, err := h.runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !res.BarTS.Equal(bars[39].TS) {
		t.Errorf("evaluated %v, want last closed bar %v", res.BarTS, bars[39].TS)
	}
}

func TestRunOnce_FetchErrorIsReported(t *testing.T) {
	h := newHarness(t, trendingBars(40), model.SideLong)
	h.source.err = errors.New("connection reset")

	_, err := h.runner.RunOnce(context.Background())
	if err == nil || errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("err = %v, want a fetch error", err)
	}
	if h.store.Saves() != 0 {
		t.Error("failed fetch must not mutate state")
	}
	if err := h.runner.ReportError(context.Background(), err); err != nil {
		t.Fatalf("ReportError: %v", err)
	}
	if len(h.notifier.alerts) != 1 || h.notifier.alerts[0].Kind != notification.KindError {
		t.Errorf("alerts = %+v, want one error alert", h.notifier.alerts)
	}
}

func TestRunOnce_StateLoadErrorAborts(t *testing.T) {
	h := newHarness(t, trendingBars(40), model.SideLong)
	storeErr := errors.New("redis: connection refused")
	h.runner.deps.Gate = dedup.NewGate(failingStore{err: storeErr})

	_, err := h.runner.RunOnce(context.Background())
	if !errors.Is(err, storeErr) {
		t.Fatalf("err = %v, want wrapped store error", err)
	}
	if h.strategy.calls != 0 || len(h.notifier.alerts) != 0 {
		t.Error("unreadable state must abort before detection and notification")
	}
}

func TestRunOnce_NotifyFailureKeepsState(t *testing.T) {
	h := newHarness(t, trendingBars(40), model.SideShort)
	h.notifier.err = errors.New("webhook down")

	res, err := h.runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.NotifyErr == nil || res.Outcome != metrics.OutcomeSignal {
		t.Errorf("result = %+v, want signal with NotifyErr", res)
	}
	if h.store.Saves() != 1 {
		t.Error("state must stay marked after a failed notification")
	}
	if got := testutil.ToFloat64(h.metrics.NotifyErrors); got != 1 {
		t.Errorf("notify_errors_total = %v", got)
	}
}

func TestRunOnce_InvalidConfigFallsBack(t *testing.T) {
	h := newHarness(t, trendingBars(40), model.SideNone)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("FILTERS: [not, a, map"), 0o644); err != nil {
		t.Fatal(err)
	}
	h.runner.cfg.ConfigPath = path

	res, err := h.runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !errors.Is(res.ConfigErr, filterconfig.ErrInvalidConfig) {
		t.Errorf("ConfigErr = %v", res.ConfigErr)
	}
	if res.Outcome != metrics.OutcomeNoSignal {
		t.Errorf("outcome = %s, cycle should still run on defaults", res.Outcome)
	}
	if len(h.notifier.alerts) != 1 || h.notifier.alerts[0].Kind != notification.KindError {
		t.Errorf("alerts = %+v, want one error alert for the bad config", h.notifier.alerts)
	}
}

func TestRunOnce_ConfigErrorAlertedOncePerFailure(t *testing.T) {
	h := newHarness(t, trendingBars(40), model.SideNone)
	path := filepath.Join(t.TempDir(), "config.yaml")
	h.runner.cfg.ConfigPath = path
	write := func(doc string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	errorAlerts := func() int {
		n := 0
		for _, a := range h.notifier.alerts {
			if a.Kind == notification.KindError {
				n++
			}
		}
		return n
	}

	write("FILTERS: [not, a, map")
	h.runner.RunOnce(context.Background())
	h.runner.RunOnce(context.Background())
	if got := errorAlerts(); got != 1 {
		t.Fatalf("error alerts after two bad cycles = %d, want 1", got)
	}
	if got := testutil.ToFloat64(h.metrics.ConfigFallbacks); got != 2 {
		t.Errorf("config_fallbacks_total = %v, want 2", got)
	}

	write("FILTERS:\n  vwap_deviation_atr: 2.5\n")
	h.runner.RunOnce(context.Background())
	write("FILTERS: [not, a, map")
	h.runner.RunOnce(context.Background())
	if got := errorAlerts(); got != 2 {
		t.Errorf("error alerts after recovery and a new failure = %d, want 2", got)
	}
}

func TestRunOnce_CachesAndPrunes(t *testing.T) {
	bars := trendingBars(40)
	h := newHarness(t, bars, model.SideNone)
	cache := &fakeCache{}
	h.runner.deps.Cache = cache
	h.runner.cfg.CacheRetention = 24 * time.Hour

	if _, err := h.runner.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if cache.upserts != 40 {
		t.Errorf("cached %d bars, want 40", cache.upserts)
	}
	want := h.runner.deps.Now().Add(-24 * time.Hour)
	if !cache.pruned.Equal(want) {
		t.Errorf("pruned before %v, want %v", cache.pruned, want)
	}
}

func TestRunOnce_NewBarAfterDuplicate(t *testing.T) {
	bars := trendingBars(41)
	h := newHarness(t, bars[:40], model.SideLong)

	if _, err := h.runner.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.source.bars = bars
	h.runner.deps.Now = afterClose(bars)

	res, err := h.runner.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != metrics.OutcomeSignal || !h.strategy.last.TS.Equal(bars[40].TS) {
		t.Errorf("result = %+v, want signal on the new bar", res)
	}
	if len(h.notifier.alerts) != 2 {
		t.Errorf("alerts = %d, want 2", len(h.notifier.alerts))
	}
}

func TestRunOnce_WithBreakout(t *testing.T) {
	bars := trendingBars(60)
	store := dedup.NewMemoryStore()
	r := New(Config{
		Symbol:     "USDJPY=X",
		Interval:   interval,
		ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"),
	}, Deps{
		Source:   &fakeSource{bars: bars},
		Strategy: strategy.NewBreakout(""),
		Gate:     dedup.NewGate(store),
		Notifier: &recordingNotifier{},
		Now:      afterClose(bars),
	})

	res, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Outcome != metrics.OutcomeSignal && res.Outcome != metrics.OutcomeNoSignal {
		t.Errorf("outcome = %s", res.Outcome)
	}
	if r.Meta().Strategy != "Breakout" || r.Meta().Timeframe != "15m" {
		t.Errorf("meta = %+v", r.Meta())
	}
	if store.Saves() != 1 {
		t.Errorf("saves = %d", store.Saves())
	}
}
