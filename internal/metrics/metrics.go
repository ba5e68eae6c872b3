package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle outcomes recorded under cycles_total{outcome}.
const (
	OutcomeSignal      = "signal"
	OutcomeNoSignal    = "no_signal"
	OutcomeDuplicate   = "duplicate"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

// Metrics holds all Prometheus metrics for the signal bot.
type Metrics struct {
	CyclesTotal     *prometheus.CounterVec // labels: outcome
	SignalsTotal    *prometheus.CounterVec // labels: side
	RejectionsTotal *prometheus.CounterVec // labels: reason
	NotifyErrors    prometheus.Counter
	CycleDuration   prometheus.Histogram
	LastBarTS       prometheus.Gauge
	ConfigFallbacks prometheus.Counter

	// Persistence
	StateBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	FoldedBars        prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fxsignal_cycles_total",
			Help: "Evaluation cycles by outcome",
		}, []string{"outcome"}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fxsignal_signals_total",
			Help: "Signals emitted by side",
		}, []string{"side"}),
		RejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fxsignal_rejections_total",
			Help: "Evaluated bars without a signal, by first failing reason",
		}, []string{"reason"}),
		NotifyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fxsignal_notify_errors_total",
			Help: "Alerts that failed to deliver",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fxsignal_cycle_duration_seconds",
			Help:    "Wall time of one evaluation cycle",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		LastBarTS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fxsignal_last_bar_timestamp_seconds",
			Help: "Open time of the last evaluated bar (unix seconds)",
		}),
		ConfigFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fxsignal_config_fallbacks_total",
			Help: "Cycles that ran on default filters because the config document was invalid",
		}),
		StateBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fxsignal_state_circuit_breaker_state",
			Help: "Redis state store circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		FoldedBars: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fxsignal_folded_bars",
			Help: "Bars folded into the indicator engine",
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.SignalsTotal,
		m.RejectionsTotal,
		m.NotifyErrors,
		m.CycleDuration,
		m.LastBarTS,
		m.ConfigFallbacks,
		m.StateBreakerState,
		m.FoldedBars,
	)

	return m
}

// ObserveCycle records the outcome and wall time of one cycle.
func (m *Metrics) ObserveCycle(outcome string, d time.Duration) {
	m.CyclesTotal.WithLabelValues(outcome).Inc()
	m.CycleDuration.Observe(d.Seconds())
}

// HealthStatus represents the bot's health as served on /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	Symbol      string    `json:"symbol"`
	Backend     string    `json:"state_backend"`
	StateOK     bool      `json:"state_ok"`
	LastCycleAt time.Time `json:"last_cycle_at"`
	LastBarTS   time.Time `json:"last_bar_ts"`
	LastOutcome string    `json:"last_outcome"`

	StateLatencyMs float64   `json:"state_latency_ms"`
	LastCheckAt    time.Time `json:"last_check_at"`
	StartedAt      time.Time `json:"started_at"`

	// staleAfter marks the bot degraded when no cycle completed for this long.
	staleAfter time.Duration
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(symbol, backend string, staleAfter time.Duration) *HealthStatus {
	return &HealthStatus{
		Symbol:     symbol,
		Backend:    backend,
		StateOK:    true,
		StartedAt:  time.Now(),
		staleAfter: staleAfter,
	}
}

// RecordCycle stores the latest cycle result.
func (h *HealthStatus) RecordCycle(outcome string, barTS time.Time) {
	h.mu.Lock()
	h.LastCycleAt = time.Now()
	h.LastOutcome = outcome
	if !barTS.IsZero() {
		h.LastBarTS = barTS
	}
	h.mu.Unlock()
}

// CheckState runs ping against the state backend and records latency + health.
func (h *HealthStatus) CheckState(ctx context.Context, ping func(context.Context) error) {
	start := time.Now()
	err := ping(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.StateOK = err == nil
	h.StateLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic state-backend checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, ping func(context.Context) error, interval time.Duration) {
	if ping == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				h.CheckState(checkCtx, ping)
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	stale := h.staleAfter > 0 && time.Since(h.lastActivity()) > h.staleAfter
	if !h.StateOK || stale || h.LastOutcome == "error" {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	status := struct {
		Status         string  `json:"status"`
		Uptime         string  `json:"uptime"`
		Symbol         string  `json:"symbol"`
		Backend        string  `json:"state_backend"`
		StateOK        bool    `json:"state_ok"`
		StateLatencyMs float64 `json:"state_latency_ms"`
		LastCycleAt    string  `json:"last_cycle_at"`
		LastBarTS      string  `json:"last_bar_ts"`
		LastOutcome    string  `json:"last_outcome"`
		LastCheckAt    string  `json:"last_check_at"`
	}{
		Status:         overallStatus,
		Uptime:         time.Since(h.StartedAt).Round(time.Second).String(),
		Symbol:         h.Symbol,
		Backend:        h.Backend,
		StateOK:        h.StateOK,
		StateLatencyMs: h.StateLatencyMs,
		LastCycleAt:    h.LastCycleAt.Format(time.RFC3339),
		LastBarTS:      h.LastBarTS.Format(time.RFC3339),
		LastOutcome:    h.LastOutcome,
		LastCheckAt:    h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

func (h *HealthStatus) lastActivity() time.Time {
	if h.LastCycleAt.IsZero() {
		return h.StartedAt
	}
	return h.LastCycleAt
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server. A nil gatherer serves the
// default registry.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
