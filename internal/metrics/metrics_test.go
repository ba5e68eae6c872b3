package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCycle(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveCycle(OutcomeSignal, 120*time.Millisecond)
	m.ObserveCycle(OutcomeNoSignal, 80*time.Millisecond)
	m.ObserveCycle(OutcomeNoSignal, 80*time.Millisecond)

	if got := testutil.ToFloat64(m.CyclesTotal.WithLabelValues(OutcomeNoSignal)); got != 2 {
		t.Errorf("no_signal cycles = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(m.CycleDuration); got != 1 {
		t.Errorf("histogram series = %d, want 1", got)
	}
}

func TestNewMetrics_SeparateRegistries(t *testing.T) {
	// Registering twice on fresh registries must not panic.
	NewMetrics(prometheus.NewRegistry())
	NewMetrics(prometheus.NewRegistry())
}

func TestServer_ServesMetricsAndHealth(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.SignalsTotal.WithLabelValues("LONG").Inc()

	health := NewHealthStatus("USDJPY=X", "file", time.Hour)
	health.RecordCycle(OutcomeSignal, time.Date(2026, 3, 10, 5, 0, 0, 0, time.UTC))
	srv := NewServer(":0", health, reg)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `fxsignal_signals_total{side="LONG"} 1`) {
		t.Errorf("metrics body missing signal counter:\n%s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
	var body map[string]any
	json.NewDecoder(rec.Body).Decode(&body)
	if body["status"] != "healthy" || body["last_outcome"] != OutcomeSignal {
		t.Errorf("healthz body = %v", body)
	}
}

func TestHealth_DegradedWhenStateFails(t *testing.T) {
	health := NewHealthStatus("USDJPY=X", "redis", 0)
	health.CheckState(context.Background(), func(context.Context) error { return errors.New("down") })

	rec := httptest.NewRecorder()
	health.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestHealth_DegradedWhenStale(t *testing.T) {
	health := NewHealthStatus("USDJPY=X", "file", time.Millisecond)
	health.StartedAt = time.Now().Add(-time.Minute)

	rec := httptest.NewRecorder()
	health.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 for a bot with no recent cycle", rec.Code)
	}
}
