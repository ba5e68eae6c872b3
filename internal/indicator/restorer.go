package indicator

import (
	"context"
	"log"
	"time"

	"fxsignal/internal/model"
)

// BarReader is the subset of the bar cache needed for warm-up reads.
type BarReader interface {
	ReadBars(ctx context.Context, symbol string, after time.Time) ([]model.Bar, error)
}

// Restorer warms an engine from cached bars on startup so the first live
// cycle does not start the recursive indicators cold.
type Restorer struct {
	symbol   string
	lookback time.Duration
}

// NewRestorer creates a restorer reading at most lookback of cached history.
func NewRestorer(symbol string, lookback time.Duration) *Restorer {
	return &Restorer{symbol: symbol, lookback: lookback}
}

// Warm feeds cached bars newer than now-lookback into the engine and returns
// how many were folded. A nil reader or a read error is a cold start, not a
// failure.
func (r *Restorer) Warm(ctx context.Context, engine *Engine, reader BarReader, p Params, now time.Time) int {
	if reader == nil {
		log.Println("[restorer] no bar cache configured, cold starting indicator engine")
		return 0
	}

	after := time.Time{}
	if r.lookback > 0 {
		after = now.Add(-r.lookback)
	}
	bars, err := reader.ReadBars(ctx, r.symbol, after)
	if err != nil {
		log.Printf("[restorer] WARNING: failed to read cached bars for %s: %v (cold start)", r.symbol, err)
		return 0
	}

	rows := engine.Feed(bars, p)
	if len(rows) > 0 {
		log.Printf("[restorer] ✅ warmed engine with %d cached bars for %s (last=%s)",
			len(rows), r.symbol, engine.LastTS().UTC().Format(time.RFC3339))
	}
	return len(rows)
}
