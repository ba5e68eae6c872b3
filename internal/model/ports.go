package model

import (
	"context"
	"time"
)

// ── Ports ──
// These interfaces decouple the evaluation cycle from concrete adapters
// (Yahoo, files, SQLite, Redis). Each adapter satisfies one or more of them.

// BarRequest describes one market-data fetch.
type BarRequest struct {
	Symbol   string
	Interval time.Duration
	Lookback time.Duration
}

// BarSource supplies an ordered bar sequence for one instrument.
type BarSource interface {
	// Fetch returns bars ordered by timestamp. An empty result with a nil
	// error means "no data this cycle".
	Fetch(ctx context.Context, req BarRequest) ([]Bar, error)
}

// BarCache stores closed bars so the indicator engine can be warmed on start.
type BarCache interface {
	// UpsertBars writes bars keyed by timestamp.
	UpsertBars(ctx context.Context, symbol string, bars []Bar) error

	// ReadBars returns cached bars after the given time, oldest first.
	ReadBars(ctx context.Context, symbol string, after time.Time) ([]Bar, error)
}

// StateStore reads and writes the processing marker wholesale.
type StateStore interface {
	// Load returns the stored state. A missing state is the zero value, not an error.
	Load(ctx context.Context) (ProcessingState, error)

	// Save replaces the stored state.
	Save(ctx context.Context, st ProcessingState) error
}
