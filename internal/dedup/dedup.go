// Package dedup guarantees one decision per closed bar.
//
// The Gate compares the latest bar timestamp against the persisted
// ProcessingState. Idle (no stored timestamp) lets any bar through;
// Evaluated(ts) blocks ts and anything older.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fxsignal/internal/markethours"
	"fxsignal/internal/model"
)

// Key renders a bar timestamp the way it is persisted: RFC3339 in JST.
func Key(ts time.Time) string {
	return ts.In(markethours.JST).Format(time.RFC3339)
}

// Gate is the bar dedup state machine over a StateStore.
type Gate struct {
	store model.StateStore
}

// NewGate creates a gate backed by store.
func NewGate(store model.StateStore) *Gate {
	return &Gate{store: store}
}

// Seen reports whether ts has already been evaluated. A load error is
// returned as-is; callers must not treat it as Idle.
func (g *Gate) Seen(ctx context.Context, ts time.Time) (bool, error) {
	st, err := g.store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load state: %w", err)
	}
	return covered(st.LastTimestamp, ts), nil
}

// Mark records ts as the last evaluated bar.
func (g *Gate) Mark(ctx context.Context, ts time.Time) error {
	if err := g.store.Save(ctx, model.ProcessingState{LastTimestamp: Key(ts)}); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Last returns the stored timestamp, empty when Idle.
func (g *Gate) Last(ctx context.Context) (string, error) {
	st, err := g.store.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("load state: %w", err)
	}
	return st.LastTimestamp, nil
}

// covered reports whether the stored marker already covers ts. Unparseable
// markers fall back to exact string comparison.
func covered(stored string, ts time.Time) bool {
	if stored == "" {
		return false
	}
	last, err := time.Parse(time.RFC3339, stored)
	if err != nil {
		return stored == Key(ts)
	}
	return !ts.After(last)
}

// MemoryStore is an in-process StateStore for tests and dry runs.
type MemoryStore struct {
	mu    sync.RWMutex
	state model.ProcessingState
	saves int
}

// NewMemoryStore creates an Idle in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the stored state.
func (s *MemoryStore) Load(_ context.Context) (model.ProcessingState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, nil
}

// Save replaces the stored state.
func (s *MemoryStore) Save(_ context.Context, st model.ProcessingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	s.saves++
	return nil
}

// Saves returns how many times Save was called.
func (s *MemoryStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
