package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSchedule_OncePerBar(t *testing.T) {
	start := time.Date(2026, 3, 10, 5, 7, 0, 0, time.UTC)
	s := &schedule{interval: 15 * time.Minute}
	s.ran(start)

	tests := []struct {
		at   time.Time
		want bool
	}{
		{start.Add(30 * time.Second), false},                    // mid-bar
		{time.Date(2026, 3, 10, 5, 15, 0, 0, time.UTC), true},   // bar close
		{time.Date(2026, 3, 10, 5, 15, 30, 0, time.UTC), false}, // same boundary minute
		{time.Date(2026, 3, 10, 5, 16, 0, 0, time.UTC), false},
		{time.Date(2026, 3, 10, 5, 30, 10, 0, time.UTC), true},
	}
	for _, tt := range tests {
		if got := s.due(tt.at); got != tt.want {
			t.Errorf("due(%s) = %v, want %v", tt.at.Format("15:04:05"), got, tt.want)
		}
	}
}

func TestSchedule_StartOnBoundary(t *testing.T) {
	start := time.Date(2026, 3, 10, 5, 0, 5, 0, time.UTC)
	s := &schedule{interval: 15 * time.Minute}
	s.ran(start)

	if s.due(start.Add(30 * time.Second)) {
		t.Error("tick in the start minute must not rerun the startup cycle")
	}
	if !s.due(time.Date(2026, 3, 10, 5, 15, 20, 0, time.UTC)) {
		t.Error("next bar close should run")
	}
}

func TestOpenCache_BadDirectory(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := openCache(filepath.Join(blocker, "data", "fxsignal.db"))
	if err == nil || !strings.Contains(err.Error(), "sqlite dir") {
		t.Errorf("err = %v, want a directory error", err)
	}
}

func TestOpenCache_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "fxsignal.db")
	cache, err := openCache(path)
	if err != nil {
		t.Fatalf("openCache: %v", err)
	}
	defer cache.Close()
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("directory not created: %v", err)
	}
}
