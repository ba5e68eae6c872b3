package redis

import (
	"context"
	"os"
	"testing"

	"fxsignal/internal/model"
)

// Requires a live server: REDIS_ADDR=localhost:6379 go test ./internal/store/redis
func TestStateStore_RoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	s, err := New(Config{Addr: addr, Key: "fxsignal:test:" + t.Name()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	defer s.Client().Del(ctx, s.Key())

	st, err := s.Load(ctx)
	if err != nil || st.LastTimestamp != "" {
		t.Fatalf("missing key: %+v, %v", st, err)
	}
	want := model.ProcessingState{LastTimestamp: "2026-03-10T14:00:00+09:00"}
	if err := s.Save(ctx, want); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(ctx)
	if err != nil || got != want {
		t.Errorf("Load = %+v, %v; want %+v", got, err, want)
	}
}

func TestNewWithClient_DefaultKey(t *testing.T) {
	s := NewWithClient(nil, "", "USDJPY=X")
	if s.Key() != "fxsignal:state:USDJPY=X" {
		t.Errorf("Key() = %q", s.Key())
	}
	if s.Breaker() == nil || s.Breaker().CurrentState() != StateClosed {
		t.Error("new store should start with a closed breaker")
	}
}
