package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"fxsignal/internal/model"
)

func TestStateStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), ".state.json")
	s := New(path)

	st, err := s.Load(ctx)
	if err != nil || st.LastTimestamp != "" {
		t.Fatalf("missing file: %+v, %v", st, err)
	}

	want := model.ProcessingState{LastTimestamp: "2026-03-10T14:00:00+09:00"}
	if err := s.Save(ctx, want); err != nil {
		t.Fatal(err)
	}
	raw, _ := os.ReadFile(path)
	if string(raw) != `{"lastTimestamp":"2026-03-10T14:00:00+09:00"}` {
		t.Errorf("on-disk form = %s", raw)
	}
	got, err := s.Load(ctx)
	if err != nil || got != want {
		t.Errorf("Load = %+v, %v", got, err)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestStateStore_CorruptFileIsIdle(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".state.json")
	os.WriteFile(path, []byte(`{"lastTimes`), 0o644)
	st, err := New(path).Load(context.Background())
	if err != nil || st.LastTimestamp != "" {
		t.Errorf("corrupt file: %+v, %v", st, err)
	}
}

func TestStateStore_LegacyField(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".state.json")
	os.WriteFile(path, []byte(`{"last_ts":"2026-03-10T14:00:00+09:00"}`), 0o644)
	st, err := New(path).Load(context.Background())
	if err != nil || st.LastTimestamp != "2026-03-10T14:00:00+09:00" {
		t.Errorf("legacy file: %+v, %v", st, err)
	}
}
