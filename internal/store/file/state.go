// Package file keeps the processing marker in a small JSON file.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"fxsignal/internal/model"
)

// StateStore reads and writes {"lastTimestamp": "..."} at path.
type StateStore struct {
	path string
}

// New creates a store at path. The file is created on first Save.
func New(path string) *StateStore {
	return &StateStore{path: path}
}

// Path returns the state file location.
func (s *StateStore) Path() string { return s.path }

// onDisk also accepts the older "last_ts" field.
type onDisk struct {
	LastTimestamp string `json:"lastTimestamp,omitempty"`
	LegacyLastTS  string `json:"last_ts,omitempty"`
}

// Load returns the stored state. A missing or unreadable-as-JSON file is
// the zero state: a torn write only causes the same bar to be evaluated
// again, which the dedup gate tolerates.
func (s *StateStore) Load(_ context.Context) (model.ProcessingState, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return model.ProcessingState{}, nil
	}
	if err != nil {
		return model.ProcessingState{}, fmt.Errorf("read state %s: %w", s.path, err)
	}

	var d onDisk
	if err := json.Unmarshal(data, &d); err != nil {
		slog.Warn("state file is not valid JSON, starting idle", "path", s.path, "error", err)
		return model.ProcessingState{}, nil
	}
	if d.LastTimestamp == "" {
		d.LastTimestamp = d.LegacyLastTS
	}
	return model.ProcessingState{LastTimestamp: d.LastTimestamp}, nil
}

// Save writes the state through a temp file and rename.
func (s *StateStore) Save(_ context.Context, st model.ProcessingState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}
