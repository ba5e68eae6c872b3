// Package sqlite persists the processing marker and a closed-bar cache in a
// single WAL-mode SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"fxsignal/internal/model"
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/fxsignal.db"
}

// Store is a single-writer SQLite store. It satisfies model.StateStore and
// model.BarCache.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database with WAL mode and creates the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol     TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			volume     REAL,
			PRIMARY KEY (symbol, ts)
		);

		CREATE TABLE IF NOT EXISTS processing_state (
			id             INTEGER PRIMARY KEY CHECK (id = 1),
			last_timestamp TEXT    NOT NULL,
			updated_at     INTEGER NOT NULL
		);
	`)
	return err
}

// Save replaces the processing marker.
func (s *Store) Save(ctx context.Context, st model.ProcessingState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processing_state (id, last_timestamp, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET last_timestamp = excluded.last_timestamp, updated_at = excluded.updated_at
	`, st.LastTimestamp, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite save state: %w", err)
	}
	return nil
}

// UpsertBars inserts bars in a single transaction, replacing rows with the
// same timestamp.
func (s *Store) UpsertBars(ctx context.Context, symbol string, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		var vol sql.NullFloat64
		if b.HasVolume {
			vol = sql.NullFloat64{Float64: b.Volume, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, symbol, b.TS.Unix(), b.Open, b.High, b.Low, b.Close, vol); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite upsert bar: %w", err)
		}
	}

	return tx.Commit()
}

// PruneBars deletes cached bars older than before. Returns rows removed.
func (s *Store) PruneBars(ctx context.Context, symbol string, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bars WHERE symbol = ? AND ts < ?`, symbol, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("sqlite prune bars: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
