package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fxsignal/internal/model"
)

// Load returns the processing marker; an empty table is the zero state.
func (s *Store) Load(ctx context.Context) (model.ProcessingState, error) {
	var st model.ProcessingState
	err := s.db.QueryRowContext(ctx, `SELECT last_timestamp FROM processing_state WHERE id = 1`).Scan(&st.LastTimestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ProcessingState{}, nil
	}
	if err != nil {
		return model.ProcessingState{}, fmt.Errorf("sqlite load state: %w", err)
	}
	return st, nil
}

// ReadBars returns cached bars strictly after the given time, ordered by
// timestamp ascending for correct replay order.
func (s *Store) ReadBars(ctx context.Context, symbol string, after time.Time) ([]model.Bar, error) {
	afterTS := int64(-1 << 62)
	if !after.IsZero() {
		afterTS = after.Unix()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND ts > ?
		ORDER BY ts ASC
	`, symbol, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var tsUnix int64
		var vol sql.NullFloat64
		if err := rows.Scan(&tsUnix, &b.Open, &b.High, &b.Low, &b.Close, &vol); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.TS = time.Unix(tsUnix, 0).UTC()
		b.Volume, b.HasVolume = vol.Float64, vol.Valid
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// LastBarTS returns the newest cached bar time for symbol, zero if none.
func (s *Store) LastBarTS(ctx context.Context, symbol string) (time.Time, error) {
	var ts sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(ts) FROM bars WHERE symbol = ?`, symbol).Scan(&ts); err != nil {
		return time.Time{}, fmt.Errorf("sqlite last bar: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(ts.Int64, 0).UTC(), nil
}
