package marketdata

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"fxsignal/internal/model"
)

// fileBar is the on-disk row layout shared by CSV and Parquet files.
// t is the bar open time in Unix milliseconds.
type fileBar struct {
	T int64   `parquet:"t"`
	O float64 `parquet:"o"`
	H float64 `parquet:"h"`
	L float64 `parquet:"l"`
	C float64 `parquet:"c"`
	V float64 `parquet:"v,optional"`
}

var csvHeader = []string{"t", "o", "h", "l", "c", "v"}

func (r fileBar) bar() model.Bar {
	return model.Bar{
		TS:        time.UnixMilli(r.T).UTC(),
		Open:      r.O,
		High:      r.H,
		Low:       r.L,
		Close:     r.C,
		Volume:    r.V,
		HasVolume: r.V > 0,
	}
}

func toFileBar(b model.Bar) fileBar {
	return fileBar{T: b.TS.UnixMilli(), O: b.Open, H: b.High, L: b.Low, C: b.Close, V: b.Volume}
}

// FileSource replays bars from a CSV or Parquet file. The whole file is
// read on every Fetch, so edits between cycles are picked up.
type FileSource struct {
	path string
	read func(path string) ([]fileBar, error)
}

// NewFileSource picks the reader from the file extension (.csv, .parquet).
func NewFileSource(path string) (*FileSource, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return &FileSource{path: path, read: readCSV}, nil
	case ".parquet":
		return &FileSource{path: path, read: readParquet}, nil
	default:
		return nil, fmt.Errorf("file source: unsupported extension %q", filepath.Ext(path))
	}
}

// Fetch returns the bars within req.Lookback of the last bar in the file.
// A missing or empty file is (nil, nil).
func (f *FileSource) Fetch(_ context.Context, req model.BarRequest) ([]model.Bar, error) {
	if _, err := os.Stat(f.path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	rows, err := f.read(f.path)
	if err != nil {
		return nil, fmt.Errorf("file source %s: %w", f.path, err)
	}
	bars := make([]model.Bar, len(rows))
	for i, r := range rows {
		bars[i] = r.bar()
	}
	bars = Normalize(bars)
	if len(bars) == 0 {
		return nil, nil
	}
	if req.Lookback > 0 {
		bars = Since(bars, bars[len(bars)-1].TS.Add(-req.Lookback))
	}
	return bars, nil
}

func readParquet(path string) ([]fileBar, error) {
	return parquet.ReadFile[fileBar](path)
}

func readCSV(path string) ([]fileBar, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	r := csv.NewReader(fh)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range csvHeader[:5] {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("csv: missing column %q", name)
		}
	}

	var rows []fileBar
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row, err := parseRecord(rec, col)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRecord(rec []string, col map[string]int) (fileBar, error) {
	get := func(name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	var row fileBar
	var err error
	if row.T, err = strconv.ParseInt(get("t"), 10, 64); err != nil {
		return row, fmt.Errorf("t: %w", err)
	}
	for _, f := range []struct {
		name string
		dst  *float64
	}{{"o", &row.O}, {"h", &row.H}, {"l", &row.L}, {"c", &row.C}} {
		if *f.dst, err = strconv.ParseFloat(get(f.name), 64); err != nil {
			return row, fmt.Errorf("%s: %w", f.name, err)
		}
	}
	if v := get("v"); v != "" {
		if row.V, err = strconv.ParseFloat(v, 64); err != nil {
			return row, fmt.Errorf("v: %w", err)
		}
	}
	return row, nil
}

// WriteFile saves bars as CSV or Parquet depending on the extension.
func WriteFile(path string, bars []model.Bar) error {
	rows := make([]fileBar, len(bars))
	for i, b := range bars {
		rows[i] = toFileBar(b)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return parquet.WriteFile(path, rows)
	case ".csv":
		return writeCSV(path, rows)
	default:
		return fmt.Errorf("write bars: unsupported extension %q", filepath.Ext(path))
	}
}

func writeCSV(path string, rows []fileBar) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(fh)
	if err := w.Write(csvHeader); err != nil {
		fh.Close()
		return err
	}
	for _, r := range rows {
		if err := w.Write([]string{
			strconv.FormatInt(r.T, 10),
			floatStr(r.O),
			floatStr(r.H),
			floatStr(r.L),
			floatStr(r.C),
			floatStr(r.V),
		}); err != nil {
			fh.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

func floatStr(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
