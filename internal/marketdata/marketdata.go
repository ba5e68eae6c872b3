// Package marketdata supplies closed OHLC bars to the evaluation cycle:
// the Yahoo chart API for live runs and CSV/Parquet files for offline runs.
package marketdata

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"fxsignal/internal/model"
)

// ClosedOnly drops trailing bars that have not closed by now. Feeds return
// the forming bar last; its values change until the interval elapses.
func ClosedOnly(bars []model.Bar, interval time.Duration, now time.Time) []model.Bar {
	n := len(bars)
	for n > 0 && bars[n-1].TS.Add(interval).After(now) {
		n--
	}
	return bars[:n]
}

// Normalize sorts bars by timestamp, drops invalid rows and keeps the last
// occurrence of a duplicated timestamp.
func Normalize(bars []model.Bar) []model.Bar {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].TS.Before(bars[j].TS) })
	out := bars[:0]
	for _, b := range bars {
		if !b.Valid() {
			continue
		}
		if len(out) > 0 && out[len(out)-1].TS.Equal(b.TS) {
			out[len(out)-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

// Since keeps bars at or after from.
func Since(bars []model.Bar, from time.Time) []model.Bar {
	i := sort.Search(len(bars), func(i int) bool { return !bars[i].TS.Before(from) })
	return bars[i:]
}

// FormatInterval renders a bar interval the way chart APIs expect it
// ("15m", "1h", "1d").
func FormatInterval(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	case d >= time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	default:
		return fmt.Sprintf("%dm", d/time.Minute)
	}
}

// ParseInterval accepts "15m", "1h", "1d" or any time.ParseDuration string.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if strings.HasSuffix(s, "d") {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err != nil || days <= 0 {
			return 0, fmt.Errorf("bad interval %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("bad interval %q", s)
	}
	return d, nil
}
