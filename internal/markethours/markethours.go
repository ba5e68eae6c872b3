// Package markethours converts bar timestamps into the reference clocks the
// strategy cares about: Tokyo time-of-day for trading windows and the
// New York 17:00 rollover for VWAP sessions.
package markethours

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// JST is the reference zone for trading windows and alert timestamps.
var JST = mustLoad("Asia/Tokyo")

// NewYork is the zone whose 17:00 close starts a new FX session.
var NewYork = mustLoad("America/New_York")

// SessionResetHour is the New York hour at which VWAP accumulation restarts.
const SessionResetHour = 17

const minutesPerDay = 24 * 60

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("markethours: load %s: %v", name, err))
	}
	return loc
}

// Window is an inclusive minute-of-day range. End < Start wraps past midnight.
type Window struct {
	Start int
	End   int
}

// ParseWindow parses "HH:MM-HH:MM".
func ParseWindow(s string) (Window, error) {
	start, end, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Window{}, fmt.Errorf("window %q: missing '-'", s)
	}
	sm, err := parseHHMM(start)
	if err != nil {
		return Window{}, fmt.Errorf("window %q: %w", s, err)
	}
	em, err := parseHHMM(end)
	if err != nil {
		return Window{}, fmt.Errorf("window %q: %w", s, err)
	}
	return Window{Start: sm, End: em}, nil
}

func parseHHMM(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("bad time %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("bad hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minute in %q", s)
	}
	return h*60 + m, nil
}

// Contains reports whether minute-of-day m falls inside the window.
func (w Window) Contains(m int) bool {
	if w.End >= w.Start {
		return m >= w.Start && m <= w.End
	}
	return m >= w.Start || m <= w.End
}

func (w Window) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.Start/60, w.Start%60, w.End/60, w.End%60)
}

// MinuteOfDay returns the wall-clock minute of t in loc.
func MinuteOfDay(t time.Time, loc *time.Location) int {
	lt := t.In(loc)
	return lt.Hour()*60 + lt.Minute()
}

// IsWithinWindows reports whether ts (converted to JST) falls in any of the
// "HH:MM-HH:MM" windows. Malformed windows never match.
func IsWithinWindows(ts time.Time, windows []string) bool {
	m := MinuteOfDay(ts, JST)
	for _, s := range windows {
		w, err := ParseWindow(s)
		if err != nil {
			continue
		}
		if w.Contains(m) {
			return true
		}
	}
	return false
}

// SessionKey identifies the FX session ts belongs to: the New York date of
// ts shifted back by the 17:00 rollover.
func SessionKey(ts time.Time) string {
	return ts.In(NewYork).Add(-SessionResetHour * time.Hour).Format("2006-01-02")
}

// IsBarBoundary reports whether now sits in the first minute of a bar of the
// given interval on the JST clock. The driver uses it to skip sub-interval ticks.
func IsBarBoundary(now time.Time, interval time.Duration) bool {
	step := int(interval / time.Minute)
	if step <= 0 {
		return true
	}
	if step >= minutesPerDay {
		return MinuteOfDay(now, JST) == 0
	}
	return MinuteOfDay(now, JST)%step == 0
}

// NextBarClose returns the next time the current bar of the given interval closes.
func NextBarClose(now time.Time, interval time.Duration) time.Time {
	return now.Truncate(interval).Add(interval)
}

// FormatJST renders ts as "2006-01-02 15:04" in JST.
func FormatJST(ts time.Time) string {
	return ts.In(JST).Format("2006-01-02 15:04")
}
