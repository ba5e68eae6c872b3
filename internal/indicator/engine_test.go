package indicator

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	talib "github.com/markcheno/go-talib"

	"fxsignal/internal/model"
)

var seriesStart = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

// randomBars builds a deterministic 15m random walk around 150.
func randomBars(n int, seed int64) []model.Bar {
	rng := rand.New(rand.NewSource(seed))
	bars := make([]model.Bar, n)
	price := 150.0
	for i := range bars {
		open := price
		price += rng.NormFloat64() * 0.04
		hi := math.Max(open, price) + rng.Float64()*0.03
		lo := math.Min(open, price) - rng.Float64()*0.03
		bars[i] = model.Bar{
			TS:    seriesStart.Add(time.Duration(i) * 15 * time.Minute),
			Open:  open,
			High:  hi,
			Low:   lo,
			Close: price,
		}
	}
	return bars
}

func sameFloat(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return a == b
}

func sameRow(a, b model.EnrichedBar) bool {
	return a.TS.Equal(b.TS) &&
		sameFloat(a.TR, b.TR) && sameFloat(a.ATR14, b.ATR14) &&
		sameFloat(a.EMA9, b.EMA9) && sameFloat(a.EMA20, b.EMA20) &&
		sameFloat(a.MACD, b.MACD) && sameFloat(a.MACDSig, b.MACDSig) &&
		sameFloat(a.RSI14, b.RSI14) &&
		sameFloat(a.DonHigh, b.DonHigh) && sameFloat(a.DonLow, b.DonLow) &&
		sameFloat(a.VWAP, b.VWAP) && sameFloat(a.ATRQuantile, b.ATRQuantile) &&
		a.H1Long == b.H1Long && a.H1Short == b.H1Short &&
		a.VolOK == b.VolOK && a.ATRTopOK == b.ATRTopOK && a.Ready == b.Ready
}

func TestEngine_NoLookAhead(t *testing.T) {
	bars := randomBars(1500, 1)
	p := DefaultParams()
	full := NewEngine(p.BarInterval).Feed(bars, p)

	for _, k := range []int{30, 700, 1200} {
		prefix := NewEngine(p.BarInterval).Feed(bars[:k], p)
		if len(prefix) != k {
			t.Fatalf("prefix %d: got %d rows", k, len(prefix))
		}
		for i := 0; i < k; i++ {
			if !sameRow(prefix[i], full[i]) {
				t.Fatalf("row %d differs when history is cut at %d:\n prefix=%+v\n full=%+v", i, k, prefix[i], full[i])
			}
		}
	}
}

func TestEngine_IncrementalFeedMatchesOneShot(t *testing.T) {
	bars := randomBars(900, 2)
	p := DefaultParams()
	full := NewEngine(p.BarInterval).Feed(bars, p)

	e := NewEngine(p.BarInterval)
	e.Feed(bars[:600], p)
	// overlapping input: only bars after the last fed one are folded
	rest := e.Feed(bars, p)
	if len(rest) != 300 {
		t.Fatalf("incremental feed folded %d bars, want 300", len(rest))
	}
	for j, row := range rest {
		if !sameRow(row, full[600+j]) {
			t.Fatalf("row %d differs between incremental and one-shot folds", 600+j)
		}
	}

	if again := e.Feed(bars, p); len(again) != 0 {
		t.Errorf("re-feeding the same bars folded %d rows, want 0", len(again))
	}
	latest, ok := e.Latest()
	if !ok || !latest.TS.Equal(bars[len(bars)-1].TS) {
		t.Errorf("Latest() = %v (ok=%v), want last bar", latest.TS, ok)
	}
}

func TestEngine_DonchianIsShiftedByOne(t *testing.T) {
	bars := randomBars(200, 3)
	p := DefaultParams()
	rows := NewEngine(p.BarInterval).Feed(bars, p)

	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	for i, b := range bars {
		highs[i], lows[i] = b.High, b.Low
	}
	maxH := talib.Max(highs, DonchianPeriod)
	minL := talib.Min(lows, DonchianPeriod)

	for i := DonchianPeriod; i < len(rows); i++ {
		assertClose(t, "donHigh", rows[i].DonHigh, maxH[i-1], 1e-12)
		assertClose(t, "donLow", rows[i].DonLow, minL[i-1], 1e-12)
	}
	if rows[DonchianPeriod-1].Ready {
		t.Errorf("row %d must not be ready (only %d prior bars)", DonchianPeriod-1, DonchianPeriod-1)
	}
	if !rows[DonchianPeriod].Ready {
		t.Errorf("row %d must be ready", DonchianPeriod)
	}
}

func TestEngine_TrueRangeMatchesTalib(t *testing.T) {
	bars := randomBars(100, 4)
	p := DefaultParams()
	rows := NewEngine(p.BarInterval).Feed(bars, p)

	h := make([]float64, len(bars))
	l := make([]float64, len(bars))
	c := make([]float64, len(bars))
	for i, b := range bars {
		h[i], l[i], c[i] = b.High, b.Low, b.Close
	}
	want := talib.TRange(h, l, c)

	assertClose(t, "first TR", rows[0].TR, bars[0].High-bars[0].Low, 1e-12)
	for i := 1; i < len(rows); i++ {
		assertClose(t, "TR", rows[i].TR, want[i], 1e-12)
	}
}

func TestEngine_RangeInvariants(t *testing.T) {
	bars := randomBars(2000, 5)
	p := DefaultParams()
	for i, row := range NewEngine(p.BarInterval).Feed(bars, p) {
		if row.ATR14 < 0 {
			t.Fatalf("row %d: ATR14 = %f < 0", i, row.ATR14)
		}
		if row.Ready && (row.RSI14 < 0 || row.RSI14 > 100) {
			t.Fatalf("row %d: RSI14 = %f outside [0,100]", i, row.RSI14)
		}
		if row.H1Long && row.H1Short {
			t.Fatalf("row %d: both H1 flags set with alignment on", i)
		}
	}
}

func TestEngine_ATRTopQuantileWarmup(t *testing.T) {
	bars := randomBars(800, 6)
	p := DefaultParams()
	rows := NewEngine(p.BarInterval).Feed(bars, p)
	minPeriods := ATRQuantileMinDays * BarsPerDay(p.BarInterval)

	for i := 0; i < minPeriods-1; i++ {
		if !math.IsInf(rows[i].ATRQuantile, 1) || !rows[i].ATRTopOK {
			t.Fatalf("row %d: quantile %v must be +Inf and pass before warm-up", i, rows[i].ATRQuantile)
		}
	}
	last := rows[len(rows)-1]
	if math.IsInf(last.ATRQuantile, 1) {
		t.Fatal("quantile must be finite after warm-up")
	}
	if last.ATRTopOK != (last.ATR14 <= last.ATRQuantile) {
		t.Errorf("ATRTopOK=%v inconsistent with atr=%f q=%f", last.ATRTopOK, last.ATR14, last.ATRQuantile)
	}
}

func TestEngine_H1AlignmentDisabled(t *testing.T) {
	bars := randomBars(100, 8)
	p := DefaultParams()
	p.H1Alignment = false
	for i, row := range NewEngine(p.BarInterval).Feed(bars, p) {
		if !row.H1Long || !row.H1Short {
			t.Fatalf("row %d: flags must both be true when alignment is off", i)
		}
	}
}

func TestEngine_VolOKNeedsFullWindows(t *testing.T) {
	bars := randomBars(40, 9)
	p := DefaultParams()
	p.VolumeConfirmRatio = 0 // any full window passes
	rows := NewEngine(p.BarInterval).Feed(bars, p)
	for i := 0; i < VolSlowPeriod-1; i++ {
		if rows[i].VolOK {
			t.Fatalf("row %d: VolOK before the median window is full", i)
		}
	}
	if !rows[len(rows)-1].VolOK {
		t.Error("VolOK must hold with ratio 0 once windows are full")
	}
}

func TestEngine_SkipsInvalidAndStaleBars(t *testing.T) {
	bars := randomBars(5, 10)
	bad := bars[2]
	bad.High, bad.Low = bad.Low-1, bad.High+1
	input := []model.Bar{bars[0], bars[1], bad, bars[1], bars[3]}

	p := DefaultParams()
	e := NewEngine(p.BarInterval)
	rows := e.Feed(input, p)
	if len(rows) != 3 {
		t.Fatalf("folded %d rows, want 3 (invalid and duplicate skipped)", len(rows))
	}
	if e.Fed() != 3 || !e.LastTS().Equal(bars[3].TS) {
		t.Errorf("Fed()=%d LastTS()=%v", e.Fed(), e.LastTS())
	}
}

func TestEngine_SkipsNonFiniteBars(t *testing.T) {
	bars := randomBars(300, 12)
	bars[100].High = math.NaN()
	bars[150].Close = math.Inf(1)
	bars[200].Low = math.Inf(-1)

	p := DefaultParams()
	e := NewEngine(p.BarInterval)
	rows := e.Feed(bars, p)
	if len(rows) != 297 {
		t.Fatalf("folded %d rows, want 297 (three non-finite bars dropped)", len(rows))
	}
	for _, r := range rows {
		if r.Ready && (math.IsNaN(r.ATR14) || math.IsNaN(r.TR) || math.IsNaN(r.RSI14) || math.IsNaN(r.VWAP)) {
			t.Fatalf("row %v has a NaN derived field after non-finite input", r.TS)
		}
	}
	last, _ := e.Latest()
	if !last.Ready || last.ATR14 <= 0 {
		t.Errorf("last row ready=%v ATR14=%v, want a usable ATR", last.Ready, last.ATR14)
	}
}

func TestEngine_IntervalChangeResets(t *testing.T) {
	p := DefaultParams()
	e := NewEngine(p.BarInterval)
	e.Feed(randomBars(50, 11), p)

	p.BarInterval = time.Hour
	hourly := []model.Bar{{TS: seriesStart, Open: 150, High: 150.1, Low: 149.9, Close: 150}}
	rows := e.Feed(hourly, p)
	if len(rows) != 1 || e.Fed() != 1 || e.Interval() != time.Hour {
		t.Errorf("interval change: rows=%d fed=%d interval=%v", len(rows), e.Fed(), e.Interval())
	}
}

type fakeBarReader struct {
	bars  []model.Bar
	err   error
	after time.Time
}

func (f *fakeBarReader) ReadBars(_ context.Context, _ string, after time.Time) ([]model.Bar, error) {
	f.after = after
	return f.bars, f.err
}

func TestRestorer_Warm(t *testing.T) {
	bars := randomBars(60, 12)
	p := DefaultParams()
	now := bars[len(bars)-1].TS.Add(15 * time.Minute)

	r := NewRestorer("USDJPY=X", 24*time.Hour)
	e := NewEngine(p.BarInterval)
	reader := &fakeBarReader{bars: bars}
	if n := r.Warm(context.Background(), e, reader, p, now); n != 60 {
		t.Errorf("Warm folded %d bars, want 60", n)
	}
	if !reader.after.Equal(now.Add(-24 * time.Hour)) {
		t.Errorf("read after %v, want %v", reader.after, now.Add(-24*time.Hour))
	}

	cold := NewEngine(p.BarInterval)
	if n := r.Warm(context.Background(), cold, &fakeBarReader{err: errors.New("boom")}, p, now); n != 0 || cold.Fed() != 0 {
		t.Errorf("read error must cold start, folded %d", n)
	}
	if n := r.Warm(context.Background(), cold, nil, p, now); n != 0 {
		t.Errorf("nil reader folded %d", n)
	}
}
