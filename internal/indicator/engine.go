package indicator

import (
	"math"
	"time"

	"fxsignal/internal/model"
)

// Fixed periods of the derived series.
const (
	ATRPeriod      = 14
	RSIPeriod      = 14
	DonchianPeriod = 20
	VolFastPeriod  = 3
	VolSlowPeriod  = 20

	MACDFast   = 12
	MACDSlow   = 26
	MACDSignal = 9

	H1FastSpan = 50
	H1SlowSpan = 200

	// ATR quantile window and warm-up, in days of bars.
	ATRQuantileDays    = 30
	ATRQuantileMinDays = 7
)

// Params are the per-cycle knobs the fold reads from the filter config.
type Params struct {
	BarInterval        time.Duration
	H1Alignment        bool
	VolumeConfirmRatio float64
	ATRTopSkipPct      float64
}

// DefaultParams returns the params for 15m bars with default filters.
func DefaultParams() Params {
	return Params{
		BarInterval:        15 * time.Minute,
		H1Alignment:        true,
		VolumeConfirmRatio: 1.2,
		ATRTopSkipPct:      0.90,
	}
}

// BarsPerDay returns how many bars of interval fit in 24h (at least 1).
func BarsPerDay(interval time.Duration) int {
	if interval <= 0 {
		return 1
	}
	n := int((24 * time.Hour) / interval)
	if n < 1 {
		return 1
	}
	return n
}

// Engine folds closed bars through every accumulator and emits one
// model.EnrichedBar per new bar. State carries across Feed calls, so a cycle
// only pays for bars it has not seen.
// Not safe for concurrent use.
type Engine struct {
	interval time.Duration

	fed       int
	lastTS    time.Time
	prevClose float64

	atr     *Wilder
	ema9    *EMA
	ema20   *EMA
	ema12   *EMA
	ema26   *EMA
	macdSig *EMA
	rsi     *RSI

	donHigh *Window
	donLow  *Window
	trFast  *Window
	trSlow  *Window

	vwap *SessionVWAP
	h1   *HigherTF
	atrQ *RollingQuantile

	latest    model.EnrichedBar
	hasLatest bool
}

// NewEngine creates an engine for bars of the given interval.
func NewEngine(interval time.Duration) *Engine {
	e := &Engine{}
	e.configure(interval)
	return e
}

func (e *Engine) configure(interval time.Duration) {
	bpd := BarsPerDay(interval)
	e.interval = interval
	e.fed = 0
	e.lastTS = time.Time{}
	e.prevClose = 0

	e.atr = NewATR(ATRPeriod)
	e.ema9 = NewEMA(9)
	e.ema20 = NewEMA(20)
	e.ema12 = NewEMA(MACDFast)
	e.ema26 = NewEMA(MACDSlow)
	e.macdSig = NewEMA(MACDSignal)
	e.rsi = NewRSI(RSIPeriod)

	e.donHigh = NewWindow(DonchianPeriod)
	e.donLow = NewWindow(DonchianPeriod)
	e.trFast = NewWindow(VolFastPeriod)
	e.trSlow = NewWindow(VolSlowPeriod)

	e.vwap = NewSessionVWAP()
	e.h1 = NewHigherTF(time.Hour, H1FastSpan, H1SlowSpan)
	e.atrQ = NewRollingQuantile(ATRQuantileDays*bpd, ATRQuantileMinDays*bpd)

	e.latest = model.EnrichedBar{}
	e.hasLatest = false
}

// Interval returns the bar interval the engine was built for.
func (e *Engine) Interval() time.Duration { return e.interval }

// LastTS returns the timestamp of the last bar folded (zero if none).
func (e *Engine) LastTS() time.Time { return e.lastTS }

// Fed returns how many bars have been folded since the last reset.
func (e *Engine) Fed() int { return e.fed }

// Reset drops all accumulated state.
func (e *Engine) Reset() { e.configure(e.interval) }

// Latest returns the most recently folded row.
func (e *Engine) Latest() (model.EnrichedBar, bool) { return e.latest, e.hasLatest }

// Feed folds every bar newer than the last one seen and returns the enriched
// rows for those bars only. Bars must be ordered; older or duplicate
// timestamps and invalid bars are skipped. A change of p.BarInterval resets
// the engine before folding.
func (e *Engine) Feed(bars []model.Bar, p Params) []model.EnrichedBar {
	if p.BarInterval > 0 && p.BarInterval != e.interval {
		e.configure(p.BarInterval)
	}
	out := make([]model.EnrichedBar, 0, len(bars))
	for i := range bars {
		b := bars[i]
		if !b.Valid() {
			continue
		}
		if e.fed > 0 && !b.TS.After(e.lastTS) {
			continue
		}
		out = append(out, e.step(b, p))
	}
	return out
}

func (e *Engine) step(b model.Bar, p Params) model.EnrichedBar {
	tr := trueRange(b, e.prevClose, e.fed > 0)

	// Donchian is read before the current bar enters the window.
	donReady := e.donHigh.Full()
	donHigh := e.donHigh.Max()
	donLow := e.donLow.Min()
	e.donHigh.Push(b.High)
	e.donLow.Push(b.Low)

	e.atr.Update(tr)
	atr := e.atr.Value()

	e.ema9.Update(b.Close)
	e.ema20.Update(b.Close)
	e.ema12.Update(b.Close)
	e.ema26.Update(b.Close)
	macd := e.ema12.Value() - e.ema26.Value()
	e.macdSig.Update(macd)

	e.rsi.Update(b.Close)
	e.vwap.Update(b.TS, b.High, b.Low, b.Close, tr)
	e.h1.Update(b.TS, b.Close)

	e.trFast.Push(tr)
	e.trSlow.Push(tr)
	volOK := e.trFast.Full() && e.trSlow.Full() &&
		e.trFast.Mean() >= p.VolumeConfirmRatio*e.trSlow.Median()

	e.atrQ.Push(atr)
	q := math.Inf(1)
	if e.atrQ.Ready() {
		q = e.atrQ.Quantile(p.ATRTopSkipPct)
	}

	h1Long, h1Short := true, true
	if p.H1Alignment {
		h1Long, h1Short = e.h1.Long(), e.h1.Short()
	}

	row := model.EnrichedBar{
		Bar:         b,
		TR:          tr,
		ATR14:       atr,
		EMA9:        e.ema9.Value(),
		EMA20:       e.ema20.Value(),
		MACD:        macd,
		MACDSig:     e.macdSig.Value(),
		RSI14:       e.rsi.Value(),
		DonHigh:     donHigh,
		DonLow:      donLow,
		VWAP:        e.vwap.Value(),
		H1Long:      h1Long,
		H1Short:     h1Short,
		VolOK:       volOK,
		ATRTopOK:    atr <= q,
		ATRQuantile: q,
		Ready:       donReady && e.rsi.Ready(),
	}
	if !donReady {
		row.DonHigh = math.NaN()
		row.DonLow = math.NaN()
	}

	e.prevClose = b.Close
	e.lastTS = b.TS
	e.fed++
	e.latest = row
	e.hasLatest = true
	return row
}

// trueRange is max(|H-L|, |H-prevC|, |L-prevC|); without a previous close
// it falls back to |H-L|.
func trueRange(b model.Bar, prevClose float64, hasPrev bool) float64 {
	tr := math.Abs(b.High - b.Low)
	if !hasPrev {
		return tr
	}
	return math.Max(tr, math.Max(math.Abs(b.High-prevClose), math.Abs(b.Low-prevClose)))
}
