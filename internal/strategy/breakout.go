package strategy

import (
	"math"

	"fxsignal/internal/filterconfig"
	"fxsignal/internal/markethours"
	"fxsignal/internal/model"
)

// eps keeps the shock ratio finite when ATR is zero.
const eps = 1e-12

// Breakout is a trend-plus-Donchian-breakout detector.
//
// Long: EMA9 > EMA20, close > VWAP, MACD > 0, RSI >= 50, H1 long, and close
// above the prior 20-bar high plus a buffer of ATR. Short mirrors it. Both
// trend and breakout are required; the EMA comparison makes the two setups
// mutually exclusive.
type Breakout struct {
	name  string
	chain []Filter
}

// NewBreakout creates the breakout detector with its filter chain.
func NewBreakout(name string) *Breakout {
	if name == "" {
		name = "Breakout"
	}
	return &Breakout{name: name, chain: DefaultChain()}
}

func (b *Breakout) Name() string { return b.name }

// DefaultChain returns the filters in evaluation order. The volume gate only
// rejects when the config makes volume confirmation required.
func DefaultChain() []Filter {
	return []Filter{
		{model.ReasonTimeFilter, func(bar model.EnrichedBar, cfg filterconfig.FilterConfig) bool {
			return markethours.IsWithinWindows(bar.TS, cfg.Filters.TimeWindows)
		}},
		{model.ReasonATRRange, func(bar model.EnrichedBar, cfg filterconfig.FilterConfig) bool {
			return bar.ATR14 >= cfg.Filters.ATRMin && bar.ATR14 <= cfg.Filters.ATRMax
		}},
		{model.ReasonATRTop, func(bar model.EnrichedBar, _ filterconfig.FilterConfig) bool {
			return bar.ATRTopOK
		}},
		{model.ReasonVWAPDev, func(bar model.EnrichedBar, cfg filterconfig.FilterConfig) bool {
			return math.Abs(bar.Close-bar.VWAP) <= cfg.Filters.VWAPDeviationATR*bar.ATR14
		}},
		{model.ReasonShock, func(bar model.EnrichedBar, cfg filterconfig.FilterConfig) bool {
			return bar.TR/(bar.ATR14+eps) < cfg.Risk.ShockTROverATR
		}},
		{model.ReasonVolume, func(bar model.EnrichedBar, cfg filterconfig.FilterConfig) bool {
			return !cfg.Filters.VolumeConfirmRequired || bar.VolOK
		}},
	}
}

// Evaluate runs the chain and, if it passes, the two setups.
func (b *Breakout) Evaluate(bar model.EnrichedBar, cfg filterconfig.FilterConfig) Decision {
	d := Decision{
		Strategy: b.name,
		Side:     model.SideNone,
		Bar:      bar,
		Price:    bar.Close,
		ATR:      bar.ATR14,
	}

	if d.Failed = runChain(b.chain, bar, cfg); len(d.Failed) > 0 {
		d.Reason = d.Failed[0]
		return d
	}

	switch {
	case LongSetup(bar, cfg.Entry.BreakoutBufferATR):
		d.Side, d.Reason = model.SideLong, model.ReasonLongOK
	case ShortSetup(bar, cfg.Entry.BreakoutBufferATR):
		d.Side, d.Reason = model.SideShort, model.ReasonShortOK
	default:
		d.Reason = model.ReasonNoSetup
		return d
	}
	d.StopLoss, d.Target1 = levels(d.Side, d.Price, d.ATR, cfg.Risk)
	return d
}

// LongSetup reports trend-up plus an upside Donchian break.
func LongSetup(bar model.EnrichedBar, bufferATR float64) bool {
	trend := bar.EMA9 > bar.EMA20 &&
		bar.Close > bar.VWAP &&
		bar.MACD > 0 &&
		bar.RSI14 >= 50 &&
		bar.H1Long
	return trend && bar.Close > bar.DonHigh+bufferATR*bar.ATR14
}

// ShortSetup reports trend-down plus a downside Donchian break.
func ShortSetup(bar model.EnrichedBar, bufferATR float64) bool {
	trend := bar.EMA9 < bar.EMA20 &&
		bar.Close < bar.VWAP &&
		bar.MACD < 0 &&
		bar.RSI14 <= 50 &&
		bar.H1Short
	return trend && bar.Close < bar.DonLow-bufferATR*bar.ATR14
}
