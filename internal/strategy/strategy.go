// Package strategy turns the latest enriched bar into a trading decision.
//
// A Strategy runs an ordered filter chain over one model.EnrichedBar and,
// if every filter passes, checks its entry setups. Only the most recent
// closed bar is ever evaluated; history lives in the indicator engine.
package strategy

import (
	"math"

	"fxsignal/internal/filterconfig"
	"fxsignal/internal/model"
)

// Strategy is the interface a signal detector implements.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// Evaluate renders a decision for one closed bar.
	Evaluate(bar model.EnrichedBar, cfg filterconfig.FilterConfig) Decision
}

// Decision is the outcome for one bar.
type Decision struct {
	Strategy string            `json:"strategy"`
	Side     model.Side        `json:"side"`
	Reason   model.Reason      `json:"reason"`
	Failed   []model.Reason    `json:"failed,omitempty"` // every failing filter, in chain order
	Bar      model.EnrichedBar `json:"bar"`

	// Advisory levels, zero unless a signal fired.
	Price    float64 `json:"price"`
	ATR      float64 `json:"atr"`
	StopLoss float64 `json:"stop_loss,omitempty"`
	Target1  float64 `json:"target1,omitempty"`
}

// IsSignal reports whether the decision is LONG or SHORT.
func (d Decision) IsSignal() bool {
	return d.Side == model.SideLong || d.Side == model.SideShort
}

// Filter is one gate in the chain. Pass returns false to reject the bar.
type Filter struct {
	Reason model.Reason
	Pass   func(bar model.EnrichedBar, cfg filterconfig.FilterConfig) bool
}

// runChain evaluates every filter and returns the failing reasons in order.
func runChain(chain []Filter, bar model.EnrichedBar, cfg filterconfig.FilterConfig) []model.Reason {
	var failed []model.Reason
	for _, f := range chain {
		if !f.Pass(bar, cfg) {
			failed = append(failed, f.Reason)
		}
	}
	return failed
}

// levels returns the stop-loss and first target for a side.
func levels(side model.Side, price, atr float64, risk filterconfig.Risk) (sl, tp1 float64) {
	switch side {
	case model.SideLong:
		return price - risk.SLATRMult*atr, price + risk.TP1ATRMult*atr
	case model.SideShort:
		return price + risk.SLATRMult*atr, price - risk.TP1ATRMult*atr
	default:
		return 0, 0
	}
}

// Pips converts a JPY price distance to pips (0.01 = 1 pip).
func Pips(distance float64) float64 {
	return math.Abs(distance) / 0.01
}
