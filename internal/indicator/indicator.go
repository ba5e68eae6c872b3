// Package indicator computes the derived series the signal detector reads.
//
// Every indicator is an incremental accumulator fed one value per closed bar,
// so a new bar costs O(1) (or O(window)) instead of a full-history recompute.
// Engine folds bars through all accumulators and emits model.EnrichedBar rows.
package indicator

// Indicator is the interface for recursive single-input indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "EMA_9", "ATR_14").
	Name() string

	// Update feeds the next value and recalculates.
	Update(v float64)

	// Value returns the current value. Returns 0 if nothing has been fed.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Peek computes what Value() would be if v were fed next, WITHOUT
	// mutating internal state.
	Peek(v float64) float64
}

var (
	_ Indicator = (*EMA)(nil)
	_ Indicator = (*Wilder)(nil)
	_ Indicator = (*RSI)(nil)
)

// eps guards ratios against zero denominators, matching the RSI/shock formulas.
const eps = 1e-12
