package indicator

// EMA is an exponential moving average with alpha = 2/(span+1), seeded by
// the first value fed (no SMA warm-up). O(1) per update.
type EMA struct {
	name    string
	alpha   float64
	current float64
	count   int
}

// NewEMA creates an EMA for the given span.
func NewEMA(span int) *EMA {
	return &EMA{
		name:  "EMA_" + itoa(span),
		alpha: 2.0 / float64(span+1),
	}
}

func (e *EMA) Name() string { return e.name }

func (e *EMA) Update(v float64) {
	e.count++
	if e.count == 1 {
		e.current = v
		return
	}
	e.current += e.alpha * (v - e.current)
}

func (e *EMA) Value() float64 { return e.current }
func (e *EMA) Ready() bool    { return e.count > 0 }

// Peek computes what Value() would be with v fed next, without mutating state.
func (e *EMA) Peek(v float64) float64 {
	if e.count == 0 {
		return v
	}
	return e.current + e.alpha*(v-e.current)
}

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.current = 0
	e.count = 0
}
