package indicator

// RSI is the Relative Strength Index over Wilder-smoothed gains and losses.
// The first close only records a reference price; the first delta seeds both
// averages, so a value exists from the second close on.
// Update is O(1) per bar.
type RSI struct {
	name      string
	count     int
	prevClose float64
	avgGain   *Wilder
	avgLoss   *Wilder
	current   float64
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{
		name:    "RSI_" + itoa(period),
		avgGain: NewWilder(period),
		avgLoss: NewWilder(period),
	}
}

func (r *RSI) Name() string { return r.name }

func (r *RSI) Update(price float64) {
	r.count++
	if r.count == 1 {
		r.prevClose = price
		return
	}

	gain, loss := split(price - r.prevClose)
	r.prevClose = price
	r.avgGain.Update(gain)
	r.avgLoss.Update(loss)
	r.current = rsiFrom(r.avgGain.Value(), r.avgLoss.Value())
}

func (r *RSI) Value() float64 { return r.current }
func (r *RSI) Ready() bool    { return r.count > 1 }

// Peek computes what RSI would be with price fed next, without mutating state.
func (r *RSI) Peek(price float64) float64 {
	if r.count == 0 {
		return r.current
	}
	gain, loss := split(price - r.prevClose)
	return rsiFrom(r.avgGain.Peek(gain), r.avgLoss.Peek(loss))
}

// Reset clears the RSI state for reuse.
func (r *RSI) Reset() {
	r.count = 0
	r.prevClose = 0
	r.current = 0
	r.avgGain.Reset()
	r.avgLoss.Reset()
}

func split(delta float64) (gain, loss float64) {
	if delta > 0 {
		return delta, 0
	}
	return 0, -delta
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	rs := avgGain / (avgLoss + eps)
	return 100.0 - 100.0/(1.0+rs)
}
