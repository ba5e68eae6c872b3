package indicator

// Wilder is Wilder's smoothing: an EMA with alpha = 1/period, seeded by the
// first value. Each step: cur = cur + (v - cur)/period.
type Wilder struct {
	name    string
	alpha   float64
	current float64
	count   int
}

// NewWilder creates a Wilder smoother with the given period.
func NewWilder(period int) *Wilder {
	return &Wilder{
		name:  "WILDER_" + itoa(period),
		alpha: 1.0 / float64(period),
	}
}

// NewATR creates the average true range smoother; feed it true range values.
func NewATR(period int) *Wilder {
	w := NewWilder(period)
	w.name = "ATR_" + itoa(period)
	return w
}

func (w *Wilder) Name() string { return w.name }

func (w *Wilder) Update(v float64) {
	w.count++
	if w.count == 1 {
		w.current = v
		return
	}
	w.current += w.alpha * (v - w.current)
}

func (w *Wilder) Value() float64 { return w.current }
func (w *Wilder) Ready() bool    { return w.count > 0 }

// Peek computes what Value() would be with v fed next, without mutating state.
func (w *Wilder) Peek(v float64) float64 {
	if w.count == 0 {
		return v
	}
	return w.current + w.alpha*(v-w.current)
}

// Reset clears the smoother for reuse.
func (w *Wilder) Reset() {
	w.current = 0
	w.count = 0
}

// itoa converts a small non-negative int to string without importing strconv.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	buf := [20]byte{}
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
