package indicator

import (
	"math"
	"sort"
)

// Window is a fixed-size rolling window over the most recent values.
// Uses a preallocated circular buffer; Mean is O(1), Max/Min/Median scan the window.
type Window struct {
	size  int
	buf   []float64 // preallocated circular buffer
	idx   int       // next write position
	count int       // values currently held (<= size)
	sum   float64
}

// NewWindow creates a rolling window holding the last size values.
func NewWindow(size int) *Window {
	return &Window{
		size: size,
		buf:  make([]float64, size),
	}
}

// Push appends v, evicting the oldest value once the window is full.
func (w *Window) Push(v float64) {
	if w.count == w.size {
		w.sum -= w.buf[w.idx]
	} else {
		w.count++
	}
	w.buf[w.idx] = v
	w.sum += v
	w.idx = (w.idx + 1) % w.size
}

// Len returns how many values the window currently holds.
func (w *Window) Len() int { return w.count }

// Full reports whether the window holds size values.
func (w *Window) Full() bool { return w.count == w.size }

// Mean returns the average of the held values, NaN when empty.
func (w *Window) Mean() float64 {
	if w.count == 0 {
		return math.NaN()
	}
	return w.sum / float64(w.count)
}

// Max returns the largest held value, NaN when empty.
func (w *Window) Max() float64 {
	if w.count == 0 {
		return math.NaN()
	}
	m := math.Inf(-1)
	for i := 0; i < w.count; i++ {
		if w.buf[i] > m {
			m = w.buf[i]
		}
	}
	return m
}

// Min returns the smallest held value, NaN when empty.
func (w *Window) Min() float64 {
	if w.count == 0 {
		return math.NaN()
	}
	m := math.Inf(1)
	for i := 0; i < w.count; i++ {
		if w.buf[i] < m {
			m = w.buf[i]
		}
	}
	return m
}

// Median returns the median of the held values (mean of the middle pair for
// even counts), NaN when empty.
func (w *Window) Median() float64 {
	if w.count == 0 {
		return math.NaN()
	}
	vals := make([]float64, w.count)
	copy(vals, w.buf[:w.count])
	sort.Float64s(vals)
	mid := w.count / 2
	if w.count%2 == 1 {
		return vals[mid]
	}
	return (vals[mid-1] + vals[mid]) / 2
}

// Reset clears the window for reuse.
func (w *Window) Reset() {
	w.idx = 0
	w.count = 0
	w.sum = 0
	for i := range w.buf {
		w.buf[i] = 0
	}
}
