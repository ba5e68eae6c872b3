package indicator

import (
	"math"
	"sort"
)

// RollingQuantile tracks a quantile over the last size values with a minimum
// number of observations before it reports anything. Values are kept both in
// arrival order (ring) and sorted, so each push is O(log n) search plus one
// slice shift.
type RollingQuantile struct {
	size       int
	minPeriods int

	ring   []float64
	idx    int
	count  int
	sorted []float64
}

// NewRollingQuantile creates a rolling quantile over size values that becomes
// valid once minPeriods values have been seen.
func NewRollingQuantile(size, minPeriods int) *RollingQuantile {
	if minPeriods > size {
		minPeriods = size
	}
	if minPeriods < 1 {
		minPeriods = 1
	}
	return &RollingQuantile{
		size:       size,
		minPeriods: minPeriods,
		ring:       make([]float64, size),
		sorted:     make([]float64, 0, size),
	}
}

// Push adds v, evicting the oldest value once size values are held.
func (q *RollingQuantile) Push(v float64) {
	if q.count == q.size {
		old := q.ring[q.idx]
		i := sort.SearchFloat64s(q.sorted, old)
		q.sorted = append(q.sorted[:i], q.sorted[i+1:]...)
	} else {
		q.count++
	}
	q.ring[q.idx] = v
	q.idx = (q.idx + 1) % q.size

	i := sort.SearchFloat64s(q.sorted, v)
	q.sorted = append(q.sorted, 0)
	copy(q.sorted[i+1:], q.sorted[i:])
	q.sorted[i] = v
}

// Ready reports whether at least minPeriods values are held.
func (q *RollingQuantile) Ready() bool { return q.count >= q.minPeriods }

// Len returns how many values are held.
func (q *RollingQuantile) Len() int { return q.count }

// Quantile returns the p-quantile (0..1) with linear interpolation between
// the closest ranks. Returns NaN until Ready.
func (q *RollingQuantile) Quantile(p float64) float64 {
	if !q.Ready() {
		return math.NaN()
	}
	n := len(q.sorted)
	if n == 1 {
		return q.sorted[0]
	}
	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo < 0 {
		lo = 0
	}
	if hi > n-1 {
		hi = n - 1
	}
	frac := pos - float64(lo)
	return q.sorted[lo] + (q.sorted[hi]-q.sorted[lo])*frac
}

// Reset clears the quantile state for reuse.
func (q *RollingQuantile) Reset() {
	q.idx = 0
	q.count = 0
	q.sorted = q.sorted[:0]
}
