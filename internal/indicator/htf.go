package indicator

import "time"

// HigherTF resamples fine-bar closes into coarser buckets (last close per
// bucket) and tracks a fast/slow EMA pair over the bucket closes.
//
// Completed buckets are committed to the EMAs. The forming bucket is only
// Peek'd with its running last close, so the trend flag for a fine bar uses
// nothing later than that bar.
type HigherTF struct {
	period time.Duration
	fast   *EMA
	slow   *EMA

	bucket  time.Time // open time of the forming bucket
	last    float64   // running last close of the forming bucket
	hasBuck bool
	buckets int // completed buckets committed
}

// NewHigherTF creates a resampler for the given bucket period and EMA spans.
func NewHigherTF(period time.Duration, fastSpan, slowSpan int) *HigherTF {
	return &HigherTF{
		period: period,
		fast:   NewEMA(fastSpan),
		slow:   NewEMA(slowSpan),
	}
}

// Update feeds one fine bar close.
func (h *HigherTF) Update(ts time.Time, close float64) {
	b := ts.Truncate(h.period)
	if h.hasBuck && !b.Equal(h.bucket) {
		h.fast.Update(h.last)
		h.slow.Update(h.last)
		h.buckets++
	}
	h.bucket = b
	h.last = close
	h.hasBuck = true
}

// Fast returns the fast EMA including the forming bucket.
func (h *HigherTF) Fast() float64 { return h.fast.Peek(h.last) }

// Slow returns the slow EMA including the forming bucket.
func (h *HigherTF) Slow() float64 { return h.slow.Peek(h.last) }

// Long reports fast > slow.
func (h *HigherTF) Long() bool { return h.hasBuck && h.Fast() > h.Slow() }

// Short reports fast < slow.
func (h *HigherTF) Short() bool { return h.hasBuck && h.Fast() < h.Slow() }

// Buckets returns how many completed buckets have been committed.
func (h *HigherTF) Buckets() int { return h.buckets }

// Reset clears the resampler for reuse.
func (h *HigherTF) Reset() {
	h.fast.Reset()
	h.slow.Reset()
	h.bucket = time.Time{}
	h.last = 0
	h.hasBuck = false
	h.buckets = 0
}
