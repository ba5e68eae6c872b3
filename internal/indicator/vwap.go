package indicator

import (
	"time"

	"fxsignal/internal/markethours"
)

// minWeight floors the VWAP weight so flat bars never zero the denominator.
const minWeight = 1e-9

// SessionVWAP is a session-reset VWAP weighted by true range instead of
// traded volume. The session rolls when markethours.SessionKey changes.
type SessionVWAP struct {
	session string
	sumPW   float64
	sumW    float64
}

// NewSessionVWAP creates an empty session VWAP.
func NewSessionVWAP() *SessionVWAP {
	return &SessionVWAP{}
}

func (s *SessionVWAP) Name() string { return "VWAP_SESSION" }

// Update feeds one bar with its true range as weight.
func (s *SessionVWAP) Update(ts time.Time, high, low, close, tr float64) {
	key := markethours.SessionKey(ts)
	if key != s.session {
		s.session = key
		s.sumPW = 0
		s.sumW = 0
	}
	w := tr
	if w < minWeight {
		w = minWeight
	}
	s.sumPW += typicalPrice(high, low, close) * w
	s.sumW += w
}

// Value returns the VWAP of the current session, 0 before the first bar.
func (s *SessionVWAP) Value() float64 {
	if s.sumW == 0 {
		return 0
	}
	return s.sumPW / s.sumW
}

func (s *SessionVWAP) Ready() bool { return s.sumW > 0 }

// Reset clears the accumulator for reuse.
func (s *SessionVWAP) Reset() {
	s.session = ""
	s.sumPW = 0
	s.sumW = 0
}

func typicalPrice(high, low, close float64) float64 {
	return (high + low + close) / 3
}
