package model

import (
	"encoding/json"
	"math"
	"time"
)

// Bar is one closed OHLC bar for the instrument.
// Volume is optional: FX feeds often report zero or nothing at all.
type Bar struct {
	TS        time.Time `json:"ts"` // bar open time
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	HasVolume bool      `json:"has_volume"`
}

// Valid reports whether the bar has a usable price range. Non-finite prices
// are rejected: a single NaN would poison every recursive average after it.
func (b *Bar) Valid() bool {
	if b.TS.IsZero() {
		return false
	}
	for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	if b.High < b.Low || b.Low <= 0 || b.Close <= 0 {
		return false
	}
	return true
}

// JSON returns the JSON-encoded bar (ignoring errors).
func (b *Bar) JSON() []byte {
	data, _ := json.Marshal(b)
	return data
}

// EnrichedBar is a Bar plus every derived series value the detector reads.
// All fields for bar i depend only on bars <= i.
type EnrichedBar struct {
	Bar

	TR      float64 `json:"tr"`
	ATR14   float64 `json:"atr14"`
	EMA9    float64 `json:"ema9"`
	EMA20   float64 `json:"ema20"`
	MACD    float64 `json:"macd"`
	MACDSig float64 `json:"macd_sig"`
	RSI14   float64 `json:"rsi14"`
	DonHigh float64 `json:"don_high"` // max high of the 20 bars before this one
	DonLow  float64 `json:"don_low"`
	VWAP    float64 `json:"vwap"`

	H1Long   bool `json:"h1_long"`
	H1Short  bool `json:"h1_short"`
	VolOK    bool `json:"vol_ok"`
	ATRTopOK bool `json:"atr_top_ok"`

	// ATRQuantile is the rolling ATR quantile used for ATRTopOK (+Inf when
	// the window is still too short).
	ATRQuantile float64 `json:"atr_quantile"`

	// Ready is false while any derived field lacks the history it needs.
	Ready bool `json:"ready"`
}
