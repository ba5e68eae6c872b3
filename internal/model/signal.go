package model

// Side is the direction of a rendered decision.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
	SideNone  Side = "NONE"
)

// Action returns the advisory wording used in alerts.
func (s Side) Action() string {
	switch s {
	case SideLong:
		return "BUY"
	case SideShort:
		return "SELL"
	default:
		return "NONE"
	}
}

// Reason tags why a bar did or did not produce a signal.
// The rejection values are listed in filter evaluation order.
type Reason string

const (
	ReasonTimeFilter Reason = "time_filter_ng"
	ReasonATRRange   Reason = "atr_range_ng"
	ReasonATRTop     Reason = "atr_top_skip"
	ReasonVWAPDev    Reason = "vwap_dev_ng"
	ReasonShock      Reason = "shock_ng"
	ReasonVolume     Reason = "volume_ng"
	ReasonNoSetup    Reason = "no_setup"

	ReasonLongOK  Reason = "long_ok"
	ReasonShortOK Reason = "short_ok"
)

// ProcessingState is the single persisted marker: the timestamp of the last
// bar a decision was rendered for. Empty means nothing evaluated yet.
type ProcessingState struct {
	LastTimestamp string `json:"lastTimestamp,omitempty"`
}
