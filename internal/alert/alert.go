// Package alert renders decisions as advisory chat messages.
package alert

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"fxsignal/internal/markethours"
	"fxsignal/internal/model"
	"fxsignal/internal/strategy"
)

// pipSize is the price value of one pip for JPY-quoted pairs.
var pipSize = decimal.RequireFromString("0.01")

// Meta carries the context printed alongside a decision.
type Meta struct {
	Strategy  string
	Symbol    string
	Timeframe string

	VWAPDeviationATR float64
	ShockTROverATR   float64
}

// Format renders a LONG/SHORT decision. For NONE it returns Summary.
func Format(d strategy.Decision, m Meta) string {
	if !d.IsSignal() {
		return Summary(d)
	}

	emoji := "🟢"
	if d.Side == model.SideShort {
		emoji = "🔴"
	}
	price := decimal.NewFromFloat(d.Price)
	atr := decimal.NewFromFloat(d.ATR)
	sl := decimal.NewFromFloat(d.StopLoss)
	tp1 := decimal.NewFromFloat(d.Target1)

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s* - %s / %s\n", emoji, m.Strategy, m.Symbol, m.Timeframe)
	fmt.Fprintf(&b, "*Signal*: %s\n", d.Side.Action())
	fmt.Fprintf(&b, "*Time (JST)*: %s\n", markethours.FormatJST(d.Bar.TS))
	fmt.Fprintf(&b, "*Price*: %s\n", price.StringFixed(3))
	fmt.Fprintf(&b, "*ATR14*: %s (%s pips)\n", atr.StringFixed(3), pips(atr))
	fmt.Fprintf(&b, "*SL*: %s (≈ %s pips)\n", sl.StringFixed(3), pips(price.Sub(sl)))
	fmt.Fprintf(&b, "*TP1*: %s (≈ %s pips)\n", tp1.StringFixed(3), pips(tp1.Sub(price)))
	fmt.Fprintf(&b, "*Notes*: reason=%s, VWAP_dev≤%s×ATR, shock<%s\n",
		d.Reason,
		decimal.NewFromFloat(m.VWAPDeviationATR).String(),
		decimal.NewFromFloat(m.ShockTROverATR).String())
	b.WriteString("_Not financial advice_")
	return b.String()
}

// Summary is the one-line form used for log output.
func Summary(d strategy.Decision) string {
	ts := markethours.FormatJST(d.Bar.TS)
	if !d.IsSignal() {
		return fmt.Sprintf("[%s] no signal (%s)", ts, d.Reason)
	}
	return fmt.Sprintf("[%s] sent: %s %s", ts, d.Side.Action(), decimal.NewFromFloat(d.Price).StringFixed(3))
}

// FormatError renders a cycle failure for the error channel.
func FormatError(err error, m Meta) string {
	return fmt.Sprintf("⚠️ *%s* error (%s / %s): %v", m.Strategy, m.Symbol, m.Timeframe, err)
}

// pips renders an absolute price distance in pips with one decimal.
func pips(distance decimal.Decimal) string {
	return distance.Abs().Div(pipSize).Round(1).StringFixed(1)
}
