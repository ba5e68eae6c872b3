// Package filterconfig loads the strategy document (FILTERS, ENTRY,
// RISK_MANAGEMENT groups) and merges it over built-in defaults.
package filterconfig

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"fxsignal/internal/markethours"
)

// ErrInvalidConfig wraps every read, parse or validation failure.
// Callers fall back to Default() when they see it.
var ErrInvalidConfig = errors.New("invalid filter config")

// Document group names.
const (
	GroupFilters = "FILTERS"
	GroupEntry   = "ENTRY"
	GroupRisk    = "RISK_MANAGEMENT"
)

// Filters is the FILTERS group.
type Filters struct {
	TimeWindows           []string `validate:"required,min=1,dive,timewindow"`
	ATRMin                float64  `validate:"gt=0"`
	ATRMax                float64  `validate:"gtefield=ATRMin"`
	ATRTopSkipPct         float64  `validate:"gt=0,lte=1"`
	VWAPDeviationATR      float64  `validate:"gt=0"`
	H1Alignment           bool
	VolumeConfirmRatio    float64 `validate:"gte=0"`
	VolumeConfirmRequired bool
}

// Entry is the ENTRY group.
type Entry struct {
	BreakoutBufferATR float64 `validate:"gte=0"`
}

// Risk is the RISK_MANAGEMENT group.
type Risk struct {
	SLATRMult      float64 `validate:"gt=0"`
	TP1ATRMult     float64 `validate:"gt=0"`
	ShockTROverATR float64 `validate:"gt=0"`
}

// FilterConfig is the immutable per-cycle view of the strategy document.
type FilterConfig struct {
	Filters Filters
	Entry   Entry
	Risk    Risk
}

// Default returns the built-in thresholds.
func Default() FilterConfig {
	return FilterConfig{
		Filters: Filters{
			TimeWindows:        []string{"13:00-23:59", "00:00-02:00"},
			ATRMin:             0.04,
			ATRMax:             0.12,
			ATRTopSkipPct:      0.90,
			VWAPDeviationATR:   2.0,
			H1Alignment:        true,
			VolumeConfirmRatio: 1.2,
		},
		Entry: Entry{
			BreakoutBufferATR: 0.25,
		},
		Risk: Risk{
			SLATRMult:      1.1,
			TP1ATRMult:     1.3,
			ShockTROverATR: 1.8,
		},
	}
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("timewindow", func(fl validator.FieldLevel) bool {
		_, err := markethours.ParseWindow(fl.Field().String())
		return err == nil
	})
}

// Validate checks ranges and window syntax.
func (c FilterConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Load reads the document at path. A missing file yields the defaults with
// no error. On any other failure Load returns Default() together with an
// error wrapping ErrInvalidConfig, so callers can log and carry on.
func Load(path string) (FilterConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Default(), fmt.Errorf("%w: read %s: %v", ErrInvalidConfig, path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML document and merges it over the defaults. The merge is
// shallow per group: keys present in a group win, missing keys keep defaults.
func Parse(data []byte) (FilterConfig, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Default(), fmt.Errorf("%w: yaml: %v", ErrInvalidConfig, err)
	}

	cfg := Default()
	if err := cfg.merge(doc); err != nil {
		return Default(), fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Default(), err
	}
	return cfg, nil
}

func (c *FilterConfig) merge(doc map[string]any) error {
	for name, raw := range doc {
		if raw == nil {
			continue
		}
		group, err := cast.ToStringMapE(raw)
		if err != nil {
			return fmt.Errorf("group %s: %v", name, err)
		}
		switch strings.ToUpper(name) {
		case GroupFilters:
			err = c.mergeFilters(group)
		case GroupEntry:
			err = c.mergeEntry(group)
		case GroupRisk:
			err = c.mergeRisk(group)
		}
		if err != nil {
			return fmt.Errorf("group %s: %w", name, err)
		}
	}
	return nil
}

func (c *FilterConfig) mergeFilters(g map[string]any) error {
	f := &c.Filters
	for k, v := range g {
		var err error
		switch k {
		case "time_windows":
			f.TimeWindows, err = cast.ToStringSliceE(v)
		case "atr_range_jpy":
			f.ATRMin, f.ATRMax, err = toRange(v)
		case "atr_top_skip_pct":
			f.ATRTopSkipPct, err = cast.ToFloat64E(v)
		case "vwap_deviation_atr":
			f.VWAPDeviationATR, err = cast.ToFloat64E(v)
		case "h1_alignment":
			f.H1Alignment, err = cast.ToBoolE(v)
		case "volume_confirm_ratio":
			f.VolumeConfirmRatio, err = cast.ToFloat64E(v)
		case "volume_confirm_required":
			f.VolumeConfirmRequired, err = cast.ToBoolE(v)
		}
		if err != nil {
			return fmt.Errorf("%s: %v", k, err)
		}
	}
	return nil
}

func (c *FilterConfig) mergeEntry(g map[string]any) error {
	for k, v := range g {
		var err error
		switch k {
		case "breakout_donchian_h1_buffer_atr":
			c.Entry.BreakoutBufferATR, err = cast.ToFloat64E(v)
		}
		if err != nil {
			return fmt.Errorf("%s: %v", k, err)
		}
	}
	return nil
}

func (c *FilterConfig) mergeRisk(g map[string]any) error {
	r := &c.Risk
	for k, v := range g {
		var err error
		switch k {
		case "sl_atr_mult":
			r.SLATRMult, err = cast.ToFloat64E(v)
		case "tp1_atr_mult":
			r.TP1ATRMult, err = cast.ToFloat64E(v)
		case "shock_bar_filter_TR_over_ATR":
			r.ShockTROverATR, err = cast.ToFloat64E(v)
		}
		if err != nil {
			return fmt.Errorf("%s: %v", k, err)
		}
	}
	return nil
}

// toRange decodes a two-element [min, max] list.
func toRange(v any) (float64, float64, error) {
	items, err := cast.ToSliceE(v)
	if err != nil {
		return 0, 0, err
	}
	if len(items) != 2 {
		return 0, 0, fmt.Errorf("want [min, max], got %d values", len(items))
	}
	lo, err := cast.ToFloat64E(items[0])
	if err != nil {
		return 0, 0, err
	}
	hi, err := cast.ToFloat64E(items[1])
	if err != nil {
		return 0, 0, err
	}
	return lo, hi, nil
}

// Marshal renders the config back into the document layout.
func (c FilterConfig) Marshal() ([]byte, error) {
	doc := map[string]any{
		GroupFilters: map[string]any{
			"time_windows":            c.Filters.TimeWindows,
			"atr_range_jpy":           []float64{c.Filters.ATRMin, c.Filters.ATRMax},
			"atr_top_skip_pct":        c.Filters.ATRTopSkipPct,
			"vwap_deviation_atr":      c.Filters.VWAPDeviationATR,
			"h1_alignment":            c.Filters.H1Alignment,
			"volume_confirm_ratio":    c.Filters.VolumeConfirmRatio,
			"volume_confirm_required": c.Filters.VolumeConfirmRequired,
		},
		GroupEntry: map[string]any{
			"breakout_donchian_h1_buffer_atr": c.Entry.BreakoutBufferATR,
		},
		GroupRisk: map[string]any{
			"sl_atr_mult":                  c.Risk.SLATRMult,
			"tp1_atr_mult":                 c.Risk.TP1ATRMult,
			"shock_bar_filter_TR_over_ATR": c.Risk.ShockTROverATR,
		},
	}
	return yaml.Marshal(doc)
}
