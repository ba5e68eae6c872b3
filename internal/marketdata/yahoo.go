package marketdata

import (
	"context"
	"fmt"
	"log"
	"time"

	"fxsignal/internal/model"
	"fxsignal/pkg/yahoo"
)

// maxIntradayRange is the longest history the chart API serves for
// sub-hourly intervals.
const maxIntradayRange = 60 * 24 * time.Hour

// YahooSource fetches bars from the chart API.
type YahooSource struct {
	client *yahoo.Client
}

// NewYahooSource wraps a chart client.
func NewYahooSource(client *yahoo.Client) *YahooSource {
	return &YahooSource{client: client}
}

// Fetch returns bars ordered by time. Rows with a null price are skipped.
// An empty series is (nil, nil).
func (y *YahooSource) Fetch(ctx context.Context, req model.BarRequest) ([]model.Bar, error) {
	res, err := y.client.Chart(ctx, req.Symbol, FormatInterval(req.Interval), chartRange(req))
	if err != nil {
		return nil, fmt.Errorf("yahoo source: %w", err)
	}
	if res == nil || len(res.Indicators.Quote) == 0 {
		return nil, nil
	}

	q := res.Indicators.Quote[0]
	bars := make([]model.Bar, 0, len(res.Timestamp))
	skipped := 0
	for i, ts := range res.Timestamp {
		o, h, l, c := at(q.Open, i), at(q.High, i), at(q.Low, i), at(q.Close, i)
		if o == nil || h == nil || l == nil || c == nil {
			skipped++
			continue
		}
		b := model.Bar{
			TS:    time.Unix(ts, 0).UTC(),
			Open:  *o,
			High:  *h,
			Low:   *l,
			Close: *c,
		}
		if v := at(q.Volume, i); v != nil && *v > 0 {
			b.Volume, b.HasVolume = *v, true
		}
		bars = append(bars, b)
	}
	if skipped > 0 {
		log.Printf("[yahoo] %s: skipped %d rows with null prices", req.Symbol, skipped)
	}
	return Normalize(bars), nil
}

func at(col []*float64, i int) *float64 {
	if i >= len(col) {
		return nil
	}
	return col[i]
}

// chartRange converts the lookback to whole days, capped for intraday bars.
func chartRange(req model.BarRequest) string {
	lb := req.Lookback
	if lb <= 0 {
		lb = maxIntradayRange
	}
	if req.Interval < time.Hour && lb > maxIntradayRange {
		lb = maxIntradayRange
	}
	days := int((lb + 24*time.Hour - 1) / (24 * time.Hour))
	return fmt.Sprintf("%dd", days)
}
