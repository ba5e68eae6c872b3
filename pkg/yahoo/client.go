// Package yahoo is a minimal client for the Yahoo Finance chart API.
package yahoo

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultRoot      = "https://query1.finance.yahoo.com"
	defaultUserAgent = "Mozilla/5.0 (compatible; fxsignal/1.0)"
	chartRoute       = "/v8/finance/chart/"
)

// Config holds client settings. Zero values take defaults.
type Config struct {
	RootURL   string
	Timeout   time.Duration
	ProxyURL  string
	UserAgent string
	Debug     bool
}

// Client issues chart requests.
type Client struct {
	rootURL    string
	userAgent  string
	debug      bool
	httpClient *http.Client
}

// New creates a chart client.
func New(cfg Config) *Client {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	tr := &http.Transport{
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	}
	if cfg.ProxyURL != "" {
		if purl, err := url.Parse(cfg.ProxyURL); err == nil {
			tr.Proxy = http.ProxyURL(purl)
		}
	}

	return &Client{
		rootURL:    cfg.RootURL,
		userAgent:  cfg.UserAgent,
		debug:      cfg.Debug,
		httpClient: &http.Client{Transport: tr, Timeout: cfg.Timeout},
	}
}

// APIError is a non-2xx response or an error object in the chart payload.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("yahoo: status %d: %s: %s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("yahoo: status %d", e.StatusCode)
}

// ChartResponse is the envelope of /v8/finance/chart.
type ChartResponse struct {
	Chart struct {
		Result []ChartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// ChartResult is one symbol's series. Quote arrays are parallel to
// Timestamp; missing values are null.
type ChartResult struct {
	Meta struct {
		Symbol       string `json:"symbol"`
		Currency     string `json:"currency"`
		ExchangeTZ   string `json:"exchangeTimezoneName"`
		DataGranular string `json:"dataGranularity"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []Quote `json:"quote"`
	} `json:"indicators"`
}

// Quote holds OHLCV columns.
type Quote struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*float64 `json:"volume"`
}

// Chart fetches a series. interval is e.g. "15m", rng e.g. "60d".
// A symbol with no data returns (nil, nil).
func (c *Client) Chart(ctx context.Context, symbol, interval, rng string) (*ChartResult, error) {
	q := url.Values{}
	q.Set("interval", interval)
	q.Set("range", rng)
	reqURL := c.rootURL + chartRoute + url.PathEscape(symbol) + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("yahoo: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo: chart %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo: read body: %w", err)
	}
	if c.debug {
		log.Printf("[yahoo] GET %s status=%d bytes=%d", reqURL, resp.StatusCode, len(raw))
	}

	var out ChartResponse
	decodeErr := json.Unmarshal(raw, &out)
	if out.Chart.Error != nil {
		return nil, &APIError{
			StatusCode:  resp.StatusCode,
			Code:        out.Chart.Error.Code,
			Description: out.Chart.Error.Description,
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("yahoo: decode chart: %w", decodeErr)
	}
	if len(out.Chart.Result) == 0 {
		return nil, nil
	}
	return &out.Chart.Result[0], nil
}
