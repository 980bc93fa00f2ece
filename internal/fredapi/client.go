// Package fredapi is the client for the economic-data proxy in front of the
// FRED API. It executes single requests with a hard deadline and classifies
// failures; caching happens a layer up in fetchcache.
package fredapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/onnwee/market-pulse/backend/internal/config"
	"github.com/onnwee/market-pulse/backend/internal/httpx"
	"github.com/onnwee/market-pulse/backend/internal/metrics"
	"github.com/onnwee/market-pulse/backend/internal/upstream"
)

const upstreamName = "fred"

// Client talks to the economic-data proxy.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	timeout    time.Duration
}

// NewClient builds a client from config.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		baseURL:    cfg.FredProxyURL,
		userAgent:  cfg.UserAgent,
		timeout:    cfg.FetchTimeout,
	}
}

// Observations fetches the indicators selected by req. The call is bounded
// by the configured hard deadline; exceeding it surfaces as a timeout error,
// distinct from transport failures.
func (c *Client) Observations(ctx context.Context, req ObservationsRequest) ([]Indicator, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	build := func() (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("User-Agent", c.userAgent)
		return httpReq, nil
	}

	resp, err := httpx.DoWithRetry(c.httpClient, upstreamName, build, nil)
	metrics.UpstreamDuration.WithLabelValues(upstreamName).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, upstream.ClassifyErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, upstream.ClassifyResponse(resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, upstream.ClassifyErr(err)
	}
	return decodeIndicators(raw)
}

// decodeIndicators accepts both shapes the proxy emits: a list of indicators
// for category requests, or a single object for one series.
func decodeIndicators(raw []byte) ([]Indicator, error) {
	var many []Indicator
	if err := json.Unmarshal(raw, &many); err == nil {
		return many, nil
	}
	var one Indicator
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, upstream.Malformed(err)
	}
	if one.ID == "" {
		return nil, upstream.Malformed(errors.New("indicator missing id"))
	}
	return []Indicator{one}, nil
}
