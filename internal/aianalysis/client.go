// Package aianalysis is the client for the LLM stock-commentary proxy. The
// proxy is slow and quota-bound, so calls run behind a circuit breaker; the
// caching layer above keeps commentary around long enough that an open
// circuit usually means serving a cached analysis.
package aianalysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/onnwee/market-pulse/backend/internal/circuitbreaker"
	"github.com/onnwee/market-pulse/backend/internal/config"
	"github.com/onnwee/market-pulse/backend/internal/httpx"
	"github.com/onnwee/market-pulse/backend/internal/metrics"
	"github.com/onnwee/market-pulse/backend/internal/upstream"
)

const upstreamName = "ai"

// StockSummary is the per-ticker context sent to the analysis proxy.
type StockSummary struct {
	Ticker        string  `json:"ticker"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"changePercent"`
}

// AnalyzeRequest is the proxy request body.
type AnalyzeRequest struct {
	Stocks []StockSummary `json:"stocks"`
}

// AnalyzeResponse carries per-ticker commentary plus a market-wide insight.
// FromFallback and FromCache are set by the proxy when it could not reach the
// LLM and substituted canned or previously generated text.
type AnalyzeResponse struct {
	StockAnalyses map[string]string `json:"stockAnalyses"`
	MarketInsight string            `json:"marketInsight"`
	FromFallback  bool              `json:"fromFallback,omitempty"`
	FromCache     bool              `json:"fromCache,omitempty"`
}

// Client talks to the AI-analysis proxy.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	timeout    time.Duration
	breaker    *circuitbreaker.CircuitBreaker
}

// NewClient builds a client from config.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		baseURL:    cfg.AIProxyURL,
		userAgent:  cfg.UserAgent,
		timeout:    cfg.FetchTimeout,
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Name:             "ai_analysis",
			FailureThreshold: 3,
			Timeout:          2 * time.Minute,
		}),
	}
}

// Analyze requests commentary for the given stocks.
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error) {
	if len(req.Stocks) == 0 {
		return nil, errors.New("aianalysis: no stocks to analyze")
	}

	var out *AnalyzeResponse
	err := c.breaker.Call(func() error {
		resp, err := c.invoke(ctx, req)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) invoke(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	build := func() (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("User-Agent", c.userAgent)
		return httpReq, nil
	}

	start := time.Now()
	resp, err := httpx.DoWithRetry(c.httpClient, upstreamName, build, nil)
	metrics.UpstreamDuration.WithLabelValues(upstreamName).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, upstream.ClassifyErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, upstream.ClassifyResponse(resp)
	}

	var payload AnalyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, upstream.Malformed(err)
	}
	if payload.StockAnalyses == nil && payload.MarketInsight == "" {
		return nil, upstream.Malformed(errors.New("analysis response carried no content"))
	}
	return &payload, nil
}

// CacheKey returns the deterministic cache key for an analysis request: the
// sorted ticker set, so the same watchlist hits the same entry regardless of
// order.
func (r AnalyzeRequest) CacheKey() string {
	tickers := make([]string, len(r.Stocks))
	for i, s := range r.Stocks {
		tickers[i] = s.Ticker
	}
	sort.Strings(tickers)
	return "ai_analysis_" + strings.Join(tickers, "_")
}
