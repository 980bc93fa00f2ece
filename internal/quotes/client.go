// Package quotes is the client for the realtime market-data proxy. Calls are
// paced by a token-bucket rate limiter shared across the process so the
// realtime coordinator and ad-hoc API requests never exceed the upstream
// quota together.
package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/onnwee/market-pulse/backend/internal/apikeys"
	"github.com/onnwee/market-pulse/backend/internal/config"
	"github.com/onnwee/market-pulse/backend/internal/httpx"
	"github.com/onnwee/market-pulse/backend/internal/metrics"
	"github.com/onnwee/market-pulse/backend/internal/upstream"
	"github.com/onnwee/market-pulse/backend/internal/utils"
)

const upstreamName = "quotes"

// Quote is one symbol's realtime snapshot.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	PrevClose     float64 `json:"prevClose"`
	Timestamp     int64   `json:"timestamp"`
}

// Client fetches quote snapshots from the quotes proxy.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	timeout    time.Duration
	limiter    *rate.Limiter
	keys       *apikeys.Provider
}

// NewClient builds a client from config. The key provider may be nil when the
// proxy needs no key (e.g. in tests).
func NewClient(cfg *config.Config, keys *apikeys.Provider) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		baseURL:    cfg.QuotesProxyURL,
		userAgent:  cfg.UserAgent,
		timeout:    cfg.FetchTimeout,
		limiter:    rate.NewLimiter(rate.Limit(cfg.QuotesRPS), cfg.QuotesBurstSize),
		keys:       keys,
	}
}

// Snapshot fetches quotes for the given symbols in one round-trip.
func (c *Client) Snapshot(ctx context.Context, symbols []string) (map[string]Quote, error) {
	if len(symbols) == 0 {
		return map[string]Quote{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	normalized := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if v := utils.NormalizeSymbol(s); v != "" {
			normalized = append(normalized, v)
		}
	}
	normalized = utils.UniqueStrings(normalized)

	reqURL, err := c.buildURL(ctx, normalized)
	if err != nil {
		return nil, err
	}

	pre := func(ctx context.Context, attempt int) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		metrics.UpstreamRateLimitWaits.Inc()
		return nil
	}

	build := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", c.userAgent)
		return req, nil
	}

	start := time.Now()
	resp, err := httpx.DoWithRetry(c.httpClient, upstreamName, build, pre)
	metrics.UpstreamDuration.WithLabelValues(upstreamName).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, upstream.ClassifyErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, upstream.ClassifyResponse(resp)
	}

	var list []Quote
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, upstream.Malformed(err)
	}
	if len(list) == 0 {
		return nil, upstream.Malformed(errors.New("empty quote list"))
	}

	out := make(map[string]Quote, len(list))
	for _, q := range list {
		out[utils.NormalizeSymbol(q.Symbol)] = q
	}
	return out, nil
}

func (c *Client) buildURL(ctx context.Context, symbols []string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("symbols", strings.Join(symbols, ","))
	if c.keys != nil {
		q.Set("apikey", c.keys.Get(ctx))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
