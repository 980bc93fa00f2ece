// Package apikeys resolves the market-data API key through the key-retrieval
// proxy, lazily and once per process.
package apikeys

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/onnwee/market-pulse/backend/internal/config"
	"github.com/onnwee/market-pulse/backend/internal/httpx"
	"github.com/onnwee/market-pulse/backend/internal/logger"
	"github.com/onnwee/market-pulse/backend/internal/upstream"
)

const upstreamName = "apikey"

// Provider fetches the API key on first use and caches it in memory for the
// process lifetime. After the bounded retry budget is exhausted it falls
// back to the demo key, so a broken key proxy degrades features instead of
// blocking them.
type Provider struct {
	mu         sync.RWMutex
	key        string
	resolved   bool
	httpClient *http.Client
	url        string
	userAgent  string
	maxRetries int
	demoKey    string
	retryDelay time.Duration
}

// NewProvider builds a provider from config.
func NewProvider(cfg *config.Config) *Provider {
	return &Provider{
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		url:        cfg.APIKeyProxyURL,
		userAgent:  cfg.UserAgent,
		maxRetries: cfg.APIKeyMaxRetries,
		demoKey:    cfg.DemoAPIKey,
		retryDelay: cfg.HTTPRetryBase,
	}
}

// Get returns the API key, fetching it on first call. Concurrent first
// callers serialize on the write lock; later calls are lock-free reads.
func (p *Provider) Get(ctx context.Context) string {
	p.mu.RLock()
	if p.resolved {
		key := p.key
		p.mu.RUnlock()
		return key
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resolved {
		return p.key
	}

	key, err := p.fetchKey(ctx)
	if err != nil {
		logger.WarnContext(ctx, "api key fetch failed, using demo key", "error", err)
		key = p.demoKey
	}
	p.key = key
	p.resolved = true
	return p.key
}

// Reset drops the cached key so the next Get refetches. For tests and for
// credential rotation.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.key = ""
	p.resolved = false
}

func (p *Provider) fetchKey(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		key, err := p.requestKey(ctx)
		if err == nil {
			return key, nil
		}
		lastErr = err
		if !upstream.IsRetryable(err) {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(p.retryDelay * time.Duration(attempt)):
		}
	}
	return "", lastErr
}

func (p *Provider) requestKey(ctx context.Context) (string, error) {
	build := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", p.userAgent)
		return req, nil
	}

	resp, err := httpx.DoWithRetry(p.httpClient, upstreamName, build, nil)
	if err != nil {
		return "", upstream.ClassifyErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", upstream.ClassifyResponse(resp)
	}

	var payload struct {
		APIKey string `json:"apiKey"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", upstream.Malformed(err)
	}
	if payload.APIKey == "" {
		return "", upstream.Malformed(errors.New("received empty api key"))
	}
	return payload.APIKey, nil
}
