// Package httpx wraps outbound HTTP requests with lightweight retries,
// honoring Retry-After and backing off with jitter between attempts.
package httpx

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/onnwee/market-pulse/backend/internal/config"
	"github.com/onnwee/market-pulse/backend/internal/logger"
	"github.com/onnwee/market-pulse/backend/internal/metrics"
)

// PreAttempt lets callers run logic (e.g. rate limiting) before each try;
// return a context error to abort.
type PreAttempt func(ctx context.Context, attempt int) error

// AttemptInfo describes a single attempt outcome.
type AttemptInfo struct {
	Attempt int
	Method  string
	URL     string
	Status  int
	Err     error
	Wait    time.Duration
}

// Observer callback to report attempt telemetry.
type Observer func(info AttemptInfo)

// DoWithRetry issues the request built by build, retrying 429s, 5xx and
// transport errors up to the configured attempt count. The upstream label
// feeds the request metrics.
func DoWithRetry(client *http.Client, upstreamName string, build func() (*http.Request, error), pre PreAttempt) (*http.Response, error) {
	return DoWithRetryObs(client, upstreamName, build, pre, nil)
}

// DoWithRetryObs is like DoWithRetry but reports attempts to an observer.
func DoWithRetryObs(client *http.Client, upstreamName string, build func() (*http.Request, error), pre PreAttempt, obs Observer) (*http.Response, error) {
	cfg := config.Load()
	maxAttempts := cfg.HTTPMaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	baseDelay := cfg.HTTPRetryBase

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := build()
		if err != nil {
			return nil, err
		}
		// The hook gets the request's context so rate-limiter waits stop
		// when the caller gives up.
		if pre != nil {
			if err := pre(req.Context(), attempt); err != nil {
				return nil, err
			}
		}
		resp, err := client.Do(req)
		if err != nil {
			metrics.UpstreamRequests.WithLabelValues(upstreamName, "error").Inc()
			if attempt == maxAttempts || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if cfg.LogHTTPRetries {
					logger.Warn("httpx giving up", "attempt", attempt, "method", req.Method, "url", req.URL.String(), "error", err)
				}
				report(obs, AttemptInfo{Attempt: attempt, Method: req.Method, URL: req.URL.String(), Err: err})
				return nil, err
			}
			metrics.UpstreamRetries.Inc()
			report(obs, AttemptInfo{Attempt: attempt, Method: req.Method, URL: req.URL.String(), Err: err})
		} else {
			// Success unless throttled or 5xx.
			if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
				metrics.UpstreamRequests.WithLabelValues(upstreamName, "success").Inc()
				if cfg.LogHTTPRetries && attempt > 1 {
					logger.Debug("httpx succeeded after retry", "attempt", attempt, "method", req.Method, "url", req.URL.String(), "status", resp.StatusCode)
				}
				report(obs, AttemptInfo{Attempt: attempt, Method: req.Method, URL: req.URL.String(), Status: resp.StatusCode})
				return resp, nil
			}

			metrics.UpstreamRequests.WithLabelValues(upstreamName, "retry").Inc()
			if attempt == maxAttempts {
				if cfg.LogHTTPRetries {
					logger.Warn("httpx giving up on status", "attempt", attempt, "method", req.Method, "url", req.URL.String(), "status", resp.StatusCode)
				}
				report(obs, AttemptInfo{Attempt: attempt, Method: req.Method, URL: req.URL.String(), Status: resp.StatusCode})
				return resp, nil
			}

			if wait, ok := retryAfter(resp); ok {
				resp.Body.Close()
				metrics.UpstreamRetryAfterWaits.Observe(wait.Seconds())
				if cfg.LogHTTPRetries {
					logger.Debug("httpx honoring Retry-After", "attempt", attempt, "wait", wait.String(), "url", req.URL.String())
				}
				report(obs, AttemptInfo{Attempt: attempt, Method: req.Method, URL: req.URL.String(), Status: resp.StatusCode, Wait: wait})
				time.Sleep(wait)
				continue
			}
			resp.Body.Close()
			metrics.UpstreamRetries.Inc()
		}

		// Backoff with jitter before the next attempt.
		jitter := time.Duration(rand.Intn(200)) * time.Millisecond
		delay := baseDelay*time.Duration(attempt) + jitter
		report(obs, AttemptInfo{Attempt: attempt, Wait: delay})
		time.Sleep(delay)
	}
	return nil, errors.New("httpx: exhausted retries")
}

// retryAfter parses the Retry-After header as either seconds or a date.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	ra := resp.Header.Get("Retry-After")
	if ra == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(ra); err == nil {
		if delta := time.Until(t); delta > 0 {
			return delta, true
		}
	}
	return 0, false
}

func report(obs Observer, info AttemptInfo) {
	if obs != nil {
		obs(info)
	}
}
