// Package fetchcache wraps arbitrary fetch operations with cache lookup,
// freshness checks, invoke-and-store on miss, and stale-on-error fallback.
package fetchcache

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/onnwee/market-pulse/backend/internal/cache"
	"github.com/onnwee/market-pulse/backend/internal/logger"
	"github.com/onnwee/market-pulse/backend/internal/metrics"
)

// Fetcher performs the network round-trip for one cache key and returns the
// serialized payload. Timeout handling lives inside the fetcher (see the
// upstream clients); the orchestrator only decides whether to call it.
type Fetcher func(ctx context.Context) ([]byte, error)

// Result is the outcome of a fetch-with-cache invocation. Stale is set when
// the payload came from an expired entry because the fetch failed; StaleErr
// then carries the fetch error as a non-blocking warning.
type Result struct {
	Data      json.RawMessage
	FetchedAt time.Time
	Stale     bool
	StaleErr  error
}

// Orchestrator coordinates the cache store and fetchers. Concurrent callers
// for the same key share one in-flight fetch.
type Orchestrator struct {
	store cache.Store
	group singleflight.Group
	now   func() time.Time
}

// New creates an orchestrator over the given store.
func New(store cache.Store) *Orchestrator {
	return &Orchestrator{
		store: store,
		now:   time.Now,
	}
}

// Fetch resolves key to a payload:
//
//  1. Unless force is set, a fresh cache entry is returned with no fetcher
//     call.
//  2. Otherwise the fetcher runs (deduplicated across concurrent callers)
//     and its result is written back under key.
//  3. If the fetcher fails and any entry exists for key, that entry is
//     returned stale with the fetch error attached as a warning.
//  4. With no entry to fall back on, the fetch error propagates.
func (o *Orchestrator) Fetch(ctx context.Context, key string, ttl time.Duration, force bool, fetcher Fetcher) (Result, error) {
	if !force {
		if e, ok := o.store.Read(key); ok && cache.IsFresh(e, ttl, o.now()) {
			metrics.FetchOutcomes.WithLabelValues("fresh_hit").Inc()
			return Result{Data: e.Data, FetchedAt: e.Time()}, nil
		}
	}

	v, err, shared := o.group.Do(key, func() (interface{}, error) {
		data, err := fetcher(ctx)
		if err != nil {
			return nil, err
		}
		now := o.now()
		entry := cache.NewEntry(data, now)
		if werr := o.store.Write(key, entry); werr != nil {
			// Best-effort persistence: the fetch succeeded, so the caller
			// still gets data even when the store is full.
			logger.WarnContext(ctx, "cache write abandoned", "key", key, "error", werr)
		}
		return Result{Data: data, FetchedAt: now}, nil
	})
	if shared {
		metrics.FetchDeduped.Inc()
	}
	if err == nil {
		metrics.FetchOutcomes.WithLabelValues("fetched").Inc()
		return v.(Result), nil
	}

	// Fetch failed. Any existing entry, fresh or not, beats an empty UI.
	if e, ok := o.store.Read(key); ok {
		metrics.FetchOutcomes.WithLabelValues("stale_fallback").Inc()
		logger.WarnContext(ctx, "serving stale cache entry after fetch failure",
			"key", key,
			"age", o.now().Sub(e.Time()).String(),
			"error", err)
		return Result{Data: e.Data, FetchedAt: e.Time(), Stale: true, StaleErr: err}, nil
	}

	metrics.FetchOutcomes.WithLabelValues("error").Inc()
	return Result{}, err
}

// CacheTimestamp returns the write time of the entry for key, or the zero
// time when absent.
func (o *Orchestrator) CacheTimestamp(key string) (time.Time, bool) {
	return o.store.Timestamp(key)
}

// ClearCache removes every entry under prefix and returns the count removed.
func (o *Orchestrator) ClearCache(prefix string) int {
	return o.store.Clear(prefix)
}

// CacheStats summarizes the entries under prefix.
func (o *Orchestrator) CacheStats(prefix string) cache.Stats {
	return o.store.Stats(prefix)
}

// FetchJSON is the typed convenience wrapper around Orchestrator.Fetch: the
// fetcher returns a value, the orchestrator caches its JSON encoding, and
// cache hits decode back into T.
func FetchJSON[T any](ctx context.Context, o *Orchestrator, key string, ttl time.Duration, force bool, fetch func(ctx context.Context) (T, error)) (T, Result, error) {
	var zero T
	res, err := o.Fetch(ctx, key, ttl, force, func(ctx context.Context) ([]byte, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return zero, res, err
	}
	var out T
	if err := json.Unmarshal(res.Data, &out); err != nil {
		return zero, res, err
	}
	return out, res, nil
}
