// Package realtime maintains one shared polling cycle for quote data so any
// number of UI consumers (websocket clients, status endpoints) react to the
// same refresh instead of polling independently.
package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dgraph-io/ristretto"

	"github.com/onnwee/market-pulse/backend/internal/config"
	"github.com/onnwee/market-pulse/backend/internal/logger"
	"github.com/onnwee/market-pulse/backend/internal/metrics"
	"github.com/onnwee/market-pulse/backend/internal/quotes"
	"github.com/onnwee/market-pulse/backend/internal/upstream"
	"github.com/onnwee/market-pulse/backend/internal/utils"
)

// EventType labels coordinator events delivered to subscribers.
type EventType string

const (
	EventQuotes EventType = "quotes"
	EventStatus EventType = "status"
	EventError  EventType = "error"
)

// Event is what subscribers receive on every data, status, or error change.
type Event struct {
	Type   EventType               `json:"type"`
	Quotes map[string]quotes.Quote `json:"quotes,omitempty"`
	Status Status                  `json:"status"`
	Err    string                  `json:"error,omitempty"`
}

// Status is the coordinator's observable state. LastUpdated is nil until the
// first successful refresh.
type Status struct {
	LastUpdated *time.Time `json:"lastUpdated"`
	IsPaused    bool       `json:"isPaused"`
}

// FetchFunc performs one snapshot fetch for the watched symbol set.
type FetchFunc func(ctx context.Context) (map[string]quotes.Quote, error)

// Coordinator owns the pause flag, the last-updated timestamp, and the hot
// per-symbol quote cache. All mutation goes through its methods.
type Coordinator struct {
	mu          sync.RWMutex
	subscribers map[int]func(Event)
	nextSubID   int
	paused      bool
	lastUpdated *time.Time

	cache    *ristretto.Cache
	cacheTTL time.Duration

	fetch      FetchFunc
	interval   time.Duration
	maxRetries int
	retryBase  time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a coordinator polling via fetch at the configured interval.
func New(cfg *config.Config, fetch FetchFunc) (*Coordinator, error) {
	numCounters := cfg.QuoteCacheEntries * 10
	if numCounters < 1000 {
		numCounters = 1000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     cfg.QuoteCacheMB * 1024 * 1024,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	return &Coordinator{
		subscribers: make(map[int]func(Event)),
		cache:       cache,
		cacheTTL:    2 * cfg.RealtimeInterval,
		fetch:       fetch,
		interval:    cfg.RealtimeInterval,
		maxRetries:  cfg.RealtimeMaxRetries,
		retryBase:   cfg.RealtimeRetryBase,
		stop:        make(chan struct{}),
	}, nil
}

// Start runs the polling loop until the context is canceled or Stop is
// called. The first cycle runs immediately.
func (c *Coordinator) Start(ctx context.Context) {
	logger.WithComponent("realtime").Info("starting realtime coordinator", "interval", c.interval.String())
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.runScheduledCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.runScheduledCycle(ctx)
		}
	}
}

// Stop halts the polling loop and releases the quote cache.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
		c.cache.Close()
	})
}

// runScheduledCycle refreshes unless paused, retrying transient failures
// with exponential backoff before surfacing a terminal error event.
func (c *Coordinator) runScheduledCycle(ctx context.Context) {
	c.mu.RLock()
	paused := c.paused
	c.mu.RUnlock()
	if paused {
		metrics.RealtimeCycles.WithLabelValues("skipped_paused").Inc()
		return
	}

	start := time.Now()
	op := func() (map[string]quotes.Quote, error) {
		snap, err := c.fetch(ctx)
		if err != nil && !upstream.IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return snap, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryBase

	snap, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.maxRetries)),
	)
	metrics.RealtimeCycleDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RealtimeCycles.WithLabelValues("failed").Inc()
		logger.WithComponent("realtime").Warn("refresh cycle failed after retries", "error", err)
		c.notify(Event{Type: EventError, Status: c.Status(), Err: err.Error()})
		return
	}

	metrics.RealtimeCycles.WithLabelValues("success").Inc()
	c.applySnapshot(snap)
}

// RefreshData triggers an immediate fetch outside the normal schedule. It
// works while paused; a success updates lastUpdated like any other cycle.
func (c *Coordinator) RefreshData(ctx context.Context) error {
	snap, err := c.fetch(ctx)
	if err != nil {
		c.notify(Event{Type: EventError, Status: c.Status(), Err: err.Error()})
		return err
	}
	c.applySnapshot(snap)
	return nil
}

// applySnapshot stores quotes in the hot cache, bumps lastUpdated, and fans
// the data out to subscribers.
func (c *Coordinator) applySnapshot(snap map[string]quotes.Quote) {
	for sym, q := range snap {
		c.cache.SetWithTTL(sym, q, 1, c.cacheTTL)
	}
	c.cache.Wait()

	now := time.Now()
	c.mu.Lock()
	c.lastUpdated = &now
	c.mu.Unlock()

	c.notify(Event{Type: EventQuotes, Quotes: snap, Status: c.Status()})
}

// ToggleUpdates flips the pause flag and returns the new state. A status
// event is emitted so subscribers can reflect it immediately.
func (c *Coordinator) ToggleUpdates() bool {
	c.mu.Lock()
	c.paused = !c.paused
	paused := c.paused
	c.mu.Unlock()

	c.notify(Event{Type: EventStatus, Status: c.Status()})
	return paused
}

// Status returns a snapshot of the coordinator state. No side effects.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var last *time.Time
	if c.lastUpdated != nil {
		t := *c.lastUpdated
		last = &t
	}
	return Status{LastUpdated: last, IsPaused: c.paused}
}

// CachedQuote returns the last known quote for a symbol, if still cached.
func (c *Coordinator) CachedQuote(symbol string) (quotes.Quote, bool) {
	v, found := c.cache.Get(utils.NormalizeSymbol(symbol))
	if !found {
		return quotes.Quote{}, false
	}
	q, ok := v.(quotes.Quote)
	if !ok {
		return quotes.Quote{}, false
	}
	return q, true
}

// Subscribe registers a callback for every coordinator event and returns the
// matching unsubscribe function. Callbacks must not block; slow consumers
// should hand events off to their own channel.
func (c *Coordinator) Subscribe(cb func(Event)) func() {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = cb
	count := len(c.subscribers)
	c.mu.Unlock()

	metrics.RealtimeSubscribers.Set(float64(count))

	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		count := len(c.subscribers)
		c.mu.Unlock()
		metrics.RealtimeSubscribers.Set(float64(count))
	}
}

// notify fans an event out to the current subscriber set.
func (c *Coordinator) notify(ev Event) {
	c.mu.RLock()
	cbs := make([]func(Event), 0, len(c.subscribers))
	for _, cb := range c.subscribers {
		cbs = append(cbs, cb)
	}
	c.mu.RUnlock()

	for _, cb := range cbs {
		cb(ev)
	}
}
