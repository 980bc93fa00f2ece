package realtime

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/onnwee/market-pulse/backend/internal/config"
	"github.com/onnwee/market-pulse/backend/internal/quotes"
	"github.com/onnwee/market-pulse/backend/internal/upstream"
)

func testConfig() *config.Config {
	return &config.Config{
		RealtimeInterval:   time.Hour, // scheduled ticks never fire in tests
		RealtimeMaxRetries: 2,
		RealtimeRetryBase:  time.Millisecond,
		QuoteCacheMB:       1,
		QuoteCacheEntries:  64,
	}
}

func snapshotOf(symbols ...string) map[string]quotes.Quote {
	snap := make(map[string]quotes.Quote, len(symbols))
	for _, s := range symbols {
		snap[s] = quotes.Quote{Symbol: s, Price: 100}
	}
	return snap
}

func TestCoordinator_RefreshDataUpdatesState(t *testing.T) {
	c, err := New(testConfig(), func(ctx context.Context) (map[string]quotes.Quote, error) {
		return snapshotOf("SPY", "QQQ"), nil
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Stop()

	if c.Status().LastUpdated != nil {
		t.Fatal("LastUpdated must be nil before any refresh")
	}

	if err := c.RefreshData(context.Background()); err != nil {
		t.Fatalf("RefreshData failed: %v", err)
	}

	st := c.Status()
	if st.LastUpdated == nil {
		t.Fatal("Expected LastUpdated after a successful refresh")
	}
	if q, ok := c.CachedQuote("spy"); !ok || q.Symbol != "SPY" {
		t.Errorf("Expected cached quote for SPY via normalized lookup, got %+v (found=%v)", q, ok)
	}
}

func TestCoordinator_ScheduledCycleSkippedWhilePaused(t *testing.T) {
	var calls int32
	c, err := New(testConfig(), func(ctx context.Context) (map[string]quotes.Quote, error) {
		atomic.AddInt32(&calls, 1)
		return snapshotOf("SPY"), nil
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Stop()

	if paused := c.ToggleUpdates(); !paused {
		t.Fatal("First toggle must pause")
	}

	c.runScheduledCycle(context.Background())
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Errorf("Paused scheduled cycle must not fetch, got %d calls", got)
	}
	if c.Status().LastUpdated != nil {
		t.Error("Paused scheduled cycle must not bump LastUpdated")
	}

	// Manual refresh still works while paused
	if err := c.RefreshData(context.Background()); err != nil {
		t.Fatalf("RefreshData while paused failed: %v", err)
	}
	if c.Status().LastUpdated == nil {
		t.Error("Manual refresh while paused must bump LastUpdated")
	}
	if !c.Status().IsPaused {
		t.Error("Manual refresh must not unpause")
	}
}

func TestCoordinator_ToggleRoundTrip(t *testing.T) {
	c, err := New(testConfig(), func(ctx context.Context) (map[string]quotes.Quote, error) {
		return snapshotOf("SPY"), nil
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Stop()

	if c.Status().IsPaused {
		t.Fatal("Coordinator must start unpaused")
	}
	if !c.ToggleUpdates() {
		t.Error("First toggle must return paused=true")
	}
	if c.ToggleUpdates() {
		t.Error("Second toggle must return paused=false")
	}
}

func TestCoordinator_RetriesTransientFailures(t *testing.T) {
	var calls int32
	c, err := New(testConfig(), func(ctx context.Context) (map[string]quotes.Quote, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, &upstream.APIError{Kind: upstream.KindServer, Message: "upstream server error", Retryable: true}
		}
		return snapshotOf("SPY"), nil
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Stop()

	c.runScheduledCycle(context.Background())

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("Expected 2 fetch attempts, got %d", got)
	}
	if c.Status().LastUpdated == nil {
		t.Error("Expected cycle to succeed on retry")
	}
}

func TestCoordinator_NonRetryableFailureStopsEarly(t *testing.T) {
	var calls int32
	var events []Event
	c, err := New(testConfig(), func(ctx context.Context) (map[string]quotes.Quote, error) {
		atomic.AddInt32(&calls, 1)
		return nil, &upstream.APIError{Kind: upstream.KindAuth, Message: "bad key", Retryable: false}
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Stop()

	unsub := c.Subscribe(func(ev Event) { events = append(events, ev) })
	defer unsub()

	c.runScheduledCycle(context.Background())

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Non-retryable failure must not be retried, got %d attempts", got)
	}
	if len(events) != 1 || events[0].Type != EventError {
		t.Fatalf("Expected one error event, got %+v", events)
	}
	if c.Status().LastUpdated != nil {
		t.Error("Failed cycle must not bump LastUpdated")
	}
}

func TestCoordinator_SubscribeAndUnsubscribe(t *testing.T) {
	c, err := New(testConfig(), func(ctx context.Context) (map[string]quotes.Quote, error) {
		return snapshotOf("SPY"), nil
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Stop()

	var got []Event
	unsub := c.Subscribe(func(ev Event) { got = append(got, ev) })

	if err := c.RefreshData(context.Background()); err != nil {
		t.Fatalf("RefreshData failed: %v", err)
	}
	if len(got) != 1 || got[0].Type != EventQuotes {
		t.Fatalf("Expected one quotes event, got %+v", got)
	}
	if got[0].Quotes["SPY"].Symbol != "SPY" {
		t.Errorf("Event must carry the snapshot, got %+v", got[0].Quotes)
	}

	unsub()
	if err := c.RefreshData(context.Background()); err != nil {
		t.Fatalf("RefreshData failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Unsubscribed callback must not fire, got %d events", len(got))
	}
}

func TestCoordinator_RefreshDataErrorPropagates(t *testing.T) {
	boom := errors.New("snapshot failed")
	c, err := New(testConfig(), func(ctx context.Context) (map[string]quotes.Quote, error) {
		return nil, boom
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Stop()

	var events []Event
	defer c.Subscribe(func(ev Event) { events = append(events, ev) })()

	if err := c.RefreshData(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Expected fetch error back, got %v", err)
	}
	if len(events) != 1 || events[0].Type != EventError || events[0].Err != "snapshot failed" {
		t.Errorf("Expected error event, got %+v", events)
	}
}

func TestCoordinator_CachedQuoteMiss(t *testing.T) {
	c, err := New(testConfig(), func(ctx context.Context) (map[string]quotes.Quote, error) {
		return snapshotOf("SPY"), nil
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Stop()

	if _, ok := c.CachedQuote("TSLA"); ok {
		t.Error("Expected miss for never-fetched symbol")
	}
}

func TestCoordinator_StartRunsImmediateCycle(t *testing.T) {
	var calls int32
	c, err := New(testConfig(), func(ctx context.Context) (map[string]quotes.Quote, error) {
		atomic.AddInt32(&calls, 1)
		return snapshotOf("SPY"), nil
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&calls) == 0 {
		select {
		case <-deadline:
			t.Fatal("Start never ran the initial cycle")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after context cancel")
	}
	c.Stop()
}
