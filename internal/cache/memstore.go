package cache

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/market-pulse/backend/internal/metrics"
)

// record is one persisted envelope plus the metadata needed for eviction
// without re-decoding.
type record struct {
	raw []byte
	ts  int64
}

// MemStore is a quota-bounded, synchronous Store keeping JSON-serialized
// envelopes in memory. It mirrors the semantics of a size-limited
// origin-scoped storage medium: writes beyond the byte quota fail, and the
// store evicts the oldest same-namespace entry and retries once.
type MemStore struct {
	mu    sync.RWMutex
	items map[string]record
	bytes int64
	quota int64
	now   func() time.Time
}

// NewMemStore creates a store holding at most quotaBytes of serialized
// envelopes. A quota of 0 or less means unbounded.
func NewMemStore(quotaBytes int64) *MemStore {
	return &MemStore{
		items: make(map[string]record),
		quota: quotaBytes,
		now:   time.Now,
	}
}

// Read returns the envelope for key. Corrupt stored bytes are deleted and
// reported as a miss.
func (s *MemStore) Read(key string) (Entry, bool) {
	s.mu.RLock()
	rec, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		metrics.CacheReads.WithLabelValues("miss").Inc()
		return Entry{}, false
	}

	var e Entry
	if err := json.Unmarshal(rec.raw, &e); err != nil {
		// Corruption degrades to absent, never to an error.
		s.Delete(key)
		metrics.CacheReads.WithLabelValues("corrupt").Inc()
		return Entry{}, false
	}
	metrics.CacheReads.WithLabelValues("hit").Inc()
	return e, true
}

// Write persists the envelope under key, evicting the oldest same-namespace
// entry and retrying exactly once when the quota is exceeded.
func (s *MemStore) Write(key string, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.putLocked(key, raw, e.Timestamp); err == nil {
		metrics.CacheWrites.WithLabelValues("success").Inc()
		return nil
	}

	// Quota pressure: free the oldest entry in this key's namespace and try
	// once more.
	if evicted := s.evictOldestLocked(namespaceOf(key)); evicted {
		metrics.CacheEvictions.Inc()
		if err := s.putLocked(key, raw, e.Timestamp); err == nil {
			metrics.CacheWrites.WithLabelValues("evicted_retry").Inc()
			return nil
		}
	}

	metrics.CacheWrites.WithLabelValues("abandoned").Inc()
	return ErrWriteAbandoned
}

// putLocked stores raw under key if it fits, accounting for any entry it
// replaces. Caller holds the write lock.
func (s *MemStore) putLocked(key string, raw []byte, ts int64) error {
	delta := int64(len(raw))
	if prev, ok := s.items[key]; ok {
		delta -= int64(len(prev.raw))
	}
	if s.quota > 0 && s.bytes+delta > s.quota {
		return ErrQuotaExceeded
	}
	s.items[key] = record{raw: raw, ts: ts}
	s.bytes += delta
	return nil
}

// evictOldestLocked removes the entry with the smallest timestamp among keys
// sharing the namespace. Caller holds the write lock.
func (s *MemStore) evictOldestLocked(namespace string) bool {
	oldestKey := ""
	oldestTS := int64(0)
	for k, rec := range s.items {
		if namespace != "" && !strings.HasPrefix(k, namespace) {
			continue
		}
		if oldestKey == "" || rec.ts < oldestTS {
			oldestKey = k
			oldestTS = rec.ts
		}
	}
	if oldestKey == "" {
		return false
	}
	s.bytes -= int64(len(s.items[oldestKey].raw))
	delete(s.items, oldestKey)
	return true
}

// Delete removes one key.
func (s *MemStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.items[key]; ok {
		s.bytes -= int64(len(rec.raw))
		delete(s.items, key)
	}
}

// Clear removes every key with the given prefix and returns the count removed.
func (s *MemStore) Clear(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, rec := range s.items {
		if strings.HasPrefix(k, prefix) {
			s.bytes -= int64(len(rec.raw))
			delete(s.items, k)
			removed++
		}
	}
	return removed
}

// Timestamp returns the write time for key, if an entry exists.
func (s *MemStore) Timestamp(key string) (time.Time, bool) {
	s.mu.RLock()
	rec, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(rec.ts), true
}

// Stats summarizes the entries under prefix.
func (s *MemStore) Stats(prefix string) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	stats := Stats{Items: []ItemStat{}}
	for k, rec := range s.items {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		stats.TotalItems++
		stats.TotalBytes += int64(len(rec.raw))
		stats.Items = append(stats.Items, ItemStat{
			Key:       k,
			Bytes:     int64(len(rec.raw)),
			Timestamp: rec.ts,
			Age:       now.Sub(time.UnixMilli(rec.ts)),
		})
	}
	if stats.TotalItems > 0 {
		stats.AverageBytes = stats.TotalBytes / int64(stats.TotalItems)
	}
	metrics.CacheBytes.WithLabelValues(prefix).Set(float64(stats.TotalBytes))
	return stats
}

// namespaceOf returns the key's namespace prefix, the text up to and
// including the first underscore ("econ_inflation_12" -> "econ_"). Keys
// without an underscore share the empty namespace, which matches every key.
func namespaceOf(key string) string {
	if i := strings.Index(key, "_"); i >= 0 {
		return key[:i+1]
	}
	return ""
}
