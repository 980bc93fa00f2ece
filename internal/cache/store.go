package cache

import (
	"errors"
	"time"
)

// ErrQuotaExceeded is returned internally when a write does not fit under the
// store's byte quota.
var ErrQuotaExceeded = errors.New("cache: storage quota exceeded")

// ErrWriteAbandoned is returned when a write still does not fit after the
// single eviction retry. Callers treat it as non-fatal: the fetched data is
// simply not cached.
var ErrWriteAbandoned = errors.New("cache: write abandoned after eviction retry")

// Store is the persistence abstraction for timestamped cache envelopes.
// Implementations never return an error for corrupt stored data; corruption
// degrades to "entry absent".
type Store interface {
	// Read returns the envelope for key, or false when the key is absent or
	// the stored bytes cannot be decoded.
	Read(key string) (Entry, bool)

	// Write serializes the envelope and persists it. On quota exhaustion the
	// oldest same-namespace entry is evicted and the write retried exactly
	// once; if the retry also fails, ErrWriteAbandoned is returned and the
	// store is left without an entry for key.
	Write(key string, e Entry) error

	// Delete removes one key.
	Delete(key string)

	// Clear removes every key with the given prefix and returns the count
	// removed.
	Clear(prefix string) int

	// Timestamp returns the write time of the entry for key, if present.
	Timestamp(key string) (time.Time, bool)

	// Stats summarizes the entries under prefix for diagnostics.
	Stats(prefix string) Stats
}

// Stats describes the entries under one namespace prefix.
type Stats struct {
	TotalItems   int        `json:"totalItems"`
	TotalBytes   int64      `json:"totalBytes"`
	AverageBytes int64      `json:"averageBytes"`
	Items        []ItemStat `json:"items"`
}

// ItemStat describes a single cached entry.
type ItemStat struct {
	Key       string        `json:"key"`
	Bytes     int64         `json:"bytes"`
	Timestamp int64         `json:"timestamp"`
	Age       time.Duration `json:"age"`
}
