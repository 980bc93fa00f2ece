package cache

import (
	"encoding/json"
	"time"
)

// Entry is the envelope persisted for every cached payload. The payload is
// opaque to the cache layer; Timestamp is epoch milliseconds at write time.
// An Entry is immutable once written; refreshing a key replaces the whole
// envelope under the same key.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// NewEntry wraps a serialized payload in an envelope stamped at now.
func NewEntry(data []byte, now time.Time) Entry {
	return Entry{
		Data:      json.RawMessage(data),
		Timestamp: now.UnixMilli(),
	}
}

// Time returns the write time of the entry.
func (e Entry) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Age returns how long ago the entry was written.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.Time())
}
