package models

import (
	"encoding/json"
	"time"
)

// Priority is the cache entry priority class. Eviction frees low before
// medium before high.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// CacheEntry is a durable cached value.
type CacheEntry struct {
	Key   string
	Value json.RawMessage

	Priority Priority

	CreatedAt time.Time
	// ExpiresAt is nil for entries without a TTL.
	ExpiresAt *time.Time

	// SizeBytes is computed from the serialized form at write time.
	SizeBytes int64

	// Access statistics, updated on every successful read.
	AccessCount    int64
	LastAccessedAt time.Time
}

// Expired reports whether the entry's TTL has elapsed at now.
func (e *CacheEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

// StorageQuota is derived usage accounting, never stored.
type StorageQuota struct {
	Total     int64
	Used      int64
	Available int64
	// Critical is true when available space is below 10% of the total.
	Critical bool
}
