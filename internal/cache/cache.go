// Package cache implements the durable cache store: JSON values keyed by
// string with per-entry TTL, priority class, access statistics and
// quota-based eviction. It is read by presentation code and written by
// anything that fetches data worth keeping across sessions.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkarpov/syncbox/internal/common"
	"github.com/dkarpov/syncbox/internal/logging"
	"github.com/dkarpov/syncbox/internal/models"
	"github.com/dkarpov/syncbox/internal/storage"
)

// TTLs holds the configured expiry per priority class, used by the domain
// wrappers.
type TTLs struct {
	High   time.Duration
	Medium time.Duration
	Low    time.Duration
}

// DefaultTTLs mirrors the configuration defaults.
func DefaultTTLs() TTLs {
	return TTLs{High: 24 * time.Hour, Medium: 6 * time.Hour, Low: time.Hour}
}

// For returns the TTL for a priority class.
func (t TTLs) For(p models.Priority) time.Duration {
	switch p {
	case models.PriorityHigh:
		return t.High
	case models.PriorityMedium:
		return t.Medium
	default:
		return t.Low
	}
}

// Store is the cache store. All durability goes through storage.Store.
type Store struct {
	store    storage.Store
	log      logging.Logger
	maxBytes int64
	ttls     TTLs

	// now is a seam for tests.
	now func() time.Time
}

// NewStore builds a cache store bounded by maxBytes. A zero ttls falls back
// to DefaultTTLs.
func NewStore(store storage.Store, maxBytes int64, ttls TTLs, log logging.Logger) *Store {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if ttls == (TTLs{}) {
		ttls = DefaultTTLs()
	}
	return &Store{
		store:    store,
		log:      log,
		maxBytes: maxBytes,
		ttls:     ttls,
		now:      time.Now,
	}
}

// Set serializes value and stores it under key, overwriting any previous
// entry. ttl <= 0 means no expiry. Values that cannot be JSON-encoded
// (cycles, channels, ...) fail with a SerializationError.
//
// Expired entries are swept before the write, and when the quota is
// critical the store evicts down to 80% of the maximum before admitting
// the new entry.
func (s *Store) Set(ctx context.Context, key string, value any, priority models.Priority, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return &common.SerializationError{Err: err}
	}

	now := s.now().UTC()

	if _, err := s.store.DeleteExpiredCacheEntries(ctx, now); err != nil {
		return err
	}

	if err := s.ensureCapacity(ctx, int64(len(data))); err != nil {
		return err
	}

	entry := &models.CacheEntry{
		Key:            key,
		Value:          data,
		Priority:       priority,
		CreatedAt:      now,
		SizeBytes:      int64(len(data)),
		LastAccessedAt: now,
	}
	if ttl > 0 {
		t := now.Add(ttl)
		entry.ExpiresAt = &t
	}
	return s.store.UpsertCacheEntry(ctx, entry)
}

// ensureCapacity frees space when admitting size more bytes would leave the
// quota critical.
func (s *Store) ensureCapacity(ctx context.Context, size int64) error {
	used, err := s.store.CacheUsedBytes(ctx)
	if err != nil {
		return err
	}
	available := s.maxBytes - used - size
	if float64(available) >= common.CriticalQuotaRatio*float64(s.maxBytes) {
		return nil
	}

	target := int64(common.EvictionTargetRatio * float64(s.maxBytes))
	freed, err := s.store.EvictCacheEntries(ctx, target)
	if err != nil {
		return err
	}
	s.log.Info(ctx, "cache eviction", "freed_bytes", freed, "target_bytes", target)
	return nil
}

// Get loads the value stored under key into dest and reports whether it was
// found. An expired entry behaves exactly like a miss and is deleted as a
// side effect; a hit bumps the entry's access statistics. Storage read
// failures degrade to a miss.
func (s *Store) Get(ctx context.Context, key string, dest any) (bool, error) {
	entry, err := s.store.GetCacheEntry(ctx, key)
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		s.log.Warn(ctx, "cache read degraded to miss", "key", key, "error", err)
		return false, nil
	}

	now := s.now().UTC()
	if entry.Expired(now) {
		if err := s.store.DeleteCacheEntry(ctx, key); err != nil {
			s.log.Warn(ctx, "failed to drop expired cache entry", "key", key, "error", err)
		}
		return false, nil
	}

	// Best effort: a failed stats bump must not turn a hit into an error.
	if err := s.store.TouchCacheEntry(ctx, key, now); err != nil {
		s.log.Warn(ctx, "failed to touch cache entry", "key", key, "error", err)
	}

	if err := json.Unmarshal(entry.Value, dest); err != nil {
		return false, &common.SerializationError{Err: err}
	}
	return true, nil
}

// Delete removes key. Absent keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.store.DeleteCacheEntry(ctx, key)
}

// Quota returns derived usage accounting against the configured maximum.
func (s *Store) Quota(ctx context.Context) (models.StorageQuota, error) {
	used, err := s.store.CacheUsedBytes(ctx)
	if err != nil {
		return models.StorageQuota{}, err
	}
	q := models.StorageQuota{
		Total:     s.maxBytes,
		Used:      used,
		Available: s.maxBytes - used,
	}
	q.Critical = float64(q.Available) < common.CriticalQuotaRatio*float64(q.Total)
	return q, nil
}

// Cleanup runs storage housekeeping: expired cache entries plus aged-out
// terminal operations, in one transaction.
func (s *Store) Cleanup(ctx context.Context) (storage.CleanupResult, error) {
	return s.store.Cleanup(ctx, s.now().UTC())
}
