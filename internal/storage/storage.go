// Package storage defines the durable store contract shared by the sqlite
// and postgres backends: typed tables for operations, cache entries and
// conflict records, plus transactional housekeeping.
package storage

import (
	"context"
	"time"

	"github.com/dkarpov/syncbox/internal/models"
)

// OperationFilter narrows ListOperations. Zero values mean "no filter".
type OperationFilter struct {
	Status     models.OperationStatus
	OwnerID    string
	EntityType string
	EntityID   string
	// Since keeps only operations with CreatedAt strictly after it.
	Since *time.Time
	// Limit caps the result set; 0 means unlimited.
	Limit int
}

// CleanupResult reports what one housekeeping pass removed.
type CleanupResult struct {
	ExpiredCacheEntries int64
	CompletedOperations int64
	FailedOperations    int64
}

// Store is the durable, crash-tolerant keyed storage all components funnel
// writes through. Multi-statement methods (Cleanup, EvictCacheEntries,
// ResetProcessingOperations) execute inside a single transaction.
type Store interface {
	// Operations.

	InsertOperation(ctx context.Context, op *models.Operation) error
	// GetOperation returns common.ErrNotFound for unknown ids.
	GetOperation(ctx context.Context, id string) (*models.Operation, error)
	// ListOperations returns matches ordered by CreatedAt ascending.
	ListOperations(ctx context.Context, f OperationFilter) ([]models.Operation, error)
	// UpdateOperationStatus moves an operation to status, recording retry
	// count and last error. Terminal operations are never updated. Returns
	// false when no row changed (unknown id or terminal state).
	UpdateOperationStatus(ctx context.Context, id string, status models.OperationStatus, retryCount int, lastError string, at time.Time) (bool, error)
	// DeleteOperation removes regardless of status; idempotent.
	DeleteOperation(ctx context.Context, id string) error
	CountOperationsByStatus(ctx context.Context) (models.QueueStats, error)
	// ResetProcessingOperations moves stuck processing operations back to
	// pending. Used for crash recovery at startup.
	ResetProcessingOperations(ctx context.Context, at time.Time) (int64, error)
	// DeleteOperationsBefore removes operations in status whose last update
	// is before cutoff. Returns the number of rows deleted.
	DeleteOperationsBefore(ctx context.Context, status models.OperationStatus, cutoff time.Time) (int64, error)

	// Cache entries.

	UpsertCacheEntry(ctx context.Context, e *models.CacheEntry) error
	// GetCacheEntry returns common.ErrNotFound on miss. Expiry is the
	// caller's concern; the row is returned as stored.
	GetCacheEntry(ctx context.Context, key string) (*models.CacheEntry, error)
	// TouchCacheEntry bumps access statistics after a successful read.
	TouchCacheEntry(ctx context.Context, key string, at time.Time) error
	// DeleteCacheEntry is idempotent.
	DeleteCacheEntry(ctx context.Context, key string) error
	DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int64, error)
	CacheUsedBytes(ctx context.Context) (int64, error)
	// EvictCacheEntries deletes entries, low priority before medium before
	// high and oldest last access first, until usage drops to targetBytes.
	// Runs in a single transaction; returns the number of bytes freed.
	EvictCacheEntries(ctx context.Context, targetBytes int64) (int64, error)

	// Conflict records.

	InsertConflict(ctx context.Context, c *models.ConflictRecord) error
	// ListConflicts filters by entity type when entityType is non-empty.
	ListConflicts(ctx context.Context, entityType string) ([]models.ConflictRecord, error)

	// Cleanup deletes, inside one transaction: expired cache entries,
	// completed operations older than 7 days and failed operations older
	// than 30 days.
	Cleanup(ctx context.Context, now time.Time) (CleanupResult, error)

	Close() error
}
