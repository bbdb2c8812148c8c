// Package queue provides the durable operation queue: an ordered log of
// pending local mutations recorded while offline and drained by the sync
// orchestrator when connectivity returns.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dkarpov/syncbox/internal/common"
	"github.com/dkarpov/syncbox/internal/logging"
	"github.com/dkarpov/syncbox/internal/models"
	"github.com/dkarpov/syncbox/internal/storage"
)

// Queue records pending local mutations in the durable store.
type Queue struct {
	store             storage.Store
	log               logging.Logger
	defaultMaxRetries int

	// now is a seam for tests.
	now func() time.Time

	// drain loop state, see drain.go
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New builds a queue over store. defaultMaxRetries applies when Enqueue is
// called without an explicit retry budget.
func New(store storage.Store, defaultMaxRetries int, log logging.Logger) *Queue {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Queue{
		store:             store,
		log:               log,
		defaultMaxRetries: defaultMaxRetries,
		now:               time.Now,
	}
}

// Enqueue durably records one local mutation and returns its id. The
// payload must be JSON-serializable; anything else fails with a
// SerializationError and nothing is persisted. maxRetries <= 0 falls back
// to the configured default.
func (q *Queue) Enqueue(ctx context.Context, kind models.OperationKind, entityType, entityID string, payload any, maxRetries int, ownerID string) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", &common.SerializationError{Err: err}
	}
	if maxRetries <= 0 {
		maxRetries = q.defaultMaxRetries
	}

	op := &models.Operation{
		ID:         uuid.NewString(),
		Kind:       kind,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    data,
		CreatedAt:  q.now().UTC(),
		RetryCount: 0,
		MaxRetries: maxRetries,
		Status:     models.StatusPending,
		OwnerID:    ownerID,
	}
	if err := q.store.InsertOperation(ctx, op); err != nil {
		return "", err
	}

	q.log.Debug(ctx, "operation enqueued",
		"id", op.ID, "kind", string(kind), "entity_type", entityType, "owner", ownerID)
	return op.ID, nil
}

// Pending returns pending operations oldest first, optionally filtered by
// owner. A storage read failure degrades to an empty result.
func (q *Queue) Pending(ctx context.Context, ownerID string) ([]models.Operation, error) {
	return q.listTolerant(ctx, storage.OperationFilter{
		Status:  models.StatusPending,
		OwnerID: ownerID,
	})
}

// ByEntity returns pending operations for one entity type, optionally
// filtered by owner.
func (q *Queue) ByEntity(ctx context.Context, entityType, ownerID string) ([]models.Operation, error) {
	return q.listTolerant(ctx, storage.OperationFilter{
		Status:     models.StatusPending,
		EntityType: entityType,
		OwnerID:    ownerID,
	})
}

// PendingSince returns pending operations created strictly after since.
func (q *Queue) PendingSince(ctx context.Context, since time.Time, ownerID string) ([]models.Operation, error) {
	return q.listTolerant(ctx, storage.OperationFilter{
		Status:  models.StatusPending,
		OwnerID: ownerID,
		Since:   &since,
	})
}

// List returns pending operations matching the filter without tolerance;
// the sync orchestrator wants hard errors.
func (q *Queue) List(ctx context.Context, f storage.OperationFilter) ([]models.Operation, error) {
	return q.store.ListOperations(ctx, f)
}

func (q *Queue) listTolerant(ctx context.Context, f storage.OperationFilter) ([]models.Operation, error) {
	ops, err := q.store.ListOperations(ctx, f)
	if err != nil {
		var se *common.StorageError
		if errors.As(err, &se) {
			q.log.Warn(ctx, "operation listing degraded to empty", "error", err)
			return nil, nil
		}
		return nil, err
	}
	return ops, nil
}

// MarkProcessing moves a pending operation to processing. Unknown ids are
// a no-op.
func (q *Queue) MarkProcessing(ctx context.Context, id string) error {
	op, err := q.store.GetOperation(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = q.store.UpdateOperationStatus(ctx, id, models.StatusProcessing,
		op.RetryCount, op.LastError, q.now().UTC())
	return err
}

// MarkCompleted moves an operation to its terminal completed state.
// Unknown ids are a no-op.
func (q *Queue) MarkCompleted(ctx context.Context, id string) error {
	op, err := q.store.GetOperation(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = q.store.UpdateOperationStatus(ctx, id, models.StatusCompleted,
		op.RetryCount, op.LastError, q.now().UTC())
	return err
}

// MarkFailed records a failed attempt. With retryCount below the budget the
// operation returns to pending for a later sync pass; otherwise it turns
// terminally failed. maxRetries <= 0 uses the operation's own budget.
// Unknown ids are a no-op.
func (q *Queue) MarkFailed(ctx context.Context, id string, retryCount, maxRetries int, lastError string) error {
	op, err := q.store.GetOperation(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if maxRetries <= 0 {
		maxRetries = op.MaxRetries
	}

	status := models.StatusPending
	if retryCount >= maxRetries {
		status = models.StatusFailed
		q.log.Warn(ctx, "operation failed permanently",
			"id", id, "retries", retryCount, "error", lastError)
	}
	_, err = q.store.UpdateOperationStatus(ctx, id, status, retryCount, lastError, q.now().UTC())
	return err
}

// Remove deletes an operation regardless of status. Idempotent.
func (q *Queue) Remove(ctx context.Context, id string) error {
	return q.store.DeleteOperation(ctx, id)
}

// PurgeBefore deletes operations in status whose last update is before
// cutoff. Intended for completed/failed housekeeping outside the regular
// Cleanup retention windows.
func (q *Queue) PurgeBefore(ctx context.Context, status models.OperationStatus, cutoff time.Time) (int64, error) {
	return q.store.DeleteOperationsBefore(ctx, status, cutoff)
}

// Stats returns per-status operation counts.
func (q *Queue) Stats(ctx context.Context) (models.QueueStats, error) {
	return q.store.CountOperationsByStatus(ctx)
}

// RecoverStale moves operations stuck in processing back to pending.
// Processing is not resumable across restarts, so this runs at startup.
func (q *Queue) RecoverStale(ctx context.Context) (int64, error) {
	n, err := q.store.ResetProcessingOperations(ctx, q.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		q.log.Info(ctx, "recovered stale processing operations", "count", n)
	}
	return n, nil
}
