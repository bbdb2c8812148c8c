package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/dkarpov/syncbox/internal/common"
	"github.com/dkarpov/syncbox/internal/logging"
	"github.com/dkarpov/syncbox/internal/models"
	"github.com/dkarpov/syncbox/internal/queue"
	"github.com/dkarpov/syncbox/internal/storage"
)

// DefaultBatchSize bounds how many operations one batch holds.
const DefaultBatchSize = 10

// Options narrows which pending operations a sync pass picks up.
type Options struct {
	OwnerID    string
	EntityType string
	EntityID   string
	// Since keeps only operations created strictly after it (incremental
	// sync).
	Since *time.Time
	// MaxOperations caps the whole pass; 0 means unlimited.
	MaxOperations int
}

// Result summarizes one sync pass.
type Result struct {
	// Success is true when no operation failed.
	Success     bool
	SyncedCount int
	FailedCount int
	Conflicts   []models.ConflictRecord
	Errors      []string
}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	LastSyncAt   *time.Time
	PendingCount int
	FailedCount  int
	IsOnline     bool
	InProgress   bool
}

// Orchestrator drains the operation queue against the remote collaborator.
// At most one sync runs at a time, process-wide for this instance; a second
// Sync call fails fast with common.ErrSyncInProgress.
type Orchestrator struct {
	queue    *queue.Queue
	remote   Remote
	resolver *Resolver
	log      logging.Logger

	batchSize int
	now       func() time.Time

	mu         sync.Mutex
	inProgress bool
	lastSyncAt time.Time
	isOnline   bool
}

// New builds an orchestrator. batchSize <= 0 uses DefaultBatchSize.
func New(q *queue.Queue, remote Remote, store storage.Store, batchSize int, log logging.Logger) *Orchestrator {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Orchestrator{
		queue:     q,
		remote:    remote,
		resolver:  NewResolver(store, log),
		log:       log,
		batchSize: batchSize,
		now:       time.Now,
		isOnline:  true,
	}
}

// Sync gathers pending operations matching opts, dispatches them to the
// remote in fixed-size batches and reconciles the outcomes. Per-operation
// failures never abort the pass; they are recorded in the result and the
// operations stay queued for the next pass.
func (o *Orchestrator) Sync(ctx context.Context, opts Options) (Result, error) {
	if err := o.begin(); err != nil {
		return Result{}, err
	}
	defer o.end()

	filter := storage.OperationFilter{
		Status:     models.StatusPending,
		OwnerID:    opts.OwnerID,
		EntityType: opts.EntityType,
		EntityID:   opts.EntityID,
		Since:      opts.Since,
		Limit:      opts.MaxOperations,
	}
	ops, err := o.queue.List(ctx, filter)
	if err != nil {
		return Result{}, err
	}

	result := Result{}
	dispatched, reached := 0, 0

	for start := 0; start < len(ops); start += o.batchSize {
		end := start + o.batchSize
		if end > len(ops) {
			end = len(ops)
		}
		for _, op := range ops[start:end] {
			dispatched++
			if o.processOne(ctx, op, &result) {
				reached++
			}
		}
	}

	// Connectivity heuristic: reaching the remote at all means online,
	// a pass where every dispatch raised means offline.
	if dispatched > 0 {
		o.mu.Lock()
		o.isOnline = reached > 0
		o.mu.Unlock()
	}

	result.Success = result.FailedCount == 0
	o.log.Info(ctx, "sync finished",
		"synced", result.SyncedCount, "failed", result.FailedCount,
		"conflicts", len(result.Conflicts))
	return result, nil
}

// processOne runs the full lifecycle of a single operation and reports
// whether the remote was reached (the dispatch call returned a verdict).
func (o *Orchestrator) processOne(ctx context.Context, op models.Operation, result *Result) bool {
	if err := o.queue.MarkProcessing(ctx, op.ID); err != nil {
		result.FailedCount++
		result.Errors = append(result.Errors, err.Error())
		return false
	}

	res, err := o.remote.Attempt(ctx, op)
	if err != nil {
		o.recordFailure(ctx, op, result, &common.DispatchError{OperationID: op.ID, Err: err})
		return false
	}

	switch {
	case res.Conflict:
		record, rerr := o.resolver.Resolve(ctx, op, res.RemoteData)
		if rerr != nil {
			o.recordFailure(ctx, op, result, &common.DispatchError{OperationID: op.ID, Err: rerr})
			return true
		}
		result.Conflicts = append(result.Conflicts, *record)
		if record.Resolution == models.Manual {
			// Surfaced in Conflicts; never silently dropped.
			if err := o.queue.MarkFailed(ctx, op.ID, op.RetryCount+1, op.MaxRetries, "manual conflict resolution required"); err != nil {
				result.Errors = append(result.Errors, err.Error())
			}
			result.FailedCount++
			return true
		}
		if err := o.queue.MarkCompleted(ctx, op.ID); err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
		result.SyncedCount++
		return true

	case res.Success:
		if err := o.queue.MarkCompleted(ctx, op.ID); err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
		result.SyncedCount++
		return true

	default:
		msg := res.Error
		if msg == "" {
			msg = "remote rejected operation"
		}
		o.recordFailure(ctx, op, result, &common.DispatchError{OperationID: op.ID, Err: stringError(msg)})
		return true
	}
}

func (o *Orchestrator) recordFailure(ctx context.Context, op models.Operation, result *Result, derr *common.DispatchError) {
	if err := o.queue.MarkFailed(ctx, op.ID, op.RetryCount+1, op.MaxRetries, derr.Error()); err != nil {
		result.Errors = append(result.Errors, err.Error())
	}
	result.FailedCount++
	result.Errors = append(result.Errors, derr.Error())
	o.log.Warn(ctx, "operation dispatch failed", "id", op.ID, "error", derr)
}

type stringError string

func (e stringError) Error() string { return string(e) }

// ForceSyncEntity syncs only the operations matching both entity type and
// id.
func (o *Orchestrator) ForceSyncEntity(ctx context.Context, entityType, entityID, ownerID string) (Result, error) {
	return o.Sync(ctx, Options{
		OwnerID:    ownerID,
		EntityType: entityType,
		EntityID:   entityID,
	})
}

// IncrementalChanges returns pending operations created strictly after
// since.
func (o *Orchestrator) IncrementalChanges(ctx context.Context, since time.Time, ownerID string) ([]models.Operation, error) {
	return o.queue.PendingSince(ctx, since, ownerID)
}

// Status reports the orchestrator's view of the world. Queue counters
// degrade to zero when storage is unavailable.
func (o *Orchestrator) Status(ctx context.Context) Status {
	stats, err := o.queue.Stats(ctx)
	if err != nil {
		o.log.Warn(ctx, "queue stats degraded to zero", "error", err)
		stats = models.QueueStats{}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	st := Status{
		PendingCount: stats.Pending,
		FailedCount:  stats.Failed,
		IsOnline:     o.isOnline,
		InProgress:   o.inProgress,
	}
	if !o.lastSyncAt.IsZero() {
		t := o.lastSyncAt
		st.LastSyncAt = &t
	}
	return st
}

func (o *Orchestrator) begin() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inProgress {
		return common.ErrSyncInProgress
	}
	o.inProgress = true
	return nil
}

func (o *Orchestrator) end() {
	o.mu.Lock()
	o.inProgress = false
	o.lastSyncAt = o.now().UTC()
	o.mu.Unlock()
}
