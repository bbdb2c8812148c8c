package queue

import (
	"context"
	"time"

	"github.com/dkarpov/syncbox/internal/models"
)

// AttemptFunc tries to apply one pending operation against the remote.
// A nil return completes the operation; an error schedules a retry.
type AttemptFunc func(ctx context.Context, op models.Operation) error

// StartDrain launches the background drain loop: every interval it takes
// the pending operations and attempts each, waiting retryDelay between
// attempts to avoid saturating the remote. Starting an already running
// loop is a no-op.
func (q *Queue) StartDrain(ctx context.Context, interval, retryDelay time.Duration, attempt AttemptFunc) {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.stopCh = make(chan struct{})
	stopCh := q.stopCh
	// Register with the WaitGroup before releasing the lock so a concurrent
	// StopDrain cannot pass Wait before the loop goroutine is accounted for.
	q.wg.Add(1)
	q.mu.Unlock()

	go q.drainLoop(ctx, stopCh, interval, retryDelay, attempt)

	q.log.Info(ctx, "drain loop started", "interval", interval.String())
}

// StopDrain stops the loop and waits for it to finish. Stopping a stopped
// loop is a no-op.
func (q *Queue) StopDrain() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	close(q.stopCh)
	q.mu.Unlock()

	q.wg.Wait()
}

// Draining reports whether the background loop is running.
func (q *Queue) Draining() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

func (q *Queue) drainLoop(ctx context.Context, stopCh chan struct{}, interval, retryDelay time.Duration, attempt AttemptFunc) {
	defer q.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			q.drainOnce(ctx, stopCh, retryDelay, attempt)
		}
	}
}

func (q *Queue) drainOnce(ctx context.Context, stopCh chan struct{}, retryDelay time.Duration, attempt AttemptFunc) {
	pending, err := q.Pending(ctx, "")
	if err != nil || len(pending) == 0 {
		return
	}

	q.log.Debug(ctx, "draining pending operations", "count", len(pending))

	for i, op := range pending {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		if err := q.MarkProcessing(ctx, op.ID); err != nil {
			q.log.Error(ctx, "failed to mark operation processing", "id", op.ID, "error", err)
			continue
		}

		if err := attempt(ctx, op); err != nil {
			if err := q.MarkFailed(ctx, op.ID, op.RetryCount+1, op.MaxRetries, err.Error()); err != nil {
				q.log.Error(ctx, "failed to record attempt failure", "id", op.ID, "error", err)
			}
		} else if err := q.MarkCompleted(ctx, op.ID); err != nil {
			q.log.Error(ctx, "failed to mark operation completed", "id", op.ID, "error", err)
		}

		// Inter-operation delay, skipped after the last one.
		if retryDelay > 0 && i < len(pending)-1 {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-time.After(retryDelay):
			}
		}
	}
}
