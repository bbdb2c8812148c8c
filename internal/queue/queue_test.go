package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkarpov/syncbox/internal/common"
	"github.com/dkarpov/syncbox/internal/models"
	"github.com/dkarpov/syncbox/internal/storage"
	"github.com/dkarpov/syncbox/internal/storage/sqlite"
)

func setupQueue(t *testing.T) *Queue {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	st, err := sqlite.Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return New(st, 3, nil)
}

type message struct {
	Text string `json:"text"`
}

func TestEnqueueAndPending(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, models.OperationCreate, "message", "m1",
		message{Text: "hello"}, 0, "user-1")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	pending, err := q.Pending(ctx, "")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)
	assert.Equal(t, models.OperationCreate, pending[0].Kind)
	assert.Equal(t, models.StatusPending, pending[0].Status)
	assert.JSONEq(t, `{"text":"hello"}`, string(pending[0].Payload))
	// Default retry budget applies when none is given.
	assert.Equal(t, 3, pending[0].MaxRetries)
}

func TestEnqueueNonSerializablePayload(t *testing.T) {
	q := setupQueue(t)

	_, err := q.Enqueue(context.Background(), models.OperationCreate,
		"message", "m1", make(chan int), 0, "user-1")
	var se *common.SerializationError
	require.ErrorAs(t, err, &se)

	// Nothing was persisted.
	pending, err := q.Pending(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPendingOwnerFilter(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(ctx, models.OperationUpdate, "message",
			fmt.Sprintf("m%d", i), message{}, 0, "alice")
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		_, err := q.Enqueue(ctx, models.OperationUpdate, "message",
			fmt.Sprintf("n%d", i), message{}, 0, "bob")
		require.NoError(t, err)
	}

	alice, err := q.Pending(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, alice, 3)

	bob, err := q.Pending(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, bob, 2)

	all, err := q.Pending(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestByEntity(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, models.OperationCreate, "message", "m1", message{}, 0, "alice")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.OperationCreate, "profile", "p1", message{}, 0, "alice")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.OperationCreate, "message", "m2", message{}, 0, "bob")
	require.NoError(t, err)

	ops, err := q.ByEntity(ctx, "message", "alice")
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "m1", ops[0].EntityID)

	ops, err = q.ByEntity(ctx, "message", "")
	require.NoError(t, err)
	assert.Len(t, ops, 2)
}

func TestMarkCompleted(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, models.OperationCreate, "message", "m1", message{}, 0, "u")
	require.NoError(t, err)

	require.NoError(t, q.MarkProcessing(ctx, id))
	require.NoError(t, q.MarkCompleted(ctx, id))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Pending)
	assert.Equal(t, 1, stats.Completed)
}

func TestMarkFailedBelowBudgetStaysPending(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, models.OperationCreate, "message", "m1", message{}, 3, "u")
	require.NoError(t, err)

	require.NoError(t, q.MarkProcessing(ctx, id))
	require.NoError(t, q.MarkFailed(ctx, id, 1, 3, "network unreachable"))

	pending, err := q.Pending(ctx, "")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].RetryCount)
	assert.Equal(t, "network unreachable", pending[0].LastError)
}

func TestMarkFailedExhaustedIsTerminal(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, models.OperationCreate, "message", "m1", message{}, 2, "u")
	require.NoError(t, err)

	require.NoError(t, q.MarkFailed(ctx, id, 2, 2, "gave up"))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)

	// Terminal; a later transition must not resurrect it.
	require.NoError(t, q.MarkProcessing(ctx, id))
	stats, err = q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 0, stats.Processing)
}

func TestMarkUnknownIDIsNoop(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	require.NoError(t, q.MarkProcessing(ctx, "missing"))
	require.NoError(t, q.MarkCompleted(ctx, "missing"))
	require.NoError(t, q.MarkFailed(ctx, "missing", 1, 3, "x"))
}

func TestRemove(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, models.OperationDelete, "message", "m1", nil, 0, "u")
	require.NoError(t, err)

	require.NoError(t, q.Remove(ctx, id))
	require.NoError(t, q.Remove(ctx, id))

	pending, err := q.Pending(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPendingSince(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	q.now = func() time.Time { return base }
	_, err := q.Enqueue(ctx, models.OperationCreate, "message", "old", message{}, 0, "u")
	require.NoError(t, err)

	q.now = func() time.Time { return base.Add(time.Minute) }
	_, err = q.Enqueue(ctx, models.OperationCreate, "message", "new", message{}, 0, "u")
	require.NoError(t, err)

	ops, err := q.PendingSince(ctx, base, "u")
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "new", ops[0].EntityID)
}

// failingStore overrides ListOperations to simulate an unavailable store.
type failingStore struct {
	storage.Store
}

func (f *failingStore) ListOperations(ctx context.Context, filter storage.OperationFilter) ([]models.Operation, error) {
	return nil, &common.StorageError{Op: "list operations", Err: errors.New("database is locked")}
}

func TestPendingDegradesOnStorageError(t *testing.T) {
	q := New(&failingStore{}, 3, nil)

	ops, err := q.Pending(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, ops)

	// The orchestrator's listing keeps hard errors.
	_, err = q.List(context.Background(), storage.OperationFilter{})
	var se *common.StorageError
	assert.ErrorAs(t, err, &se)
}

func TestPurgeBefore(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	q.now = func() time.Time { return base }
	oldID, err := q.Enqueue(ctx, models.OperationCreate, "message", "m1", message{}, 0, "u")
	require.NoError(t, err)
	require.NoError(t, q.MarkCompleted(ctx, oldID))

	q.now = func() time.Time { return base.Add(time.Hour) }
	newID, err := q.Enqueue(ctx, models.OperationCreate, "message", "m2", message{}, 0, "u")
	require.NoError(t, err)
	require.NoError(t, q.MarkCompleted(ctx, newID))

	n, err := q.PurgeBefore(ctx, models.StatusCompleted, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Completed)
}

func TestRecoverStale(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, models.OperationCreate, "message", "m1", message{}, 0, "u")
	require.NoError(t, err)
	require.NoError(t, q.MarkProcessing(ctx, id))

	n, err := q.RecoverStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	pending, err := q.Pending(ctx, "")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}
