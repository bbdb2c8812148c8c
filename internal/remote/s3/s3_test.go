package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkarpov/syncbox/internal/models"
)

// fakeS3 keeps objects in a map keyed by object key.
type fakeS3 struct {
	objects map[string]string

	getErr error
	putErr error
	delErr error

	putKeys []string
	delKeys []string
}

func (f *fakeS3) GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	body, ok := f.objects[*params.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &awss3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = map[string]string{}
	}
	f.objects[*params.Key] = string(data)
	f.putKeys = append(f.putKeys, *params.Key)
	return &awss3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
	if f.delErr != nil {
		return nil, f.delErr
	}
	delete(f.objects, *params.Key)
	f.delKeys = append(f.delKeys, *params.Key)
	return &awss3.DeleteObjectOutput{}, nil
}

func newOp(kind models.OperationKind, payload string) models.Operation {
	return models.Operation{
		ID:         "op-1",
		Kind:       kind,
		EntityType: "note",
		EntityID:   "n1",
		Payload:    []byte(payload),
		CreatedAt:  time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestAttemptCreate(t *testing.T) {
	fake := &fakeS3{}
	r := NewWithClient(fake, "bucket", "sync", nil)

	res, err := r.Attempt(context.Background(), newOp(models.OperationCreate, `{"title":"a"}`))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"sync/note/n1.json"}, fake.putKeys)
	assert.Equal(t, `{"title":"a"}`, fake.objects["sync/note/n1.json"])
}

func TestAttemptCreateConflictsWhenObjectExists(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{
		"sync/note/n1.json": `{"title":"remote"}`,
	}}
	r := NewWithClient(fake, "bucket", "sync", nil)

	res, err := r.Attempt(context.Background(), newOp(models.OperationCreate, `{"title":"local"}`))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.Conflict)
	assert.JSONEq(t, `{"title":"remote"}`, string(res.RemoteData))
	assert.Empty(t, fake.putKeys)
}

func TestAttemptUpdate(t *testing.T) {
	// Remote exists but was modified before the operation: plain overwrite.
	fake := &fakeS3{objects: map[string]string{
		"sync/note/n1.json": `{"title":"old","updatedAt":"2026-07-01T00:00:00Z"}`,
	}}
	r := NewWithClient(fake, "bucket", "sync", nil)

	res, err := r.Attempt(context.Background(), newOp(models.OperationUpdate, `{"title":"new"}`))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, `{"title":"new"}`, fake.objects["sync/note/n1.json"])
}

func TestAttemptUpdateConflictsWhenRemoteNewer(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{
		"sync/note/n1.json": `{"title":"newer","lastModified":"2026-08-15T00:00:00Z"}`,
	}}
	r := NewWithClient(fake, "bucket", "sync", nil)

	res, err := r.Attempt(context.Background(), newOp(models.OperationUpdate, `{"title":"stale"}`))
	require.NoError(t, err)
	assert.True(t, res.Conflict)
	assert.Contains(t, string(res.RemoteData), "newer")
}

func TestAttemptDelete(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{
		"sync/note/n1.json": `{"updatedAt":"2026-07-01T00:00:00Z"}`,
	}}
	r := NewWithClient(fake, "bucket", "sync", nil)

	res, err := r.Attempt(context.Background(), newOp(models.OperationDelete, `{}`))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"sync/note/n1.json"}, fake.delKeys)
	assert.Empty(t, fake.objects)
}

func TestAttemptDeleteMissingObjectSucceeds(t *testing.T) {
	fake := &fakeS3{}
	r := NewWithClient(fake, "bucket", "sync", nil)

	res, err := r.Attempt(context.Background(), newOp(models.OperationDelete, `{}`))
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestAttemptDeleteConflictsWhenRemoteNewer(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{
		"sync/note/n1.json": `{"lastModified":"2026-08-15T00:00:00Z"}`,
	}}
	r := NewWithClient(fake, "bucket", "sync", nil)

	res, err := r.Attempt(context.Background(), newOp(models.OperationDelete, `{}`))
	require.NoError(t, err)
	assert.True(t, res.Conflict)
	assert.Len(t, fake.delKeys, 0)
}

func TestAttemptTransportErrorRaises(t *testing.T) {
	boom := errors.New("503 slow down")
	fake := &fakeS3{getErr: boom}
	r := NewWithClient(fake, "bucket", "sync", nil)

	_, err := r.Attempt(context.Background(), newOp(models.OperationUpdate, `{}`))
	assert.ErrorIs(t, err, boom)
}
