// Package s3 implements the remote collaborator over an S3-compatible
// bucket. Every entity lives in one JSON object keyed as
// <prefix>/<entityType>/<entityId>.json, so a plain MinIO instance is
// enough to run against.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dkarpov/syncbox/internal/config"
	"github.com/dkarpov/syncbox/internal/logging"
	"github.com/dkarpov/syncbox/internal/models"
	"github.com/dkarpov/syncbox/internal/syncer"
)

// API is the slice of the S3 client the remote needs.
type API interface {
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
}

// Remote dispatches operations against an S3 bucket.
type Remote struct {
	client API
	bucket string
	prefix string
	log    logging.Logger
}

var _ syncer.Remote = (*Remote)(nil)

// New builds a remote from cfg, wiring static credentials and a custom
// endpoint so MinIO works out of the box.
func New(ctx context.Context, cfg config.S3Config, log logging.Logger) (*Remote, error) {
	awsCfg, err := awscfg.LoadDefaultConfig(ctx,
		awscfg.WithRegion(cfg.Region),
		awscfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewWithClient(client, cfg.Bucket, cfg.Prefix, log), nil
}

// NewWithClient builds a remote over an existing client.
func NewWithClient(client API, bucket, prefix string, log logging.Logger) *Remote {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Remote{client: client, bucket: bucket, prefix: prefix, log: log}
}

func (r *Remote) key(entityType, entityID string) string {
	return fmt.Sprintf("%s/%s/%s.json", r.prefix, entityType, entityID)
}

// Attempt applies op to the bucket. Creates conflict when the object
// already exists; updates and deletes conflict when the remote document
// was modified after the operation was recorded.
func (r *Remote) Attempt(ctx context.Context, op models.Operation) (syncer.AttemptResult, error) {
	remote, exists, err := r.fetch(ctx, op.EntityType, op.EntityID)
	if err != nil {
		return syncer.AttemptResult{}, err
	}

	switch op.Kind {
	case models.OperationCreate:
		if exists {
			return syncer.AttemptResult{Conflict: true, RemoteData: remote}, nil
		}
		return r.put(ctx, op)

	case models.OperationUpdate:
		if exists && remoteNewer(remote, op) {
			return syncer.AttemptResult{Conflict: true, RemoteData: remote}, nil
		}
		return r.put(ctx, op)

	case models.OperationDelete:
		if exists && remoteNewer(remote, op) {
			return syncer.AttemptResult{Conflict: true, RemoteData: remote}, nil
		}
		return r.delete(ctx, op)

	default:
		return syncer.AttemptResult{Error: fmt.Sprintf("unknown operation kind %q", op.Kind)}, nil
	}
}

func (r *Remote) put(ctx context.Context, op models.Operation) (syncer.AttemptResult, error) {
	key := r.key(op.EntityType, op.EntityID)
	_, err := r.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(op.Payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return syncer.AttemptResult{}, err
	}
	r.log.Debug(ctx, "object written", "key", key)
	return syncer.AttemptResult{Success: true}, nil
}

func (r *Remote) delete(ctx context.Context, op models.Operation) (syncer.AttemptResult, error) {
	key := r.key(op.EntityType, op.EntityID)
	_, err := r.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return syncer.AttemptResult{}, err
	}
	r.log.Debug(ctx, "object deleted", "key", key)
	return syncer.AttemptResult{Success: true}, nil
}

// fetch returns the remote document and whether it exists. A missing key
// is not an error.
func (r *Remote) fetch(ctx context.Context, entityType, entityID string) (json.RawMessage, bool, error) {
	out, err := r.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key(entityType, entityID)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// remoteNewer reports whether the remote document was modified after the
// local operation was recorded.
func remoteNewer(remote json.RawMessage, op models.Operation) bool {
	var doc struct {
		LastModified json.RawMessage `json:"lastModified"`
		UpdatedAt    json.RawMessage `json:"updatedAt"`
	}
	if err := json.Unmarshal(remote, &doc); err != nil {
		return false
	}
	for _, raw := range []json.RawMessage{doc.LastModified, doc.UpdatedAt} {
		if len(raw) == 0 {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		if t, ok := syncer.ParseTimestamp(v); ok {
			return t.After(op.CreatedAt)
		}
	}
	return false
}
