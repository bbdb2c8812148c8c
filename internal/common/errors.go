// Package common defines shared constants and sentinel errors used across
// syncbox components. Callers should use errors.Is/errors.As to match them.
package common

import (
	"errors"
	"fmt"
)

var (
	// Storage-level errors.
	ErrNotFound = errors.New("not found")

	// Sync mutual exclusion: a second Sync call while one is running.
	ErrSyncInProgress = errors.New("sync already in progress")
)

// SerializationError reports a payload or cache value that cannot be durably
// encoded. It is always propagated to the caller of Enqueue/Set.
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error: %v", e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// StorageError wraps a durable-store I/O failure. Write paths propagate it;
// tolerant read paths degrade to "no data" instead.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error in %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// DispatchError wraps a remote-collaborator failure for a single operation.
// It is recorded per operation and never aborts a batch.
type DispatchError struct {
	OperationID string
	Err         error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("remote dispatch failed for operation %s: %v", e.OperationID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
