// Package models defines the data types persisted by the durable store:
// queued operations, cache entries and conflict records.
package models

import (
	"encoding/json"
	"time"
)

// OperationKind classifies a local mutation.
type OperationKind string

const (
	OperationCreate OperationKind = "create"
	OperationUpdate OperationKind = "update"
	OperationDelete OperationKind = "delete"
)

// OperationStatus is the lifecycle state of a queued operation.
//
// Status only moves forward: pending → processing → completed, or
// processing → pending (retry) / failed. Terminal states are only left by
// explicit deletion.
type OperationStatus string

const (
	StatusPending    OperationStatus = "pending"
	StatusProcessing OperationStatus = "processing"
	StatusCompleted  OperationStatus = "completed"
	StatusFailed     OperationStatus = "failed"
)

// Operation is a durable record of one pending local mutation.
type Operation struct {
	// ID is assigned at enqueue time.
	ID string

	// Kind is create, update or delete.
	Kind OperationKind

	// EntityType names the domain entity ("resource", "message", ...).
	EntityType string

	// EntityID identifies the affected entity.
	EntityID string

	// Payload is the serialized mutation data. Opaque to the queue.
	Payload json.RawMessage

	// CreatedAt orders the queue and drives incremental-change queries.
	CreatedAt time.Time

	// RetryCount is incremented on each failed sync attempt.
	RetryCount int

	// MaxRetries bounds RetryCount before the operation turns terminal.
	MaxRetries int

	Status OperationStatus

	// OwnerID identifies the user who issued the mutation.
	OwnerID string

	// LastError holds the most recent dispatch failure, if any.
	LastError string
}

// QueueStats are per-status operation counts.
type QueueStats struct {
	Pending    int
	Processing int
	Completed  int
	Failed     int
}
