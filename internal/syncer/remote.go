// Package syncer pushes locally queued operations to a remote collaborator
// and reconciles conflicts through a bounded, deterministic policy table.
package syncer

import (
	"context"
	"encoding/json"

	"github.com/dkarpov/syncbox/internal/models"
)

// AttemptResult is the remote collaborator's verdict on one operation.
type AttemptResult struct {
	// Success reports a plainly applied operation.
	Success bool
	// Conflict reports that the remote holds a competing version; when set,
	// RemoteData carries the remote's current document.
	Conflict bool
	// RemoteData is the remote's current version of the entity, if any.
	RemoteData json.RawMessage
	// Error describes a failure the remote reported without raising.
	Error string
}

// Remote is the external collaborator the orchestrator dispatches to. It
// must tolerate being called more than once for the same operation across
// retries; the transport behind it is not this package's concern.
type Remote interface {
	Attempt(ctx context.Context, op models.Operation) (AttemptResult, error)
}
