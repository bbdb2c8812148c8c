package models

import (
	"encoding/json"
	"time"
)

// ConflictType classifies a sync-time conflict.
type ConflictType string

const (
	CreateConflict ConflictType = "create_conflict"
	UpdateConflict ConflictType = "update_conflict"
	DeleteConflict ConflictType = "delete_conflict"
)

// Resolution is the outcome chosen by the conflict resolver.
type Resolution string

const (
	LocalWins  Resolution = "local_wins"
	RemoteWins Resolution = "remote_wins"
	Merge      Resolution = "merge"
	Manual     Resolution = "manual"
)

// ConflictRecord captures one resolved (or manual-pending) conflict.
// Records are append-only and immutable once resolved.
type ConflictRecord struct {
	ID         string
	EntityType string
	EntityID   string

	// The two conflicting payloads.
	LocalVersion  json.RawMessage
	RemoteVersion json.RawMessage

	ConflictType ConflictType
	Resolution   Resolution

	// ResolvedAt/ResolvedBy stay nil until the conflict is resolved
	// (always nil for manual resolutions).
	ResolvedAt *time.Time
	ResolvedBy *string
}
