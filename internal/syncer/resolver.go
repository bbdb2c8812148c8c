package syncer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dkarpov/syncbox/internal/logging"
	"github.com/dkarpov/syncbox/internal/models"
	"github.com/dkarpov/syncbox/internal/storage"
)

// resolvedByPolicy marks conflict records resolved automatically.
const resolvedByPolicy = "policy"

// bookkeepingFields are ignored when comparing touched field sets.
var bookkeepingFields = map[string]struct{}{
	"id":           {},
	"version":      {},
	"createdAt":    {},
	"updatedAt":    {},
	"lastModified": {},
}

// Resolver decides the outcome of sync-time conflicts and persists a
// ConflictRecord per decision. The policy is deterministic:
//
//	create_conflict → remote_wins
//	delete_conflict → manual when remote changed after the local delete,
//	                  local_wins otherwise
//	update_conflict → merge when the field sets are disjoint, otherwise
//	                  whichever side is newer wins
type Resolver struct {
	store storage.Store
	log   logging.Logger
	now   func() time.Time
}

func NewResolver(store storage.Store, log logging.Logger) *Resolver {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Resolver{store: store, log: log, now: time.Now}
}

// Resolve classifies the conflict between op and the remote's current data,
// applies the policy table and persists the resulting record. The record is
// immutable once written; "merge" is a label for a follow-up step outside
// this core, no merged document is produced.
func (r *Resolver) Resolve(ctx context.Context, op models.Operation, remoteData json.RawMessage) (*models.ConflictRecord, error) {
	conflictType := classify(op.Kind, remoteData)
	resolution := r.decide(conflictType, op.Payload, remoteData)

	record := &models.ConflictRecord{
		ID:            uuid.NewString(),
		EntityType:    op.EntityType,
		EntityID:      op.EntityID,
		LocalVersion:  op.Payload,
		RemoteVersion: remoteData,
		ConflictType:  conflictType,
		Resolution:    resolution,
	}
	if resolution != models.Manual {
		t := r.now().UTC()
		by := resolvedByPolicy
		record.ResolvedAt = &t
		record.ResolvedBy = &by
	}

	if err := r.store.InsertConflict(ctx, record); err != nil {
		return nil, err
	}

	r.log.Info(ctx, "conflict resolved",
		"entity_type", op.EntityType, "entity_id", op.EntityID,
		"type", string(conflictType), "resolution", string(resolution))
	return record, nil
}

func classify(kind models.OperationKind, remoteData json.RawMessage) models.ConflictType {
	remoteExists := len(remoteData) > 0 && string(remoteData) != "null"
	switch {
	case kind == models.OperationDelete && remoteExists:
		return models.DeleteConflict
	case kind == models.OperationCreate && remoteExists:
		return models.CreateConflict
	default:
		return models.UpdateConflict
	}
}

func (r *Resolver) decide(t models.ConflictType, local, remote json.RawMessage) models.Resolution {
	switch t {
	case models.CreateConflict:
		// The remote already has the entity; discard the local create.
		return models.RemoteWins

	case models.DeleteConflict:
		// Never auto-delete something changed after the local delete was
		// issued.
		if lastModified(remote).After(lastModified(local)) {
			return models.Manual
		}
		return models.LocalWins

	default: // update_conflict
		if disjointFields(local, remote) {
			return models.Merge
		}
		if lastModified(remote).After(lastModified(local)) {
			return models.RemoteWins
		}
		return models.LocalWins
	}
}

// lastModified extracts the modification timestamp from an opaque payload,
// preferring "lastModified" over "updatedAt" and defaulting to the epoch.
func lastModified(raw json.RawMessage) time.Time {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return time.Unix(0, 0)
	}
	for _, field := range []string{"lastModified", "updatedAt"} {
		if v, ok := doc[field]; ok {
			if t, ok := ParseTimestamp(v); ok {
				return t
			}
		}
	}
	return time.Unix(0, 0)
}

// ParseTimestamp accepts RFC3339 strings and numeric unix seconds or
// milliseconds (milliseconds when the magnitude says so).
func ParseTimestamp(v any) (time.Time, bool) {
	switch value := v.(type) {
	case string:
		if t, err := time.Parse(time.RFC3339, value); err == nil {
			return t, true
		}
	case float64:
		if value > 1e12 {
			return time.UnixMilli(int64(value)), true
		}
		return time.Unix(int64(value), 0), true
	}
	return time.Time{}, false
}

// disjointFields reports whether the two versions touch non-overlapping
// field sets, ignoring bookkeeping fields.
func disjointFields(local, remote json.RawMessage) bool {
	lf := payloadFields(local)
	rf := payloadFields(remote)
	if len(lf) == 0 || len(rf) == 0 {
		return false
	}
	for f := range lf {
		if _, ok := rf[f]; ok {
			return false
		}
	}
	return true
}

func payloadFields(raw json.RawMessage) map[string]struct{} {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	fields := make(map[string]struct{}, len(doc))
	for k := range doc {
		if _, ok := bookkeepingFields[k]; ok {
			continue
		}
		fields[k] = struct{}{}
	}
	return fields
}
