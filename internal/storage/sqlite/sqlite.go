// Package sqlite implements the durable store on an embedded SQLite
// database (modernc.org/sqlite, pure Go). The schema is managed by goose
// migrations embedded in the binary.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dkarpov/syncbox/internal/common"
	"github.com/dkarpov/syncbox/internal/dbx"
	"github.com/dkarpov/syncbox/internal/models"
	"github.com/dkarpov/syncbox/internal/storage"
	"github.com/dkarpov/syncbox/internal/storage/sqlite/migrations"
)

// Store implements storage.Store on SQLite.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// Open opens (or creates) the database at dsn and applies pending
// migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &common.StorageError{Op: "open", Err: err}
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, &common.StorageError{Op: "migrate", Err: err}
	}
	return &Store{db: db}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

func (s *Store) Close() error { return s.db.Close() }

// ms converts a time to the unix-millisecond representation stored in the
// schema. The zero time maps to 0.
func ms(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMS(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v).UTC()
}

func nullMS(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func (s *Store) InsertOperation(ctx context.Context, op *models.Operation) error {
	query := `INSERT INTO operations
		(id, kind, entity_type, entity_id, payload, created_at, updated_at,
		 retry_count, max_retries, status, owner_id, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		op.ID, string(op.Kind), op.EntityType, op.EntityID, []byte(op.Payload),
		ms(op.CreatedAt), ms(op.CreatedAt),
		op.RetryCount, op.MaxRetries, string(op.Status), op.OwnerID, op.LastError)
	if err != nil {
		return &common.StorageError{Op: "insert operation", Err: err}
	}
	return nil
}

func scanOperation(scan func(dest ...any) error) (*models.Operation, error) {
	var (
		op                   models.Operation
		kind, status         string
		payload              []byte
		createdAt, updatedAt int64
	)
	err := scan(&op.ID, &kind, &op.EntityType, &op.EntityID, &payload,
		&createdAt, &updatedAt, &op.RetryCount, &op.MaxRetries, &status,
		&op.OwnerID, &op.LastError)
	if err != nil {
		return nil, err
	}
	op.Kind = models.OperationKind(kind)
	op.Status = models.OperationStatus(status)
	op.Payload = payload
	op.CreatedAt = fromMS(createdAt)
	_ = updatedAt
	return &op, nil
}

const operationColumns = `id, kind, entity_type, entity_id, payload,
	created_at, updated_at, retry_count, max_retries, status, owner_id, last_error`

func (s *Store) GetOperation(ctx context.Context, id string) (*models.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)
	op, err := scanOperation(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, &common.StorageError{Op: "get operation", Err: err}
	}
	return op, nil
}

func (s *Store) ListOperations(ctx context.Context, f storage.OperationFilter) ([]models.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations WHERE 1=1`
	args := []any{}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.OwnerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, f.OwnerID)
	}
	if f.EntityType != "" {
		query += ` AND entity_type = ?`
		args = append(args, f.EntityType)
	}
	if f.EntityID != "" {
		query += ` AND entity_id = ?`
		args = append(args, f.EntityID)
	}
	if f.Since != nil {
		query += ` AND created_at > ?`
		args = append(args, f.Since.UnixMilli())
	}
	query += ` ORDER BY created_at ASC, id ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &common.StorageError{Op: "list operations", Err: err}
	}
	defer rows.Close()

	var result []models.Operation
	for rows.Next() {
		op, err := scanOperation(rows.Scan)
		if err != nil {
			return nil, &common.StorageError{Op: "list operations", Err: err}
		}
		result = append(result, *op)
	}
	if err := rows.Err(); err != nil {
		return nil, &common.StorageError{Op: "list operations", Err: err}
	}
	return result, nil
}

func (s *Store) UpdateOperationStatus(ctx context.Context, id string, status models.OperationStatus, retryCount int, lastError string, at time.Time) (bool, error) {
	// Terminal rows are never updated; completed/failed only leave the
	// table by deletion.
	query := `UPDATE operations
		SET status = ?, retry_count = ?, last_error = ?, updated_at = ?
		WHERE id = ? AND status NOT IN ('completed', 'failed')`
	res, err := s.db.ExecContext(ctx, query,
		string(status), retryCount, lastError, ms(at), id)
	if err != nil {
		return false, &common.StorageError{Op: "update operation status", Err: err}
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, &common.StorageError{Op: "update operation status", Err: err}
	}
	return ra > 0, nil
}

func (s *Store) DeleteOperation(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM operations WHERE id = ?`, id)
	if err != nil {
		return &common.StorageError{Op: "delete operation", Err: err}
	}
	return nil
}

func (s *Store) CountOperationsByStatus(ctx context.Context) (models.QueueStats, error) {
	var stats models.QueueStats
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM operations GROUP BY status`)
	if err != nil {
		return stats, &common.StorageError{Op: "count operations", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return stats, &common.StorageError{Op: "count operations", Err: err}
		}
		switch models.OperationStatus(status) {
		case models.StatusPending:
			stats.Pending = n
		case models.StatusProcessing:
			stats.Processing = n
		case models.StatusCompleted:
			stats.Completed = n
		case models.StatusFailed:
			stats.Failed = n
		}
	}
	if err := rows.Err(); err != nil {
		return stats, &common.StorageError{Op: "count operations", Err: err}
	}
	return stats, nil
}

func (s *Store) ResetProcessingOperations(ctx context.Context, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE operations SET status = 'pending', updated_at = ? WHERE status = 'processing'`,
		ms(at))
	if err != nil {
		return 0, &common.StorageError{Op: "reset processing operations", Err: err}
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return 0, &common.StorageError{Op: "reset processing operations", Err: err}
	}
	return ra, nil
}

func (s *Store) DeleteOperationsBefore(ctx context.Context, status models.OperationStatus, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM operations WHERE status = ? AND updated_at < ?`,
		string(status), ms(cutoff))
	if err != nil {
		return 0, &common.StorageError{Op: "delete operations before", Err: err}
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return 0, &common.StorageError{Op: "delete operations before", Err: err}
	}
	return ra, nil
}

func (s *Store) UpsertCacheEntry(ctx context.Context, e *models.CacheEntry) error {
	query := `INSERT INTO cache_entries
		(key, value, priority, created_at, expires_at, size_bytes, access_count, last_accessed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			priority = excluded.priority,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			size_bytes = excluded.size_bytes,
			access_count = excluded.access_count,
			last_accessed_at = excluded.last_accessed_at`
	_, err := s.db.ExecContext(ctx, query,
		e.Key, []byte(e.Value), string(e.Priority), ms(e.CreatedAt),
		nullMS(e.ExpiresAt), e.SizeBytes, e.AccessCount, ms(e.LastAccessedAt))
	if err != nil {
		return &common.StorageError{Op: "upsert cache entry", Err: err}
	}
	return nil
}

func (s *Store) GetCacheEntry(ctx context.Context, key string) (*models.CacheEntry, error) {
	query := `SELECT key, value, priority, created_at, expires_at, size_bytes,
		access_count, last_accessed_at FROM cache_entries WHERE key = ?`
	row := s.db.QueryRowContext(ctx, query, key)

	var (
		e                         models.CacheEntry
		priority                  string
		value                     []byte
		createdAt, lastAccessedAt int64
		expiresAt                 sql.NullInt64
	)
	err := row.Scan(&e.Key, &value, &priority, &createdAt, &expiresAt,
		&e.SizeBytes, &e.AccessCount, &lastAccessedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, &common.StorageError{Op: "get cache entry", Err: err}
	}
	e.Value = value
	e.Priority = models.Priority(priority)
	e.CreatedAt = fromMS(createdAt)
	e.LastAccessedAt = fromMS(lastAccessedAt)
	if expiresAt.Valid {
		t := fromMS(expiresAt.Int64)
		e.ExpiresAt = &t
	}
	return &e, nil
}

func (s *Store) TouchCacheEntry(ctx context.Context, key string, at time.Time) error {
	query := `UPDATE cache_entries
		SET access_count = access_count + 1, last_accessed_at = ?
		WHERE key = ?`
	if _, err := s.db.ExecContext(ctx, query, ms(at), key); err != nil {
		return &common.StorageError{Op: "touch cache entry", Err: err}
	}
	return nil
}

func (s *Store) DeleteCacheEntry(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return &common.StorageError{Op: "delete cache entry", Err: err}
	}
	return nil
}

func (s *Store) DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		ms(now))
	if err != nil {
		return 0, &common.StorageError{Op: "delete expired cache entries", Err: err}
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return 0, &common.StorageError{Op: "delete expired cache entries", Err: err}
	}
	return ra, nil
}

func (s *Store) CacheUsedBytes(ctx context.Context) (int64, error) {
	var used int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(size_bytes), 0) FROM cache_entries`).Scan(&used)
	if err != nil {
		return 0, &common.StorageError{Op: "cache used bytes", Err: err}
	}
	return used, nil
}

func (s *Store) EvictCacheEntries(ctx context.Context, targetBytes int64) (int64, error) {
	var freed int64
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var used int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(size_bytes), 0) FROM cache_entries`).Scan(&used); err != nil {
			return err
		}
		if used <= targetBytes {
			return nil
		}

		// Victims: low before medium before high, oldest access first.
		rows, err := tx.QueryContext(ctx, `SELECT key, size_bytes FROM cache_entries
			ORDER BY CASE priority WHEN 'low' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END,
				last_accessed_at ASC`)
		if err != nil {
			return err
		}
		defer rows.Close()

		var victims []string
		for rows.Next() {
			var key string
			var size int64
			if err := rows.Scan(&key, &size); err != nil {
				return err
			}
			victims = append(victims, key)
			freed += size
			if used-freed <= targetBytes {
				break
			}
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()

		for _, key := range victims {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, &common.StorageError{Op: "evict cache entries", Err: err}
	}
	return freed, nil
}

func (s *Store) InsertConflict(ctx context.Context, c *models.ConflictRecord) error {
	query := `INSERT INTO conflicts
		(id, entity_type, entity_id, local_version, remote_version,
		 conflict_type, resolution, resolved_at, resolved_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var resolvedBy sql.NullString
	if c.ResolvedBy != nil {
		resolvedBy = sql.NullString{String: *c.ResolvedBy, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.EntityType, c.EntityID, []byte(c.LocalVersion), []byte(c.RemoteVersion),
		string(c.ConflictType), string(c.Resolution), nullMS(c.ResolvedAt), resolvedBy)
	if err != nil {
		return &common.StorageError{Op: "insert conflict", Err: err}
	}
	return nil
}

func (s *Store) ListConflicts(ctx context.Context, entityType string) ([]models.ConflictRecord, error) {
	query := `SELECT id, entity_type, entity_id, local_version, remote_version,
		conflict_type, resolution, resolved_at, resolved_by FROM conflicts`
	args := []any{}
	if entityType != "" {
		query += ` WHERE entity_type = ?`
		args = append(args, entityType)
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &common.StorageError{Op: "list conflicts", Err: err}
	}
	defer rows.Close()

	var result []models.ConflictRecord
	for rows.Next() {
		var (
			c                        models.ConflictRecord
			local, remote            []byte
			conflictType, resolution string
			resolvedAt               sql.NullInt64
			resolvedBy               sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.EntityType, &c.EntityID, &local, &remote,
			&conflictType, &resolution, &resolvedAt, &resolvedBy); err != nil {
			return nil, &common.StorageError{Op: "list conflicts", Err: err}
		}
		c.LocalVersion = local
		c.RemoteVersion = remote
		c.ConflictType = models.ConflictType(conflictType)
		c.Resolution = models.Resolution(resolution)
		if resolvedAt.Valid {
			t := fromMS(resolvedAt.Int64)
			c.ResolvedAt = &t
		}
		if resolvedBy.Valid {
			v := resolvedBy.String
			c.ResolvedBy = &v
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &common.StorageError{Op: "list conflicts", Err: err}
	}
	return result, nil
}

func (s *Store) Cleanup(ctx context.Context, now time.Time) (storage.CleanupResult, error) {
	var result storage.CleanupResult
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at <= ?`,
			ms(now))
		if err != nil {
			return err
		}
		if result.ExpiredCacheEntries, err = res.RowsAffected(); err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx,
			`DELETE FROM operations WHERE status = 'completed' AND updated_at < ?`,
			ms(now.Add(-common.CompletedRetention)))
		if err != nil {
			return err
		}
		if result.CompletedOperations, err = res.RowsAffected(); err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx,
			`DELETE FROM operations WHERE status = 'failed' AND updated_at < ?`,
			ms(now.Add(-common.FailedRetention)))
		if err != nil {
			return err
		}
		if result.FailedOperations, err = res.RowsAffected(); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return storage.CleanupResult{}, &common.StorageError{Op: "cleanup", Err: err}
	}
	return result, nil
}
