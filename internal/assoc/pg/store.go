// Package pg is the PostgreSQL Association Store adapter, grounded on
// the teacher's internal/db.Store: a pgxpool.Pool, embed-based
// migrations, and the scanX-per-row helper convention. Row-level
// locking uses SELECT ... FOR UPDATE inside an explicit transaction;
// project-level serialization uses pg_advisory_lock, a session-scoped
// lock released on connection return to the pool.
package pg

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memstack/sandboxcore/internal/assoc"
	"github.com/memstack/sandboxcore/internal/sberrors"
	"github.com/memstack/sandboxcore/internal/types"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the pg-backed assoc.Store.
type Store struct {
	pool *pgxpool.Pool
}

var _ assoc.Store = (*Store)(nil)

// New connects to databaseURL and verifies connectivity with a ping,
// mirroring the teacher's db.NewStore.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("assoc/pg: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("assoc/pg: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Migrate runs schema migrations, tracked the same way as the
// teacher's internal/db.Store.Migrate: a schema_migrations table and a
// version ladder applied inside per-migration transactions.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("assoc/pg: create migrations table: %w", err)
	}

	var currentVersion int
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&currentVersion); err != nil {
		return fmt.Errorf("assoc/pg: read migration version: %w", err)
	}

	migrations := []struct {
		version  int
		filename string
	}{
		{1, "migrations/001_associations.up.sql"},
	}

	for _, m := range migrations {
		if currentVersion >= m.version {
			continue
		}
		sql, err := migrationsFS.ReadFile(m.filename)
		if err != nil {
			return fmt.Errorf("assoc/pg: read migration file %s: %w", m.filename, err)
		}
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("assoc/pg: begin migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(ctx, string(sql)); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("assoc/pg: apply migration %03d: %w", m.version, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.version); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("assoc/pg: record migration %03d: %w", m.version, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("assoc/pg: commit migration %03d: %w", m.version, err)
		}
	}
	return nil
}

const associationColumns = `id, tenant_id, project_id, sandbox_id, status, error_message,
	created_at, started_at, last_accessed_at, last_health_check_at`

func scanAssociation(row pgx.Row) (*types.Association, error) {
	a := &types.Association{}
	var status string
	err := row.Scan(
		&a.ID, &a.TenantID, &a.ProjectID, &a.SandboxID, &status, &a.ErrorMessage,
		&a.CreatedAt, &a.StartedAt, &a.LastAccessedAt, &a.LastHealthCheckAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = types.AssociationStatus(status)
	return a, nil
}

func (s *Store) FindByProject(ctx context.Context, projectID string) (*types.Association, error) {
	a, err := scanAssociation(s.pool.QueryRow(ctx,
		`SELECT `+associationColumns+` FROM associations WHERE project_id = $1`, projectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, sberrors.StoreError("find_by_project", err)
	}
	return a, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*types.Association, error) {
	a, err := scanAssociation(s.pool.QueryRow(ctx,
		`SELECT `+associationColumns+` FROM associations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, sberrors.StoreError("find_by_id", err)
	}
	return a, nil
}

func (s *Store) FindBySandbox(ctx context.Context, sandboxID string) (*types.Association, error) {
	a, err := scanAssociation(s.pool.QueryRow(ctx,
		`SELECT `+associationColumns+` FROM associations WHERE sandbox_id = $1`, sandboxID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, sberrors.StoreError("find_by_sandbox", err)
	}
	return a, nil
}

func (s *Store) FindByTenant(ctx context.Context, tenantID string, status types.AssociationStatus, limit, offset int) ([]*types.Association, error) {
	var rows pgx.Rows
	var err error
	if status == "" {
		rows, err = s.pool.Query(ctx,
			`SELECT `+associationColumns+` FROM associations WHERE tenant_id = $1
			 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, tenantID, limit, offset)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+associationColumns+` FROM associations WHERE tenant_id = $1 AND status = $2
			 ORDER BY created_at DESC LIMIT $3 OFFSET $4`, tenantID, string(status), limit, offset)
	}
	if err != nil {
		return nil, sberrors.StoreError("find_by_tenant", err)
	}
	defer rows.Close()
	return collectAssociations(rows)
}

func (s *Store) FindStale(ctx context.Context, maxIdleSeconds int, limit int) ([]*types.Association, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+associationColumns+` FROM associations
		 WHERE last_accessed_at < now() - ($1 || ' seconds')::interval
		 ORDER BY last_accessed_at ASC LIMIT $2`, maxIdleSeconds, limit)
	if err != nil {
		return nil, sberrors.StoreError("find_stale", err)
	}
	defer rows.Close()
	return collectAssociations(rows)
}

func collectAssociations(rows pgx.Rows) ([]*types.Association, error) {
	var out []*types.Association
	for rows.Next() {
		a, err := scanAssociation(rows)
		if err != nil {
			return nil, sberrors.StoreError("scan", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, sberrors.StoreError("rows", err)
	}
	return out, nil
}

func (s *Store) Save(ctx context.Context, a *types.Association) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO associations (id, tenant_id, project_id, sandbox_id, status, error_message,
			created_at, started_at, last_accessed_at, last_health_check_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			started_at = EXCLUDED.started_at,
			last_accessed_at = EXCLUDED.last_accessed_at,
			last_health_check_at = EXCLUDED.last_health_check_at
	`, a.ID, a.TenantID, a.ProjectID, a.SandboxID, string(a.Status), a.ErrorMessage,
		a.CreatedAt, a.StartedAt, a.LastAccessedAt, a.LastHealthCheckAt)
	if err != nil {
		return sberrors.StoreError("save", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM associations WHERE id = $1`, id); err != nil {
		return sberrors.StoreError("delete", err)
	}
	return nil
}

func (s *Store) DeleteByProject(ctx context.Context, projectID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM associations WHERE project_id = $1`, projectID); err != nil {
		return sberrors.StoreError("delete_by_project", err)
	}
	return nil
}

func (s *Store) ExistsForProject(ctx context.Context, projectID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM associations WHERE project_id = $1)`, projectID).Scan(&exists)
	if err != nil {
		return false, sberrors.StoreError("exists_for_project", err)
	}
	return exists, nil
}

// projectLockKey derives pg_advisory_lock's bigint key from a project
// ID via FNV-1a, so arbitrary string project IDs map onto Postgres's
// 64-bit advisory lock keyspace.
func projectLockKey(projectID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(projectID))
	return int64(h.Sum64())
}

// advisoryLock holds a single pooled connection for the lifetime of a
// session-scoped pg_advisory_lock, released by returning the
// connection to the pool.
type advisoryLock struct {
	conn *pgxpool.Conn
	key  int64
}

func (l *advisoryLock) Release(ctx context.Context) error {
	_, err := l.conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, l.key)
	l.conn.Release()
	if err != nil {
		return sberrors.StoreError("release_project_lock", err)
	}
	return nil
}

func (s *Store) AcquireProjectLock(ctx context.Context, projectID string) (assoc.Lock, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, sberrors.StoreError("acquire_project_lock", err)
	}
	key := projectLockKey(projectID)
	// pg_advisory_lock blocks until acquired (FIFO per Postgres's lock
	// queue, spec.md §6), never fails except on connection loss.
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, key); err != nil {
		conn.Release()
		return nil, sberrors.StoreError("acquire_project_lock", err)
	}
	return &advisoryLock{conn: conn, key: key}, nil
}

// txLock wraps the transaction that holds a SELECT ... FOR UPDATE row
// lock; Release commits (the lock is released on commit/rollback).
type txLock struct {
	tx pgx.Tx
}

func (l *txLock) Release(ctx context.Context) error {
	if err := l.tx.Commit(ctx); err != nil {
		return sberrors.StoreError("find_and_lock_by_project:commit", err)
	}
	return nil
}

func (s *Store) FindAndLockByProject(ctx context.Context, projectID string) (*types.Association, assoc.Lock, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, sberrors.StoreError("find_and_lock_by_project:begin", err)
	}

	a, err := scanAssociation(tx.QueryRow(ctx,
		`SELECT `+associationColumns+` FROM associations WHERE project_id = $1 FOR UPDATE`, projectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &txLock{tx: tx}, nil
		}
		tx.Rollback(ctx)
		return nil, nil, sberrors.StoreError("find_and_lock_by_project", err)
	}
	return a, &txLock{tx: tx}, nil
}
