// Package assoc defines the Association Store port from spec.md §6: a
// durable mapping of project -> sandbox with row-level locking, the
// core's only source of truth for an Association's lifecycle status.
// Two adapters live alongside it: assoc/pg (PostgreSQL via pgx,
// grounded on the teacher's internal/db.Store) and assoc/memstore (an
// in-memory fake for tests and local development).
package assoc

import (
	"context"

	"github.com/memstack/sandboxcore/internal/types"
)

// Store is the Association Store port. Every method may block on I/O
// and must never be called while a Registry lock is held (spec.md
// §4.3, §5 suspension points).
type Store interface {
	FindByProject(ctx context.Context, projectID string) (*types.Association, error)
	FindByID(ctx context.Context, id string) (*types.Association, error)
	FindBySandbox(ctx context.Context, sandboxID string) (*types.Association, error)

	// FindByTenant lists associations for tenantID, optionally filtered
	// by status ("" means any), paginated by limit/offset.
	FindByTenant(ctx context.Context, tenantID string, status types.AssociationStatus, limit, offset int) ([]*types.Association, error)

	// FindStale returns associations whose LastAccessedAt is older than
	// maxIdleSeconds, capped at limit rows, for the Lifecycle Service's
	// cleanup_stale idle reap and the startup sync pass.
	FindStale(ctx context.Context, maxIdleSeconds int, limit int) ([]*types.Association, error)

	// Save upserts association by ID.
	Save(ctx context.Context, association *types.Association) error

	Delete(ctx context.Context, id string) error
	DeleteByProject(ctx context.Context, projectID string) error
	ExistsForProject(ctx context.Context, projectID string) (bool, error)

	// AcquireProjectLock takes a session-scoped advisory lock keyed on
	// projectID. Acquisition is strictly FIFO across the cluster (spec.md
	// §6); callers must release it via the returned Lock's Release on
	// every exit path, including error returns.
	AcquireProjectLock(ctx context.Context, projectID string) (Lock, error)

	// FindAndLockByProject is the SELECT ... FOR UPDATE equivalent: it
	// returns the association for projectID (nil if none exists) with a
	// row lock held for the lifetime of the returned transaction-scoped
	// Lock.
	FindAndLockByProject(ctx context.Context, projectID string) (*types.Association, Lock, error)
}

// Lock is a held lock that must be released exactly once.
type Lock interface {
	Release(ctx context.Context) error
}
