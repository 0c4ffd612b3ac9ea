// Package memstore is an in-memory assoc.Store, for tests and local
// development without a Postgres instance. Locking is a plain
// in-process mutex map rather than advisory locks, since there is only
// ever one process holding the map.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/memstack/sandboxcore/internal/assoc"
	"github.com/memstack/sandboxcore/internal/sberrors"
	"github.com/memstack/sandboxcore/internal/types"
)

// Store is an in-memory assoc.Store keyed by Association ID, with
// secondary lookups by project and sandbox ID kept in step.
type Store struct {
	mu           sync.Mutex
	byID         map[string]*types.Association
	projectLocks map[string]*sync.Mutex
}

var _ assoc.Store = (*Store)(nil)

// New constructs an empty Store.
func New() *Store {
	return &Store{
		byID:         make(map[string]*types.Association),
		projectLocks: make(map[string]*sync.Mutex),
	}
}

func cloneAssociation(a *types.Association) *types.Association {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}

func (s *Store) FindByProject(ctx context.Context, projectID string) (*types.Association, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.byID {
		if a.ProjectID == projectID {
			return cloneAssociation(a), nil
		}
	}
	return nil, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*types.Association, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAssociation(s.byID[id]), nil
}

func (s *Store) FindBySandbox(ctx context.Context, sandboxID string) (*types.Association, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.byID {
		if a.SandboxID == sandboxID {
			return cloneAssociation(a), nil
		}
	}
	return nil, nil
}

func (s *Store) FindByTenant(ctx context.Context, tenantID string, status types.AssociationStatus, limit, offset int) ([]*types.Association, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*types.Association
	for _, a := range s.byID {
		if a.TenantID != tenantID {
			continue
		}
		if status != "" && a.Status != status {
			continue
		}
		matched = append(matched, cloneAssociation(a))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (s *Store) FindStale(ctx context.Context, maxIdleSeconds int, limit int) ([]*types.Association, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*types.Association
	for _, a := range s.byID {
		if a.LastAccessedAt == nil {
			continue
		}
		if a.NeedsIdleReap(maxIdleSeconds) {
			matched = append(matched, cloneAssociation(a))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].LastAccessedAt.Before(*matched[j].LastAccessedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *Store) Save(ctx context.Context, a *types.Association) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[a.ID] = cloneAssociation(a)
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	return nil
}

func (s *Store) DeleteByProject(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range s.byID {
		if a.ProjectID == projectID {
			delete(s.byID, id)
		}
	}
	return nil
}

func (s *Store) ExistsForProject(ctx context.Context, projectID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.byID {
		if a.ProjectID == projectID {
			return true, nil
		}
	}
	return false, nil
}

type memLock struct {
	mu *sync.Mutex
}

func (l *memLock) Release(ctx context.Context) error {
	l.mu.Unlock()
	return nil
}

func (s *Store) projectLock(projectID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.projectLocks[projectID]
	if !ok {
		mu = &sync.Mutex{}
		s.projectLocks[projectID] = mu
	}
	return mu
}

func (s *Store) AcquireProjectLock(ctx context.Context, projectID string) (assoc.Lock, error) {
	mu := s.projectLock(projectID)
	mu.Lock()
	return &memLock{mu: mu}, nil
}

func (s *Store) FindAndLockByProject(ctx context.Context, projectID string) (*types.Association, assoc.Lock, error) {
	mu := s.projectLock(projectID)
	mu.Lock()
	a, err := s.FindByProject(ctx, projectID)
	if err != nil {
		mu.Unlock()
		return nil, nil, sberrors.StoreError("find_and_lock_by_project", err)
	}
	return a, &memLock{mu: mu}, nil
}
