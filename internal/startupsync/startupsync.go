// Package startupsync implements the boot-time reconciliation from
// spec.md §4.7: Registry.startup_sync() followed by a Lifecycle
// Service pass that aligns every Association's status with observed
// runtime state. Requests served before sync completes wait on a
// single gate, grounded on the teacher's internal/sandbox router's
// one-shot "ready" pattern generalized from a per-router flag to a
// process-wide gate.
package startupsync

import (
	"context"
	"log"
	"sync"

	"github.com/memstack/sandboxcore/internal/assoc"
	"github.com/memstack/sandboxcore/internal/registry"
	"github.com/memstack/sandboxcore/internal/types"
)

// Gate lets API handlers and background loops wait for startup sync to
// finish before serving traffic (spec.md §4.7 "Requests served before
// sync is complete wait on a single gate").
type Gate struct {
	done chan struct{}
	once sync.Once
}

// NewGate constructs an unopened Gate.
func NewGate() *Gate {
	return &Gate{done: make(chan struct{})}
}

// Open signals that sync has completed. Safe to call more than once.
func (g *Gate) Open() {
	g.once.Do(func() { close(g.done) })
}

// Wait blocks until Open has been called or ctx is cancelled.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Syncer runs the one-time boot reconciliation.
type Syncer struct {
	reg   *registry.Registry
	store assoc.Store
	gate  *Gate
}

// New constructs a Syncer over reg and store, reporting completion
// through gate.
func New(reg *registry.Registry, store assoc.Store, gate *Gate) *Syncer {
	return &Syncer{reg: reg, store: store, gate: gate}
}

// Run executes the sync exactly once: rebuild the Registry from
// runtime ground truth, then reconcile every Association this process
// can see against it, and finally open the gate regardless of
// per-association reconciliation errors (a single bad row must not
// block the whole process from serving).
func (s *Syncer) Run(ctx context.Context) error {
	defer s.gate.Open()

	if err := s.reg.StartupSync(ctx); err != nil {
		return err
	}

	// The Association Store port (spec.md §6) has no "list everything"
	// operation; find_stale with a zero threshold is the closest
	// equivalent since every Association gets last_accessed_at set on
	// creation, so this covers every row a serving process needs to
	// reconcile at boot.
	associations, err := s.store.FindStale(ctx, 0, 10000)
	if err != nil {
		return err
	}

	reconciled, errored := 0, 0
	for _, a := range associations {
		if a.Status == types.StatusTerminated {
			continue
		}
		inst, tracked := s.reg.Get(a.SandboxID)
		switch {
		case !tracked && a.Status != types.StatusError:
			a.MarkError("no matching container found during startup sync")
			errored++
		case tracked && inst.Status == types.InstanceRunning && a.Status != types.StatusRunning:
			a.Status = types.StatusRunning
			reconciled++
		case tracked && inst.Status == types.InstanceStopped && a.Status != types.StatusStopped:
			a.MarkStopped()
			reconciled++
		default:
			continue
		}
		if err := s.store.Save(ctx, a); err != nil {
			log.Printf("startupsync: failed to save reconciled association %s: %v", a.ID, err)
		}
	}

	log.Printf("startupsync: reconciled %d association(s), marked %d error(s)", reconciled, errored)
	return nil
}
