// Package registry implements the Sandbox Registry from spec.md §4.3: an
// in-memory index of known Instances guarded by a three-lock hierarchy
// (port_allocation_lock -> instance_lock -> cleanup_lock), never held
// simultaneously and never held across a runtime or store call. The
// locking shape is grounded on the teacher's
// internal/sandbox.SandboxRouter — one RWMutex over the map, per-entry
// state — generalized from the Router's wake/hibernate state machine to
// plain instance storage plus a disjoint cleanup-in-progress set.
package registry

import (
	"context"
	"log"
	"sort"

	"github.com/memstack/sandboxcore/internal/containerrt"
	"github.com/memstack/sandboxcore/internal/portalloc"
	"github.com/memstack/sandboxcore/internal/sberrors"
	"github.com/memstack/sandboxcore/internal/types"

	"sync"
)

// Registry is the in-memory sandbox_id -> Instance map. The three
// mutexes are disjoint by design (§4.3): no operation acquires more
// than one simultaneously.
type Registry struct {
	portMu sync.Mutex // guards nothing on its own; portalloc.Allocator owns its own lock, named here to document the hierarchy position

	instanceMu sync.RWMutex
	instances  map[string]*types.Instance

	cleanupMu   sync.Mutex
	cleaningUp  map[string]bool

	allocator *portalloc.Allocator
	runtime   containerrt.Runtime
}

// New constructs an empty Registry over the given Port Allocator and
// Container Runtime.
func New(allocator *portalloc.Allocator, runtime containerrt.Runtime) *Registry {
	return &Registry{
		instances:  make(map[string]*types.Instance),
		cleaningUp: make(map[string]bool),
		allocator:  allocator,
		runtime:    runtime,
	}
}

// Allocator exposes the Port Allocator for callers (Lifecycle Service
// create-new path) that need to reserve a triplet before building an
// Instance. The allocator guards its own lock; the Registry never wraps
// a call into it with instanceMu or cleanupMu held.
func (r *Registry) Allocator() *portalloc.Allocator {
	return r.allocator
}

// Put registers an Instance under its SandboxID, replacing any existing
// entry for that ID.
func (r *Registry) Put(inst *types.Instance) {
	r.instanceMu.Lock()
	defer r.instanceMu.Unlock()
	r.instances[inst.SandboxID] = inst
}

// Get returns the Instance for sandboxID, or ok=false if untracked.
func (r *Registry) Get(sandboxID string) (*types.Instance, bool) {
	r.instanceMu.RLock()
	defer r.instanceMu.RUnlock()
	inst, ok := r.instances[sandboxID]
	return inst, ok
}

// Remove deletes sandboxID from the map. It does not touch the
// container or its ports — callers release those separately, after
// confirming removal (§3 invariant 2).
func (r *Registry) Remove(sandboxID string) {
	r.instanceMu.Lock()
	defer r.instanceMu.Unlock()
	delete(r.instances, sandboxID)
}

// List returns a snapshot of all tracked Instances, sorted by
// SandboxID for deterministic iteration (startup-sync idempotence,
// §8 P6).
func (r *Registry) List() []*types.Instance {
	r.instanceMu.RLock()
	defer r.instanceMu.RUnlock()

	out := make([]*types.Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SandboxID < out[j].SandboxID })
	return out
}

// Size returns the number of tracked Instances.
func (r *Registry) Size() int {
	r.instanceMu.RLock()
	defer r.instanceMu.RUnlock()
	return len(r.instances)
}

// TryBeginCleanup marks sandboxID as undergoing termination, returning
// false if a cleanup for it is already in progress (the §4.3
// cleanup_lock contract). Callers must call EndCleanup on every exit
// path.
func (r *Registry) TryBeginCleanup(sandboxID string) bool {
	r.cleanupMu.Lock()
	defer r.cleanupMu.Unlock()
	if r.cleaningUp[sandboxID] {
		return false
	}
	r.cleaningUp[sandboxID] = true
	return true
}

// EndCleanup clears the in-progress marker for sandboxID.
func (r *Registry) EndCleanup(sandboxID string) {
	r.cleanupMu.Lock()
	defer r.cleanupMu.Unlock()
	delete(r.cleaningUp, sandboxID)
}

// StartupSync enumerates all sandbox-labeled containers in the runtime
// and rebuilds Instances from their labels and port bindings,
// replacing the in-memory map wholesale. Idempotent: running it twice
// in a row produces byte-identical Registry state (§8 P6), since it is
// a pure function of runtime ground truth and never consults its own
// prior state.
func (r *Registry) StartupSync(ctx context.Context) error {
	containers, err := r.runtime.List(ctx, "", "")
	if err != nil {
		return sberrors.ContainerRuntimeError("startup_sync", err)
	}

	rebuilt := make(map[string]*types.Instance, len(containers))
	for _, c := range containers {
		if c.IsOrphanLabeled() {
			continue
		}
		sandboxID := c.SandboxID()
		if sandboxID == "" {
			continue
		}

		status := types.InstanceStopped
		if c.State == types.ContainerRunning {
			status = types.InstanceRunning
		}

		rebuilt[sandboxID] = &types.Instance{
			SandboxID: sandboxID,
			ProjectID: c.ProjectID(),
			TenantID:  c.TenantID(),
			Status:    status,
			Ports:     c.Ports,
			Labels:    c.Labels,
			CreatedAt: c.CreatedAt,
		}
	}

	r.instanceMu.Lock()
	r.instances = rebuilt
	r.instanceMu.Unlock()

	log.Printf("registry: startup sync rebuilt %d instance(s)", len(rebuilt))
	return nil
}
