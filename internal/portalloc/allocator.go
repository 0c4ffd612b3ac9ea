// Package portalloc implements the Port Allocator from spec.md §4.1: a
// collision-free allocator of host port triplets from a bounded range,
// grounded on the bind-probe idiom in
// cklxx-elephant.ai/internal/devops/port.Allocator, generalized from
// single-port reservation to a cursor-advancing triplet scan.
package portalloc

import (
	"fmt"
	"net"
	"sync"

	"github.com/memstack/sandboxcore/internal/sberrors"
	"github.com/memstack/sandboxcore/internal/types"
)

// Range describes the configured port range, in triples: width must be
// a multiple of 3 so every index maps to exactly one disjoint triplet.
type Range struct {
	Start int
	Width int
}

// DefaultRange starts at 18765 with width 999: 333 triplets, ports
// 18765–19763.
var DefaultRange = Range{Start: 18765, Width: 999}

func (r Range) tripletCount() int {
	return r.Width / 3
}

func (r Range) tripletAt(idx int) types.PortTriplet {
	base := r.Start + idx*3
	return types.PortTriplet{MCP: base, Desktop: base + 1, Terminal: base + 2}
}

// Probe checks OS-level port availability. The default probeBind below
// attempts a non-blocking bind on 0.0.0.0:port, exactly the
// net.Listen-based check cklxx-elephant.ai's allocator uses, generalized
// to accept any probe implementation for testing.
type Probe func(port int) bool

func probeBind(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

// DefaultProbe is the bind-probe used outside of tests.
var DefaultProbe Probe = probeBind

// Allocator hands out PortTriplets under a single port_allocation_lock,
// per spec.md §4.3 (the lock guards the Port Allocator alone and is
// never held across a runtime call).
type Allocator struct {
	mu     sync.Mutex
	rng    Range
	inUse  map[int]bool
	cursor int
	probe  Probe
}

// New constructs an Allocator over rng. A nil probe defaults to an
// OS-level bind check.
func New(rng Range, probe Probe) *Allocator {
	if probe == nil {
		probe = probeBind
	}
	return &Allocator{
		rng:   rng,
		inUse: make(map[int]bool),
		probe: probe,
	}
}

// Allocate reserves the next available triplet, advancing the cursor
// modulo the range. Fails with ResourceExhausted if a full scan finds no
// free triplet.
func (a *Allocator) Allocate() (types.PortTriplet, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := a.rng.tripletCount()
	for scanned := 0; scanned < n; scanned++ {
		idx := (a.cursor + scanned) % n
		t := a.rng.tripletAt(idx)

		if a.anyInUseLocked(t) {
			continue
		}
		if !a.probe(t.MCP) || !a.probe(t.Desktop) || !a.probe(t.Terminal) {
			continue
		}

		a.inUse[t.MCP] = true
		a.inUse[t.Desktop] = true
		a.inUse[t.Terminal] = true
		a.cursor = (idx + 1) % n
		return t, nil
	}

	return types.PortTriplet{}, sberrors.ResourceExhausted("allocate", fmt.Errorf("no free port triplet in range %d-%d", a.rng.Start, a.rng.Start+a.rng.Width))
}

// Release returns all three ports of t to the free pool. Ports are never
// re-used while held; callers must only release a triplet after the
// owning container is confirmed removed (§3 invariant 2).
func (a *Allocator) Release(t types.PortTriplet) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inUse, t.MCP)
	delete(a.inUse, t.Desktop)
	delete(a.inUse, t.Terminal)
}

// InUseCount reports the number of ports currently reserved, for metrics
// and tests.
func (a *Allocator) InUseCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inUse)
}

func (a *Allocator) anyInUseLocked(t types.PortTriplet) bool {
	return a.inUse[t.MCP] || a.inUse[t.Desktop] || a.inUse[t.Terminal]
}
