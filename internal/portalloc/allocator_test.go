package portalloc

import (
	"testing"

	"github.com/memstack/sandboxcore/internal/sberrors"
)

func alwaysFree(int) bool { return true }

func TestAllocateReturnsDisjointTriplet(t *testing.T) {
	a := New(Range{Start: 20000, Width: 9}, alwaysFree)
	t1, err := a.Allocate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if t1.MCP == t1.Desktop || t1.Desktop == t1.Terminal {
		t.Fatalf("expected disjoint ports, got %+v", t1)
	}
}

func TestAllocateAdvancesCursorNoOverlap(t *testing.T) {
	a := New(Range{Start: 20000, Width: 9}, alwaysFree)
	t1, _ := a.Allocate()
	t2, _ := a.Allocate()
	for _, p := range t1.Ports() {
		if t2.Contains(p) {
			t.Fatalf("expected no overlap between %+v and %+v", t1, t2)
		}
	}
}

func TestAllocateExhaustion(t *testing.T) {
	a := New(Range{Start: 20000, Width: 3}, alwaysFree)
	if _, err := a.Allocate(); err != nil {
		t.Fatalf("expected first allocation to succeed: %v", err)
	}
	_, err := a.Allocate()
	if err == nil {
		t.Fatal("expected ResourceExhausted on second allocation from a one-triplet range")
	}
	if !sberrors.Is(err, sberrors.KindResourceExhausted) {
		t.Fatalf("expected ResourceExhausted kind, got %v", err)
	}
}

func TestReleaseFreesForReuse(t *testing.T) {
	a := New(Range{Start: 20000, Width: 3}, alwaysFree)
	t1, _ := a.Allocate()
	a.Release(t1)
	if a.InUseCount() != 0 {
		t.Fatalf("expected 0 ports in use after release, got %d", a.InUseCount())
	}
	if _, err := a.Allocate(); err != nil {
		t.Fatalf("expected re-allocation to succeed after release: %v", err)
	}
}

func TestProbeRejectsOccupiedPort(t *testing.T) {
	occupied := 20001 // the Desktop port of the first triplet at Start=20000
	probe := func(port int) bool { return port != occupied }
	a := New(Range{Start: 20000, Width: 6}, probe)

	t1, err := a.Allocate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if t1.Contains(occupied) {
		t.Fatalf("expected allocator to skip the triplet containing the occupied port, got %+v", t1)
	}
}
