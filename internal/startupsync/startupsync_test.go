package startupsync

import (
	"context"
	"testing"
	"time"

	"github.com/memstack/sandboxcore/internal/assoc/memstore"
	"github.com/memstack/sandboxcore/internal/containerrt"
	"github.com/memstack/sandboxcore/internal/portalloc"
	"github.com/memstack/sandboxcore/internal/registry"
	"github.com/memstack/sandboxcore/internal/types"
)

type stubRuntime struct {
	containers []types.Container
}

func (s *stubRuntime) Create(ctx context.Context, spec containerrt.CreateSpec) (types.Container, error) {
	return types.Container{}, nil
}
func (s *stubRuntime) Start(ctx context.Context, runtimeID string) error { return nil }
func (s *stubRuntime) Stop(ctx context.Context, runtimeID string, timeout time.Duration) error {
	return nil
}
func (s *stubRuntime) Remove(ctx context.Context, runtimeID string, force bool) error { return nil }
func (s *stubRuntime) Get(ctx context.Context, runtimeID string) (types.Container, bool, error) {
	return types.Container{}, false, nil
}
func (s *stubRuntime) GetBySandboxID(ctx context.Context, sandboxID string) (types.Container, bool, error) {
	return types.Container{}, false, nil
}
func (s *stubRuntime) List(ctx context.Context, projectID, tenantID string) ([]types.Container, error) {
	return s.containers, nil
}
func (s *stubRuntime) Exists(ctx context.Context, sandboxID string) (bool, error) { return false, nil }
func (s *stubRuntime) IsRunning(ctx context.Context, runtimeID string) (bool, error) {
	return false, nil
}
func (s *stubRuntime) Stats(ctx context.Context, runtimeID string) (containerrt.StatsResult, error) {
	return containerrt.StatsResult{}, nil
}
func (s *stubRuntime) PullImage(ctx context.Context, image string) error        { return nil }
func (s *stubRuntime) ImageExists(ctx context.Context, image string) (bool, error) { return false, nil }
func (s *stubRuntime) ExecAttach(ctx context.Context, runtimeID string, opts containerrt.ExecAttachOptions) error {
	return nil
}

func TestRunOpensGateAndMarksMissingAssociationError(t *testing.T) {
	now := time.Now()
	rt := &stubRuntime{} // no containers: every association is "missing"
	alloc := portalloc.New(portalloc.Range{Start: 23000, Width: 10}, func(int) bool { return true })
	reg := registry.New(alloc, rt)

	store := memstore.New()
	ctx := context.Background()
	store.Save(ctx, &types.Association{
		ID: "a1", ProjectID: "p1", SandboxID: "sb-1",
		Status: types.StatusRunning, LastAccessedAt: &now,
	})

	gate := NewGate()
	syncer := New(reg, store, gate)

	if err := syncer.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := gate.Wait(waitCtx); err != nil {
		t.Fatalf("expected gate to be open after Run, got %v", err)
	}

	a, err := store.FindByID(ctx, "a1")
	if err != nil || a == nil {
		t.Fatalf("FindByID: %v, %v", a, err)
	}
	if a.Status != types.StatusError {
		t.Errorf("expected association marked error when no container found, got %s", a.Status)
	}
}

func TestGateWaitTimesOutBeforeOpen(t *testing.T) {
	gate := NewGate()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := gate.Wait(ctx); err == nil {
		t.Fatal("expected Wait to time out before gate is opened")
	}
}
