package orphan

import (
	"context"
	"testing"
	"time"

	"github.com/memstack/sandboxcore/internal/assoc/memstore"
	"github.com/memstack/sandboxcore/internal/containerrt"
	"github.com/memstack/sandboxcore/internal/types"
)

type fakeRuntime struct {
	containers []types.Container
	removed    []string
}

func (f *fakeRuntime) Create(ctx context.Context, spec containerrt.CreateSpec) (types.Container, error) {
	return types.Container{}, nil
}
func (f *fakeRuntime) Start(ctx context.Context, runtimeID string) error { return nil }
func (f *fakeRuntime) Stop(ctx context.Context, runtimeID string, timeout time.Duration) error {
	return nil
}
func (f *fakeRuntime) Remove(ctx context.Context, runtimeID string, force bool) error {
	f.removed = append(f.removed, runtimeID)
	return nil
}
func (f *fakeRuntime) Get(ctx context.Context, runtimeID string) (types.Container, bool, error) {
	return types.Container{}, false, nil
}
func (f *fakeRuntime) GetBySandboxID(ctx context.Context, sandboxID string) (types.Container, bool, error) {
	return types.Container{}, false, nil
}
func (f *fakeRuntime) List(ctx context.Context, projectID, tenantID string) ([]types.Container, error) {
	return f.containers, nil
}
func (f *fakeRuntime) Exists(ctx context.Context, sandboxID string) (bool, error) { return false, nil }
func (f *fakeRuntime) IsRunning(ctx context.Context, runtimeID string) (bool, error) {
	return false, nil
}
func (f *fakeRuntime) Stats(ctx context.Context, runtimeID string) (containerrt.StatsResult, error) {
	return containerrt.StatsResult{}, nil
}
func (f *fakeRuntime) PullImage(ctx context.Context, image string) error          { return nil }
func (f *fakeRuntime) ImageExists(ctx context.Context, image string) (bool, error) { return true, nil }
func (f *fakeRuntime) ExecAttach(ctx context.Context, runtimeID string, opts containerrt.ExecAttachOptions) error {
	return nil
}

var _ containerrt.Runtime = (*fakeRuntime)(nil)

func TestSweepRemovesUnlabeledOrphan(t *testing.T) {
	rt := &fakeRuntime{containers: []types.Container{
		{
			RuntimeID: "rt-1",
			State:     types.ContainerRunning,
			Labels:    map[string]string{types.LabelSandbox: "true"}, // no project_id
			CreatedAt: time.Now(),
		},
	}}
	store := memstore.New()
	c := New(rt, store, Config{GracePeriod: time.Hour})

	stats := c.Sweep(context.Background())
	if stats.RemovedOrphans != 1 {
		t.Errorf("expected 1 removed orphan, got %d", stats.RemovedOrphans)
	}
	if len(rt.removed) != 1 || rt.removed[0] != "rt-1" {
		t.Errorf("expected rt-1 removed, got %v", rt.removed)
	}
}

func TestSweepRemovesStaleExitedContainer(t *testing.T) {
	rt := &fakeRuntime{containers: []types.Container{
		{
			RuntimeID: "rt-2",
			State:     types.ContainerExited,
			Labels: types.Labels("sb-2", "proj-2", "tenant-2", time.Now()),
			CreatedAt: time.Now().Add(-2 * time.Hour),
		},
	}}
	store := memstore.New()
	c := New(rt, store, Config{GracePeriod: time.Hour})

	stats := c.Sweep(context.Background())
	if stats.RemovedStale != 1 {
		t.Errorf("expected 1 removed stale container, got %d", stats.RemovedStale)
	}
}

func TestSweepKeepsRunningContainerWithinGracePeriod(t *testing.T) {
	rt := &fakeRuntime{containers: []types.Container{
		{
			RuntimeID: "rt-3",
			State:     types.ContainerRunning,
			Labels:    types.Labels("sb-3", "proj-3", "tenant-3", time.Now()),
			CreatedAt: time.Now(),
		},
	}}
	store := memstore.New()
	c := New(rt, store, Config{GracePeriod: time.Hour})

	stats := c.Sweep(context.Background())
	if stats.RemovedOrphans+stats.RemovedStale+stats.RemovedUntracked != 0 {
		t.Errorf("expected nothing removed, got %+v", stats)
	}
	if len(rt.removed) != 0 {
		t.Errorf("expected no removals, got %v", rt.removed)
	}
}

func TestSweepRemovesUntrackedWhenDBChecksEnabled(t *testing.T) {
	rt := &fakeRuntime{containers: []types.Container{
		{
			RuntimeID: "rt-4",
			State:     types.ContainerRunning,
			Labels:    types.Labels("sb-4", "proj-4", "tenant-4", time.Now()),
			CreatedAt: time.Now(),
		},
	}}
	store := memstore.New() // empty: no association for sb-4
	c := New(rt, store, Config{GracePeriod: time.Hour, DBChecksEnabled: true})

	stats := c.Sweep(context.Background())
	if stats.RemovedUntracked != 1 {
		t.Errorf("expected 1 removed untracked container, got %d", stats.RemovedUntracked)
	}
}

func TestSweepKeepsTrackedContainerWhenDBChecksEnabled(t *testing.T) {
	now := time.Now()
	rt := &fakeRuntime{containers: []types.Container{
		{
			RuntimeID: "rt-5",
			State:     types.ContainerRunning,
			Labels:    types.Labels("sb-5", "proj-5", "tenant-5", now),
			CreatedAt: now,
		},
	}}
	store := memstore.New()
	store.Save(context.Background(), &types.Association{
		ID: "a5", ProjectID: "proj-5", SandboxID: "sb-5",
		Status: types.StatusRunning, LastAccessedAt: &now,
	})
	c := New(rt, store, Config{GracePeriod: time.Hour, DBChecksEnabled: true})

	stats := c.Sweep(context.Background())
	if stats.RemovedUntracked != 0 {
		t.Errorf("expected tracked container kept, got %+v", stats)
	}
}
