package registry

import (
	"context"
	"testing"
	"time"

	"github.com/memstack/sandboxcore/internal/containerrt"
	"github.com/memstack/sandboxcore/internal/portalloc"
	"github.com/memstack/sandboxcore/internal/types"
)

func newTestAllocator() *portalloc.Allocator {
	return portalloc.New(portalloc.Range{Start: 20000, Width: 30}, func(int) bool { return true })
}

func TestPutGetRemove(t *testing.T) {
	r := New(newTestAllocator(), &stubRuntime{})
	inst := &types.Instance{SandboxID: "sb-1", ProjectID: "p1"}
	r.Put(inst)

	got, ok := r.Get("sb-1")
	if !ok || got.ProjectID != "p1" {
		t.Fatalf("expected to find sb-1")
	}

	r.Remove("sb-1")
	if _, ok := r.Get("sb-1"); ok {
		t.Fatal("expected sb-1 to be gone after Remove")
	}
}

func TestListSorted(t *testing.T) {
	r := New(newTestAllocator(), &stubRuntime{})
	r.Put(&types.Instance{SandboxID: "sb-3"})
	r.Put(&types.Instance{SandboxID: "sb-1"})
	r.Put(&types.Instance{SandboxID: "sb-2"})

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 instances, got %d", len(list))
	}
	if list[0].SandboxID != "sb-1" || list[1].SandboxID != "sb-2" || list[2].SandboxID != "sb-3" {
		t.Errorf("expected sorted order, got %v", list)
	}
}

func TestCleanupCoalescing(t *testing.T) {
	r := New(newTestAllocator(), &stubRuntime{})
	if !r.TryBeginCleanup("sb-1") {
		t.Fatal("expected first cleanup attempt to succeed")
	}
	if r.TryBeginCleanup("sb-1") {
		t.Fatal("expected concurrent cleanup attempt to be rejected")
	}
	r.EndCleanup("sb-1")
	if !r.TryBeginCleanup("sb-1") {
		t.Fatal("expected cleanup to be retryable after EndCleanup")
	}
}

func TestStartupSyncIsIdempotent(t *testing.T) {
	now := time.Now()
	rt := &stubRuntime{
		containers: []types.Container{
			{
				RuntimeID: "c1",
				State:     types.ContainerRunning,
				Labels:    types.Labels("sb-1", "proj-1", "tenant-1", now),
				CreatedAt: now,
			},
		},
	}
	r := New(newTestAllocator(), rt)

	if err := r.StartupSync(context.Background()); err != nil {
		t.Fatalf("first StartupSync error: %v", err)
	}
	first := r.List()

	if err := r.StartupSync(context.Background()); err != nil {
		t.Fatalf("second StartupSync error: %v", err)
	}
	second := r.List()

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected 1 instance each sync, got %d then %d", len(first), len(second))
	}
	if first[0].SandboxID != second[0].SandboxID {
		t.Errorf("expected idempotent rebuild, got %q then %q", first[0].SandboxID, second[0].SandboxID)
	}
}

// stubRuntime satisfies containerrt.Runtime with no-ops beyond List, the
// only method StartupSync exercises.
type stubRuntime struct {
	containers []types.Container
}

var _ containerrt.Runtime = (*stubRuntime)(nil)

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
