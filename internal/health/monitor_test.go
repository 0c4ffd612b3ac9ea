package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/memstack/sandboxcore/internal/containerrt"
	"github.com/memstack/sandboxcore/internal/portalloc"
	"github.com/memstack/sandboxcore/internal/registry"
	"github.com/memstack/sandboxcore/internal/types"
)

type fakeChecker struct {
	result types.HealthResult
}

func (f *fakeChecker) Check(ctx context.Context, inst *types.Instance, level types.HealthLevel) types.HealthResult {
	return f.result
}

type fakeActions struct {
	mu            sync.Mutex
	reconnectOK   bool
	recreateCalls int
	recreateErr   error
	markErrorArgs []string
}

func (f *fakeActions) ReconnectControlClient(ctx context.Context, inst *types.Instance) bool {
	return f.reconnectOK
}

func (f *fakeActions) Recreate(ctx context.Context, sandboxID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recreateCalls++
	return f.recreateErr
}

func (f *fakeActions) MarkError(ctx context.Context, sandboxID string, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markErrorArgs = append(f.markErrorArgs, sandboxID)
	return nil
}

func newTestRegistry() *registry.Registry {
	alloc := portalloc.New(portalloc.Range{Start: 21000, Width: 30}, func(int) bool { return true })
	return registry.New(alloc, noopRuntime{})
}

type noopRuntime struct{}

func (noopRuntime) Create(ctx context.Context, spec containerrt.CreateSpec) (types.Container, error) {
	return types.Container{}, nil
}
func (noopRuntime) Start(ctx context.Context, runtimeID string) error { return nil }
func (noopRuntime) Stop(ctx context.Context, runtimeID string, timeout time.Duration) error {
	return nil
}
func (noopRuntime) Remove(ctx context.Context, runtimeID string, force bool) error { return nil }
func (noopRuntime) Get(ctx context.Context, runtimeID string) (types.Container, bool, error) {
	return types.Container{}, false, nil
}
func (noopRuntime) GetBySandboxID(ctx context.Context, sandboxID string) (types.Container, bool, error) {
	return types.Container{}, false, nil
}
func (noopRuntime) List(ctx context.Context, projectID, tenantID string) ([]types.Container, error) {
	return nil, nil
}
func (noopRuntime) Exists(ctx context.Context, sandboxID string) (bool, error) { return false, nil }
func (noopRuntime) IsRunning(ctx context.Context, runtimeID string) (bool, error) {
	return false, nil
}
func (noopRuntime) Stats(ctx context.Context, runtimeID string) (containerrt.StatsResult, error) {
	return containerrt.StatsResult{}, nil
}
func (noopRuntime) PullImage(ctx context.Context, image string) error        { return nil }
func (noopRuntime) ImageExists(ctx context.Context, image string) (bool, error) { return false, nil }
func (noopRuntime) ExecAttach(ctx context.Context, runtimeID string, opts containerrt.ExecAttachOptions) error {
	return nil
}

func testConfig() Config {
	return Config{
		HealthLoopInterval:  time.Hour,
		HeartbeatInterval:   time.Hour,
		TTLCleanupInterval:  time.Hour,
		HeartbeatTimeout:    time.Second,
		ResultCacheTTL:      time.Minute,
		RebuildCooldown:     time.Millisecond,
		RecoveryCounterTTL:  time.Minute,
		MaxRecoveryAttempts: 3,
		RecoveryBackoffBase: time.Millisecond,
		RecoveryBackoffMax:  10 * time.Millisecond,
		DefaultCheckLevel:   types.HealthBasic,
		AutoRecoveryEnabled: true,
	}
}

func TestRunHealthLoopCachesResult(t *testing.T) {
	reg := newTestRegistry()
	reg.Put(&types.Instance{SandboxID: "sb-1"})

	checker := &fakeChecker{result: types.HealthResult{SandboxID: "sb-1", Healthy: true, Status: types.HealthStatusHealthy}}
	m := New(reg, checker, &fakeActions{}, testConfig(), Callbacks{}, NewLocalCoalescer(), 10)

	m.runHealthLoop()

	result, ok := m.CachedResult("sb-1")
	if !ok || !result.Healthy {
		t.Fatalf("expected cached healthy result, got %+v, ok=%v", result, ok)
	}
}

func TestAttemptRecoveryReconnectsAndResetsCounter(t *testing.T) {
	reg := newTestRegistry()
	inst := &types.Instance{SandboxID: "sb-1", ProjectID: "proj-1"}
	reg.Put(inst)

	actions := &fakeActions{reconnectOK: true}
	var recoveredCalled bool
	cb := Callbacks{OnRecovered: func(sandboxID string) { recoveredCalled = true }}

	m := New(reg, &fakeChecker{}, actions, testConfig(), cb, NewLocalCoalescer(), 10)
	m.incrementRecoveryAttempts("proj-1")
	inst.ControlClient = fakeControlClient{}

	m.attemptRecovery(context.Background(), inst)

	if !recoveredCalled {
		t.Error("expected OnRecovered callback to fire")
	}
	if m.recoveryAttempts("proj-1") != 0 {
		t.Errorf("expected recovery counter reset, got %d", m.recoveryAttempts("proj-1"))
	}
}

func TestAttemptRecoveryStopsAtMaxAttempts(t *testing.T) {
	reg := newTestRegistry()
	inst := &types.Instance{SandboxID: "sb-1", ProjectID: "proj-1"}
	reg.Put(inst)

	actions := &fakeActions{}
	cfg := testConfig()
	cfg.MaxRecoveryAttempts = 1

	m := New(reg, &fakeChecker{}, actions, cfg, Callbacks{}, NewLocalCoalescer(), 10)
	m.incrementRecoveryAttempts("proj-1") // already at 1, equals max

	m.attemptRecovery(context.Background(), inst)

	actions.mu.Lock()
	defer actions.mu.Unlock()
	if actions.recreateCalls != 0 {
		t.Errorf("expected no recreate attempts once max reached, got %d", actions.recreateCalls)
	}
	if len(actions.markErrorArgs) != 1 || actions.markErrorArgs[0] != "sb-1" {
		t.Errorf("expected MarkError to be called once with sandbox sb-1, got %v", actions.markErrorArgs)
	}
}

func TestAttemptRecoveryKeyedByProjectSurvivesSandboxRotation(t *testing.T) {
	reg := newTestRegistry()
	inst := &types.Instance{SandboxID: "sb-old", ProjectID: "proj-1"}
	reg.Put(inst)

	actions := &fakeActions{}
	cfg := testConfig()
	cfg.MaxRecoveryAttempts = 2

	m := New(reg, &fakeChecker{}, actions, cfg, Callbacks{}, NewLocalCoalescer(), 10)
	m.incrementRecoveryAttempts("proj-1")
	m.incrementRecoveryAttempts("proj-1")

	// A recreate mints a fresh sandbox ID for the same project; the
	// counter must still be bound by the cap since it is keyed by
	// ProjectID, not SandboxID.
	rotated := &types.Instance{SandboxID: "sb-new", ProjectID: "proj-1"}
	m.attemptRecovery(context.Background(), rotated)

	actions.mu.Lock()
	defer actions.mu.Unlock()
	if actions.recreateCalls != 0 {
		t.Errorf("expected no recreate attempts once max reached across sandbox rotation, got %d", actions.recreateCalls)
	}
	if len(actions.markErrorArgs) != 1 || actions.markErrorArgs[0] != "sb-new" {
		t.Errorf("expected MarkError to be called once with the rotated sandbox id, got %v", actions.markErrorArgs)
	}
}

func TestLocalCoalescerSuppressesDuplicates(t *testing.T) {
	c := NewLocalCoalescer()
	ctx := context.Background()

	ok, err := c.TryBegin(ctx, "sb-1")
	if err != nil || !ok {
		t.Fatalf("expected first TryBegin to succeed: %v, %v", ok, err)
	}
	ok, err = c.TryBegin(ctx, "sb-1")
	if err != nil || ok {
		t.Fatalf("expected concurrent TryBegin to fail: %v, %v", ok, err)
	}

	c.End(ctx, "sb-1")
	ok, _ = c.TryBegin(ctx, "sb-1")
	if !ok {
		t.Error("expected TryBegin to succeed after End")
	}
}

type fakeControlClient struct{}

func (fakeControlClient) Connected() bool { return true }
func (fakeControlClient) Close() error    { return nil }
func (fakeControlClient) Reconnect() error { return nil }
func (fakeControlClient) Ping(timeoutSeconds int) error { return nil }
func (fakeControlClient) Call(method string, args map[string]any, timeoutSeconds int) (any, error) {
	return nil, nil
}
