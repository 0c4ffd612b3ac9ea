package lifecycle

import (
	"context"
	"testing"

	"github.com/memstack/sandboxcore/internal/types"
)

type fakeControlClient struct {
	connected   bool
	pingErr     error
	callErr     error
	reconnectOK bool
}

func (f *fakeControlClient) Connected() bool { return f.connected }
func (f *fakeControlClient) Close() error    { return nil }
func (f *fakeControlClient) Reconnect() error {
	if f.reconnectOK {
		f.connected = true
		return nil
	}
	return context.DeadlineExceeded
}
func (f *fakeControlClient) Ping(timeoutSeconds int) error { return f.pingErr }
func (f *fakeControlClient) Call(method string, args map[string]any, timeoutSeconds int) (any, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}
	return "ok", nil
}

func TestCheckerBasicLevelReflectsContainerState(t *testing.T) {
	svc, rt := newTestService(t)
	ctx := context.Background()

	info, err := svc.GetOrCreate(ctx, "proj-1", "tenant-1", types.ProfileStandard, Overrides{})
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	checker := NewChecker(svc)
	inst, _ := svc.reg.Get(info.SandboxID)

	result := checker.Check(ctx, inst, types.HealthBasic)
	if !result.Healthy || result.Status != types.HealthStatusHealthy {
		t.Fatalf("expected healthy basic result, got %+v", result)
	}

	// simulate the container vanishing
	for id := range rt.containers {
		delete(rt.containers, id)
	}
	result = checker.Check(ctx, inst, types.HealthBasic)
	if result.Healthy {
		t.Errorf("expected unhealthy result once container is gone, got %+v", result)
	}
}

func TestCheckerMCPLevelWithoutControlClient(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	info, _ := svc.GetOrCreate(ctx, "proj-1", "tenant-1", types.ProfileStandard, Overrides{})
	checker := NewChecker(svc)
	inst, _ := svc.reg.Get(info.SandboxID)

	result := checker.Check(ctx, inst, types.HealthMCP)
	if result.Status != types.HealthStatusDegraded && result.Status != types.HealthStatusUnhealthy {
		t.Errorf("expected degraded/unhealthy without a control client, got %+v", result)
	}
}

func TestReconnectControlClientSucceeds(t *testing.T) {
	svc, _ := newTestService(t)
	checker := NewChecker(svc)
	inst := &types.Instance{ControlClient: &fakeControlClient{reconnectOK: true}}

	if !checker.ReconnectControlClient(context.Background(), inst) {
		t.Error("expected reconnect to succeed")
	}
}

func TestReconnectControlClientFailsWithoutClient(t *testing.T) {
	svc, _ := newTestService(t)
	checker := NewChecker(svc)
	inst := &types.Instance{}

	if checker.ReconnectControlClient(context.Background(), inst) {
		t.Error("expected reconnect to fail without a control client")
	}
}
