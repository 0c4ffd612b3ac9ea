package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/memstack/sandboxcore/internal/assoc/memstore"
	"github.com/memstack/sandboxcore/internal/containerrt"
	"github.com/memstack/sandboxcore/internal/events/mempublisher"
	"github.com/memstack/sandboxcore/internal/lifecycle"
	"github.com/memstack/sandboxcore/internal/portalloc"
	"github.com/memstack/sandboxcore/internal/registry"
	"github.com/memstack/sandboxcore/internal/startupsync"
	"github.com/memstack/sandboxcore/internal/types"
)

type noopRuntime struct{}

func (noopRuntime) Create(ctx context.Context, spec containerrt.CreateSpec) (types.Container, error) {
	return types.Container{RuntimeID: "rt-1", State: types.ContainerCreated, Labels: spec.Labels}, nil
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
	return types.Container{State: types.ContainerRunning}, true, nil
}
func (noopRuntime) List(ctx context.Context, projectID, tenantID string) ([]types.Container, error) {
	return nil, nil
}
func (noopRuntime) Exists(ctx context.Context, sandboxID string) (bool, error) { return true, nil }
func (noopRuntime) IsRunning(ctx context.Context, runtimeID string) (bool, error) {
	return true, nil
}
func (noopRuntime) Stats(ctx context.Context, runtimeID string) (containerrt.StatsResult, error) {
	return containerrt.StatsResult{}, nil
}
func (noopRuntime) PullImage(ctx context.Context, image string) error          { return nil }
func (noopRuntime) ImageExists(ctx context.Context, image string) (bool, error) { return true, nil }
func (noopRuntime) ExecAttach(ctx context.Context, runtimeID string, opts containerrt.ExecAttachOptions) error {
	return nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := memstore.New()
	alloc := portalloc.New(portalloc.Range{Start: 24000, Width: 10}, func(int) bool { return true })
	rt := noopRuntime{}
	reg := registry.New(alloc, rt)
	pub := mempublisher.New()

	cfg := lifecycle.Config{
		DefaultImage:               "sandboxcore/base:latest",
		WorkspaceRoot:              "/data/sandboxes",
		DefaultProfile:             types.ProfileStandard,
		HealthCheckIntervalSeconds: 30,
		RebuildCooldown:            time.Millisecond,
		ContainerStartTimeout:      time.Second,
		ContainerStopTimeout:       time.Second,
	}
	svc := lifecycle.New(store, reg, rt, pub, cfg, lifecycle.RecreateHooks{})

	gate := startupsync.NewGate()
	gate.Open()

	return NewServer(svc, nil, gate, nil, "")
}

func TestHealthEndpointReturnsOK(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestGetOrCreateEndpointCreatesSandbox(t *testing.T) {
	s := newTestServer(t)
	body := `{"tenant_id":"tenant-1","profile":"standard"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects/proj-1/sandbox", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAPIKeyMiddlewareRejectsMissingKey(t *testing.T) {
	s := newTestServer(t)
	s.apiKey = "secret"
	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects/proj-1/sandbox", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
