// Package lifecycle implements the Lifecycle Service from spec.md
// §4.6: the one-sandbox-per-project orchestrator (get_or_create,
// create-new, recreate, execute_tool, health_check, terminate,
// cleanup_stale, sync_status) plus the ListByTenant operation
// reinstated from original_source/'s list_project_sandboxes (see
// SPEC_FULL.md §C). Grounded on the teacher's internal/sandbox
// manager/router control flow, generalized from its single-profile
// wake/hibernate cycle to the full association-status state machine
// the Python project_sandbox_lifecycle_service.py implements.
package lifecycle

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/memstack/sandboxcore/internal/assoc"
	"github.com/memstack/sandboxcore/internal/containerrt"
	"github.com/memstack/sandboxcore/internal/events"
	"github.com/memstack/sandboxcore/internal/idgen"
	"github.com/memstack/sandboxcore/internal/registry"
	"github.com/memstack/sandboxcore/internal/sberrors"
	"github.com/memstack/sandboxcore/internal/ttlcache"
	"github.com/memstack/sandboxcore/internal/types"
)

// RecreateHooks are the two best-effort background fix-ups spec.md
// §4.6 "Recreate" names: reinstalling previously-registered auxiliary
// MCP servers, and invalidating cached UI resources the old sandbox
// served. Both are fire-and-forget; a failure is logged, never
// propagated (their own machinery is out of this core's scope per
// SPEC_FULL.md §C).
type RecreateHooks struct {
	ReinstallAuxServers func(ctx context.Context, projectID, newSandboxID string)
	InvalidateUICache   func(ctx context.Context, projectID, newSandboxID string)
}

// Config is the Lifecycle Service's own tunables.
type Config struct {
	DefaultImage               string
	WorkspaceRoot              string
	DefaultProfile             types.Profile
	Ceilings                   ResourceCeilings
	HealthCheckIntervalSeconds int
	RebuildCooldown            time.Duration
	ContainerStartTimeout      time.Duration
	ContainerStopTimeout       time.Duration
}

// Service is the Lifecycle Service.
type Service struct {
	store     assoc.Store
	reg       *registry.Registry
	runtime   containerrt.Runtime
	publisher events.Publisher
	cfg       Config
	hooks     RecreateHooks

	rebuildCool *ttlcache.Cache
}

// New constructs a Service.
func New(store assoc.Store, reg *registry.Registry, runtime containerrt.Runtime, publisher events.Publisher, cfg Config, hooks RecreateHooks) *Service {
	return &Service{
		store:       store,
		reg:         reg,
		runtime:     runtime,
		publisher:   publisher,
		cfg:         cfg,
		hooks:       hooks,
		rebuildCool: ttlcache.New(1000),
	}
}

func (s *Service) emit(ctx context.Context, eventType types.EventType, a *types.Association, payload map[string]any) {
	s.publisher.Publish(ctx, types.Event{
		Type:      eventType,
		SandboxID: a.SandboxID,
		ProjectID: a.ProjectID,
		TenantID:  a.TenantID,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}

// GetOrCreate implements spec.md §4.6 get_or_create.
func (s *Service) GetOrCreate(ctx context.Context, projectID, tenantID string, profile types.Profile, overrides Overrides) (types.Info, error) {
	lock, err := s.store.AcquireProjectLock(ctx, projectID)
	if err != nil {
		return types.Info{}, sberrors.StoreError("get_or_create:acquire_lock", err)
	}
	defer lock.Release(ctx)

	a, err := s.store.FindByProject(ctx, projectID)
	if err != nil {
		return types.Info{}, sberrors.StoreError("get_or_create:find", err)
	}

	now := time.Now()

	if a != nil {
		switch a.Status {
		case types.StatusRunning:
			if running, _ := s.containerConfirmedRunning(ctx, a.SandboxID); running {
				a.MarkAccessed(now)
				if err := s.store.Save(ctx, a); err != nil {
					return types.Info{}, sberrors.StoreError("get_or_create:save", err)
				}
				return s.info(a), nil
			}
			// Container vanished under us; fall through to recreate.
			return s.recreate(ctx, a, profile, overrides)

		case types.StatusStopped:
			return s.recreate(ctx, a, profile, overrides)

		case types.StatusError:
			s.bestEffortTerminateContainer(ctx, a.SandboxID)
			return s.createNew(ctx, projectID, tenantID, profile, overrides, a)

		case types.StatusUnhealthy:
			if recovered, _ := s.containerConfirmedRunning(ctx, a.SandboxID); recovered {
				a.MarkHealthy(now)
				if err := s.store.Save(ctx, a); err != nil {
					return types.Info{}, sberrors.StoreError("get_or_create:save", err)
				}
				return s.info(a), nil
			}
			return s.recreate(ctx, a, profile, overrides)

		case types.StatusCreating:
			// Another process's create may still be in flight; the
			// caller never attempts its own create here (SPEC_FULL.md
			// §D Open Question a) — it returns the in-progress state
			// and expects the caller to poll.
			return s.info(a), nil

		case types.StatusTerminated:
			// A terminated row for this project is logically absent;
			// fall through to create new.
		}
	}

	return s.createNew(ctx, projectID, tenantID, profile, overrides, nil)
}

func (s *Service) containerConfirmedRunning(ctx context.Context, sandboxID string) (bool, error) {
	c, ok, err := s.runtime.GetBySandboxID(ctx, sandboxID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return c.State == types.ContainerRunning, nil
}

func (s *Service) bestEffortTerminateContainer(ctx context.Context, sandboxID string) {
	c, ok, err := s.runtime.GetBySandboxID(ctx, sandboxID)
	if err != nil || !ok {
		return
	}
	if err := s.runtime.Stop(ctx, c.RuntimeID, s.cfg.ContainerStopTimeout); err != nil {
		log.Printf("lifecycle: best-effort stop of %s failed: %v", sandboxID, err)
	}
	if err := s.runtime.Remove(ctx, c.RuntimeID, true); err != nil {
		log.Printf("lifecycle: best-effort remove of %s failed: %v", sandboxID, err)
	} else if inst, tracked := s.reg.Get(sandboxID); tracked {
		s.reg.Allocator().Release(inst.Ports)
	}
	s.reg.Remove(sandboxID)
}

func workspacePath(root, projectID string) string {
	return strings.TrimRight(root, "/") + "/" + projectID
}

// createNew implements spec.md §4.6 "Create-new". If existing is
// non-nil, its ID/project/tenant identity is preserved (an error-status
// association being replaced); otherwise a fresh Association row is
// created.
func (s *Service) createNew(ctx context.Context, projectID, tenantID string, profile types.Profile, overrides Overrides, existing *types.Association) (types.Info, error) {
	a := existing
	if a == nil {
		created := time.Now()
		a = &types.Association{
			ID:             uuid.New().String(),
			TenantID:       tenantID,
			ProjectID:      projectID,
			CreatedAt:      created,
			LastAccessedAt: &created,
		}
	}

	sandboxID := idgen.SandboxID()
	a.SandboxID = sandboxID
	a.Status = types.StatusCreating
	a.ErrorMessage = ""
	if err := s.store.Save(ctx, a); err != nil {
		return types.Info{}, sberrors.StoreError("create_new:save_creating", err)
	}

	cfg := resolveConfig(profile, overrides, s.cfg.DefaultImage)
	if err := s.validateCeilings(cfg); err != nil {
		a.MarkError(err.Error())
		s.store.Save(ctx, a)
		return types.Info{}, sberrors.ResourceRejected("create_new:validate", err)
	}

	triplet, err := s.reg.Allocator().Allocate()
	if err != nil {
		a.MarkError(err.Error())
		s.store.Save(ctx, a)
		return types.Info{}, err
	}

	projectPath := workspacePath(s.cfg.WorkspaceRoot, projectID)
	labels := types.Labels(sandboxID, projectID, tenantID, time.Now())

	spec := containerrt.CreateSpec{
		Name:            "sandbox-" + sandboxID,
		Image:           cfg.Image,
		Env:             cfg.Environment,
		Ports:           triplet,
		ProjectPath:     projectPath,
		MemoryLimit:     cfg.MemoryLimit,
		CPULimit:        cfg.CPULimit,
		Labels:          labels,
		NetworkMode:     cfg.NetworkMode,
		AllowedNetworks: cfg.AllowedNetworks,
		BlockedPorts:    cfg.BlockedPorts,
		MaxRetryCount:   3,
	}

	container, err := s.runtime.Create(ctx, spec)
	if err != nil {
		s.reg.Allocator().Release(triplet)
		a.MarkError(err.Error())
		s.store.Save(ctx, a)
		return types.Info{}, err
	}

	if err := s.runtime.Start(ctx, container.RuntimeID); err != nil {
		s.reg.Allocator().Release(triplet)
		a.MarkError(err.Error())
		s.store.Save(ctx, a)
		return types.Info{}, err
	}

	inst := &types.Instance{
		SandboxID:   sandboxID,
		ProjectID:   projectID,
		TenantID:    tenantID,
		Status:      types.InstanceRunning,
		Config:      cfg,
		ProjectPath: projectPath,
		Ports:       triplet,
		Labels:      labels,
		CreatedAt:   time.Now(),
	}
	s.reg.Put(inst)

	// No control channel is established here: the Instance is registered
	// without a ControlClient, and the Health Monitor's reconnect step
	// applies only to instances that already hold one.
	log.Printf("lifecycle: sandbox %s created for project %s, control channel establishment deferred", sandboxID, projectID)

	now := time.Now()
	a.Status = types.StatusRunning
	a.StartedAt = &now
	a.LastAccessedAt = &now
	a.LastHealthCheckAt = &now
	a.ErrorMessage = ""
	if err := s.store.Save(ctx, a); err != nil {
		return types.Info{}, sberrors.StoreError("create_new:save_running", err)
	}

	s.emit(ctx, types.EventSandboxCreated, a, map[string]any{"profile": string(profile)})
	return s.info(a), nil
}

func (s *Service) validateCeilings(cfg types.Config) error {
	if s.cfg.Ceilings.MaxCPU > 0 && cfg.CPULimit > s.cfg.Ceilings.MaxCPU {
		return fmt.Errorf("requested cpu_limit %.2f exceeds host ceiling %.2f", cfg.CPULimit, s.cfg.Ceilings.MaxCPU)
	}
	if s.cfg.Ceilings.MaxMemoryBytes > 0 {
		if requested, err := parseMemBytes(cfg.MemoryLimit); err == nil && requested > s.cfg.Ceilings.MaxMemoryBytes {
			return fmt.Errorf("requested memory_limit %s exceeds host ceiling", cfg.MemoryLimit)
		}
	}
	return nil
}

// parseMemBytes parses a textual size ("512m", "2g", "256k") to bytes,
// the same suffix table the containerrt adapters parse for the
// runtime's own resource limits.
func parseMemBytes(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty memory limit")
	}
	suffix := s[len(s)-1]
	var mult int64 = 1
	numPart := s
	switch suffix {
	case 'g', 'G':
		mult = 1024 * 1024 * 1024
		numPart = s[:len(s)-1]
	case 'm', 'M':
		mult = 1024 * 1024
		numPart = s[:len(s)-1]
	case 'k', 'K':
		mult = 1024
		numPart = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid memory limit %q: %w", s, err)
	}
	return n * mult, nil
}

// recreate implements spec.md §4.6 "Recreate". It preserves Association
// identity, guarded by a rebuild cooldown so a flapping container does
// not thrash.
func (s *Service) recreate(ctx context.Context, a *types.Association, profile types.Profile, overrides Overrides) (types.Info, error) {
	if _, cooling := s.rebuildCool.Get(a.ProjectID); cooling {
		return types.Info{}, sberrors.Conflict("recreate", fmt.Errorf("project %s is in rebuild cooldown", a.ProjectID))
	}
	s.rebuildCool.Set(a.ProjectID, true, s.cfg.RebuildCooldown)

	s.bestEffortTerminateContainer(ctx, a.SandboxID)

	info, err := s.createNew(ctx, a.ProjectID, a.TenantID, profile, overrides, a)
	if err != nil {
		return info, err
	}

	if s.hooks.ReinstallAuxServers != nil {
		go s.hooks.ReinstallAuxServers(context.Background(), a.ProjectID, a.SandboxID)
	}
	if s.hooks.InvalidateUICache != nil {
		go s.hooks.InvalidateUICache(context.Background(), a.ProjectID, a.SandboxID)
	}
	return info, nil
}

// Recreate is the public, sandbox_id-addressed entry point the Health
// Monitor's RecoveryActions calls into.
func (s *Service) Recreate(ctx context.Context, sandboxID string) error {
	a, err := s.store.FindBySandbox(ctx, sandboxID)
	if err != nil {
		return sberrors.StoreError("recreate:find", err)
	}
	if a == nil {
		return sberrors.NotFound("recreate", fmt.Errorf("no association for sandbox %s", sandboxID))
	}

	lock, err := s.store.AcquireProjectLock(ctx, a.ProjectID)
	if err != nil {
		return sberrors.StoreError("recreate:acquire_lock", err)
	}
	defer lock.Release(ctx)

	_, err = s.recreate(ctx, a, s.cfg.DefaultProfile, Overrides{})
	return err
}

// ExecuteTool implements spec.md §4.6 execute_tool. It never
// auto-creates: callers needing a live sandbox must call GetOrCreate
// first (SPEC_FULL.md §D Open Question b).
func (s *Service) ExecuteTool(ctx context.Context, projectID, toolName string, args map[string]any, timeoutSeconds int) (any, error) {
	a, err := s.store.FindByProject(ctx, projectID)
	if err != nil {
		return nil, sberrors.StoreError("execute_tool:find", err)
	}
	if a == nil {
		return nil, sberrors.NotFound("execute_tool", fmt.Errorf("no sandbox for project %s", projectID))
	}

	a.MarkAccessed(time.Now())
	if err := s.store.Save(ctx, a); err != nil {
		return nil, sberrors.StoreError("execute_tool:save", err)
	}

	inst, ok := s.reg.Get(a.SandboxID)
	if !ok || inst.ControlClient == nil {
		return nil, sberrors.ControlChannelError("execute_tool", fmt.Errorf("sandbox %s has no control channel", a.SandboxID))
	}
	return inst.ControlClient.Call(toolName, args, timeoutSeconds)
}

// HealthCheck implements spec.md §4.6 health_check.
func (s *Service) HealthCheck(ctx context.Context, projectID string, probe func(ctx context.Context, sandboxID string) bool) (bool, error) {
	a, err := s.store.FindByProject(ctx, projectID)
	if err != nil {
		return false, sberrors.StoreError("health_check:find", err)
	}
	if a == nil {
		return false, sberrors.NotFound("health_check", fmt.Errorf("no sandbox for project %s", projectID))
	}

	if !a.NeedsHealthCheck(s.cfg.HealthCheckIntervalSeconds) {
		return a.Status == types.StatusRunning, nil
	}

	healthy := probe(ctx, a.SandboxID)
	now := time.Now()
	if healthy {
		a.MarkHealthy(now)
	} else {
		a.MarkUnhealthy("probe failed", now)
	}
	if err := s.store.Save(ctx, a); err != nil {
		return false, sberrors.StoreError("health_check:save", err)
	}
	return healthy, nil
}

// Terminate implements spec.md §4.6 terminate.
func (s *Service) Terminate(ctx context.Context, projectID string, purge bool) (bool, error) {
	a, err := s.store.FindByProject(ctx, projectID)
	if err != nil {
		return false, sberrors.StoreError("terminate:find", err)
	}
	if a == nil {
		return false, nil
	}

	s.bestEffortTerminateContainer(ctx, a.SandboxID)
	a.MarkTerminated()

	if purge {
		if err := s.store.Delete(ctx, a.ID); err != nil {
			return false, sberrors.StoreError("terminate:delete", err)
		}
	} else {
		if err := s.store.Save(ctx, a); err != nil {
			return false, sberrors.StoreError("terminate:save", err)
		}
	}

	s.emit(ctx, types.EventSandboxTerminated, a, nil)
	return true, nil
}

// CleanupStale implements spec.md §4.6 cleanup_stale.
func (s *Service) CleanupStale(ctx context.Context, maxIdleSeconds int, dryRun bool) ([]string, error) {
	stale, err := s.store.FindStale(ctx, maxIdleSeconds, 1000)
	if err != nil {
		return nil, sberrors.StoreError("cleanup_stale:find", err)
	}

	var ids []string
	for _, a := range stale {
		ids = append(ids, a.SandboxID)
		if dryRun {
			continue
		}
		if _, err := s.Terminate(ctx, a.ProjectID, false); err != nil {
			log.Printf("lifecycle: cleanup_stale terminate of %s failed: %v", a.SandboxID, err)
		}
	}
	return ids, nil
}

// SyncStatus implements spec.md §4.6 sync_status: reconciles the
// Association with runtime ground truth.
func (s *Service) SyncStatus(ctx context.Context, projectID string) (types.Info, error) {
	a, err := s.store.FindByProject(ctx, projectID)
	if err != nil {
		return types.Info{}, sberrors.StoreError("sync_status:find", err)
	}
	if a == nil {
		return types.Info{}, sberrors.NotFound("sync_status", fmt.Errorf("no sandbox for project %s", projectID))
	}

	if a.Status == types.StatusTerminated {
		return s.info(a), nil
	}

	c, ok, err := s.runtime.GetBySandboxID(ctx, a.SandboxID)
	if err != nil {
		return types.Info{}, sberrors.ContainerRuntimeError("sync_status", err)
	}
	if !ok {
		a.MarkError("container not found during sync")
	} else {
		switch c.State {
		case types.ContainerRunning:
			a.Status = types.StatusRunning
		case types.ContainerExited, types.ContainerDead:
			a.MarkStopped()
		default:
			a.MarkError(fmt.Sprintf("unexpected container state %s", c.State))
		}
	}

	if err := s.store.Save(ctx, a); err != nil {
		return types.Info{}, sberrors.StoreError("sync_status:save", err)
	}
	s.emit(ctx, types.EventSandboxStatus, a, map[string]any{"status": string(a.Status)})
	return s.info(a), nil
}

// MarkError marks sandboxID's Association as errored without touching
// the container, the give-up path the Health Monitor calls once
// attemptRecovery has exhausted MaxRecoveryAttempts (spec.md §3
// invariant 5 / §8 scenario 4).
func (s *Service) MarkError(ctx context.Context, sandboxID string, reason string) error {
	a, err := s.store.FindBySandbox(ctx, sandboxID)
	if err != nil {
		return sberrors.StoreError("mark_error:find", err)
	}
	if a == nil {
		return sberrors.NotFound("mark_error", fmt.Errorf("no association for sandbox %s", sandboxID))
	}

	a.MarkError(reason)
	if err := s.store.Save(ctx, a); err != nil {
		return sberrors.StoreError("mark_error:save", err)
	}
	s.emit(ctx, types.EventSandboxStatus, a, map[string]any{"status": string(a.Status), "reason": reason})
	return nil
}

// ListByTenant implements the tenant-scoped listing reinstated from
// original_source/'s list_project_sandboxes (SPEC_FULL.md §C).
func (s *Service) ListByTenant(ctx context.Context, tenantID string, status types.AssociationStatus, limit, offset int) ([]types.Info, error) {
	associations, err := s.store.FindByTenant(ctx, tenantID, status, limit, offset)
	if err != nil {
		return nil, sberrors.StoreError("list_by_tenant", err)
	}
	out := make([]types.Info, 0, len(associations))
	for _, a := range associations {
		out = append(out, s.info(a))
	}
	return out, nil
}

func (s *Service) info(a *types.Association) types.Info {
	inst, _ := s.reg.Get(a.SandboxID)
	return types.FromInstance(a, inst)
}
