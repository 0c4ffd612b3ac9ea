package lifecycle

import (
	"context"
	"time"

	"github.com/memstack/sandboxcore/internal/types"
)

// Checker adapts the Lifecycle Service into a health.Checker: BASIC
// delegates to the Container Runtime, MCP/SERVICES/FULL delegate to
// the Instance's ControlClient, mirroring check_health's level
// escalation in sandbox_health_service.py.
type Checker struct {
	svc *Service
}

// NewChecker builds a Checker over svc.
func NewChecker(svc *Service) *Checker {
	return &Checker{svc: svc}
}

func (c *Checker) Check(ctx context.Context, inst *types.Instance, level types.HealthLevel) types.HealthResult {
	now := time.Now()
	var errs []string
	details := types.HealthDetails{}

	running, err := c.svc.containerConfirmedRunning(ctx, inst.SandboxID)
	if err != nil {
		errs = append(errs, "container check failed: "+err.Error())
	}
	details.ContainerRunning = running
	basicOK := running
	if !basicOK {
		return types.Aggregate(inst.SandboxID, level, false, errs, details, now)
	}
	if level == types.HealthBasic {
		return types.Aggregate(inst.SandboxID, level, true, nil, details, now)
	}

	if inst.ControlClient == nil {
		errs = append(errs, "no control channel established")
		return types.Aggregate(inst.SandboxID, level, true, errs, details, now)
	}

	if err := inst.ControlClient.Ping(5); err != nil {
		errs = append(errs, "mcp ping failed: "+err.Error())
	} else {
		details.MCPConnected = true
	}

	if !level.AtLeastServices() {
		return types.Aggregate(inst.SandboxID, level, true, errs, details, now)
	}

	if inst.Config.DesktopEnabled {
		if _, err := inst.ControlClient.Call("desktop_status", nil, 5); err != nil {
			errs = append(errs, "desktop service check failed: "+err.Error())
		} else {
			details.DesktopRunning = true
		}
	}
	if _, err := inst.ControlClient.Call("terminal_status", nil, 5); err != nil {
		errs = append(errs, "terminal service check failed: "+err.Error())
	} else {
		details.TerminalRunning = true
	}

	return types.Aggregate(inst.SandboxID, level, true, errs, details, now)
}

// ReconnectControlClient attempts a single reconnect of inst's control
// channel, satisfying health.RecoveryActions alongside Recreate below.
func (c *Checker) ReconnectControlClient(ctx context.Context, inst *types.Instance) bool {
	if inst.ControlClient == nil {
		return false
	}
	if err := inst.ControlClient.Reconnect(); err != nil {
		return false
	}
	return inst.ControlClient.Connected()
}

// Recreate delegates to the underlying Service, completing the
// health.RecoveryActions contract.
func (c *Checker) Recreate(ctx context.Context, sandboxID string) error {
	return c.svc.Recreate(ctx, sandboxID)
}

// MarkError delegates to the underlying Service, completing the
// health.RecoveryActions give-up path.
func (c *Checker) MarkError(ctx context.Context, sandboxID string, reason string) error {
	return c.svc.MarkError(ctx, sandboxID, reason)
}

// Probe runs a BASIC-level check by sandbox ID, satisfying the probe
// signature spec.md §4.6 health_check and internal/api's Prober need.
func (c *Checker) Probe(ctx context.Context, sandboxID string) bool {
	inst, ok := c.svc.reg.Get(sandboxID)
	if !ok {
		return false
	}
	return c.Check(ctx, inst, types.HealthBasic).Healthy
}
