// Package health implements the Health Monitor from spec.md §4.5:
// three background loops (health, heartbeat, TTL cleanup), monotone
// multi-level checks bit-exact to the original Python service's
// check_health in sandbox_health_service.py, and bounded automatic recovery with
// exponential backoff. Result caching and recovery-attempt/rebuild
// cooldown bookkeeping reuse internal/ttlcache, per spec.md §4.4.
package health

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/memstack/sandboxcore/internal/registry"
	"github.com/memstack/sandboxcore/internal/ttlcache"
	"github.com/memstack/sandboxcore/internal/types"
)

// Checker performs the multi-level probe against a single Instance.
// The Lifecycle Service satisfies this by delegating BASIC checks to
// the Container Runtime and MCP/SERVICES/FULL checks to the sandbox's
// ControlClient; kept as an interface so the Health Monitor has no
// direct dependency on the Container Runtime or Registry internals
// beyond listing instances.
type Checker interface {
	Check(ctx context.Context, inst *types.Instance, level types.HealthLevel) types.HealthResult
}

// RecoveryActions are the handlers the Health Monitor invokes when
// automatic recovery needs to act beyond its own reconnect-once step
// (spec.md §4.5 step 5: "defer to the Lifecycle Service's recreate
// path").
type RecoveryActions interface {
	// ReconnectControlClient attempts a single reconnect of inst's
	// control channel, returning true on success.
	ReconnectControlClient(ctx context.Context, inst *types.Instance) bool
	// Recreate rebuilds sandboxID's container from scratch, subject to
	// the caller's own rebuild cooldown bookkeeping.
	Recreate(ctx context.Context, sandboxID string) error
	// MarkError marks sandboxID's Association as errored. Called once
	// attemptRecovery gives up after MaxRecoveryAttempts, per spec.md §3
	// invariant 5 / §8 scenario 4.
	MarkError(ctx context.Context, sandboxID string, reason string) error
}

// Callbacks are the registered hooks spec.md §4.5 fires on unhealthy,
// recovered, and terminated transitions.
type Callbacks struct {
	OnUnhealthy func(sandboxID string, result types.HealthResult)
	OnRecovered func(sandboxID string)
	OnTerminated func(sandboxID string)
}

// Config holds the Health Monitor's tunables, all sourced from
// config.Config so operators can retune intervals without a redeploy.
type Config struct {
	HealthLoopInterval   time.Duration
	HeartbeatInterval    time.Duration
	HeartbeatTimeout     time.Duration
	TTLCleanupInterval   time.Duration
	ResultCacheTTL       time.Duration
	RebuildCooldown      time.Duration
	RecoveryCounterTTL   time.Duration
	MaxRecoveryAttempts  int
	RecoveryBackoffBase  time.Duration
	RecoveryBackoffMax   time.Duration
	DefaultCheckLevel    types.HealthLevel
	AutoRecoveryEnabled  bool
}

// RecoveryCoalescer suppresses concurrent recovery attempts for the
// same sandbox. The in-process implementation is a plain map; the
// Redis-backed one (health/redisrecovery) extends the same contract
// across serving processes.
type RecoveryCoalescer interface {
	TryBegin(ctx context.Context, sandboxID string) (bool, error)
	End(ctx context.Context, sandboxID string) error
}

// Monitor runs the three background loops against every Instance the
// Registry tracks.
type Monitor struct {
	reg      *registry.Registry
	checker  Checker
	actions  RecoveryActions
	cfg      Config
	cb       Callbacks
	coalesce RecoveryCoalescer

	resultCache   *ttlcache.Cache
	recoveryCount *ttlcache.Cache
	rebuildCool   *ttlcache.Cache

	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Monitor. cacheMaxSize bounds each of the three TTL
// caches it owns (result, recovery-attempt counter, rebuild cooldown).
func New(reg *registry.Registry, checker Checker, actions RecoveryActions, cfg Config, cb Callbacks, coalesce RecoveryCoalescer, cacheMaxSize int) *Monitor {
	return &Monitor{
		reg:           reg,
		checker:       checker,
		actions:       actions,
		cfg:           cfg,
		cb:            cb,
		coalesce:      coalesce,
		resultCache:   ttlcache.New(cacheMaxSize),
		recoveryCount: ttlcache.New(cacheMaxSize),
		rebuildCool:   ttlcache.New(cacheMaxSize),
		stop:          make(chan struct{}),
	}
}

// Start launches the three loops as goroutines.
func (m *Monitor) Start() {
	m.wg.Add(3)
	go m.loop(m.cfg.HealthLoopInterval, m.runHealthLoop)
	go m.loop(m.cfg.HeartbeatInterval, m.runHeartbeatLoop)
	go m.loop(m.cfg.TTLCleanupInterval, m.runTTLCleanupLoop)
}

// Stop signals all loops to exit and waits for them.
func (m *Monitor) Stop() {
	close(m.stop)
	m.wg.Wait()
}

func (m *Monitor) loop(interval time.Duration, fn func()) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fn()
		case <-m.stop:
			return
		}
	}
}

func (m *Monitor) runHealthLoop() {
	ctx := context.Background()
	for _, inst := range m.reg.List() {
		result := m.checker.Check(ctx, inst, m.cfg.DefaultCheckLevel)
		m.resultCache.Set(inst.SandboxID, result, m.cfg.ResultCacheTTL)

		if !result.Healthy {
			log.Printf("health: sandbox %s unhealthy at level %s: %v", inst.SandboxID, result.Level, result.Errors)
			if m.cb.OnUnhealthy != nil {
				m.cb.OnUnhealthy(inst.SandboxID, result)
			}
			if m.cfg.AutoRecoveryEnabled {
				go m.attemptRecovery(context.Background(), inst)
			}
		}
	}
}

func (m *Monitor) runHeartbeatLoop() {
	for _, inst := range m.reg.List() {
		if inst.ControlClient == nil || !inst.ControlClient.Connected() {
			continue
		}
		if err := inst.ControlClient.Ping(int(m.cfg.HeartbeatTimeout.Seconds())); err != nil {
			log.Printf("health: heartbeat failed for sandbox %s: %v", inst.SandboxID, err)
			if m.cb.OnUnhealthy != nil {
				m.cb.OnUnhealthy(inst.SandboxID, types.HealthResult{
					SandboxID: inst.SandboxID,
					Level:     types.HealthMCP,
					Status:    types.HealthStatusUnhealthy,
					Healthy:   false,
					Errors:    []string{fmt.Sprintf("heartbeat: %v", err)},
					Timestamp: time.Now(),
				})
			}
		}
	}
}

func (m *Monitor) runTTLCleanupLoop() {
	a := m.resultCache.CleanupExpired()
	b := m.recoveryCount.CleanupExpired()
	c := m.rebuildCool.CleanupExpired()
	log.Printf("health: ttl cleanup reaped result=%d recovery=%d rebuild=%d", a, b, c)
}

// CachedResult returns the most recent cached health result for
// sandboxID, if any (used by the health-level API surface to avoid
// re-probing on every poll).
func (m *Monitor) CachedResult(sandboxID string) (types.HealthResult, bool) {
	v, ok := m.resultCache.Get(sandboxID)
	if !ok {
		return types.HealthResult{}, false
	}
	return v.(types.HealthResult), true
}

// attemptRecovery implements spec.md §4.5's bounded recovery algorithm.
// The attempt counter and rebuild cooldown are keyed by ProjectID rather
// than SandboxID: createNew mints a fresh SandboxID on every recreate
// (internal/lifecycle/service.go), so a SandboxID-keyed counter would
// reset to zero each time a flapping container gets rebuilt, and the
// three-attempt cap spec.md §3 invariant 5 requires would never bind.
func (m *Monitor) attemptRecovery(ctx context.Context, inst *types.Instance) {
	sandboxID := inst.SandboxID
	projectID := inst.ProjectID

	attempts := m.recoveryAttempts(projectID)
	if attempts >= m.cfg.MaxRecoveryAttempts {
		log.Printf("health: sandbox %s (project %s) exceeded max recovery attempts (%d), giving up", sandboxID, projectID, m.cfg.MaxRecoveryAttempts)
		reason := fmt.Sprintf("exceeded max recovery attempts (%d)", m.cfg.MaxRecoveryAttempts)
		if err := m.actions.MarkError(ctx, sandboxID, reason); err != nil {
			log.Printf("health: failed to mark sandbox %s as errored after giving up: %v", sandboxID, err)
		}
		m.resetRecoveryAttempts(projectID)
		return
	}

	began, err := m.coalesce.TryBegin(ctx, sandboxID)
	if err != nil {
		log.Printf("health: recovery coalescing check for %s failed: %v", sandboxID, err)
		return
	}
	if !began {
		return
	}
	defer m.coalesce.End(ctx, sandboxID)

	backoff := m.cfg.RecoveryBackoffBase * time.Duration(1<<uint(attempts))
	if backoff > m.cfg.RecoveryBackoffMax {
		backoff = m.cfg.RecoveryBackoffMax
	}
	select {
	case <-time.After(backoff):
	case <-ctx.Done():
		return
	}
	m.incrementRecoveryAttempts(projectID)

	if inst.HasControlClient() {
		if m.actions.ReconnectControlClient(ctx, inst) {
			m.resetRecoveryAttempts(projectID)
			if m.cb.OnRecovered != nil {
				m.cb.OnRecovered(sandboxID)
			}
			return
		}
	}

	if m.rebuildCool.Size() > 0 {
		if _, cooling := m.rebuildCool.Get(projectID); cooling {
			log.Printf("health: sandbox %s (project %s) in rebuild cooldown, skipping recreate", sandboxID, projectID)
			return
		}
	}
	m.rebuildCool.Set(projectID, true, m.cfg.RebuildCooldown)

	if err := m.actions.Recreate(ctx, sandboxID); err != nil {
		log.Printf("health: recreate for sandbox %s failed: %v", sandboxID, err)
		return
	}
	if m.cb.OnRecovered != nil {
		m.cb.OnRecovered(sandboxID)
	}
}

func (m *Monitor) recoveryAttempts(key string) int {
	v, ok := m.recoveryCount.Get(key)
	if !ok {
		return 0
	}
	return v.(int)
}

func (m *Monitor) incrementRecoveryAttempts(key string) {
	m.recoveryCount.Set(key, m.recoveryAttempts(key)+1, m.cfg.RecoveryCounterTTL)
}

func (m *Monitor) resetRecoveryAttempts(key string) {
	m.recoveryCount.Delete(key)
}

// Terminated notifies the Monitor that sandboxID (of projectID) is gone,
// clearing its cached state and firing the terminated callback.
func (m *Monitor) Terminated(sandboxID, projectID string) {
	m.resultCache.Delete(sandboxID)
	m.recoveryCount.Delete(projectID)
	m.rebuildCool.Delete(projectID)
	if m.cb.OnTerminated != nil {
		m.cb.OnTerminated(sandboxID)
	}
}
