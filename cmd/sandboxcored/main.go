// Command sandboxcored runs the Project Sandbox Lifecycle Core as a
// standalone server: the Association Store, Registry, Health Monitor,
// Orphan Cleaner, startup sync gate, and HTTP API all wired together,
// grounded on the teacher's cmd/server/main.go bootstrap sequence
// (load config, connect adapters, run migrations, start HTTP, wait on
// signal) stripped of its multi-cloud/dashboard/proxy concerns.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/memstack/sandboxcore/internal/api"
	"github.com/memstack/sandboxcore/internal/assoc"
	"github.com/memstack/sandboxcore/internal/assoc/pg"
	"github.com/memstack/sandboxcore/internal/config"
	"github.com/memstack/sandboxcore/internal/containerrt"
	"github.com/memstack/sandboxcore/internal/containerrt/dockerrt"
	"github.com/memstack/sandboxcore/internal/containerrt/podmanrt"
	"github.com/memstack/sandboxcore/internal/events"
	"github.com/memstack/sandboxcore/internal/events/nats"
	"github.com/memstack/sandboxcore/internal/health"
	"github.com/memstack/sandboxcore/internal/health/redisrecovery"
	"github.com/memstack/sandboxcore/internal/lifecycle"
	"github.com/memstack/sandboxcore/internal/orphan"
	"github.com/memstack/sandboxcore/internal/portalloc"
	"github.com/memstack/sandboxcore/internal/registry"
	"github.com/memstack/sandboxcore/internal/startupsync"
	"github.com/memstack/sandboxcore/internal/types"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("sandboxcored: failed to load config: %v", err)
	}

	ctx := context.Background()

	runtime, err := newRuntime(cfg)
	if err != nil {
		log.Fatalf("sandboxcored: failed to initialize container runtime: %v", err)
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		log.Fatalf("sandboxcored: failed to initialize association store: %v", err)
	}
	if pgStore, ok := store.(*pg.Store); ok {
		defer pgStore.Close()
		log.Println("sandboxcored: running association store migrations...")
		if err := pgStore.Migrate(ctx); err != nil {
			log.Fatalf("sandboxcored: migrations failed: %v", err)
		}
	}

	publisher, err := nats.New(cfg.NATSURL)
	if err != nil {
		log.Fatalf("sandboxcored: failed to connect to NATS: %v", err)
	}
	defer publisher.Close()

	alloc := portalloc.New(portalloc.Range{Start: cfg.PortRangeStart, Width: cfg.PortRangeWidth}, portalloc.DefaultProbe)
	reg := registry.New(alloc, runtime)

	lcCfg := lifecycle.Config{
		DefaultImage:   cfg.DefaultImage,
		WorkspaceRoot:  cfg.WorkspaceRoot,
		DefaultProfile: types.Profile(cfg.DefaultProfile),
		Ceilings: lifecycle.ResourceCeilings{
			MaxMemoryBytes: cfg.MaxMemoryBytes,
			MaxCPU:         cfg.MaxCPU,
		},
		HealthCheckIntervalSeconds: cfg.HealthCheckIntervalSeconds,
		RebuildCooldown:            time.Duration(cfg.RebuildCooldownSeconds) * time.Second,
		ContainerStartTimeout:      time.Duration(cfg.ContainerStartTimeoutSeconds) * time.Second,
		ContainerStopTimeout:       time.Duration(cfg.ContainerStopTimeoutSeconds) * time.Second,
	}
	svc := lifecycle.New(store, reg, runtime, publisher, lcCfg, lifecycle.RecreateHooks{})
	checker := lifecycle.NewChecker(svc)

	coalescer, err := newCoalescer(cfg)
	if err != nil {
		log.Printf("sandboxcored: redis recovery coalescing unavailable, falling back to in-process: %v", err)
		coalescer = health.NewLocalCoalescer()
	}

	monitor := health.New(reg, checker, checker, health.Config{
		HealthLoopInterval:  time.Duration(cfg.HealthLoopIntervalSeconds) * time.Second,
		HeartbeatInterval:   time.Duration(cfg.HeartbeatIntervalSeconds) * time.Second,
		HeartbeatTimeout:    time.Duration(cfg.HeartbeatTimeoutSeconds) * time.Second,
		TTLCleanupInterval:  time.Duration(cfg.TTLCleanupIntervalSeconds) * time.Second,
		ResultCacheTTL:      time.Duration(cfg.HealthCheckCacheTTLSeconds) * time.Second,
		RebuildCooldown:     time.Duration(cfg.RebuildCooldownSeconds) * time.Second,
		RecoveryCounterTTL:  time.Duration(cfg.RecoveryCounterTTLSeconds) * time.Second,
		MaxRecoveryAttempts: cfg.MaxRecoveryAttempts,
		RecoveryBackoffBase: time.Duration(cfg.RecoveryBackoffBaseSeconds) * time.Second,
		RecoveryBackoffMax:  time.Duration(cfg.RecoveryBackoffMaxSeconds) * time.Second,
		DefaultCheckLevel:   types.HealthBasic,
		AutoRecoveryEnabled: true,
	}, health.Callbacks{
		OnUnhealthy: func(sandboxID string, result types.HealthResult) {
			log.Printf("sandboxcored: sandbox %s reported %s", sandboxID, result.Status)
		},
	}, coalescer, 10000)
	monitor.Start()
	defer monitor.Stop()

	cleaner := orphan.New(runtime, store, orphan.Config{
		GracePeriod:     time.Duration(cfg.OrphanGracePeriodSeconds) * time.Second,
		DBChecksEnabled: cfg.OrphanDBChecksEnabled,
	})
	stopOrphanLoop := runOrphanLoop(cleaner, time.Duration(cfg.OrphanCleanIntervalSeconds)*time.Second)
	defer stopOrphanLoop()

	gate := startupsync.NewGate()
	syncer := startupsync.New(reg, store, gate)
	go func() {
		if err := syncer.Run(ctx); err != nil {
			log.Printf("sandboxcored: startup sync failed: %v", err)
		}
	}()

	server := api.NewServer(svc, cleaner, gate, checker.Probe, cfg.APIKey)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("sandboxcored: starting on %s", cfg.HTTPAddr)
	go func() {
		if err := server.Start(cfg.HTTPAddr); err != nil {
			log.Printf("sandboxcored: server error: %v", err)
		}
	}()

	<-quit
	log.Println("sandboxcored: shutting down...")
	if err := server.Close(); err != nil {
		log.Printf("sandboxcored: error closing server: %v", err)
	}
}

func newRuntime(cfg *config.Config) (containerrt.Runtime, error) {
	switch cfg.ContainerRuntime {
	case "docker":
		return dockerrt.NewFromEnv()
	default:
		client, err := podmanrt.NewClient()
		if err != nil {
			return nil, err
		}
		return podmanrt.New(client), nil
	}
}

func newStore(ctx context.Context, cfg *config.Config) (assoc.Store, error) {
	return pg.New(ctx, cfg.DatabaseURL)
}

func newCoalescer(cfg *config.Config) (health.RecoveryCoalescer, error) {
	return redisrecovery.New(cfg.RedisURL, time.Duration(cfg.RecoveryCounterTTLSeconds)*time.Second)
}

func runOrphanLoop(cleaner *orphan.Cleaner, interval time.Duration) func() {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				stats := cleaner.Sweep(context.Background())
				if stats.RemovedOrphans+stats.RemovedStale+stats.RemovedUntracked > 0 {
					log.Printf("sandboxcored: orphan sweep removed %d orphan, %d stale, %d untracked container(s)",
						stats.RemovedOrphans, stats.RemovedStale, stats.RemovedUntracked)
				}
			case <-stop:
				return
			}
		}
	}()
	return func() { close(stop) }
}
