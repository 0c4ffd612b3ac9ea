// Package config loads sandboxcore's ambient configuration: plain env
// vars with envOrDefault/envOrDefaultInt helpers, byte-for-byte the
// teacher's internal/config.Load() convention (no flags library, no
// Viper — the teacher never reaches for one either). The AWS Secrets
// Manager bootstrap the teacher carries is dropped: it exists to
// support the teacher's multi-cloud fleet deployment, out of scope per
// spec.md §1 (see DESIGN.md).
package config

import (
	"os"
	"strconv"
)

// Config holds every knob the serving process needs to wire up the
// lifecycle core and its adapters.
type Config struct {
	Mode     string // "server", "cli"
	LogLevel string

	// Association Store (Postgres)
	DatabaseURL string

	// Event Publisher (NATS JetStream)
	NATSURL string

	// Health Monitor cross-process recovery coalescing
	RedisURL string

	// Container runtime selection: "podman" or "docker"
	ContainerRuntime string

	HTTPAddr string

	// Port Allocator range
	PortRangeStart int
	PortRangeWidth int

	// Sandbox resource defaults
	DefaultMemoryLimit    string
	DefaultCPULimit       float64
	DefaultTimeoutSeconds int
	DefaultDesktopEnabled bool

	// Health Monitor intervals (seconds)
	HealthLoopIntervalSeconds  int
	HeartbeatIntervalSeconds   int
	HeartbeatTimeoutSeconds    int
	TTLCleanupIntervalSeconds  int
	HealthCheckCacheTTLSeconds int
	RebuildCooldownSeconds     int
	RecoveryCounterTTLSeconds  int
	MaxRecoveryAttempts        int
	RecoveryBackoffBaseSeconds int
	RecoveryBackoffMaxSeconds  int
	HealthCheckIntervalSeconds int

	// Orphan Cleaner
	OrphanGracePeriodSeconds   int
	OrphanCleanIntervalSeconds int
	OrphanDBChecksEnabled      bool

	// Idle reap default
	DefaultMaxIdleSeconds int

	// Workspace root: project_path is derived as WorkspaceRoot/<project_id>
	WorkspaceRoot string

	// API surface (internal/api)
	APIKey                       string
	DefaultImage                 string
	DefaultProfile               string
	MaxMemoryBytes               int64
	MaxCPU                       float64
	ContainerStartTimeoutSeconds int
	ContainerStopTimeoutSeconds  int
}

// Load reads Config from the environment, applying the same defaults
// convention as the teacher's config.Load.
func Load() (*Config, error) {
	cfg := &Config{
		Mode:     envOrDefault("SANDBOXCORE_MODE", "server"),
		LogLevel: envOrDefault("SANDBOXCORE_LOG_LEVEL", "info"),

		DatabaseURL: envOrDefault("SANDBOXCORE_DATABASE_URL", os.Getenv("DATABASE_URL")),
		NATSURL:     envOrDefault("SANDBOXCORE_NATS_URL", "nats://localhost:4222"),
		RedisURL:    envOrDefault("SANDBOXCORE_REDIS_URL", "redis://localhost:6379"),

		ContainerRuntime: envOrDefault("SANDBOXCORE_CONTAINER_RUNTIME", "podman"),
		HTTPAddr:         envOrDefault("SANDBOXCORE_HTTP_ADDR", ":8080"),

		PortRangeStart: envOrDefaultInt("SANDBOXCORE_PORT_RANGE_START", 18765),
		PortRangeWidth: envOrDefaultInt("SANDBOXCORE_PORT_RANGE_WIDTH", 999),

		DefaultMemoryLimit:    envOrDefault("SANDBOXCORE_DEFAULT_MEMORY_LIMIT", "512m"),
		DefaultCPULimit:       envOrDefaultFloat("SANDBOXCORE_DEFAULT_CPU_LIMIT", 1.0),
		DefaultTimeoutSeconds: envOrDefaultInt("SANDBOXCORE_DEFAULT_TIMEOUT_SECONDS", 1800),
		DefaultDesktopEnabled: envOrDefaultBool("SANDBOXCORE_DEFAULT_DESKTOP_ENABLED", false),

		HealthLoopIntervalSeconds:  envOrDefaultInt("SANDBOXCORE_HEALTH_LOOP_INTERVAL_SECONDS", 60),
		HeartbeatIntervalSeconds:   envOrDefaultInt("SANDBOXCORE_HEARTBEAT_INTERVAL_SECONDS", 30),
		HeartbeatTimeoutSeconds:    envOrDefaultInt("SANDBOXCORE_HEARTBEAT_TIMEOUT_SECONDS", 30),
		TTLCleanupIntervalSeconds:  envOrDefaultInt("SANDBOXCORE_TTL_CLEANUP_INTERVAL_SECONDS", 300),
		HealthCheckCacheTTLSeconds: envOrDefaultInt("SANDBOXCORE_HEALTH_CACHE_TTL_SECONDS", 30),
		RebuildCooldownSeconds:     envOrDefaultInt("SANDBOXCORE_REBUILD_COOLDOWN_SECONDS", 300),
		RecoveryCounterTTLSeconds:  envOrDefaultInt("SANDBOXCORE_RECOVERY_COUNTER_TTL_SECONDS", 3600),
		MaxRecoveryAttempts:        envOrDefaultInt("SANDBOXCORE_MAX_RECOVERY_ATTEMPTS", 3),
		RecoveryBackoffBaseSeconds: envOrDefaultInt("SANDBOXCORE_RECOVERY_BACKOFF_BASE_SECONDS", 5),
		RecoveryBackoffMaxSeconds:  envOrDefaultInt("SANDBOXCORE_RECOVERY_BACKOFF_MAX_SECONDS", 300),
		HealthCheckIntervalSeconds: envOrDefaultInt("SANDBOXCORE_HEALTH_CHECK_INTERVAL_SECONDS", 30),

		OrphanGracePeriodSeconds:   envOrDefaultInt("SANDBOXCORE_ORPHAN_GRACE_PERIOD_SECONDS", 300),
		OrphanCleanIntervalSeconds: envOrDefaultInt("SANDBOXCORE_ORPHAN_CLEAN_INTERVAL_SECONDS", 600),
		OrphanDBChecksEnabled:      envOrDefaultBool("SANDBOXCORE_ORPHAN_DB_CHECKS_ENABLED", true),

		DefaultMaxIdleSeconds: envOrDefaultInt("SANDBOXCORE_DEFAULT_MAX_IDLE_SECONDS", 3600),

		WorkspaceRoot: envOrDefault("SANDBOXCORE_WORKSPACE_ROOT", "/data/sandboxes"),

		APIKey:                       envOrDefault("SANDBOXCORE_API_KEY", ""),
		DefaultImage:                 envOrDefault("SANDBOXCORE_DEFAULT_IMAGE", "sandboxcore/base:latest"),
		DefaultProfile:               envOrDefault("SANDBOXCORE_DEFAULT_PROFILE", "standard"),
		MaxMemoryBytes:               envOrDefaultInt64("SANDBOXCORE_MAX_MEMORY_BYTES", 8*1024*1024*1024),
		MaxCPU:                       envOrDefaultFloat("SANDBOXCORE_MAX_CPU", 8.0),
		ContainerStartTimeoutSeconds: envOrDefaultInt("SANDBOXCORE_CONTAINER_START_TIMEOUT_SECONDS", 30),
		ContainerStopTimeoutSeconds:  envOrDefaultInt("SANDBOXCORE_CONTAINER_STOP_TIMEOUT_SECONDS", 15),
	}
	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
