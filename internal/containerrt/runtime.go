// Package containerrt defines the Container Runtime port from spec.md
// §6: a surface sufficient to implement against any OCI-compatible
// daemon (create/start/stop/remove/get/list/stats/pull/exec-attach-TTY).
// The core carries no adapter vocabulary (§9 "Dynamic dispatch") — it
// only depends on this interface. Two adapters live alongside it:
// containerrt/podmanrt (CLI-shelling, grounded on the teacher's
// internal/podman) and containerrt/dockerrt (Docker Engine API,
// grounded on yenhunghuang-repo-onboarding-copilot's docker/docker
// usage).
package containerrt

import (
	"context"
	"io"
	"time"

	"github.com/memstack/sandboxcore/internal/types"
)

// CreateSpec is everything the Container Manager (§4.2) needs to create
// a sandbox container.
type CreateSpec struct {
	Name            string
	Image           string
	Env             map[string]string
	Ports           types.PortTriplet
	ProjectPath     string // host path bind-mounted read-write at /workspace
	MemoryLimit     string // textual size, e.g. "512m"
	CPULimit        float64
	Labels          map[string]string
	NetworkMode     types.NetworkMode
	AllowedNetworks []string
	BlockedPorts    []int
	MaxRetryCount   int // restart policy on-failure retry bound, [1,5]
}

// ContainerPorts are the fixed in-container ports the runtime maps the
// allocated host PortTriplet onto.
const (
	ContainerMCPPort      = 3000
	ContainerDesktopPort  = 3001
	ContainerTerminalPort = 3002
)

// StatsResult is the Container Manager's stats() return value.
type StatsResult = types.ContainerStats

// ExecAttachOptions configures an interactive exec session with a TTY,
// for the shell-session surface §6 requires.
type ExecAttachOptions struct {
	Cmd    []string
	Env    map[string]string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	TTY    bool
}

// Runtime is the Container Runtime port. Every method may block and
// must be called off the scheduler's cooperative task per spec.md §5;
// callers dispatch onto the worker pool, never holding a Registry lock
// across these calls (§4.3, §5 suspension points).
type Runtime interface {
	// Create provisions (but does not start) a container from spec,
	// pulling the image first if it is not already present locally.
	Create(ctx context.Context, spec CreateSpec) (types.Container, error)
	Start(ctx context.Context, runtimeID string) error
	Stop(ctx context.Context, runtimeID string, timeout time.Duration) error
	Remove(ctx context.Context, runtimeID string, force bool) error

	// Get returns the container for runtimeID, or ok=false if it no
	// longer exists.
	Get(ctx context.Context, runtimeID string) (c types.Container, ok bool, err error)

	// GetBySandboxID looks a container up via its memstack.sandbox.id
	// label, the §3 invariant 4 label-based discovery contract.
	GetBySandboxID(ctx context.Context, sandboxID string) (c types.Container, ok bool, err error)

	// List returns every sandbox-labeled container, optionally filtered
	// by the memstack.project_id / memstack.tenant_id labels.
	List(ctx context.Context, projectID, tenantID string) ([]types.Container, error)

	// Exists reports whether a container for sandboxID is present,
	// regardless of run state.
	Exists(ctx context.Context, sandboxID string) (bool, error)

	// IsRunning reports whether runtimeID is currently in the running
	// state.
	IsRunning(ctx context.Context, runtimeID string) (bool, error)

	Stats(ctx context.Context, runtimeID string) (StatsResult, error)

	PullImage(ctx context.Context, image string) error
	ImageExists(ctx context.Context, image string) (bool, error)

	// ExecAttach runs an interactive command inside the container with a
	// TTY attached, for the shell-session surface §6 names.
	ExecAttach(ctx context.Context, runtimeID string, opts ExecAttachOptions) error
}
