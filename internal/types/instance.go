package types

import "time"

// SecurityProfile controls the isolation posture applied to a sandbox
// container at creation time.
type SecurityProfile string

const (
	SecurityStandard SecurityProfile = "standard"
	SecurityStrict   SecurityProfile = "strict"
)

// NetworkMode mirrors the container runtime's network attachment modes.
type NetworkMode string

const (
	NetworkBridge NetworkMode = "bridge"
	NetworkNone   NetworkMode = "none"
	NetworkHost   NetworkMode = "host"
)

// Profile is a named resource preset (lite|standard|full) that
// ResolveConfig expands into concrete defaults before overrides are
// applied.
type Profile string

const (
	ProfileLite     Profile = "lite"
	ProfileStandard Profile = "standard"
	ProfileFull     Profile = "full"
)

// Config is the resolved, validated sandbox configuration: the profile's
// defaults with any caller overrides applied.
type Config struct {
	Image           string
	MemoryLimit     string // textual size, e.g. "512m"
	CPULimit        float64
	TimeoutSeconds  int
	DesktopEnabled  bool
	Environment     map[string]string
	SecurityProfile SecurityProfile
	NetworkMode     NetworkMode
	AllowedNetworks []string
	BlockedPorts    []int
}

// PortTriplet is the three host ports allocated together for one sandbox.
type PortTriplet struct {
	MCP      int
	Desktop  int
	Terminal int
}

// Contains reports whether any of the triplet's three ports equals p.
func (t PortTriplet) Contains(p int) bool {
	return t.MCP == p || t.Desktop == p || t.Terminal == p
}

// Ports returns the triplet as a slice, for iteration.
func (t PortTriplet) Ports() []int {
	return []int{t.MCP, t.Desktop, t.Terminal}
}

// InstanceStatus mirrors AssociationStatus for the in-memory view held by
// the Registry; kept as a distinct type since Instance status is derived
// from runtime observation, not Lifecycle Service writes.
type InstanceStatus string

const (
	InstanceCreating  InstanceStatus = "creating"
	InstanceRunning   InstanceStatus = "running"
	InstanceUnhealthy InstanceStatus = "unhealthy"
	InstanceStopped   InstanceStatus = "stopped"
)

// Instance is the Registry's in-memory record of a sandbox container,
// keyed by SandboxID.
type Instance struct {
	SandboxID      string
	ProjectID      string
	TenantID       string
	Status         InstanceStatus
	Config         Config
	ProjectPath    string
	Ports          PortTriplet
	EndpointURLs   map[string]string
	ControlClient  ControlClient
	Labels         map[string]string
	CreatedAt      time.Time
	LastActivityAt *time.Time
	ToolsCache     []string
}

// Touch records activity on the instance.
func (i *Instance) Touch(now time.Time) {
	i.LastActivityAt = &now
}

// HasControlClient reports whether the instance currently holds a
// connected control channel handle.
func (i *Instance) HasControlClient() bool {
	return i.ControlClient != nil && i.ControlClient.Connected()
}

// ControlClient is the opaque handle to a sandbox's internal agent,
// addressed by the instance's MCP port. The core never defines the wire
// protocol (§1 Non-goals); it only needs Connected/Close/Ping/Call.
type ControlClient interface {
	Connected() bool
	Close() error
	Reconnect() error
	Ping(timeoutSeconds int) error
	Call(method string, args map[string]any, timeoutSeconds int) (any, error)
}
