package types

import "time"

// Info is the caller-facing view returned by get_or_create, recreate, and
// sync_status — the Lifecycle Service's public shape, distinct from the
// internal Association and Instance records it is projected from.
type Info struct {
	SandboxID      string
	ProjectID      string
	TenantID       string
	Status         AssociationStatus
	IsHealthy      bool
	MCPPort        *int
	DesktopPort    *int
	TerminalPort   *int
	EndpointURLs   map[string]string
	CreatedAt      time.Time
	LastAccessedAt *time.Time
}

// FromInstance projects an Instance plus its owning Association into the
// caller-facing Info.
func FromInstance(a *Association, i *Instance) Info {
	info := Info{
		SandboxID:      a.SandboxID,
		ProjectID:      a.ProjectID,
		TenantID:       a.TenantID,
		Status:         a.Status,
		IsHealthy:      a.Status == StatusRunning,
		CreatedAt:      a.CreatedAt,
		LastAccessedAt: a.LastAccessedAt,
	}
	if i != nil {
		mcp, desktop, terminal := i.Ports.MCP, i.Ports.Desktop, i.Ports.Terminal
		info.MCPPort = &mcp
		info.DesktopPort = &desktop
		info.TerminalPort = &terminal
		info.EndpointURLs = i.EndpointURLs
	}
	return info
}

// EventType enumerates the recognized lifecycle event types (§6,
// bit-exact).
type EventType string

const (
	EventSandboxCreated    EventType = "sandbox_created"
	EventSandboxTerminated EventType = "sandbox_terminated"
	EventSandboxStatus     EventType = "sandbox_status"
	EventDesktopStarted    EventType = "desktop_started"
	EventDesktopStopped    EventType = "desktop_stopped"
	EventDesktopStatus     EventType = "desktop_status"
	EventTerminalStarted   EventType = "terminal_started"
	EventTerminalStopped   EventType = "terminal_stopped"
	EventTerminalStatus    EventType = "terminal_status"
)

// Event is the payload shape published to the Event Publisher port.
type Event struct {
	Type      EventType
	SandboxID string
	ProjectID string
	TenantID  string
	Timestamp time.Time
	Payload   map[string]any
}
