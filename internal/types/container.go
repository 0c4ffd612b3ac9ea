package types

import "time"

// ContainerState mirrors the runtime's own lifecycle states, used by
// sync_status and the Orphan Cleaner's grace-period check.
type ContainerState string

const (
	ContainerRunning ContainerState = "running"
	ContainerExited  ContainerState = "exited"
	ContainerDead    ContainerState = "dead"
	ContainerCreated ContainerState = "created"
)

// Container is the runtime object owned by the Container Manager. It
// carries the same labels as the Instance it backs, for label-based
// discovery (§3 invariant 4).
type Container struct {
	RuntimeID string
	Name      string
	State     ContainerState
	Labels    map[string]string
	Ports     PortTriplet
	CreatedAt time.Time
}

// ProjectID returns the memstack.project_id label, or "" if absent —
// an empty result marks the container an orphan per §3 invariant 4.
func (c *Container) ProjectID() string {
	return c.Labels[LabelProjectID]
}

// SandboxID returns the memstack.sandbox.id label.
func (c *Container) SandboxID() string {
	return c.Labels[LabelSandboxID]
}

// TenantID returns the memstack.tenant_id label.
func (c *Container) TenantID() string {
	return c.Labels[LabelTenantID]
}

// IsOrphanLabeled reports whether the container carries the sandbox
// marker label but is missing the project_id label that ties it to an
// Association.
func (c *Container) IsOrphanLabeled() bool {
	return c.Labels[LabelSandbox] == "true" && c.ProjectID() == ""
}

// Label keys, bit-exact per spec.md §6.
const (
	LabelSandbox   = "memstack.sandbox"
	LabelSandboxID = "memstack.sandbox.id"
	LabelProjectID = "memstack.project_id"
	LabelTenantID  = "memstack.tenant_id"
	LabelCreatedAt = "memstack.created_at"
)

// Labels builds the bit-exact label set for a sandbox container.
func Labels(sandboxID, projectID, tenantID string, createdAt time.Time) map[string]string {
	return map[string]string{
		LabelSandbox:   "true",
		LabelSandboxID: sandboxID,
		LabelProjectID: projectID,
		LabelTenantID:  tenantID,
		LabelCreatedAt: createdAt.UTC().Format(time.RFC3339),
	}
}

// ContainerStats is the Container Manager's stats() return value.
type ContainerStats struct {
	CPUPercent float64
	MemMB      float64
	MemPercent float64
}
