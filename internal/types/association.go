// Package types holds the shared domain model for the sandbox lifecycle
// core: the durable Association, the in-memory Instance, and the small
// value types that travel between the Lifecycle Service, the Registry,
// and the Health Monitor.
package types

import "time"

// AssociationStatus is the lifecycle state of a project's sandbox
// association, as stored durably by the Association Store.
type AssociationStatus string

const (
	StatusCreating    AssociationStatus = "creating"
	StatusRunning     AssociationStatus = "running"
	StatusUnhealthy   AssociationStatus = "unhealthy"
	StatusStopped     AssociationStatus = "stopped"
	StatusError       AssociationStatus = "error"
	StatusTerminated  AssociationStatus = "terminated"
)

// Association is the durable project<->sandbox record. It is owned by the
// Association Store; the Lifecycle Service is its sole writer.
type Association struct {
	ID                string
	TenantID          string
	ProjectID         string
	SandboxID         string
	Status            AssociationStatus
	ErrorMessage      string
	CreatedAt         time.Time
	StartedAt         *time.Time
	LastAccessedAt    *time.Time
	LastHealthCheckAt *time.Time
}

// IsUsable reports whether the association can be returned to a caller of
// get_or_create without any recovery action.
func (a *Association) IsUsable() bool {
	return a.Status == StatusRunning
}

// NeedsHealthCheck reports whether the last recorded health check is older
// than intervalSeconds (or there has never been one).
func (a *Association) NeedsHealthCheck(intervalSeconds int) bool {
	if a.LastHealthCheckAt == nil {
		return true
	}
	return time.Since(*a.LastHealthCheckAt) >= time.Duration(intervalSeconds)*time.Second
}

// NeedsIdleReap reports whether the association has been idle for at
// least maxIdleSeconds, used by the in-memory Association Store's
// find_stale.
func (a *Association) NeedsIdleReap(maxIdleSeconds int) bool {
	if a.LastAccessedAt == nil {
		return false
	}
	return time.Since(*a.LastAccessedAt) >= time.Duration(maxIdleSeconds)*time.Second
}

// MarkAccessed touches LastAccessedAt to now.
func (a *Association) MarkAccessed(now time.Time) {
	a.LastAccessedAt = &now
}

// MarkHealthy transitions the association to running and clears any error,
// recording the health check time.
func (a *Association) MarkHealthy(now time.Time) {
	a.Status = StatusRunning
	a.ErrorMessage = ""
	a.LastHealthCheckAt = &now
}

// MarkUnhealthy transitions the association to unhealthy with a reason.
func (a *Association) MarkUnhealthy(reason string, now time.Time) {
	a.Status = StatusUnhealthy
	a.ErrorMessage = reason
	a.LastHealthCheckAt = &now
}

// MarkError transitions the association to error with a reason.
func (a *Association) MarkError(reason string) {
	a.Status = StatusError
	a.ErrorMessage = reason
}

// MarkStopped transitions the association to stopped.
func (a *Association) MarkStopped() {
	a.Status = StatusStopped
}

// MarkTerminated transitions the association to terminated.
func (a *Association) MarkTerminated() {
	a.Status = StatusTerminated
}
