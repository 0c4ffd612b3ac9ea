// Package sberrors classifies the sandbox lifecycle core's failures into
// the conceptual kinds the core's callers need to branch on, in the spirit
// of containerd/errdefs: a small set of outcome categories, each with an
// Is-style predicate, rather than a zoo of exported sentinel values.
package sberrors

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
)

// Kind is one of the conceptual error categories the lifecycle core and its
// callers reason about. Kind is not a wire type; it exists to let callers
// of get_or_create, health_check, and terminate branch without inspecting
// error strings.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindResourceExhausted    Kind = "resource_exhausted"
	KindResourceRejected     Kind = "resource_rejected"
	KindContainerRuntimeErr  Kind = "container_runtime_error"
	KindControlChannelErr    Kind = "control_channel_error"
	KindTimeout              Kind = "timeout"
	KindSecurityError        Kind = "security_error"
	KindConflict             Kind = "conflict"
	KindStoreErr             Kind = "store_error"
)

// runtimeError wraps a failure from the container runtime (create, start,
// stop, remove, pull). errdefs has no "which subsystem" classification, so
// this carries the failing operation alongside the cause.
type runtimeError struct {
	op  string
	err error
}

func (e *runtimeError) Error() string { return fmt.Sprintf("container runtime: %s: %v", e.op, e.err) }
func (e *runtimeError) Unwrap() error { return e.err }

// controlChannelError wraps a failure talking to a sandbox's internal
// agent over its control channel (connect, call, ping).
type controlChannelError struct {
	op  string
	err error
}

func (e *controlChannelError) Error() string {
	return fmt.Sprintf("control channel: %s: %v", e.op, e.err)
}
func (e *controlChannelError) Unwrap() error { return e.err }

// storeError wraps a failure from the Association Store (query, save,
// lock acquisition).
type storeError struct {
	op  string
	err error
}

func (e *storeError) Error() string { return fmt.Sprintf("association store: %s: %v", e.op, e.err) }
func (e *storeError) Unwrap() error { return e.err }

// NotFound wraps err as a NotFound error (association or container missing
// where one was required).
func NotFound(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, errdefs.ErrNotFound, err)
}

// ResourceExhausted wraps err as a ResourceExhausted error (no free port
// triplet, host memory/CPU insufficient, or max-concurrent-sandboxes hit).
func ResourceExhausted(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, errdefs.ErrResourceExhausted, err)
}

// ResourceRejected wraps err as a ResourceRejected error (requested config
// exceeds host ceilings).
func ResourceRejected(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, errdefs.ErrInvalidArgument, err)
}

// ContainerRuntimeError wraps err as a ContainerRuntimeError.
func ContainerRuntimeError(op string, err error) error {
	return &runtimeError{op: op, err: err}
}

// ControlChannelError wraps err as a ControlChannelError.
func ControlChannelError(op string, err error) error {
	return &controlChannelError{op: op, err: err}
}

// Timeout wraps err as a Timeout error (a bounded operation exceeded its
// deadline).
func Timeout(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, errdefs.ErrDeadlineExceeded, err)
}

// SecurityError wraps err as a SecurityError (requested configuration
// violates isolation policy).
func SecurityError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, errdefs.ErrPermissionDenied, err)
}

// Conflict wraps err as a Conflict error (concurrent lifecycle operation
// prevented progress; the caller may retry).
func Conflict(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, errdefs.ErrAborted, err)
}

// StoreError wraps err as a StoreError (Association Store query, save,
// or lock failure).
func StoreError(op string, err error) error {
	return &storeError{op: op, err: err}
}

// Is reports whether err belongs to the given Kind.
func Is(err error, kind Kind) bool {
	switch kind {
	case KindNotFound:
		return errdefs.IsNotFound(err)
	case KindResourceExhausted:
		return errdefs.IsResourceExhausted(err)
	case KindResourceRejected:
		return errdefs.IsInvalidArgument(err)
	case KindTimeout:
		return errdefs.IsDeadlineExceeded(err)
	case KindSecurityError:
		return errdefs.IsPermissionDenied(err)
	case KindConflict:
		return errdefs.IsAborted(err)
	case KindContainerRuntimeErr:
		var e *runtimeError
		return errors.As(err, &e)
	case KindControlChannelErr:
		var e *controlChannelError
		return errors.As(err, &e)
	case KindStoreErr:
		var e *storeError
		return errors.As(err, &e)
	}
	return false
}

// ExitCode maps an error to the process exit codes spec.md §6 defines for
// the CLI/API surface: 0 success, 1 generic failure, 2 not found, 3
// resource-limit rejection.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case Is(err, KindNotFound):
		return 2
	case Is(err, KindResourceRejected), Is(err, KindResourceExhausted):
		return 3
	default:
		return 1
	}
}
