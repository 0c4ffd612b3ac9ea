package sberrors

import (
	"errors"
	"testing"
)

func TestKindClassification(t *testing.T) {
	cause := errors.New("boom")

	cases := []struct {
		name string
		err  error
		kind Kind
	}{
		{"not found", NotFound("find_by_project", cause), KindNotFound},
		{"resource exhausted", ResourceExhausted("allocate", cause), KindResourceExhausted},
		{"resource rejected", ResourceRejected("resolve_config", cause), KindResourceRejected},
		{"runtime error", ContainerRuntimeError("create", cause), KindContainerRuntimeErr},
		{"control channel error", ControlChannelError("connect", cause), KindControlChannelErr},
		{"timeout", Timeout("stop", cause), KindTimeout},
		{"security error", SecurityError("blocked_port", cause), KindSecurityError},
		{"conflict", Conflict("get_or_create", cause), KindConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if !Is(tc.err, tc.kind) {
				t.Errorf("expected %v to be kind %s", tc.err, tc.kind)
			}
			if !errors.Is(tc.err, cause) && tc.kind != KindContainerRuntimeErr && tc.kind != KindControlChannelErr {
				t.Errorf("expected %v to wrap the cause", tc.err)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != 0 {
		t.Error("expected 0 for nil error")
	}
	if ExitCode(NotFound("x", errors.New("y"))) != 2 {
		t.Error("expected 2 for not found")
	}
	if ExitCode(ResourceRejected("x", errors.New("y"))) != 3 {
		t.Error("expected 3 for resource rejected")
	}
	if ExitCode(ResourceExhausted("x", errors.New("y"))) != 3 {
		t.Error("expected 3 for resource exhausted")
	}
	if ExitCode(ContainerRuntimeError("x", errors.New("y"))) != 1 {
		t.Error("expected 1 for generic failure")
	}
}
