package nats

import "testing"

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"proj.1":   "proj_1",
		"a b":      "a_b",
		"clean-id": "clean-id",
	}
	for in, want := range cases {
		if got := sanitize(in); got != want {
			t.Errorf("sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStreamAndSubjectNames(t *testing.T) {
	if got := streamName("proj.1"); got != "sandbox_events_proj_1" {
		t.Errorf("unexpected stream name: %q", got)
	}
	if got := subject("proj.1"); got != "sandbox.events.proj_1" {
		t.Errorf("unexpected subject: %q", got)
	}
}
