package mempublisher

import (
	"context"
	"testing"

	"github.com/memstack/sandboxcore/internal/types"
)

func TestPublishRecordsEvents(t *testing.T) {
	p := New()
	ctx := context.Background()

	p.Publish(ctx, types.Event{Type: types.EventSandboxCreated, SandboxID: "sb-1"})
	p.Publish(ctx, types.Event{Type: types.EventSandboxTerminated, SandboxID: "sb-1"})

	got := p.Events()
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Type != types.EventSandboxCreated || got[1].Type != types.EventSandboxTerminated {
		t.Errorf("unexpected event order: %+v", got)
	}
}
