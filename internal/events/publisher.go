// Package events defines the Event Publisher port from spec.md §6:
// fire-and-forget emission of lifecycle events. The nats subpackage
// adapts it to NATS JetStream, grounded on the teacher's
// internal/worker.EventPublisher (connect/AddStream/Publish shape).
package events

import (
	"context"

	"github.com/memstack/sandboxcore/internal/types"
)

// Publisher is the Event Publisher port. Publish must never block the
// caller on downstream delivery — failures are logged by the adapter,
// never surfaced as a Lifecycle Service error (spec.md §6: "fire and
// forget").
type Publisher interface {
	Publish(ctx context.Context, event types.Event) error
	Close() error
}
