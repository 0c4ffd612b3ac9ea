// Package nats adapts events.Publisher to NATS JetStream, grounded on
// the teacher's internal/worker.EventPublisher: connect with
// infinite-reconnect options, ensure a stream up front, publish
// best-effort (log, never fail the caller). Unlike the teacher's
// single SANDBOX_EVENTS stream, spec.md §6 routes per-project to
// `sandbox:events:{project_id}`, capped at 1000 entries since the
// subscriber owns its own replay cursor.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/memstack/sandboxcore/internal/events"
	"github.com/memstack/sandboxcore/internal/types"
)

const maxStreamEntries = 1000

// Publisher publishes lifecycle events to per-project capped NATS
// JetStream streams.
type Publisher struct {
	nc *nats.Conn
	js nats.JetStreamContext

	mu       sync.Mutex
	streamed map[string]bool // project IDs whose stream has been ensured
}

var _ events.Publisher = (*Publisher)(nil)

// New connects to natsURL and obtains a JetStream context, mirroring
// the teacher's NewEventPublisher connect options.
func New(natsURL string) (*Publisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("events/nats: connect: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("events/nats: jetstream context: %w", err)
	}

	return &Publisher{nc: nc, js: js, streamed: make(map[string]bool)}, nil
}

func streamName(projectID string) string {
	return "sandbox_events_" + sanitize(projectID)
}

func subject(projectID string) string {
	return fmt.Sprintf("sandbox.events.%s", sanitize(projectID))
}

// sanitize replaces characters JetStream stream/subject names forbid
// (".", "*", ">", whitespace) with "_", since project IDs are
// caller-supplied.
func sanitize(s string) string {
	replacer := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")
	return replacer.Replace(s)
}

func (p *Publisher) ensureStream(projectID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streamed[projectID] {
		return nil
	}

	_, err := p.js.AddStream(&nats.StreamConfig{
		Name:     streamName(projectID),
		Subjects: []string{subject(projectID)},
		MaxMsgs:  maxStreamEntries,
	})
	if err != nil {
		// The stream may already exist from a prior process; JetStream
		// returns an error either way and the teacher treats that as
		// non-fatal.
		log.Printf("events/nats: stream setup for project %s: %v", projectID, err)
	}
	p.streamed[projectID] = true
	return nil
}

// Publish is best-effort per spec.md §6: a failure here is logged and
// swallowed, never surfaced to the caller.
func (p *Publisher) Publish(ctx context.Context, event types.Event) error {
	if err := p.ensureStream(event.ProjectID); err != nil {
		log.Printf("events/nats: ensure stream: %v", err)
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("events/nats: marshal event: %v", err)
		return nil
	}

	if _, err := p.js.Publish(subject(event.ProjectID), data); err != nil {
		log.Printf("events/nats: publish %s for sandbox %s: %v", event.Type, event.SandboxID, err)
	}
	return nil
}

// Close drains the NATS connection.
func (p *Publisher) Close() error {
	p.nc.Close()
	return nil
}
