// Package mempublisher is an in-memory events.Publisher for tests: it
// records every published event instead of sending it anywhere.
package mempublisher

import (
	"context"
	"sync"

	"github.com/memstack/sandboxcore/internal/events"
	"github.com/memstack/sandboxcore/internal/types"
)

// Publisher records events in the order Publish was called.
type Publisher struct {
	mu     sync.Mutex
	events []types.Event
}

var _ events.Publisher = (*Publisher)(nil)

// New constructs an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

func (p *Publisher) Publish(ctx context.Context, event types.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *Publisher) Close() error { return nil }

// Events returns a snapshot of every event published so far.
func (p *Publisher) Events() []types.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.Event, len(p.events))
	copy(out, p.events)
	return out
}
