package health

import (
	"context"
	"sync"
)

// localCoalescer is an in-process RecoveryCoalescer: a "currently
// recovering" set guarded by a mutex, sufficient for a single server
// process (spec.md §4.5 step 2).
type localCoalescer struct {
	mu         sync.Mutex
	recovering map[string]bool
}

// NewLocalCoalescer constructs a single-process RecoveryCoalescer.
func NewLocalCoalescer() RecoveryCoalescer {
	return &localCoalescer{recovering: make(map[string]bool)}
}

func (c *localCoalescer) TryBegin(ctx context.Context, sandboxID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recovering[sandboxID] {
		return false, nil
	}
	c.recovering[sandboxID] = true
	return true, nil
}

func (c *localCoalescer) End(ctx context.Context, sandboxID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.recovering, sandboxID)
	return nil
}
