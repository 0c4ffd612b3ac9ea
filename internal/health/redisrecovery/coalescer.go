// Package redisrecovery is a cross-process health.RecoveryCoalescer
// backed by Redis, grounded on the teacher's
// internal/controlplane.RedisWorkerRegistry connect/ping convention.
// Where the teacher uses Redis pub/sub plus periodic SCAN to keep a
// worker registry in step across processes, this package needs only
// a single atomic primitive: SETNX with a TTL doubles as both the
// "currently recovering" set and its own expiry safeguard, so a
// process that dies mid-recovery doesn't wedge the sandbox forever.
package redisrecovery

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/memstack/sandboxcore/internal/health"
)

const keyPrefix = "sandboxcore:recovering:"

// Coalescer is a Redis-backed health.RecoveryCoalescer.
type Coalescer struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ health.RecoveryCoalescer = (*Coalescer)(nil)

// New connects to redisURL and verifies connectivity with a ping. ttl
// bounds how long a recovery attempt may hold the coalescing key
// before it is considered abandoned.
func New(redisURL string, ttl time.Duration) (*Coalescer, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("health/redisrecovery: invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("health/redisrecovery: ping: %w", err)
	}
	return &Coalescer{rdb: rdb, ttl: ttl}, nil
}

func (c *Coalescer) key(sandboxID string) string {
	return keyPrefix + sandboxID
}

// TryBegin attempts to atomically claim the recovering key for
// sandboxID via SETNX, returning false if another process already
// holds it.
func (c *Coalescer) TryBegin(ctx context.Context, sandboxID string) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, c.key(sandboxID), "1", c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("health/redisrecovery: setnx: %w", err)
	}
	return ok, nil
}

// End releases the recovering key for sandboxID.
func (c *Coalescer) End(ctx context.Context, sandboxID string) error {
	if err := c.rdb.Del(ctx, c.key(sandboxID)).Err(); err != nil {
		return fmt.Errorf("health/redisrecovery: del: %w", err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (c *Coalescer) Close() error {
	return c.rdb.Close()
}
