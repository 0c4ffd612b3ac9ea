// Package ttlcache implements the keyed, per-entry-TTL store described in
// spec.md §4.4: used for the health-result cache, the recovery-attempt
// counter, and the rebuild cooldown. The locking shape follows the
// teacher's internal/controlplane/worker_registry.go WorkerRegistry — one
// map-level mutex guarding the index — rather than any third-party cache
// library, since the teacher never reaches for one. The cache runs no
// goroutine of its own: expired entries are reaped when a caller invokes
// CleanupExpired, and by Set when the cache is over its bound.
package ttlcache

import (
	"sync"
	"time"
)

// entry holds one cached value plus the bookkeeping cleanup_expired and
// eviction need. lastTouch is refreshed on every Get, matching §4.4's
// "expiration is last-access based".
type entry struct {
	value     any
	expiresAt time.Time
	ttl       time.Duration
	lastTouch time.Time
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// Cache is a mutex-protected, bounded, TTL-scoped map. The zero value is
// not usable; construct with New.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	maxSize int
	nowFn   func() time.Time
}

// New creates a Cache bounded to maxSize entries. maxSize <= 0 means
// unbounded.
func New(maxSize int) *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		maxSize: maxSize,
		nowFn:   time.Now,
	}
}

// Get returns the cached value for key and true if present and unexpired.
// A successful Get refreshes the entry's last-touch time and pushes its
// expiry out by its original TTL, matching the "last-access based"
// expiration rule.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	now := c.nowFn()
	if e.expired(now) {
		delete(c.entries, key)
		return nil, false
	}

	e.lastTouch = now
	e.expiresAt = now.Add(e.ttl)
	return e.value, true
}

// Set stores value under key with the given TTL, reaping expired entries
// and, if still over maxSize, evicting the oldest-touched entries first.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFn()
	c.entries[key] = &entry{
		value:     value,
		ttl:       ttl,
		expiresAt: now.Add(ttl),
		lastTouch: now,
	}

	if c.maxSize <= 0 || len(c.entries) <= c.maxSize {
		return
	}

	c.reapExpiredLocked(now)
	if len(c.entries) <= c.maxSize {
		return
	}
	c.evictOldestLocked(len(c.entries) - c.maxSize)
}

// Delete removes key unconditionally.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// CleanupExpired sweeps every entry and removes those past expiry,
// returning the count removed. This backs the Health Monitor's 300s TTL
// cleanup loop.
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reapExpiredLocked(c.nowFn())
}

// Size returns the current entry count, including not-yet-reaped expired
// entries.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) reapExpiredLocked(now time.Time) int {
	removed := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// evictOldestLocked removes the n oldest-touched entries. Called only
// when the cache is still over maxSize after reaping expired entries.
func (c *Cache) evictOldestLocked(n int) {
	if n <= 0 {
		return
	}
	type kv struct {
		key       string
		lastTouch time.Time
	}
	all := make([]kv, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, kv{k, e.lastTouch})
	}
	// Partial selection: repeatedly find-and-remove the oldest. The
	// cache is bounded in size so this stays cheap in practice.
	for i := 0; i < n && len(all) > 0; i++ {
		oldestIdx := 0
		for j := 1; j < len(all); j++ {
			if all[j].lastTouch.Before(all[oldestIdx].lastTouch) {
				oldestIdx = j
			}
		}
		delete(c.entries, all[oldestIdx].key)
		all = append(all[:oldestIdx], all[oldestIdx+1:]...)
	}
}
