package ttlcache

import (
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	c := New(0)
	c.Set("k1", "v1", time.Minute)

	v, ok := c.Get("k1")
	if !ok || v != "v1" {
		t.Fatalf("expected v1, got %v ok=%v", v, ok)
	}
}

func TestGetMissing(t *testing.T) {
	c := New(0)
	if _, ok := c.Get("nope"); ok {
		t.Fatal("expected miss for unknown key")
	}
}

func TestExpiry(t *testing.T) {
	fixed := time.Now()
	c := New(0)
	c.nowFn = func() time.Time { return fixed }
	c.Set("k1", "v1", time.Second)

	c.nowFn = func() time.Time { return fixed.Add(2 * time.Second) }
	if _, ok := c.Get("k1"); ok {
		t.Fatal("expected entry to have expired")
	}
}

func TestGetRefreshesExpiry(t *testing.T) {
	fixed := time.Now()
	c := New(0)
	c.nowFn = func() time.Time { return fixed }
	c.Set("k1", "v1", 2*time.Second)

	c.nowFn = func() time.Time { return fixed.Add(1500 * time.Millisecond) }
	if _, ok := c.Get("k1"); !ok {
		t.Fatal("expected entry still alive before first ttl window elapses")
	}

	// Touch above pushed expiry out another 2s from 1.5s, so 3s total
	// should still be alive.
	c.nowFn = func() time.Time { return fixed.Add(3 * time.Second) }
	if _, ok := c.Get("k1"); !ok {
		t.Fatal("expected touch to have refreshed expiry")
	}
}

func TestDelete(t *testing.T) {
	c := New(0)
	c.Set("k1", "v1", time.Minute)
	c.Delete("k1")
	if _, ok := c.Get("k1"); ok {
		t.Fatal("expected key to be gone after delete")
	}
}

func TestCleanupExpired(t *testing.T) {
	fixed := time.Now()
	c := New(0)
	c.nowFn = func() time.Time { return fixed }
	c.Set("k1", "v1", time.Second)
	c.Set("k2", "v2", time.Hour)

	c.nowFn = func() time.Time { return fixed.Add(2 * time.Second) }
	removed := c.CleanupExpired()
	if removed != 1 {
		t.Fatalf("expected 1 expired entry removed, got %d", removed)
	}
	if c.Size() != 1 {
		t.Fatalf("expected 1 entry remaining, got %d", c.Size())
	}
}

func TestBoundedSizeEvictsOldestTouched(t *testing.T) {
	fixed := time.Now()
	c := New(2)
	c.nowFn = func() time.Time { return fixed }

	c.Set("k1", "v1", time.Hour)
	c.nowFn = func() time.Time { return fixed.Add(time.Second) }
	c.Set("k2", "v2", time.Hour)
	c.nowFn = func() time.Time { return fixed.Add(2 * time.Second) }
	c.Set("k3", "v3", time.Hour)

	if c.Size() > 2 {
		t.Fatalf("expected size bounded to 2, got %d", c.Size())
	}
	if _, ok := c.Get("k1"); ok {
		t.Fatal("expected oldest-touched entry k1 to have been evicted")
	}
	if _, ok := c.Get("k3"); !ok {
		t.Fatal("expected most recently set entry k3 to survive")
	}
}
