package cache

import (
	"testing"
	"time"
)

func TestLRUCache_GetSetEvict(t *testing.T) {
	c := NewLRUCache[string](2, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("expected a present")
	}
	// b is now least recently used
	c.Set("c", "3")
	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected b evicted")
	}
	if v, ok := c.Get("c"); !ok || v != "3" {
		t.Fatalf("expected c=3, got %q ok=%v", v, ok)
	}
	if c.Size() != 2 {
		t.Fatalf("expected size 2, got %d", c.Size())
	}
}

func TestLRUCache_TTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[int](10, time.Second)
	c.now = func() time.Time { return now }

	c.Set("k", 1)
	c.Set("j", 2)
	now = now.Add(2 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected expired entry")
	}
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("expected 1 cleaned, got %d", n)
	}
	if c.Size() != 0 {
		t.Fatalf("expected empty cache")
	}
}

func TestLRUCache_Stats(t *testing.T) {
	c := NewLRUCache[int](4, time.Minute)
	c.Set("x", 1)
	c.Get("x")
	c.Get("y")
	c.Delete("x")
	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Size != 0 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestManager_CleanNowAndStop(t *testing.T) {
	now := time.Now()
	c := NewLRUCache[int](4, time.Millisecond)
	c.now = func() time.Time { return now }
	c.Set("a", 1)
	now = now.Add(time.Second)

	m := NewManager()
	m.Register(c)
	if n := m.CleanNow(); n != 1 {
		t.Fatalf("expected 1 removed, got %d", n)
	}
	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()
}
