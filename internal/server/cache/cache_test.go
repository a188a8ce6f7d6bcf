package cache

import (
	"sync"
	"testing"
	"time"
)

// TestCache_BasicOperations tests Get, Set, and Delete.
func TestCache_BasicOperations(t *testing.T) {
	c := New(5*time.Minute, 10*time.Minute)

	t.Run("Set and Get", func(t *testing.T) {
		c.Set("key1", "value1")

		val, found := c.Get("key1")
		if !found {
			t.Error("expected key1 to be found")
		}
		if val != "value1" {
			t.Errorf("expected value1, got %v", val)
		}
	})

	t.Run("Get non-existent key", func(t *testing.T) {
		if _, found := c.Get("nonexistent"); found {
			t.Error("expected nonexistent key to not be found")
		}
	})

	t.Run("Set and Delete", func(t *testing.T) {
		c.Set("key2", "value2")
		c.Delete("key2")
		if _, found := c.Get("key2"); found {
			t.Error("expected key2 to be deleted")
		}
	})
}

// TestCache_SetWithTTL tests custom TTL.
func TestCache_SetWithTTL(t *testing.T) {
	c := New(5*time.Minute, 10*time.Millisecond)

	c.SetWithTTL(NodesKey(), []string{"plan"}, 20*time.Millisecond)
	if _, found := c.Get(NodesKey()); !found {
		t.Fatal("expected entry before expiry")
	}

	time.Sleep(40 * time.Millisecond)
	if _, found := c.Get(NodesKey()); found {
		t.Error("expected entry to expire")
	}
}

// TestCache_InvalidateProject drops only the affected project and the listing.
func TestCache_InvalidateProject(t *testing.T) {
	c := New(5*time.Minute, 10*time.Minute)
	c.Set(ProjectKey("p1"), "p1 status")
	c.Set(ProjectKey("p2"), "p2 status")
	c.Set(ProjectsKey(), "listing")
	c.Set(NodesKey(), "nodes")

	c.InvalidateProject("p1")

	if _, found := c.Get(ProjectKey("p1")); found {
		t.Error("p1 should be invalidated")
	}
	if _, found := c.Get(ProjectsKey()); found {
		t.Error("listing should be invalidated")
	}
	if _, found := c.Get(ProjectKey("p2")); !found {
		t.Error("p2 should survive")
	}
	if _, found := c.Get(NodesKey()); !found {
		t.Error("nodes should survive")
	}
}

// TestCache_Clear removes everything.
func TestCache_Clear(t *testing.T) {
	c := New(5*time.Minute, 10*time.Minute)
	for _, id := range []string{"a", "b", "c"} {
		c.Set(ProjectKey(id), id)
	}
	if c.ItemCount() != 3 {
		t.Fatalf("expected 3 items, got %d", c.ItemCount())
	}
	c.Clear()
	if c.ItemCount() != 0 {
		t.Errorf("expected 0 items after Clear, got %d", c.ItemCount())
	}
}

// TestCache_GetStats counts hits and misses.
func TestCache_GetStats(t *testing.T) {
	c := New(5*time.Minute, 10*time.Minute)
	c.Set("k", 1)
	c.Get("k")
	c.Get("k")
	c.Get("missing")

	stats := c.GetStats()
	if stats.ItemCount != 1 {
		t.Errorf("expected 1 item, got %d", stats.ItemCount)
	}
	if stats.Hits != 2 {
		t.Errorf("expected 2 hits, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
}

// TestCache_ConcurrentAccess tests thread safety.
func TestCache_ConcurrentAccess(t *testing.T) {
	c := New(5*time.Minute, 10*time.Minute)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := ProjectKey(string(rune('a' + i)))
			for range 100 {
				c.Set(key, i)
				c.Get(key)
				c.InvalidateProject(string(rune('a' + i)))
			}
		}()
	}
	wg.Wait()

	stats := c.GetStats()
	if stats.Hits+stats.Misses != 2000 {
		t.Errorf("expected 2000 lookups, got %d", stats.Hits+stats.Misses)
	}
}
