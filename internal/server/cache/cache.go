// Package cache provides the read cache behind the project and node
// endpoints. It uses patrickmn/go-cache for TTL-based expiry; hook events
// invalidate a project's entries as soon as its status changes.
package cache

import (
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Keys used by the HTTP handlers.
const (
	nodesKey      = "nodes"
	projectsKey   = "projects"
	projectPrefix = "project:"
)

// NodesKey is the cache key of the pipeline node listing.
func NodesKey() string { return nodesKey }

// ProjectsKey is the cache key of the project listing.
func ProjectsKey() string { return projectsKey }

// ProjectKey is the cache key of one project's status.
func ProjectKey(projectID string) string { return projectPrefix + projectID }

// Cache wraps go-cache and counts hits and misses.
type Cache struct {
	store  *gocache.Cache
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a new cache with the given TTL and cleanup interval.
func New(defaultTTL, cleanupInterval time.Duration) *Cache {
	return &Cache{
		store: gocache.New(defaultTTL, cleanupInterval),
	}
}

// Get retrieves a value from the cache.
func (c *Cache) Get(key string) (any, bool) {
	v, ok := c.store.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Set stores a value in the cache with default TTL.
func (c *Cache) Set(key string, value any) {
	c.store.Set(key, value, gocache.DefaultExpiration)
}

// SetWithTTL stores a value in the cache with custom TTL.
func (c *Cache) SetWithTTL(key string, value any, ttl time.Duration) {
	c.store.Set(key, value, ttl)
}

// Delete removes a value from the cache.
func (c *Cache) Delete(key string) {
	c.store.Delete(key)
}

// InvalidateProject drops a project's status and the project listing.
func (c *Cache) InvalidateProject(projectID string) {
	c.store.Delete(ProjectKey(projectID))
	c.store.Delete(projectsKey)
}

// Clear removes all items from the cache.
func (c *Cache) Clear() {
	c.store.Flush()
}

// ItemCount returns the number of items in the cache.
func (c *Cache) ItemCount() int {
	return c.store.ItemCount()
}

// Stats returns cache statistics.
type Stats struct {
	ItemCount int   `json:"item_count"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
}

// GetStats returns current cache statistics.
func (c *Cache) GetStats() Stats {
	return Stats{
		ItemCount: c.store.ItemCount(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
	}
}
