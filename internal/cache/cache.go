package cache

import (
	"context"
	"sync"
	"time"
)

// Entry is a cached object-info record.
type Entry struct {
	Sysmeta   map[string]string
	ExpiresAt time.Time
}

// IsExpired checks if the cache entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// Cache stores object sysmeta keyed by object path, so repeated reads of the
// same object skip the HEAD subrequest to the next pipeline stage.
type Cache interface {
	// Get retrieves a cached entry.
	Get(ctx context.Context, path string) (*Entry, bool)

	// Set stores an entry.
	Set(ctx context.Context, path string, sysmeta map[string]string, ttl time.Duration) error

	// Delete removes an entry.
	Delete(ctx context.Context, path string) error

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// Stats returns cache statistics.
	Stats() Stats
}

// Stats holds cache statistics.
type Stats struct {
	Items     int
	Hits      int64
	Misses    int64
	Evictions int64
}

// memoryCache is an in-memory implementation of Cache.
type memoryCache struct {
	mu       sync.RWMutex
	entries  map[string]*Entry
	maxItems int
	stats    Stats
	ttl      time.Duration
}

// NewMemoryCache creates a new in-memory cache.
func NewMemoryCache(maxItems int, defaultTTL time.Duration) Cache {
	return &memoryCache{
		entries:  make(map[string]*Entry),
		maxItems: maxItems,
		ttl:      defaultTTL,
	}
}

// Get retrieves a cached entry.
func (c *memoryCache) Get(ctx context.Context, path string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[path]
	if !ok || entry.IsExpired() {
		c.stats.Misses++
		return nil, false
	}

	c.stats.Hits++
	return entry, true
}

// Set stores an entry, evicting expired and surplus entries as needed.
func (c *memoryCache) Set(ctx context.Context, path string, sysmeta map[string]string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.ttl
	}

	entry := &Entry{
		Sysmeta:   sysmeta,
		ExpiresAt: time.Now().Add(ttl),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictExpiredLocked()
	if len(c.entries) >= c.maxItems {
		c.evictForSpaceLocked()
	}
	c.entries[path] = entry
	return nil
}

// Delete removes an entry.
func (c *memoryCache) Delete(ctx context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, path)
	return nil
}

// Clear removes all entries.
func (c *memoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*Entry)
	c.stats = Stats{}
	return nil
}

// Stats returns cache statistics.
func (c *memoryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.Items = len(c.entries)
	return stats
}

// evictExpiredLocked removes expired entries (must be called with lock held).
func (c *memoryCache) evictExpiredLocked() {
	for path, entry := range c.entries {
		if entry.IsExpired() {
			delete(c.entries, path)
			c.stats.Evictions++
		}
	}
}

// evictForSpaceLocked drops arbitrary entries until one slot is free (must be
// called with lock held). Entries are tiny, so a simple policy is enough.
func (c *memoryCache) evictForSpaceLocked() {
	for path := range c.entries {
		if len(c.entries) < c.maxItems {
			return
		}
		delete(c.entries, path)
		c.stats.Evictions++
	}
}
