package provider

import (
	"sync"
	"time"
)

// ModelCache is an explicit TTL cache for provider model catalogs, injected
// where needed instead of living as ambient package state.
type ModelCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

type cacheEntry struct {
	models  []string
	expires time.Time
}

func NewModelCache(ttl time.Duration) *ModelCache {
	return &ModelCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *ModelCache) Get(key string) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expires) {
		return nil, false
	}
	return entry.models, true
}

func (c *ModelCache) Set(key string, models []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{models: models, expires: c.now().Add(c.ttl)}
}

func (c *ModelCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
