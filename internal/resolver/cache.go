package resolver

import (
	"fmt"
	"sync"
	"time"
)

// fieldCache holds resolved field values keyed by (execution key, field).
// Entries expire after the engine's TTL; expired entries are dropped
// lazily on access.
type fieldCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value   any
	expires time.Time
}

func newFieldCache(ttl time.Duration, now func() time.Time) *fieldCache {
	return &fieldCache{ttl: ttl, now: now, entries: make(map[string]cacheEntry)}
}

func cacheKey(execKey, fieldName string) string {
	return execKey + "\x1f" + fieldName
}

// executionKey derives the cache scope for one execution. A caller-supplied
// stable key wins; otherwise the key combines entity identity with a
// wall-clock bucket so unrelated executions against the same entity share
// fetches only within the TTL window.
func (c *fieldCache) executionKey(stable, entityID, entityType string) string {
	if stable != "" {
		return stable
	}
	bucket := int64(0)
	if c.ttl > 0 {
		bucket = c.now().Unix() / int64(c.ttl.Seconds())
	}
	return fmt.Sprintf("%s|%s|%d", entityID, entityType, bucket)
}

func (c *fieldCache) get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(e.expires) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

func (c *fieldCache) put(key string, value any) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{value: value, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}
