package apfc

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// slidingCacheEntry holds a cached value plus its expiration deadline.
type slidingCacheEntry struct {
	value   []TypeSignature
	expires time.Time
}

// HotCache is the in-memory concurrent cache fronting SST lookups for the
// Context Assembler's Local tier (§4.4). Entries use sliding expiration:
// every hit renews the TTL from now. Evictions never fail a lookup — a miss
// simply falls through to the Blackboard/SST, per §5's "Shared-resource
// policy".
type HotCache struct {
	mu      sync.Mutex
	entries map[string]slidingCacheEntry
	ttl     time.Duration
	group   singleflight.Group
}

// NewHotCache creates a cache with the given sliding-expiration TTL
// (default 30 minutes per §4.4 when ttl <= 0).
func NewHotCache(ttl time.Duration) *HotCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &HotCache{entries: make(map[string]slidingCacheEntry), ttl: ttl}
}

// Get returns a cached value for key, renewing its TTL on hit.
func (c *HotCache) Get(key string) ([]TypeSignature, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expires) {
		if ok {
			delete(c.entries, key)
		}
		return nil, false
	}
	e.expires = time.Now().Add(c.ttl)
	c.entries[key] = e
	return e.value, true
}

// Set inserts or replaces key's cached value.
func (c *HotCache) Set(key string, value []TypeSignature) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = slidingCacheEntry{value: value, expires: time.Now().Add(c.ttl)}
}

// GetOrLoad returns the cached value for key, or calls load (collapsing
// concurrent misses for the same key via singleflight) and caches the
// result.
func (c *HotCache) GetOrLoad(key string, load func() ([]TypeSignature, error)) ([]TypeSignature, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if cached, ok := c.Get(key); ok {
			return cached, nil
		}
		loaded, err := load()
		if err != nil {
			return nil, err
		}
		c.Set(key, loaded)
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]TypeSignature), nil
}
