package cache

import (
	"sync"
	"time"

	"trailhead/pkg/models"
)

// CacheEntry represents a cached item with expiration
type CacheEntry struct {
	Value      interface{}
	Expiration time.Time
}

// IsExpired checks if the cache entry has expired
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expiration)
}

// MemoryCache implements a simple in-memory cache. The server uses it to
// short-circuit repeated coordinate batch lookups from map clients panning
// over the same viewport.
type MemoryCache struct {
	items map[string]*CacheEntry
	mutex sync.RWMutex
	ttl   time.Duration
}

// NewMemoryCache creates a new memory cache
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	cache := &MemoryCache{
		items: make(map[string]*CacheEntry),
		mutex: sync.RWMutex{},
		ttl:   ttl,
	}

	// Start cleanup goroutine
	go cache.cleanupExpired()

	return cache
}

// Set stores a value in the cache
func (c *MemoryCache) Set(key string, value interface{}) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items[key] = &CacheEntry{
		Value:      value,
		Expiration: time.Now().Add(c.ttl),
	}
}

// Get retrieves a value from the cache
func (c *MemoryCache) Get(key string) (interface{}, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.items[key]
	if !exists || entry.IsExpired() {
		return nil, false
	}

	return entry.Value, true
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.items, key)
}

// Clear removes all items from the cache
func (c *MemoryCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items = make(map[string]*CacheEntry)
}

// SetCoordinates caches a coordinate batch response under its ids key.
func (c *MemoryCache) SetCoordinates(key string, coords map[int64][]models.Coordinate) {
	c.Set(key, coords)
}

// GetCoordinates retrieves a cached coordinate batch response.
func (c *MemoryCache) GetCoordinates(key string) (map[int64][]models.Coordinate, bool) {
	value, ok := c.Get(key)
	if !ok {
		return nil, false
	}
	coords, ok := value.(map[int64][]models.Coordinate)
	return coords, ok
}

// cleanupExpired periodically evicts expired entries.
func (c *MemoryCache) cleanupExpired() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for range ticker.C {
		c.mutex.Lock()
		for key, entry := range c.items {
			if entry.IsExpired() {
				delete(c.items, key)
			}
		}
		c.mutex.Unlock()
	}
}
