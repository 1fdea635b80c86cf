package resultcache

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryCache is an in-process Cache backed by an LRU with per-entry TTL and an
// optional entry cap. When the cap is reached, expired entries are dropped first,
// then the least recently used entry.
type MemoryCache struct {
	// mu serializes the sweep-then-add sequence in Set.
	mu         sync.Mutex
	lru        *lru.Cache[string, memoryEntry]
	maxEntries int
	now        func() time.Time
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// NewMemoryCache creates a MemoryCache. maxEntries <= 0 means unbounded.
func NewMemoryCache(maxEntries int) *MemoryCache {
	size := maxEntries
	if size <= 0 {
		size = math.MaxInt
	}
	cache, err := lru.New[string, memoryEntry](size)
	if err != nil {
		// lru.New only fails for a non-positive size.
		panic(err)
	}
	return &MemoryCache{
		lru:        cache,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, nil
	}
	if c.expired(entry) {
		c.lru.Remove(key)
		return nil, nil
	}
	return entry.value, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxEntries > 0 && c.lru.Len() >= c.maxEntries && !c.lru.Contains(key) {
		c.dropExpired()
	}

	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expires = c.now().Add(ttl)
	}
	c.lru.Add(key, entry)
	return nil
}

// Delete implements Cache.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

// DeletePrefix implements Cache.
func (c *MemoryCache) DeletePrefix(_ context.Context, prefix string) error {
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
		}
	}
	return nil
}

// Clear implements Cache.
func (c *MemoryCache) Clear(_ context.Context) error {
	c.lru.Purge()
	return nil
}

// Len returns the number of stored entries, including expired ones not yet dropped.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

func (c *MemoryCache) expired(entry memoryEntry) bool {
	return !entry.expires.IsZero() && !c.now().Before(entry.expires)
}

func (c *MemoryCache) dropExpired() {
	for _, key := range c.lru.Keys() {
		if entry, ok := c.lru.Peek(key); ok && c.expired(entry) {
			c.lru.Remove(key)
		}
	}
}
