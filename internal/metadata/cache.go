package metadata

import (
	"context"
	"sync"
	"time"

	"github.com/diarybot/diarybot/internal/media"
)

// SearchCache stores title search results by query key.
type SearchCache interface {
	Get(ctx context.Context, key string) ([]media.CandidateRecord, bool)
	Set(ctx context.Context, key string, results []media.CandidateRecord)
}

// Cache provides in-memory caching with TTL for search results.
type Cache struct {
	mu       sync.RWMutex
	items    map[string]cacheItem
	ttl      time.Duration
	maxItems int
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

type cacheItem struct {
	value     []media.CandidateRecord
	expiresAt time.Time
}

// CacheConfig holds cache configuration.
type CacheConfig struct {
	TTL      time.Duration
	MaxItems int
}

// DefaultCacheConfig returns default cache configuration.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:      30 * time.Minute,
		MaxItems: 2000,
	}
}

// NewCache creates a new cache and starts its cleanup loop. Call Close to stop it.
func NewCache(cfg CacheConfig) *Cache {
	if cfg.TTL == 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.MaxItems == 0 {
		cfg.MaxItems = 2000
	}

	c := &Cache{
		items:    make(map[string]cacheItem),
		ttl:      cfg.TTL,
		maxItems: cfg.MaxItems,
		now:      time.Now,
		stop:     make(chan struct{}),
	}

	go c.cleanup()

	return c
}

// Get retrieves results from the cache.
func (c *Cache) Get(_ context.Context, key string) ([]media.CandidateRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[key]
	if !ok || c.now().After(item.expiresAt) {
		return nil, false
	}

	return append([]media.CandidateRecord(nil), item.value...), true
}

// Set stores results in the cache.
func (c *Cache) Set(_ context.Context, key string, results []media.CandidateRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxItems {
		c.evictOldest()
	}

	c.items[key] = cacheItem{
		value:     append([]media.CandidateRecord(nil), results...),
		expiresAt: c.now().Add(c.ttl),
	}
}

// Len returns the number of items in the cache.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the cleanup loop.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// evictOldest drops expired items, then the oldest 10% if still full.
// Must be called with lock held.
func (c *Cache) evictOldest() {
	c.removeExpired()
	if len(c.items) < c.maxItems {
		return
	}

	toRemove := c.maxItems / 10
	if toRemove < 1 {
		toRemove = 1
	}

	for ; toRemove > 0 && len(c.items) > 0; toRemove-- {
		var oldestKey string
		var oldest time.Time
		for key, item := range c.items {
			if oldestKey == "" || item.expiresAt.Before(oldest) {
				oldestKey, oldest = key, item.expiresAt
			}
		}
		delete(c.items, oldestKey)
	}
}

func (c *Cache) removeExpired() {
	now := c.now()
	for key, item := range c.items {
		if now.After(item.expiresAt) {
			delete(c.items, key)
		}
	}
}

// cleanup periodically removes expired items.
func (c *Cache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.removeExpired()
			c.mu.Unlock()
		}
	}
}
