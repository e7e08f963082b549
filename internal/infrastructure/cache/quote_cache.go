package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/cartcost/backend/internal/domain"
)

type quoteEntry struct {
	value     interface{}
	expiresAt time.Time
}

// QuoteCache is a size-bounded LRU for resolved prices.
// Entries expire after the cache-wide TTL or the per-key TTL given to Set, whichever is sooner.
type QuoteCache struct {
	lru *expirable.LRU[string, quoteEntry]
	ttl time.Duration
}

// NewQuoteCache creates a cache holding at most size entries for at most ttl
func NewQuoteCache(size int, ttl time.Duration) *QuoteCache {
	if size <= 0 {
		size = 10000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &QuoteCache{
		lru: expirable.NewLRU[string, quoteEntry](size, nil, ttl),
		ttl: ttl,
	}
}

// Get implements domain.CacheRepository
func (c *QuoteCache) Get(ctx context.Context, key string) (interface{}, error) {
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	if time.Now().After(entry.expiresAt) {
		c.lru.Remove(key)
		return nil, domain.ErrCacheMiss
	}
	return entry.value, nil
}

// Set implements domain.CacheRepository
func (c *QuoteCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 || ttl > c.ttl {
		ttl = c.ttl
	}
	c.lru.Add(key, quoteEntry{value: value, expiresAt: time.Now().Add(ttl)})
	return nil
}

// Delete implements domain.CacheRepository
func (c *QuoteCache) Delete(ctx context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

// Purge implements domain.CacheRepository
func (c *QuoteCache) Purge(ctx context.Context) error {
	c.lru.Purge()
	return nil
}

// Len returns the number of cached entries
func (c *QuoteCache) Len() int {
	return c.lru.Len()
}
