package roster

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// MemoryCache keeps rosters in process memory. Concurrent misses for the same
// revision share a single fetch.
type MemoryCache struct {
	cache *cache.Cache
	group singleflight.Group
	ttl   time.Duration
}

// NewMemory creates a MemoryCache whose entries live for ttl.
//
// Parameters:
//   - ttl: Lifetime of a cached roster
//
// Returns:
//   - A new MemoryCache
func NewMemory(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		cache: cache.New(ttl, 2*ttl),
		ttl:   ttl,
	}
}

// Names implements Cache.
func (c *MemoryCache) Names(ctx context.Context, revision string, fetch FetchFunc) ([]string, error) {
	key := revision

	if val, found := c.cache.Get(key); found {
		if names, ok := val.([]string); ok {
			return names, nil
		}
	}

	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Another caller may have filled the entry while we waited.
		if cached, found := c.cache.Get(key); found {
			return cached, nil
		}

		names, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		c.cache.Set(key, names, c.ttl)
		return names, nil
	})
	if err != nil {
		return nil, err
	}

	names, ok := val.([]string)
	if !ok {
		return nil, fmt.Errorf("unexpected type in roster cache for revision %s", revision)
	}

	return names, nil
}

// Len returns the number of cached rosters.
func (c *MemoryCache) Len() int {
	return c.cache.ItemCount()
}

// Close implements Cache.
func (c *MemoryCache) Close() error {
	c.cache.Flush()
	return nil
}
