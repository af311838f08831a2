package ytdlp

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// Compile-time interface check.
var _ TitleResolver = (*CachedResolver)(nil)

// CachedResolver memoises successful title lookups for a fixed TTL. Failures
// are never cached, so a retry after a transient network error spawns the
// tool again.
type CachedResolver struct {
	next  TitleResolver
	cache *cache.Cache
}

// NewCachedResolver wraps next. A non-positive ttl disables caching.
func NewCachedResolver(next TitleResolver, ttl time.Duration) *CachedResolver {
	c := &CachedResolver{next: next}
	if ttl > 0 {
		c.cache = cache.New(ttl, 2*ttl)
	}
	return c
}

// Title implements [TitleResolver].
func (c *CachedResolver) Title(ctx context.Context, url string) (string, error) {
	key := strings.TrimSpace(url)
	if c.cache != nil {
		if v, ok := c.cache.Get(key); ok {
			return v.(string), nil
		}
	}

	title, err := c.next.Title(ctx, url)
	if err != nil {
		return "", err
	}
	if c.cache != nil {
		c.cache.Set(key, title, cache.DefaultExpiration)
	}
	return title, nil
}

// Len returns the number of cached titles.
func (c *CachedResolver) Len() int {
	if c.cache == nil {
		return 0
	}
	return c.cache.ItemCount()
}
