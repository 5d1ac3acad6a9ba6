package pool

import (
	"context"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedProvider memoizes pools per scope key. Pools are immutable within a
// scope, so a cached pool is shared by every caller asking the same scope.
type CachedProvider struct {
	next  Provider
	cache *cache.Cache
}

// NewCachedProvider wraps next with a TTL cache
func NewCachedProvider(next Provider, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedProvider{
		next:  next,
		cache: cache.New(ttl, ttl*2),
	}
}

// Fetch returns the cached pool for scope or loads it. Errors are not cached.
func (c *CachedProvider) Fetch(ctx context.Context, scope Scope) (*Pool, error) {
	if !scope.Complete() {
		return nil, ErrNoScope
	}
	key := scope.Key()
	if v, ok := c.cache.Get(key); ok {
		slog.Debug("Option pool cache hit", "scope", key)
		return v.(*Pool), nil
	}
	p, err := c.next.Fetch(ctx, scope)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, p)
	return p, nil
}

// Invalidate drops every cached pool.
func (c *CachedProvider) Invalidate() {
	c.cache.Flush()
}
