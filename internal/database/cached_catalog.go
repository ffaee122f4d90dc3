package database

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

const catalogCacheKey = "catalog"

// CachedCatalog serves AllWithEmbedding from a short-lived snapshot of another CatalogReader.
// A snapshot may lag behind enrollments made by other processes for up to the TTL.
type CachedCatalog struct {
	source CatalogReader
	cache  *cache.Cache
	ttl    time.Duration
}

// NewCachedCatalog wraps source. A ttl of zero or less disables caching.
func NewCachedCatalog(source CatalogReader, ttl time.Duration) *CachedCatalog {
	c := &CachedCatalog{source: source, ttl: ttl}
	if ttl > 0 {
		c.cache = cache.New(ttl, 2*ttl)
	}
	return c
}

// AllWithEmbedding returns the cached snapshot, loading it from the source when expired.
// The returned slice is shared and must not be modified.
func (c *CachedCatalog) AllWithEmbedding(ctx context.Context) ([]Attendee, error) {
	if c.cache == nil {
		return c.source.AllWithEmbedding(ctx)
	}
	if v, ok := c.cache.Get(catalogCacheKey); ok {
		return v.([]Attendee), nil
	}

	attendees, err := c.source.AllWithEmbedding(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.Set(catalogCacheKey, attendees, cache.DefaultExpiration)
	return attendees, nil
}

// Invalidate drops the snapshot so the next read goes to the source.
func (c *CachedCatalog) Invalidate() {
	if c.cache != nil {
		c.cache.Delete(catalogCacheKey)
	}
}
