package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/voyagen/tvvault/internal/cache"
	"github.com/voyagen/tvvault/internal/models"
)

// Cache TTLs. Catalog data only changes on a refresh, which invalidates
// everything, so these mostly bound staleness across multiple instances.
const (
	ttlCategoryList = 5 * time.Minute
	ttlCategory     = 5 * time.Minute
)

// CachedStore wraps a Store with a Redis caching layer for the read side.
// Every successful catalog replace invalidates all catalog keys.
type CachedStore struct {
	inner Store
	cache *cache.Redis
}

// NewCachedStore creates a CachedStore that wraps inner with Redis caching.
func NewCachedStore(inner Store, c *cache.Redis) *CachedStore {
	return &CachedStore{inner: inner, cache: c}
}

func (c *CachedStore) ListCategoriesByKind(ctx context.Context, kind models.Kind) ([]models.Category, error) {
	key := fmt.Sprintf("categories:kind:%s", kind)
	if v, err := cache.Get[[]models.Category](ctx, c.cache, key); err == nil {
		return v, nil
	}
	categories, err := c.inner.ListCategoriesByKind(ctx, kind)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, key, categories, ttlCategoryList); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
	return categories, nil
}

func (c *CachedStore) GetCategoryWithItems(ctx context.Context, categoryID int64) (*models.Category, error) {
	key := fmt.Sprintf("category:%d", categoryID)
	if v, err := cache.Get[models.Category](ctx, c.cache, key); err == nil {
		return &v, nil
	}
	cat, err := c.inner.GetCategoryWithItems(ctx, categoryID)
	if err != nil {
		// ErrNotFound and storage errors are never cached.
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, key, cat, ttlCategory); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
	return cat, nil
}

// ReplaceCatalog writes through and drops every cached catalog entry, so
// readers never see a mix of old and new categories.
func (c *CachedStore) ReplaceCatalog(ctx context.Context, categories []models.Category, onProgress models.ProgressFunc) error {
	if err := c.inner.ReplaceCatalog(ctx, categories, onProgress); err != nil {
		return err
	}
	c.invalidatePattern(ctx, "categories:*", "category:*")
	return nil
}

// --- passthrough (no caching) ---

func (c *CachedStore) SaveAccount(ctx context.Context, creds models.Credentials) error {
	return c.inner.SaveAccount(ctx, creds)
}

func (c *CachedStore) GetAccount(ctx context.Context) (*models.Credentials, error) {
	return c.inner.GetAccount(ctx)
}

// invalidatePattern deletes all keys matching the given glob patterns.
func (c *CachedStore) invalidatePattern(ctx context.Context, patterns ...string) {
	for _, p := range patterns {
		if err := cache.DelPattern(ctx, c.cache, p); err != nil {
			log.Printf("cache: del pattern %s: %v", p, err)
		}
	}
}
