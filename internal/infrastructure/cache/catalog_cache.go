package cache

import (
	"context"
	"time"

	"storefront-backend/internal/domain"
	"storefront-backend/pkg/cache"
	"storefront-backend/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const catalogKey = "shipping:catalog"

type memoryCatalogCache struct {
	store cache.CacheService
	ttl   time.Duration
}

// NewMemoryCatalogCache keeps the catalog snapshot in the process-local cache.
func NewMemoryCatalogCache(store cache.CacheService, ttl time.Duration) domain.CatalogCache {
	return &memoryCatalogCache{store: store, ttl: ttl}
}

func (c *memoryCatalogCache) Get(_ context.Context) (*domain.Catalog, bool) {
	val, found := c.store.Get(catalogKey)
	if !found {
		return nil, false
	}
	catalog, ok := val.(*domain.Catalog)
	return catalog, ok
}

func (c *memoryCatalogCache) Set(_ context.Context, catalog *domain.Catalog) {
	c.store.Set(catalogKey, catalog, c.ttl)
}

func (c *memoryCatalogCache) Invalidate(_ context.Context) {
	c.store.Delete(catalogKey)
}

type redisCatalogCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCatalogCache shares the catalog snapshot between instances through Redis.
// If Redis cannot be reached at startup it falls back to the memory cache.
func NewRedisCatalogCache(ctx context.Context, opts *redis.Options, ttl time.Duration, fallback cache.CacheService) domain.CatalogCache {
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", opts.Addr).Msg("Redis unavailable, using in-memory catalog cache")
		_ = client.Close()
		return NewMemoryCatalogCache(fallback, ttl)
	}

	return &redisCatalogCache{client: client, ttl: ttl}
}

func (c *redisCatalogCache) Get(ctx context.Context) (*domain.Catalog, bool) {
	data, err := c.client.Get(ctx, catalogKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.WithContext(ctx).Warn().Err(err).Msg("Catalog cache read failed")
		}
		return nil, false
	}

	var catalog domain.Catalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		logger.WithContext(ctx).Warn().Err(err).Msg("Catalog cache entry is corrupt")
		return nil, false
	}
	return &catalog, true
}

func (c *redisCatalogCache) Set(ctx context.Context, catalog *domain.Catalog) {
	data, err := json.Marshal(catalog)
	if err != nil {
		logger.WithContext(ctx).Warn().Err(err).Msg("Catalog cache encode failed")
		return
	}
	if err := c.client.Set(ctx, catalogKey, data, c.ttl).Err(); err != nil {
		logger.WithContext(ctx).Warn().Err(err).Msg("Catalog cache write failed")
	}
}

func (c *redisCatalogCache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, catalogKey).Err(); err != nil {
		logger.WithContext(ctx).Warn().Err(err).Msg("Catalog cache invalidation failed")
	}
}
