// Package catalog serves tenant service catalogs to the hydrate path,
// caching them in Redis when a client is available.
package catalog

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log/slog"
    "time"

    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/reservation-sync/internal/config"
    "github.com/iliyamo/reservation-sync/internal/model"
)

// Loader reads a tenant's catalog from the backing store.
type Loader interface {
    ListByTenant(ctx context.Context, tenantID string) (model.ServiceCatalog, error)
}

// Cache wraps a Loader with a Redis read-through cache.  A nil Redis
// client or a disabled config turns it into a plain pass-through.  Redis
// errors are logged and never fail a lookup.
type Cache struct {
    loader Loader
    rdb    *redis.Client
    cfg    config.CacheConfig
    log    *slog.Logger
}

// New returns a Cache in front of loader.
func New(loader Loader, rdb *redis.Client, cfg config.CacheConfig, logger *slog.Logger) *Cache {
    if logger == nil {
        logger = slog.Default()
    }
    if cfg.TTL <= 0 {
        cfg.TTL = 5 * time.Minute
    }
    if cfg.Prefix == "" {
        cfg.Prefix = "catalog"
    }
    return &Cache{loader: loader, rdb: rdb, cfg: cfg, log: logger}
}

func (c *Cache) enabled() bool { return c.cfg.Enabled && c.rdb != nil }

// Key returns the Redis key holding tenantID's catalog.
func (c *Cache) Key(tenantID string) string {
    return fmt.Sprintf("%s:services:%s", c.cfg.Prefix, tenantID)
}

// Services returns the tenant's live catalog.
func (c *Cache) Services(ctx context.Context, tenantID string) (model.ServiceCatalog, error) {
    key := c.Key(tenantID)
    if c.enabled() {
        bs, err := c.rdb.Get(ctx, key).Bytes()
        switch {
        case err == nil:
            var cat model.ServiceCatalog
            if err := json.Unmarshal(bs, &cat); err == nil {
                return cat, nil
            }
            c.log.Warn("catalog: corrupt cache entry", "tenant", tenantID)
        case !errors.Is(err, redis.Nil):
            c.log.Warn("catalog: redis get failed", "tenant", tenantID, "error", err)
        }
    }

    cat, err := c.loader.ListByTenant(ctx, tenantID)
    if err != nil {
        return nil, fmt.Errorf("load service catalog: %w", err)
    }
    if c.enabled() {
        if bs, err := json.Marshal(cat); err == nil {
            if err := c.rdb.SetEx(ctx, key, bs, c.cfg.TTL).Err(); err != nil {
                c.log.Warn("catalog: redis set failed", "tenant", tenantID, "error", err)
            }
        }
    }
    return cat, nil
}

// Invalidate drops the cached catalog for tenantID.
func (c *Cache) Invalidate(ctx context.Context, tenantID string) error {
    if !c.enabled() {
        return nil
    }
    return c.rdb.Del(ctx, c.Key(tenantID)).Err()
}
