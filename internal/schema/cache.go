// internal/schema/cache.go
package schema

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"camp-lifecycle/internal/common/database"
	"camp-lifecycle/internal/common/logger"
	"camp-lifecycle/internal/common/metrics"
	"camp-lifecycle/internal/models"
)

const cacheKey = "schema:active"

// Loader is anything that can produce the current schema from the source of
// truth. *Repository satisfies it.
type Loader interface {
	LoadSchema(ctx context.Context) (*models.Schema, error)
}

// Cache fronts the schema repository with a Redis TTL cache. A cache failure
// is never fatal; reads fall through to Postgres.
type Cache struct {
	loader Loader
	redis  *database.RedisClient
	ttl    time.Duration
	logger logger.Logger
}

func NewCache(loader Loader, redisClient *database.RedisClient, ttl time.Duration, log logger.Logger) *Cache {
	return &Cache{
		loader: loader,
		redis:  redisClient,
		ttl:    ttl,
		logger: log,
	}
}

// Get returns the cached schema, loading and caching it on a miss.
func (c *Cache) Get(ctx context.Context) (*models.Schema, error) {
	if c.redis != nil {
		raw, err := c.redis.GetClient().Get(ctx, cacheKey).Result()
		if err == nil {
			var schema models.Schema
			if jsonErr := json.Unmarshal([]byte(raw), &schema); jsonErr == nil {
				metrics.SchemaCacheHits.WithLabelValues("hit").Inc()
				return &schema, nil
			}
			c.logger.Warn("Discarding undecodable cached schema", nil)
		} else if err != redis.Nil {
			c.logger.WithError(err).Warn("Schema cache read failed, falling back to database", nil)
		}
	}
	metrics.SchemaCacheHits.WithLabelValues("miss").Inc()

	schema, err := c.loader.LoadSchema(ctx)
	if err != nil {
		return nil, err
	}

	c.store(ctx, schema)
	return schema, nil
}

// Invalidate drops the cached schema. Admin schema edits call this so the next
// read reloads from Postgres instead of waiting out the TTL.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	if err := c.redis.GetClient().Del(ctx, cacheKey).Err(); err != nil {
		c.logger.WithError(err).Error("Failed to invalidate schema cache", nil)
		return err
	}
	c.logger.Info("Schema cache invalidated", nil)
	return nil
}

func (c *Cache) store(ctx context.Context, schema *models.Schema) {
	if c.redis == nil {
		return
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return
	}
	if err := c.redis.GetClient().Set(ctx, cacheKey, payload, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("Failed to cache schema", nil)
	}
}
