package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/urldammit/internal/logger"
)

const (
	// DefaultNamespace prefixes every cache key.
	DefaultNamespace = "urldammit"
	// DefaultTTL is the default lifetime of a cached entry (24 hours)
	DefaultTTL = 24 * time.Hour
)

// Redis is a cache shared between processes. Keys are
// <namespace>:<tier>:<id> and values are JSON.
//
// Redis errors are logged and reported as misses.
type Redis[V any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    logger.Logger
}

// NewRedis creates a cache for one tier (e.g. "known" or "unknown").
func NewRedis[V any](client *redis.Client, namespace, tier string, ttl time.Duration, log logger.Logger) *Redis[V] {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis[V]{
		client: client,
		prefix: namespace + ":" + tier + ":",
		ttl:    ttl,
		log:    log,
	}
}

// Key returns the Redis key for id
func (c *Redis[V]) Key(id string) string {
	return c.prefix + id
}

func (c *Redis[V]) Get(ctx context.Context, id string) (V, bool) {
	var zero V
	data, err := c.client.Get(ctx, c.Key(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("cache get failed", logger.String("key", c.Key(id)), logger.Error(err))
		}
		return zero, false
	}

	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		c.log.Warn("cache entry unreadable, dropping", logger.String("key", c.Key(id)), logger.Error(err))
		c.Delete(ctx, id)
		return zero, false
	}
	return v, true
}

func (c *Redis[V]) Set(ctx context.Context, id string, v V) {
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("cache set failed", logger.String("key", c.Key(id)), logger.Error(err))
		return
	}
	if err := c.client.Set(ctx, c.Key(id), data, c.ttl).Err(); err != nil {
		c.log.Warn("cache set failed", logger.String("key", c.Key(id)), logger.Error(err))
	}
}

func (c *Redis[V]) Delete(ctx context.Context, id string) {
	if err := c.client.Del(ctx, c.Key(id)).Err(); err != nil {
		c.log.Warn("cache delete failed", logger.String("key", c.Key(id)), logger.Error(err))
	}
}

func (c *Redis[V]) Contains(ctx context.Context, id string) bool {
	n, err := c.client.Exists(ctx, c.Key(id)).Result()
	if err != nil {
		c.log.Warn("cache lookup failed", logger.String("key", c.Key(id)), logger.Error(err))
		return false
	}
	return n > 0
}

// Flush removes every entry of this tier.
func (c *Redis[V]) Flush(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete cache key: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to flush cache: %w", err)
	}
	return nil
}

// Ping checks the Redis connection
func (c *Redis[V]) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
