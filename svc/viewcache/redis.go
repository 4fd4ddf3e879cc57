package viewcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rankfoundry/shopseo/pkg/billing"
	"github.com/rankfoundry/shopseo/pkg/metrics"
)

const defaultKeyPrefix = "billing:view:"

// cmdable is the subset of redis.Cmdable the cache uses.
type cmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Redis caches billing views in Redis.
type Redis struct {
	client       cmdable
	ttl          time.Duration
	unsettledTTL time.Duration
	prefix       string
}

var _ billing.ViewCache = (*Redis)(nil)

func NewRedis(client cmdable, ttl time.Duration, opts ...Option) *Redis {
	if client == nil {
		panic("viewcache: redis client is required")
	}
	s := newSettings(ttl, opts)
	return &Redis{client: client, ttl: ttl, unsettledTTL: s.unsettledTTL, prefix: defaultKeyPrefix}
}

func (c *Redis) key(shop string) string { return c.prefix + shop }

func (c *Redis) Get(ctx context.Context, shop string) (*billing.Info, error) {
	raw, err := c.client.Get(ctx, c.key(shop)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.IncCacheRequest("redis", "miss")
		return nil, billing.ErrCacheMiss
	}
	if err != nil {
		metrics.IncCacheRequest("redis", "error")
		return nil, fmt.Errorf("viewcache: get: %w", err)
	}

	var info billing.Info
	if err := json.Unmarshal(raw, &info); err != nil {
		// Unreadable entries behave like misses and get overwritten.
		metrics.IncCacheRequest("redis", "miss")
		return nil, billing.ErrCacheMiss
	}
	metrics.IncCacheRequest("redis", "hit")
	return &info, nil
}

func (c *Redis) Set(ctx context.Context, shop string, info *billing.Info) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("viewcache: encode: %w", err)
	}
	ttl := c.ttl
	if info.Unsettled() {
		ttl = c.unsettledTTL
	}
	if err := c.client.Set(ctx, c.key(shop), raw, ttl).Err(); err != nil {
		return fmt.Errorf("viewcache: set: %w", err)
	}
	return nil
}

func (c *Redis) Invalidate(ctx context.Context, shop string) error {
	if err := c.client.Del(ctx, c.key(shop)).Err(); err != nil {
		return fmt.Errorf("viewcache: invalidate: %w", err)
	}
	return nil
}
