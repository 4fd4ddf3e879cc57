package viewcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rankfoundry/shopseo/pkg/billing"
	"github.com/rankfoundry/shopseo/pkg/cache"
	"github.com/rankfoundry/shopseo/pkg/metrics"
)

// Memory caches encoded views in an in-process LRU.
type Memory struct {
	lru          *cache.LRU[string, memoryEntry]
	unsettledTTL time.Duration
	now          func() time.Time
}

// memoryEntry carries its own deadline for views shorter-lived than the LRU TTL.
type memoryEntry struct {
	raw       []byte
	expiresAt time.Time
}

var _ billing.ViewCache = (*Memory)(nil)

func NewMemory(capacity int, ttl time.Duration, opts ...Option) *Memory {
	s := newSettings(ttl, opts)
	return &Memory{
		lru:          cache.NewLRU[string, memoryEntry](capacity, ttl),
		unsettledTTL: s.unsettledTTL,
		now:          time.Now,
	}
}

func (c *Memory) Get(_ context.Context, shop string) (*billing.Info, error) {
	entry, ok := c.lru.Get(shop)
	if ok && !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		c.lru.Remove(shop)
		ok = false
	}
	if !ok {
		metrics.IncCacheRequest("memory", "miss")
		return nil, billing.ErrCacheMiss
	}
	var info billing.Info
	if err := json.Unmarshal(entry.raw, &info); err != nil {
		c.lru.Remove(shop)
		metrics.IncCacheRequest("memory", "miss")
		return nil, billing.ErrCacheMiss
	}
	metrics.IncCacheRequest("memory", "hit")
	return &info, nil
}

func (c *Memory) Set(_ context.Context, shop string, info *billing.Info) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("viewcache: encode: %w", err)
	}
	entry := memoryEntry{raw: raw}
	if info.Unsettled() {
		entry.expiresAt = c.now().Add(c.unsettledTTL)
	}
	c.lru.Put(shop, entry)
	return nil
}

func (c *Memory) Invalidate(_ context.Context, shop string) error {
	c.lru.Remove(shop)
	return nil
}

// Noop never caches.
type Noop struct{}

var _ billing.ViewCache = Noop{}

func (Noop) Get(context.Context, string) (*billing.Info, error) { return nil, billing.ErrCacheMiss }
func (Noop) Set(context.Context, string, *billing.Info) error   { return nil }
func (Noop) Invalidate(context.Context, string) error           { return nil }
