// Package cache is the Redis day-view cache. Entries hold generated slots
// with their booked flags only; past-marking is clock-dependent and is
// applied by the resolver after every fetch, so a cached day never goes
// stale as time passes.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/slotline/slotline/services/scheduling-service/internal/booking"
)

// SlotCache is a read-through cache keyed by provider and date. Every miss
// or marshalling hiccup degrades to the database; the cache never fails a
// request.
type SlotCache struct {
	rdb    *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

func New(rdb *redis.Client, logger *slog.Logger, ttl time.Duration) *SlotCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SlotCache{rdb: rdb, logger: logger, ttl: ttl}
}

func key(providerID, date string) string {
	return "slots:" + providerID + ":" + date
}

func (c *SlotCache) GetDay(ctx context.Context, providerID, date string) ([]booking.SlotView, bool) {
	raw, err := c.rdb.Get(ctx, key(providerID, date)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WarnContext(ctx, "slot cache read failed", "err", err)
		}
		return nil, false
	}
	var views []booking.SlotView
	if err := json.Unmarshal(raw, &views); err != nil {
		c.logger.WarnContext(ctx, "slot cache entry corrupt", "key", key(providerID, date), "err", err)
		return nil, false
	}
	return views, true
}

func (c *SlotCache) SetDay(ctx context.Context, providerID, date string, views []booking.SlotView) {
	raw, err := json.Marshal(views)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key(providerID, date), raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "slot cache write failed", "err", err)
	}
}

func (c *SlotCache) InvalidateDay(ctx context.Context, providerID, date string) {
	if err := c.rdb.Del(ctx, key(providerID, date)).Err(); err != nil {
		c.logger.WarnContext(ctx, "slot cache invalidate failed", "err", err)
	}
}
