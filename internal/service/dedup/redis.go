package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "trade-alert:dedup:"

// RedisCache shares the dedup window between several processes. SET NX PX
// gives the atomic check-and-record; expiry is enforced by the Redis clock.
type RedisCache struct {
	rdb     redis.UniversalClient
	horizon time.Duration
	prefix  string
}

func NewRedisCache(rdb redis.UniversalClient, horizon time.Duration, prefix string) *RedisCache {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisCache{
		rdb:     rdb,
		horizon: horizon,
		prefix:  prefix,
	}
}

func (r *RedisCache) Admit(ctx context.Context, key string, now time.Time) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, r.prefix+key, now.UnixMilli(), r.horizon).Result()
	if err != nil {
		return false, fmt.Errorf("redis dedup: setnx %s: %w", key, err)
	}
	return ok, nil
}

// Fallback uses Primary and falls back to Secondary when Primary errors,
// so a Redis outage degrades to per-process dedup instead of dropping or
// duplicating every alert.
type Fallback struct {
	Primary   Deduper
	Secondary Deduper
}

func (f Fallback) Admit(ctx context.Context, key string, now time.Time) (bool, error) {
	ok, err := f.Primary.Admit(ctx, key, now)
	if err == nil {
		return ok, nil
	}
	slog.Warn("primary dedup failed, fall back to local cache", "key", key, "error", err)
	return f.Secondary.Admit(ctx, key, now)
}

var (
	_ Deduper = (*RedisCache)(nil)
	_ Deduper = Fallback{}
)
