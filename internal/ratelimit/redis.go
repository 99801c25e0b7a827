package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisWindow struct {
	rdb    *redis.Client
	prefix string
	limit  int
	window time.Duration
}

func NewRedisWindow(rdb *redis.Client, prefix string, limit int, window time.Duration) *RedisWindow {
	return &RedisWindow{rdb: rdb, prefix: prefix, limit: limit, window: window}
}

func (w *RedisWindow) Limit() int            { return w.limit }
func (w *RedisWindow) Window() time.Duration { return w.window }

func (w *RedisWindow) Allow(ctx context.Context, key string) (Decision, error) {
	k := w.prefix + key

	pipe := w.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, w.window)
	ttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, err
	}

	count := int(incr.Val())
	d := Decision{Allowed: count <= w.limit, Count: count, Limit: w.limit}
	if !d.Allowed {
		d.RetryAfter = ttl.Val()
		if d.RetryAfter <= 0 {
			d.RetryAfter = w.window
		}
	}
	return d, nil
}

type RedisDeduper struct {
	rdb    *redis.Client
	prefix string
	window time.Duration
}

func NewRedisDeduper(rdb *redis.Client, prefix string, window time.Duration) *RedisDeduper {
	return &RedisDeduper{rdb: rdb, prefix: prefix, window: window}
}

func (d *RedisDeduper) FirstSeen(ctx context.Context, key string) (bool, error) {
	return d.rdb.SetNX(ctx, d.prefix+key, 1, d.window).Result()
}
