package main

import (
	"context"

	"github.com/collab-market/backend/internal/config"
	"github.com/collab-market/backend/internal/db"
	"github.com/collab-market/backend/internal/events"
	"github.com/collab-market/backend/internal/ratelimit"
	"go.uber.org/zap"
)

// backplane is the shared state behind fan-out, rate limits and view dedup.
type backplane struct {
	publisher   events.Publisher
	subscriber  events.Subscriber
	messageRate ratelimit.Limiter
	apiRate     ratelimit.Limiter
	views       ratelimit.Deduper
	close       func()
}

// newBackplane uses Redis when REDIS_URL is set. Without it everything stays in-process,
// which only holds for a single API instance.
func newBackplane(ctx context.Context, cfg *config.Config, log *zap.Logger) (*backplane, error) {
	if cfg.RedisURL == "" {
		log.Warn("REDIS_URL is not set, events and rate limits are local to this instance")
		bus := events.NewLocalBus()
		return &backplane{
			publisher:   bus,
			subscriber:  bus,
			messageRate: ratelimit.NewMemoryWindow(cfg.MessageRateLimit, cfg.MessageRateWindow),
			apiRate:     ratelimit.NewMemoryWindow(cfg.APIRateLimit, cfg.APIRateWindow),
			views:       ratelimit.NewMemoryDeduper(cfg.ViewDedupWindow),
			close:       func() {},
		}, nil
	}

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		return nil, err
	}
	return &backplane{
		publisher:   events.NewRedisPublisher(rdb, log),
		subscriber:  events.NewRedisSubscriber(rdb, log),
		messageRate: ratelimit.NewRedisWindow(rdb, "rate:", cfg.MessageRateLimit, cfg.MessageRateWindow),
		apiRate:     ratelimit.NewRedisWindow(rdb, "rate:", cfg.APIRateLimit, cfg.APIRateWindow),
		views:       ratelimit.NewRedisDeduper(rdb, "views:", cfg.ViewDedupWindow),
		close:       func() { _ = rdb.Close() },
	}, nil
}
