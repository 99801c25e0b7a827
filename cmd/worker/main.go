package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/collab-market/backend/internal/config"
	"github.com/collab-market/backend/internal/db"
	"github.com/collab-market/backend/internal/events"
	"github.com/collab-market/backend/internal/messaging"
	"github.com/collab-market/backend/internal/moderation"
	"github.com/collab-market/backend/internal/queue"
	"github.com/collab-market/backend/internal/ratelimit"
	"github.com/collab-market/backend/internal/repositories"
	"github.com/collab-market/backend/internal/services"
	"go.uber.org/zap"
)

// The worker applies reviewer decisions from the moderation queue.
func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	if cfg.AMQPURL == "" {
		log.Fatal("AMQP_URL is required for the worker")
	}
	if cfg.RedisURL == "" {
		log.Fatal("REDIS_URL is required for the worker")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	review, err := queue.Dial(cfg.AMQPURL, cfg.ReviewQueue, cfg.ReviewDecisionQueue, log)
	if err != nil {
		log.Fatal("failed to connect to amqp", zap.Error(err))
	}
	defer review.Close()

	// Repos
	campaignRepo := repositories.NewCampaignRepo(pool)
	offerRepo := repositories.NewOfferRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	gate := moderation.New(cfg.ModerationURL, log)
	views := ratelimit.NewRedisDeduper(rdb, "views:", cfg.ViewDedupWindow)
	messageService := services.NewMessageService(
		repositories.NewMessageRepo(pool), repositories.NewProfileRepo(pool),
		ratelimit.NewRedisWindow(rdb, "rate:", cfg.MessageRateLimit, cfg.MessageRateWindow),
		publisher,
		messaging.DeliveryConfig{InitialInterval: cfg.DeliveryRetryInitial, MaxElapsed: cfg.DeliveryRetryMaxElapse},
		cfg.RateLimitWarningTTL, log,
	)
	offerService := services.NewOfferService(offerRepo, campaignRepo, auditRepo, messageService, gate, review, views, publisher, log)
	campaignService := services.NewCampaignService(campaignRepo, auditRepo, nil, gate, review, log)

	go messageService.Run(ctx)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down worker")
		cancel()
	}()

	log.Info("worker started", zap.String("queue", cfg.ReviewDecisionQueue))

	handle := services.ModerationHandler(campaignService, offerService)
	if err := review.ConsumeDecisions(ctx, handle); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("decision consumer stopped", zap.Error(err))
	}
	log.Info("worker stopped")
}
