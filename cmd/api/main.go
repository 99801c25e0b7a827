package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/collab-market/backend/internal/config"
	"github.com/collab-market/backend/internal/db"
	apphttp "github.com/collab-market/backend/internal/http"
	"github.com/collab-market/backend/internal/http/handlers"
	"github.com/collab-market/backend/internal/matching"
	"github.com/collab-market/backend/internal/messaging"
	"github.com/collab-market/backend/internal/moderation"
	"github.com/collab-market/backend/internal/queue"
	"github.com/collab-market/backend/internal/repositories"
	"github.com/collab-market/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, db.Migrations(cfg.MigrationsDir), log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Events, rate limits and view dedup
	bp, err := newBackplane(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer bp.close()

	// Review queue
	var review queue.ReviewQueue = queue.LogOnlyQueue{Log: log}
	if cfg.AMQPURL != "" {
		q, err := queue.Dial(cfg.AMQPURL, cfg.ReviewQueue, cfg.ReviewDecisionQueue, log)
		if err != nil {
			log.Fatal("failed to connect to amqp", zap.Error(err))
		}
		defer q.Close()
		review = q
	} else {
		log.Warn("AMQP_URL is not set, flagged content is only logged")
	}

	// Repositories
	campaignRepo := repositories.NewCampaignRepo(pool)
	cardRepo := repositories.NewCardRepo(pool)
	offerRepo := repositories.NewOfferRepo(pool)
	messageRepo := repositories.NewMessageRepo(pool)
	profileRepo := repositories.NewProfileRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	hub := messaging.NewHub(cfg.WSBufferEvents, log)
	if err := hub.Start(ctx, bp.subscriber); err != nil {
		log.Fatal("failed to subscribe to event streams", zap.Error(err))
	}

	// Services
	gate := moderation.New(cfg.ModerationURL, log)
	engine := matching.NewEngine(campaignRepo, cardRepo, bp.views, cfg.MatchLimit, log)

	messageService := services.NewMessageService(
		messageRepo, profileRepo,
		bp.messageRate,
		bp.publisher,
		messaging.DeliveryConfig{
			InitialInterval: cfg.DeliveryRetryInitial,
			MaxElapsed:      cfg.DeliveryRetryMaxElapse,
		},
		cfg.RateLimitWarningTTL, log,
	)
	offerService := services.NewOfferService(offerRepo, campaignRepo, auditRepo, messageService, gate, review, bp.views, bp.publisher, log)
	campaignService := services.NewCampaignService(campaignRepo, auditRepo, engine, gate, review, log)

	go messageService.Run(ctx)

	// Handlers
	h := apphttp.Handlers{
		Campaigns: handlers.NewCampaignHandler(campaignService, log),
		Offers:    handlers.NewOfferHandler(offerService, log),
		Messages:  handlers.NewMessageHandler(messageService, log),
		WS:        handlers.NewWSHandler(cfg, hub, messageService, profileRepo, log),
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, bp.apiRate, h)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...", zap.Int("undelivered_messages", messageService.Pending()))
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
