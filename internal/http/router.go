package http

import (
	"github.com/collab-market/backend/internal/config"
	"github.com/collab-market/backend/internal/http/handlers"
	"github.com/collab-market/backend/internal/middleware"
	"github.com/collab-market/backend/internal/ratelimit"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

type Handlers struct {
	Campaigns *handlers.CampaignHandler
	Offers    *handlers.OfferHandler
	Messages  *handlers.MessageHandler
	WS        *handlers.WSHandler
}

func SetupRouter(app *fiber.App, cfg *config.Config, log *zap.Logger, apiLimiter ratelimit.Limiter, h Handlers) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(apiLimiter, log))

	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	// Campaigns
	protected.Post("/campaigns", h.Campaigns.CreateCampaign)
	protected.Get("/campaigns", h.Campaigns.ListCampaigns)
	protected.Get("/campaigns/:id", h.Campaigns.GetCampaign)
	protected.Put("/campaigns/:id", h.Campaigns.UpdateCampaign)
	protected.Delete("/campaigns/:id", h.Campaigns.DeleteCampaign)
	protected.Post("/campaigns/:id/status", h.Campaigns.ChangeStatus)
	protected.Get("/campaigns/:id/matches", h.Campaigns.Matches)
	protected.Post("/campaigns/:id/view", h.Campaigns.RecordView)

	// Offers and applications
	protected.Post("/offers", h.Offers.CreateOffer)
	protected.Get("/offers", h.Offers.ListOffers)
	protected.Get("/offers/:id", h.Offers.GetOffer)
	protected.Post("/offers/:id/respond", h.Offers.Respond)
	protected.Post("/offers/:id/revise", h.Offers.Revise)
	protected.Post("/offers/:id/withdraw", h.Offers.Withdraw)
	protected.Post("/offers/:id/complete", h.Offers.Complete)
	protected.Post("/offers/:id/view", h.Offers.RecordView)
	protected.Get("/offers/:id/events", h.Offers.GetEvents)

	// Messaging
	protected.Post("/messages", h.Messages.SendMessage)
	protected.Get("/messages/:userId", h.Messages.History)
	protected.Get("/conversations", h.Messages.Conversations)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(h.WS.HandleWS))
}
