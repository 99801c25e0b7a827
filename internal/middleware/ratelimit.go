package middleware

import (
	"strconv"

	"github.com/collab-market/backend/internal/ratelimit"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// RateLimitMiddleware limits requests per client IP and path. Limiter errors let the request through.
func RateLimitMiddleware(limiter ratelimit.Limiter, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := "rl:" + c.Path() + ":" + c.IP()

		d, err := limiter.Allow(c.UserContext(), key)
		if err != nil {
			log.Debug("rate limiter unavailable", zap.Error(err))
			return c.Next() // fail open
		}

		if !d.Allowed {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(d.RetryAfter.Seconds())+1))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":          "rate limit exceeded",
				"retry_after_ms": d.RetryAfter.Milliseconds(),
			})
		}

		return c.Next()
	}
}
