package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/teachlyze/tamanduai-api/internal/utils"
)

// RateLimitConfig configures RateLimit. A nil Storage keeps counters in process memory.
type RateLimitConfig struct {
	Identifier string
	Max        int
	Window     time.Duration
	Storage    fiber.Storage
}

// RateLimit creates a per-user rate limiter. Anonymous callers are keyed by IP.
func RateLimit(cfg RateLimitConfig) fiber.Handler {
	if cfg.Max <= 0 {
		cfg.Max = 10
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}

	return limiter.New(limiter.Config{
		Max:        cfg.Max,
		Expiration: cfg.Window,
		Storage:    cfg.Storage,
		KeyGenerator: func(c *fiber.Ctx) string {
			key := authenticatedUser(c)
			if key == "" {
				key = c.IP()
			}
			return fmt.Sprintf("%s:%s", cfg.Identifier, key)
		},
		LimitReached: func(c *fiber.Ctx) error {
			return utils.Fail(c, fiber.StatusTooManyRequests, "rate limit exceeded", fiber.Map{
				"limit":       cfg.Max,
				"retry_after": c.GetRespHeader(fiber.HeaderRetryAfter),
			})
		},
	})
}
