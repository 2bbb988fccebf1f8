package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/teachlyze/tamanduai-api/internal/config"
	"github.com/teachlyze/tamanduai-api/internal/handler"
	"github.com/teachlyze/tamanduai-api/internal/middleware"
	"github.com/teachlyze/tamanduai-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	PlagiarismHandler   *handler.PlagiarismHandler
	NotificationHandler *handler.NotificationHandler
	JWTMiddleware       fiber.Handler
	CheckRateLimit      fiber.Handler
	HealthProbes        map[string]handler.HealthProbe
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	app.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = passThrough
	}
	rateLimit := deps.CheckRateLimit
	if rateLimit == nil {
		rateLimit = passThrough
	}

	if deps.PlagiarismHandler != nil {
		app.Post("/plagiarism-check",
			jwtMiddleware,
			rateLimit,
			middleware.WithAuth(deps.PlagiarismHandler.Check, middleware.AuthOptions{}),
		)

		reports := app.Group("/api/v2/plagiarism", jwtMiddleware, middleware.RequireRole(middleware.AuthRoleTeacher, middleware.AuthRoleAdmin))
		deps.PlagiarismHandler.Register(reports)
	}

	if deps.NotificationHandler != nil {
		notifications := app.Group("/api/v2/notifications", jwtMiddleware, middleware.WithAuth(passThrough, middleware.AuthOptions{}))
		deps.NotificationHandler.Register(notifications)
	}
}

func passThrough(c *fiber.Ctx) error {
	return c.Next()
}
