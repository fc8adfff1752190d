package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/config"
	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/handler"
	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	MetricsHandler *handler.MetricsHandler
	HealthChecks   []handler.DependencyCheck
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthChecks...))

	app.Get("/metrics", observability.MetricsHandler())

	if deps.MetricsHandler != nil {
		metrics := app.Group("/api/metrics", func(c *fiber.Ctx) error {
			c.Set("X-Application", cfg.AppName)
			return c.Next()
		})
		deps.MetricsHandler.Register(metrics)
	}
}
