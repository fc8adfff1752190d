package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/config"
	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status       string            `json:"status"`
	Timestamp    time.Time         `json:"timestamp"`
	Service      string            `json:"service"`
	Environment  string            `json:"environment"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// DependencyCheck probes one backing service.
type DependencyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthCheck returns a handler that reports application health information.
// Any failing dependency turns the status into "degraded" with HTTP 503.
func HealthCheck(cfg config.Config, checks ...DependencyCheck) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
		}

		if len(checks) > 0 {
			ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			defer cancel()

			payload.Dependencies = make(map[string]string, len(checks))
			for _, check := range checks {
				if err := check.Check(ctx); err != nil {
					payload.Dependencies[check.Name] = "down"
					payload.Status = "degraded"
					continue
				}
				payload.Dependencies[check.Name] = "up"
			}
		}

		if payload.Status != "ok" {
			return utils.SendErrorWithCode(c, fiber.StatusServiceUnavailable, "service degraded", "dependency_unavailable", payload)
		}
		return utils.SendSuccess(c, "service healthy", payload)
	}
}
