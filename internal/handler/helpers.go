package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/middleware"
	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/service"
	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/utils"
)

func parseIDParam(c *fiber.Ctx, key string) (uint, error) {
	value := strings.TrimSpace(c.Params(key))
	parsed, err := strconv.ParseUint(value, 10, 32)
	if err != nil || parsed == 0 {
		return 0, errors.New(key + " must be a positive integer")
	}
	return uint(parsed), nil
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func validationDetails(err error) map[string]string {
	details := map[string]string{}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, fieldErr := range validationErrors {
			details[strings.ToLower(fieldErr.Field())] = fieldErr.Tag()
		}
	}
	return details
}

// sendServiceError maps orchestrator errors onto HTTP responses.
func sendServiceError(c *fiber.Ctx, logger *zerolog.Logger, err error, message string) error {
	switch {
	case errors.Is(err, service.ErrStepNotFound):
		return utils.SendErrorWithCode(c, fiber.StatusNotFound, "step not found", "step_not_found", nil)
	case errors.Is(err, service.ErrDataUnavailable):
		logger.Error().Err(err).Msg(message)
		return utils.SendErrorWithCode(c, fiber.StatusServiceUnavailable, "metrics data unavailable", "data_unavailable", nil)
	default:
		logger.Error().Err(err).Msg(message)
		return utils.SendErrorWithCode(c, fiber.StatusInternalServerError, message, "internal_error", nil)
	}
}
