package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/dto"
	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/service"
	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/utils"
)

// MetricsHandler exposes the learning analytics endpoints.
type MetricsHandler struct {
	service          service.MetricsService
	validator        *validator.Validate
	recomputeLimiter fiber.Handler
	logger           zerolog.Logger
}

// NewMetricsHandler creates a new handler instance. recomputeLimiter guards POST /recompute and may be nil.
func NewMetricsHandler(service service.MetricsService, validate *validator.Validate, recomputeLimiter fiber.Handler, logger zerolog.Logger) *MetricsHandler {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	if recomputeLimiter == nil {
		recomputeLimiter = func(c *fiber.Ctx) error { return c.Next() }
	}
	return &MetricsHandler{
		service:          service,
		validator:        validate,
		recomputeLimiter: recomputeLimiter,
		logger:           logger.With().Str("component", "metrics_handler").Logger(),
	}
}

// Register attaches the metrics routes.
func (h *MetricsHandler) Register(router fiber.Router) {
	router.Get("/courses", h.listCourses)
	router.Get("/steps/structure", h.stepStructure)
	router.Get("/step/:id/all", h.stepDetail)
	router.Get("/course/completion_rates", h.completionRates)
	router.Get("/teachers", h.teachers)
	router.Post("/recompute", h.recomputeLimiter, h.recompute)
}

func (h *MetricsHandler) listCourses(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	courses, err := h.service.Courses(c.UserContext())
	if err != nil {
		return sendServiceError(c, logger, err, "failed to list courses")
	}

	return utils.SendSuccess(c, "courses retrieved", courses)
}

func (h *MetricsHandler) stepStructure(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	var query dto.StepMetricsQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.SendErrorWithCode(c, fiber.StatusBadRequest, "invalid query parameters", "validation_failed", nil)
	}
	if err := h.validator.Struct(query); err != nil {
		return utils.SendErrorWithCode(c, fiber.StatusBadRequest, "invalid query parameters", "validation_failed", validationDetails(err))
	}

	metrics, err := h.service.StepMetrics(c.UserContext(), query.CourseID)
	if err != nil {
		return sendServiceError(c, logger, err, "failed to compute step metrics")
	}

	return utils.SendSuccess(c, "step metrics retrieved", metrics)
}

func (h *MetricsHandler) stepDetail(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	stepID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendErrorWithCode(c, fiber.StatusBadRequest, err.Error(), "validation_failed", nil)
	}

	detail, err := h.service.StepMetricsByID(c.UserContext(), stepID)
	if err != nil {
		return sendServiceError(c, logger, err, "failed to compute step metrics")
	}

	return utils.SendSuccess(c, "step metrics retrieved", detail)
}

func (h *MetricsHandler) completionRates(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	var query dto.CourseCompletionQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.SendErrorWithCode(c, fiber.StatusBadRequest, "invalid query parameters", "validation_failed", nil)
	}
	if err := h.validator.Struct(query); err != nil {
		return utils.SendErrorWithCode(c, fiber.StatusBadRequest, "invalid query parameters", "validation_failed", validationDetails(err))
	}

	if query.CourseID != nil {
		completion, err := h.service.CourseCompletion(c.UserContext(), *query.CourseID)
		if err != nil {
			return sendServiceError(c, logger, err, "failed to compute course completion")
		}
		return utils.SendSuccess(c, "course completion retrieved", completion)
	}

	completions, err := h.service.CourseCompletions(c.UserContext())
	if err != nil {
		return sendServiceError(c, logger, err, "failed to compute course completion")
	}
	return utils.SendSuccess(c, "course completion retrieved", completions)
}

func (h *MetricsHandler) teachers(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	roster, err := h.service.Teachers(c.UserContext())
	if err != nil {
		return sendServiceError(c, logger, err, "failed to load teachers")
	}

	return utils.SendSuccess(c, "teachers retrieved", roster)
}

func (h *MetricsHandler) recompute(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	result, err := h.service.Recompute(c.UserContext())
	if err != nil {
		return sendServiceError(c, logger, err, "failed to recompute metrics")
	}

	logger.Info().Int("steps", result.Steps).Int("courses", result.Courses).Msg("metrics recomputed on request")
	return utils.SendSuccess(c, "metrics recomputed", result)
}
