package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/config"
	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/handler"
	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/service"
)

func TestRegisterMountsRoutes(t *testing.T) {
	cfg := config.Config{AppName: "Course Analytics API", AppEnv: "test"}
	svc := service.NewMetricsService(nil, nil, nil, service.MetricsServiceConfig{}, zerolog.Nop())

	app := fiber.New()
	Register(app, cfg, Dependencies{MetricsHandler: handler.NewMetricsHandler(svc, nil, nil, zerolog.Nop())})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, cfg.AppName, resp.Header.Get("X-Application"))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/metrics/step/abc/all", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/metrics/unknown", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
