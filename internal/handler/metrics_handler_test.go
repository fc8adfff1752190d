package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/analytics"
	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/dto"
	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/handler"
	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/middleware"
	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/service"
)

type stubMetricsService struct {
	err            error
	lastCourseID   *uint
	lastStepID     uint
	completionCall string
	recomputes     int
}

func (s *stubMetricsService) Courses(context.Context) (dto.CourseListResponse, error) {
	if s.err != nil {
		return dto.CourseListResponse{}, s.err
	}
	return dto.CourseListResponse{Courses: []dto.CourseSummary{{ID: 1, Title: "Go", StepCount: 3}}}, nil
}

func (s *stubMetricsService) StepMetrics(_ context.Context, courseID *uint) (dto.StepMetricsResponse, error) {
	s.lastCourseID = courseID
	if s.err != nil {
		return dto.StepMetricsResponse{}, s.err
	}
	scope := dto.ScopeGlobal
	if courseID != nil {
		scope = dto.ScopeCourse
	}
	return dto.StepMetricsResponse{
		Scope:    scope,
		CourseID: courseID,
		Steps:    []analytics.StepMetrics{{StepID: 5, CourseID: 1, SuccessRate: 0.5}},
		Errors:   map[string]string{"2": "computation panicked: index out of range"},
	}, nil
}

func (s *stubMetricsService) StepMetricsByID(_ context.Context, stepID uint) (dto.StepDetailResponse, error) {
	s.lastStepID = stepID
	if s.err != nil {
		return dto.StepDetailResponse{}, s.err
	}
	return dto.StepDetailResponse{Step: analytics.StepMetrics{StepID: stepID}, GeneratedAt: time.Now()}, nil
}

func (s *stubMetricsService) CourseCompletion(_ context.Context, courseID uint) (dto.CourseCompletionResponse, error) {
	s.completionCall = fmt.Sprintf("course:%d", courseID)
	if s.err != nil {
		return dto.CourseCompletionResponse{}, s.err
	}
	return dto.CourseCompletionResponse{CourseCompletion: analytics.CourseCompletion{CourseID: courseID, TotalLearners: 4, Status: analytics.CompletionStatusOK}}, nil
}

func (s *stubMetricsService) CourseCompletions(context.Context) (dto.CourseCompletionBatchResponse, error) {
	s.completionCall = "all"
	if s.err != nil {
		return dto.CourseCompletionBatchResponse{}, s.err
	}
	return dto.CourseCompletionBatchResponse{Courses: map[string]analytics.CourseCompletion{"1": {CourseID: 1, Status: analytics.CompletionStatusNoLearners}}}, nil
}

func (s *stubMetricsService) Teachers(context.Context) (dto.TeacherRosterResponse, error) {
	if s.err != nil {
		return dto.TeacherRosterResponse{}, s.err
	}
	return dto.TeacherRosterResponse{Teachers: []analytics.Account{{ID: 3, LastName: "Orlov", FirstName: "Ivan"}}}, nil
}

func (s *stubMetricsService) Recompute(context.Context) (dto.RecomputeResponse, error) {
	s.recomputes++
	if s.err != nil {
		return dto.RecomputeResponse{}, s.err
	}
	return dto.RecomputeResponse{Steps: 10, Courses: 2}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

func newMetricsApp(svc service.MetricsService, limiter fiber.Handler) *fiber.App {
	app := fiber.New()
	app.Use(middleware.CorrelationID())
	handler.NewMetricsHandler(svc, nil, limiter, zerolog.Nop()).Register(app.Group("/api/metrics"))
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, target string) (*http.Response, envelope) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, target, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp, payload
}

func TestMetricsHandlerStepStructure(t *testing.T) {
	svc := &stubMetricsService{}
	app := newMetricsApp(svc, nil)

	resp, payload := doRequest(t, app, http.MethodGet, "/api/metrics/steps/structure")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.True(t, payload.Success)
	require.Nil(t, svc.lastCourseID)

	var data dto.StepMetricsResponse
	require.NoError(t, json.Unmarshal(payload.Data, &data))
	require.Equal(t, dto.ScopeGlobal, data.Scope)
	require.Len(t, data.Steps, 1)
	require.Equal(t, "computation panicked: index out of range", data.Errors["2"])

	resp, _ = doRequest(t, app, http.MethodGet, "/api/metrics/steps/structure?course_id=7")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NotNil(t, svc.lastCourseID)
	require.Equal(t, uint(7), *svc.lastCourseID)
}

func TestMetricsHandlerRejectsInvalidCourseID(t *testing.T) {
	svc := &stubMetricsService{}
	app := newMetricsApp(svc, nil)

	for _, target := range []string{
		"/api/metrics/steps/structure?course_id=abc",
		"/api/metrics/steps/structure?course_id=0",
		"/api/metrics/course/completion_rates?course_id=-3",
	} {
		resp, payload := doRequest(t, app, http.MethodGet, target)
		require.Equal(t, fiber.StatusBadRequest, resp.StatusCode, target)
		require.False(t, payload.Success)
		require.Equal(t, "validation_failed", payload.Error.Code)
	}
	require.Empty(t, svc.completionCall)
}

func TestMetricsHandlerStepDetail(t *testing.T) {
	svc := &stubMetricsService{}
	app := newMetricsApp(svc, nil)

	resp, payload := doRequest(t, app, http.MethodGet, "/api/metrics/step/42/all")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, uint(42), svc.lastStepID)

	var data dto.StepDetailResponse
	require.NoError(t, json.Unmarshal(payload.Data, &data))
	require.Equal(t, uint(42), data.Step.StepID)

	resp, payload = doRequest(t, app, http.MethodGet, "/api/metrics/step/zero/all")
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "validation_failed", payload.Error.Code)
}

func TestMetricsHandlerMapsServiceErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{service.ErrStepNotFound, fiber.StatusNotFound, "step_not_found"},
		{fmt.Errorf("%w: list_steps_failed", service.ErrDataUnavailable), fiber.StatusServiceUnavailable, "data_unavailable"},
		{errors.New("boom"), fiber.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		app := newMetricsApp(&stubMetricsService{err: tc.err}, nil)
		resp, payload := doRequest(t, app, http.MethodGet, "/api/metrics/step/1/all")
		require.Equal(t, tc.status, resp.StatusCode)
		require.False(t, payload.Success)
		require.Equal(t, tc.code, payload.Error.Code)
	}
}

func TestMetricsHandlerCompletionRates(t *testing.T) {
	svc := &stubMetricsService{}
	app := newMetricsApp(svc, nil)

	resp, payload := doRequest(t, app, http.MethodGet, "/api/metrics/course/completion_rates?course_id=3")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "course:3", svc.completionCall)

	var single dto.CourseCompletionResponse
	require.NoError(t, json.Unmarshal(payload.Data, &single))
	require.Equal(t, uint(3), single.CourseID)
	require.Equal(t, 4, single.TotalLearners)

	resp, payload = doRequest(t, app, http.MethodGet, "/api/metrics/course/completion_rates")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "all", svc.completionCall)

	var batch dto.CourseCompletionBatchResponse
	require.NoError(t, json.Unmarshal(payload.Data, &batch))
	require.Equal(t, analytics.CompletionStatusNoLearners, batch.Courses["1"].Status)
}

func TestMetricsHandlerTeachersAndCourses(t *testing.T) {
	app := newMetricsApp(&stubMetricsService{}, nil)

	resp, payload := doRequest(t, app, http.MethodGet, "/api/metrics/teachers")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var roster dto.TeacherRosterResponse
	require.NoError(t, json.Unmarshal(payload.Data, &roster))
	require.Equal(t, "Orlov", roster.Teachers[0].LastName)

	resp, payload = doRequest(t, app, http.MethodGet, "/api/metrics/courses")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var courses dto.CourseListResponse
	require.NoError(t, json.Unmarshal(payload.Data, &courses))
	require.Equal(t, 3, courses.Courses[0].StepCount)
}

func TestMetricsHandlerRecomputeIsRateLimited(t *testing.T) {
	svc := &stubMetricsService{}
	app := newMetricsApp(svc, middleware.RateLimit("recompute", 1, time.Minute))

	resp, payload := doRequest(t, app, http.MethodPost, "/api/metrics/recompute")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "metrics recomputed", payload.Message)

	resp, payload = doRequest(t, app, http.MethodPost, "/api/metrics/recompute")
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "rate_limited", payload.Error.Code)
	require.Equal(t, 1, svc.recomputes)
}
