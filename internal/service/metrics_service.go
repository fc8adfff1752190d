package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/analytics"
	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/cache"
	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/dto"
	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/observability"
	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/repository"
)

var (
	// ErrStepNotFound is returned when the requested step does not exist.
	ErrStepNotFound = errors.New("step not found")
	// ErrDataUnavailable is returned when the data that scopes a computation cannot be read.
	ErrDataUnavailable = errors.New("metrics data unavailable")
)

const (
	cachePrefix            = "metrics:"
	cacheKeyStepsAll       = "metrics:steps:all"
	cacheKeyStepsCourse    = "metrics:steps:course:%d"
	cacheKeyCompletion     = "metrics:completion:course:%d"
	cacheKeyCompletionsAll = "metrics:completion:all"
	cacheKeyTeachers       = "metrics:teachers"
	cacheKeyCourses        = "metrics:courses"
)

// EventPublisher delivers recompute notifications. *nats.Conn satisfies it.
type EventPublisher interface {
	Publish(subject string, data []byte) error
}

// MetricsServiceConfig tunes the orchestrator.
type MetricsServiceConfig struct {
	Workers           int
	CompletionTimeCap time.Duration
	EventSubject      string
}

// MetricsService orchestrates metric computation, caching and partial failures.
type MetricsService interface {
	Courses(ctx context.Context) (dto.CourseListResponse, error)
	StepMetrics(ctx context.Context, courseID *uint) (dto.StepMetricsResponse, error)
	StepMetricsByID(ctx context.Context, stepID uint) (dto.StepDetailResponse, error)
	CourseCompletion(ctx context.Context, courseID uint) (dto.CourseCompletionResponse, error)
	CourseCompletions(ctx context.Context) (dto.CourseCompletionBatchResponse, error)
	Teachers(ctx context.Context) (dto.TeacherRosterResponse, error)
	Recompute(ctx context.Context) (dto.RecomputeResponse, error)
}

type metricsService struct {
	repo      repository.MetricsRepository
	cache     cache.Store
	publisher EventPublisher
	cfg       MetricsServiceConfig
	tracer    trace.Tracer
	logger    zerolog.Logger
	now       func() time.Time
}

// NewMetricsService constructs the metrics orchestrator. store and publisher may be nil.
func NewMetricsService(repo repository.MetricsRepository, store cache.Store, publisher EventPublisher, cfg MetricsServiceConfig, logger zerolog.Logger) MetricsService {
	if store == nil {
		store = cache.Noop{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.EventSubject == "" {
		cfg.EventSubject = "metrics.recomputed"
	}

	return &metricsService{
		repo:      repo,
		cache:     store,
		publisher: publisher,
		cfg:       cfg,
		tracer:    otel.Tracer("github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/service/metrics"),
		logger:    logger.With().Str("component", "metrics_service").Logger(),
		now:       time.Now,
	}
}

func (s *metricsService) Courses(ctx context.Context) (dto.CourseListResponse, error) {
	ctx, span := s.tracer.Start(ctx, "metrics.courses")
	defer span.End()

	var response dto.CourseListResponse
	if s.fromCache(ctx, span, cacheKeyCourses, &response) {
		response.CacheHit = true
		observability.Computations().WithLabelValues("courses", "cached").Inc()
		return response, nil
	}

	start := s.now()
	courses, err := s.repo.ListCourses(ctx)
	if err != nil {
		return dto.CourseListResponse{}, s.unavailable(span, "courses", "list_courses_failed", err)
	}
	steps, err := s.repo.ListStepsOrdered(ctx, nil)
	if err != nil {
		return dto.CourseListResponse{}, s.unavailable(span, "courses", "list_steps_failed", err)
	}

	total := map[uint]int{}
	submittable := map[uint]int{}
	for _, step := range steps {
		total[step.CourseID]++
		if step.Submittable() {
			submittable[step.CourseID]++
		}
	}

	response = dto.CourseListResponse{
		Courses:     make([]dto.CourseSummary, 0, len(courses)),
		GeneratedAt: s.now().UTC(),
	}
	for _, course := range courses {
		response.Courses = append(response.Courses, dto.CourseSummary{
			ID:                   course.ID,
			Title:                course.Title,
			StepCount:            total[course.ID],
			SubmittableStepCount: submittable[course.ID],
		})
	}
	span.SetAttributes(attribute.Int("metrics.course_count", len(courses)))

	s.toCache(ctx, span, cacheKeyCourses, response)
	s.observe("courses", "ok", start)
	return response, nil
}

func (s *metricsService) StepMetrics(ctx context.Context, courseID *uint) (dto.StepMetricsResponse, error) {
	scope := dto.ScopeGlobal
	key := cacheKeyStepsAll
	if courseID != nil {
		scope = dto.ScopeCourse
		key = fmt.Sprintf(cacheKeyStepsCourse, *courseID)
	}

	ctx, span := s.tracer.Start(ctx, "metrics.steps", trace.WithAttributes(attribute.String("metrics.scope", scope)))
	defer span.End()

	var response dto.StepMetricsResponse
	if s.fromCache(ctx, span, key, &response) {
		response.CacheHit = true
		observability.Computations().WithLabelValues(scope, "cached").Inc()
		return response, nil
	}

	start := s.now()
	steps, err := s.repo.ListStepsOrdered(ctx, courseID)
	if err != nil {
		return dto.StepMetricsResponse{}, s.unavailable(span, scope, "list_steps_failed", err)
	}

	groups := groupByCourse(steps)
	results := make([][]analytics.StepMetrics, len(groups))
	errs := s.forEachCourse(ctx, len(groups), func(ctx context.Context, i int) error {
		metrics, err := s.computeCourseSteps(ctx, groups[i])
		if err != nil {
			return err
		}
		results[i] = metrics
		return nil
	})
	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "canceled")
		return dto.StepMetricsResponse{}, err
	}
	if err := readFailure(errs); err != nil {
		return dto.StepMetricsResponse{}, s.readFailed(span, scope, err)
	}

	response = dto.StepMetricsResponse{
		Scope:       scope,
		CourseID:    courseID,
		Steps:       make([]analytics.StepMetrics, 0, len(steps)),
		GeneratedAt: s.now().UTC(),
	}
	for i, group := range groups {
		if errs[i] != nil {
			response.Errors = addFailure(response.Errors, group[0].CourseID, errs[i])
			s.logger.Error().Err(errs[i]).Uint("course_id", group[0].CourseID).Msg("step metrics failed for course")
			continue
		}
		response.Steps = append(response.Steps, results[i]...)
	}

	span.SetAttributes(
		attribute.Int("metrics.course_count", len(groups)),
		attribute.Int("metrics.step_count", len(response.Steps)),
		attribute.Int("metrics.failed_courses", len(response.Errors)),
	)

	if len(response.Errors) == 0 {
		s.toCache(ctx, span, key, response)
		s.observe(scope, "ok", start)
	} else {
		s.observe(scope, "partial", start)
	}
	return response, nil
}

func (s *metricsService) StepMetricsByID(ctx context.Context, stepID uint) (dto.StepDetailResponse, error) {
	ctx, span := s.tracer.Start(ctx, "metrics.step", trace.WithAttributes(attribute.Int64("metrics.step_id", int64(stepID))))
	defer span.End()

	step, err := s.repo.FindStep(ctx, stepID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, "step_not_found")
		return dto.StepDetailResponse{}, ErrStepNotFound
	}
	if err != nil {
		return dto.StepDetailResponse{}, s.unavailable(span, dto.ScopeStep, "find_step_failed", err)
	}

	courseID := step.CourseID
	course, err := s.StepMetrics(ctx, &courseID)
	if err != nil {
		return dto.StepDetailResponse{}, err
	}
	if reason, failed := course.Errors[strconv.FormatUint(uint64(courseID), 10)]; failed {
		err := fmt.Errorf("course %d: %s", courseID, reason)
		span.RecordError(err)
		span.SetStatus(codes.Error, "course_failed")
		return dto.StepDetailResponse{}, err
	}

	for _, metrics := range course.Steps {
		if metrics.StepID == stepID {
			return dto.StepDetailResponse{Step: metrics, GeneratedAt: course.GeneratedAt, CacheHit: course.CacheHit}, nil
		}
	}
	return dto.StepDetailResponse{}, ErrStepNotFound
}

func (s *metricsService) CourseCompletion(ctx context.Context, courseID uint) (dto.CourseCompletionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "metrics.completion", trace.WithAttributes(attribute.Int64("metrics.course_id", int64(courseID))))
	defer span.End()

	key := fmt.Sprintf(cacheKeyCompletion, courseID)
	var response dto.CourseCompletionResponse
	if s.fromCache(ctx, span, key, &response) {
		response.CacheHit = true
		observability.Computations().WithLabelValues("completion", "cached").Inc()
		return response, nil
	}

	start := s.now()
	if _, err := s.repo.GetCourse(ctx, courseID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetAttributes(attribute.String("metrics.status", analytics.CompletionStatusCourseNotFound))
			return dto.CourseCompletionResponse{
				CourseCompletion: analytics.EmptyCompletion(courseID, analytics.CompletionStatusCourseNotFound),
				GeneratedAt:      s.now().UTC(),
			}, nil
		}
		return dto.CourseCompletionResponse{}, s.unavailable(span, "completion", "get_course_failed", err)
	}

	var completion analytics.CourseCompletion
	err := s.safeCompute(func() error {
		var err error
		completion, err = s.computeCompletion(ctx, courseID)
		return err
	})
	if errors.Is(err, ErrDataUnavailable) {
		return dto.CourseCompletionResponse{}, s.readFailed(span, "completion", fmt.Errorf("course %d completion: %w", courseID, err))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion_failed")
		s.observe("completion", "failed", start)
		return dto.CourseCompletionResponse{}, fmt.Errorf("course %d completion: %w", courseID, err)
	}

	response = dto.CourseCompletionResponse{CourseCompletion: completion, GeneratedAt: s.now().UTC()}
	span.SetAttributes(
		attribute.Int("metrics.learners", completion.TotalLearners),
		attribute.String("metrics.status", completion.Status),
	)
	s.toCache(ctx, span, key, response)
	s.observe("completion", "ok", start)
	return response, nil
}

func (s *metricsService) CourseCompletions(ctx context.Context) (dto.CourseCompletionBatchResponse, error) {
	ctx, span := s.tracer.Start(ctx, "metrics.completions")
	defer span.End()

	var response dto.CourseCompletionBatchResponse
	if s.fromCache(ctx, span, cacheKeyCompletionsAll, &response) {
		response.CacheHit = true
		observability.Computations().WithLabelValues("completions", "cached").Inc()
		return response, nil
	}

	start := s.now()
	courses, err := s.repo.ListCourses(ctx)
	if err != nil {
		return dto.CourseCompletionBatchResponse{}, s.unavailable(span, "completions", "list_courses_failed", err)
	}

	results := make([]analytics.CourseCompletion, len(courses))
	errs := s.forEachCourse(ctx, len(courses), func(ctx context.Context, i int) error {
		completion, err := s.computeCompletion(ctx, courses[i].ID)
		if err != nil {
			return err
		}
		results[i] = completion
		return nil
	})
	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "canceled")
		return dto.CourseCompletionBatchResponse{}, err
	}
	if err := readFailure(errs); err != nil {
		return dto.CourseCompletionBatchResponse{}, s.readFailed(span, "completions", err)
	}

	response = dto.CourseCompletionBatchResponse{
		Courses:     make(map[string]analytics.CourseCompletion, len(courses)),
		GeneratedAt: s.now().UTC(),
	}
	for i, course := range courses {
		if errs[i] != nil {
			response.Errors = addFailure(response.Errors, course.ID, errs[i])
			s.logger.Error().Err(errs[i]).Uint("course_id", course.ID).Msg("completion failed for course")
			continue
		}
		response.Courses[strconv.FormatUint(uint64(course.ID), 10)] = results[i]
	}

	span.SetAttributes(
		attribute.Int("metrics.course_count", len(courses)),
		attribute.Int("metrics.failed_courses", len(response.Errors)),
	)

	if len(response.Errors) == 0 {
		s.toCache(ctx, span, cacheKeyCompletionsAll, response)
		s.observe("completions", "ok", start)
	} else {
		s.observe("completions", "partial", start)
	}
	return response, nil
}

func (s *metricsService) Teachers(ctx context.Context) (dto.TeacherRosterResponse, error) {
	ctx, span := s.tracer.Start(ctx, "metrics.teachers")
	defer span.End()

	var response dto.TeacherRosterResponse
	if s.fromCache(ctx, span, cacheKeyTeachers, &response) {
		response.CacheHit = true
		observability.Computations().WithLabelValues("teachers", "cached").Inc()
		return response, nil
	}

	start := s.now()
	accounts, err := s.repo.ListAccounts(ctx, false)
	if err != nil {
		return dto.TeacherRosterResponse{}, s.unavailable(span, "teachers", "list_accounts_failed", err)
	}

	response = dto.TeacherRosterResponse{
		Teachers:    analytics.BuildTeacherRoster(accounts),
		GeneratedAt: s.now().UTC(),
	}
	span.SetAttributes(attribute.Int("metrics.teacher_count", len(response.Teachers)))

	s.toCache(ctx, span, cacheKeyTeachers, response)
	s.observe("teachers", "ok", start)
	return response, nil
}

// Recompute drops every cached metric payload and rebuilds the global ones.
func (s *metricsService) Recompute(ctx context.Context) (dto.RecomputeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "metrics.recompute")
	defer span.End()

	start := s.now()
	if err := s.cache.Invalidate(ctx, cachePrefix); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalidate_failed")
		return dto.RecomputeResponse{}, fmt.Errorf("invalidate metrics cache: %w", err)
	}

	steps, err := s.StepMetrics(ctx, nil)
	if err != nil {
		return dto.RecomputeResponse{}, err
	}
	completions, err := s.CourseCompletions(ctx)
	if err != nil {
		return dto.RecomputeResponse{}, err
	}
	teachers, err := s.Teachers(ctx)
	if err != nil {
		return dto.RecomputeResponse{}, err
	}
	if _, err := s.Courses(ctx); err != nil {
		return dto.RecomputeResponse{}, err
	}

	response := dto.RecomputeResponse{
		Steps:       len(steps.Steps),
		Courses:     len(completions.Courses),
		Teachers:    len(teachers.Teachers),
		DurationMs:  s.now().Sub(start).Milliseconds(),
		CompletedAt: s.now().UTC(),
	}
	for courseID, reason := range steps.Errors {
		response.Errors = addReason(response.Errors, "steps:"+courseID, reason)
	}
	for courseID, reason := range completions.Errors {
		response.Errors = addReason(response.Errors, "completion:"+courseID, reason)
	}

	s.publishRecomputed(response)
	s.logger.Info().
		Int("steps", response.Steps).
		Int("courses", response.Courses).
		Int("failures", len(response.Errors)).
		Int64("duration_ms", response.DurationMs).
		Msg("metrics recomputed")
	return response, nil
}

func (s *metricsService) computeCourseSteps(ctx context.Context, steps []analytics.StepRef) ([]analytics.StepMetrics, error) {
	ids := make([]uint, 0, len(steps))
	for _, step := range steps {
		ids = append(ids, step.StepID)
	}

	submissions, err := s.repo.ListSubmissions(ctx, ids)
	if err != nil {
		return nil, readError("list submissions", err)
	}
	comments, err := s.repo.ListComments(ctx, ids)
	if err != nil {
		return nil, readError("list comments", err)
	}
	info, err := s.repo.ListAdditionalInfo(ctx, ids)
	if err != nil {
		return nil, readError("list step info", err)
	}

	return analytics.ComputeStepMetrics(analytics.StepInput{
		Steps:       steps,
		Submissions: submissions,
		Comments:    comments,
		Info:        info,
	}, analytics.Options{
		CompletionTimeCap: s.cfg.CompletionTimeCap,
		OnFault:           s.reportFault,
	}), nil
}

func (s *metricsService) computeCompletion(ctx context.Context, courseID uint) (analytics.CourseCompletion, error) {
	steps, err := s.repo.ListStepsOrdered(ctx, &courseID)
	if err != nil {
		return analytics.CourseCompletion{}, readError("list steps", err)
	}

	submittable := make([]uint, 0, len(steps))
	for _, step := range steps {
		if step.Submittable() {
			submittable = append(submittable, step.StepID)
		}
	}
	if len(submittable) == 0 {
		return analytics.EmptyCompletion(courseID, analytics.CompletionStatusNoSubmittableSteps), nil
	}

	learners, err := s.repo.ListEnrolledLearners(ctx, courseID)
	if err != nil {
		return analytics.CourseCompletion{}, readError("list learners", err)
	}

	var submissions []analytics.Submission
	if len(learners) > 0 {
		submissions, err = s.repo.ListSubmissions(ctx, submittable)
		if err != nil {
			return analytics.CourseCompletion{}, readError("list submissions", err)
		}
	}

	return analytics.ComputeCourseCompletion(analytics.CompletionInput{
		CourseID:           courseID,
		SubmittableStepIDs: submittable,
		LearnerIDs:         learners,
		Submissions:        submissions,
	}), nil
}

// forEachCourse runs fn for indices [0, n) on the worker pool. Each index gets its own error
// slot. A calculation fault stays in its slot; a store read failure cancels the remaining courses.
func (s *metricsService) forEachCourse(ctx context.Context, n int, fn func(ctx context.Context, i int) error) []error {
	errs := make([]error, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = s.safeCompute(func() error { return fn(gctx, i) })
			if errors.Is(errs[i], ErrDataUnavailable) {
				return errs[i]
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// readError marks a failed store read so the whole batch is abandoned instead of reported per course.
func readError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrDataUnavailable, op, err)
}

// readFailure returns the first store read failure among per-course results.
func readFailure(errs []error) error {
	for _, err := range errs {
		if errors.Is(err, ErrDataUnavailable) {
			return err
		}
	}
	return nil
}

func (s *metricsService) readFailed(span trace.Span, scope string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "read_failed")
	observability.Computations().WithLabelValues(scope, "failed").Inc()
	s.logger.Error().Err(err).Str("scope", scope).Msg("metrics store read failed")
	return err
}

func (s *metricsService) safeCompute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			observability.ComputationFaults().WithLabelValues("course").Inc()
			err = fmt.Errorf("computation panicked: %v", r)
		}
	}()
	return fn()
}

func (s *metricsService) reportFault(scope string, id uint, err error) {
	observability.ComputationFaults().WithLabelValues(scope).Inc()
	s.logger.Error().Err(err).Str("scope", scope).Uint("id", id).Msg("metric calculation failed")
}

func (s *metricsService) fromCache(ctx context.Context, span trace.Span, key string, dest interface{}) bool {
	found, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to read metrics cache")
		span.RecordError(err)
		return false
	}
	span.SetAttributes(attribute.Bool("metrics.cache_hit", found))
	return found
}

func (s *metricsService) toCache(ctx context.Context, span trace.Span, key string, value interface{}) {
	if err := s.cache.Put(ctx, key, value); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to store metrics cache")
		span.RecordError(err)
	}
}

func (s *metricsService) unavailable(span trace.Span, scope, status string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, status)
	observability.Computations().WithLabelValues(scope, "failed").Inc()
	return fmt.Errorf("%w: %s: %v", ErrDataUnavailable, status, err)
}

func (s *metricsService) observe(scope, outcome string, start time.Time) {
	observability.Computations().WithLabelValues(scope, outcome).Inc()
	observability.ComputationDuration().WithLabelValues(scope).Observe(s.now().Sub(start).Seconds())
}

func (s *metricsService) publishRecomputed(result dto.RecomputeResponse) {
	if s.publisher == nil {
		return
	}

	payload, err := json.Marshal(dto.RecomputedEvent{
		Steps:       result.Steps,
		Courses:     result.Courses,
		Failures:    len(result.Errors),
		CompletedAt: result.CompletedAt,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode recompute event")
		return
	}
	if err := s.publisher.Publish(s.cfg.EventSubject, payload); err != nil {
		s.logger.Warn().Err(err).Str("subject", s.cfg.EventSubject).Msg("failed to publish recompute event")
	}
}

// groupByCourse splits course-ordered steps into one slice per course.
func groupByCourse(steps []analytics.StepRef) [][]analytics.StepRef {
	var groups [][]analytics.StepRef
	index := map[uint]int{}
	for _, step := range steps {
		pos, ok := index[step.CourseID]
		if !ok {
			pos = len(groups)
			index[step.CourseID] = pos
			groups = append(groups, nil)
		}
		groups[pos] = append(groups[pos], step)
	}
	return groups
}

func addFailure(failures map[string]string, courseID uint, err error) map[string]string {
	return addReason(failures, strconv.FormatUint(uint64(courseID), 10), err.Error())
}

func addReason(failures map[string]string, key, reason string) map[string]string {
	if failures == nil {
		failures = map[string]string{}
	}
	failures[key] = reason
	return failures
}
