package dto

import (
	"time"

	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/analytics"
)

// Metric scopes reported in step metric payloads.
const (
	ScopeGlobal = "global"
	ScopeCourse = "course"
	ScopeStep   = "step"
)

// StepMetricsQuery filters the step structure endpoint.
type StepMetricsQuery struct {
	CourseID *uint `query:"course_id" validate:"omitempty,gt=0"`
}

// CourseCompletionQuery filters the completion endpoint.
type CourseCompletionQuery struct {
	CourseID *uint `query:"course_id" validate:"omitempty,gt=0"`
}

// StepMetricsResponse lists step metrics for one course or for every course.
// Errors maps course ids to the reason their steps are missing from Steps.
type StepMetricsResponse struct {
	Scope       string                  `json:"scope"`
	CourseID    *uint                   `json:"course_id,omitempty"`
	Steps       []analytics.StepMetrics `json:"steps"`
	Errors      map[string]string       `json:"errors,omitempty"`
	GeneratedAt time.Time               `json:"generated_at"`
	CacheHit    bool                    `json:"cache_hit"`
}

// StepDetailResponse carries the full metric record of a single step.
type StepDetailResponse struct {
	Step        analytics.StepMetrics `json:"step"`
	GeneratedAt time.Time             `json:"generated_at"`
	CacheHit    bool                  `json:"cache_hit"`
}

// CourseCompletionResponse wraps one course's completion buckets.
type CourseCompletionResponse struct {
	analytics.CourseCompletion
	GeneratedAt time.Time `json:"generated_at"`
	CacheHit    bool      `json:"cache_hit"`
}

// CourseCompletionBatchResponse holds completion buckets for every course keyed by course id.
type CourseCompletionBatchResponse struct {
	Courses     map[string]analytics.CourseCompletion `json:"courses"`
	Errors      map[string]string                     `json:"errors,omitempty"`
	GeneratedAt time.Time                             `json:"generated_at"`
	CacheHit    bool                                  `json:"cache_hit"`
}

// TeacherRosterResponse lists the non-learner accounts.
type TeacherRosterResponse struct {
	Teachers    []analytics.Account `json:"teachers"`
	GeneratedAt time.Time           `json:"generated_at"`
	CacheHit    bool                `json:"cache_hit"`
}

// CourseSummary describes a course and the size of its structure.
type CourseSummary struct {
	ID                   uint   `json:"id"`
	Title                string `json:"title"`
	StepCount            int    `json:"step_count"`
	SubmittableStepCount int    `json:"submittable_step_count"`
}

// CourseListResponse lists every known course.
type CourseListResponse struct {
	Courses     []CourseSummary `json:"courses"`
	GeneratedAt time.Time       `json:"generated_at"`
	CacheHit    bool            `json:"cache_hit"`
}

// RecomputeResponse reports a cache rebuild.
type RecomputeResponse struct {
	Steps       int               `json:"steps"`
	Courses     int               `json:"courses"`
	Teachers    int               `json:"teachers"`
	Errors      map[string]string `json:"errors,omitempty"`
	DurationMs  int64             `json:"duration_ms"`
	CompletedAt time.Time         `json:"completed_at"`
}

// RecomputedEvent is published after a successful cache rebuild.
type RecomputedEvent struct {
	Steps       int       `json:"steps"`
	Courses     int       `json:"courses"`
	Failures    int       `json:"failures"`
	CompletedAt time.Time `json:"completed_at"`
}
