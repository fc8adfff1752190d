package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/analytics"
	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/models"
)

// idChunkSize keeps IN (...) lists under the bind parameter limits of sqlite and postgres.
const idChunkSize = 500

// CourseRecord is a course as listed by the metrics endpoints.
type CourseRecord struct {
	ID    uint
	Title string
}

// MetricsRepository reads everything the metric calculators need.
type MetricsRepository interface {
	ListCourses(ctx context.Context) ([]CourseRecord, error)
	GetCourse(ctx context.Context, courseID uint) (CourseRecord, error)
	ListStepsOrdered(ctx context.Context, courseID *uint) ([]analytics.StepRef, error)
	ListSubmissions(ctx context.Context, stepIDs []uint) ([]analytics.Submission, error)
	ListComments(ctx context.Context, stepIDs []uint) ([]analytics.Comment, error)
	ListAdditionalInfo(ctx context.Context, stepIDs []uint) (map[uint]analytics.StepInfo, error)
	FindStep(ctx context.Context, stepID uint) (analytics.StepRef, error)
	ListEnrolledLearners(ctx context.Context, courseID uint) ([]uint, error)
	ListAccounts(ctx context.Context, isLearner bool) ([]analytics.Account, error)
}

type metricsRepository struct {
	db *gorm.DB
}

// NewMetricsRepository constructs the gorm backed metrics repository.
func NewMetricsRepository(db *gorm.DB) MetricsRepository {
	return &metricsRepository{db: db}
}

func (r *metricsRepository) ListCourses(ctx context.Context) ([]CourseRecord, error) {
	var courses []models.Course
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&courses).Error; err != nil {
		return nil, err
	}

	records := make([]CourseRecord, 0, len(courses))
	for _, course := range courses {
		records = append(records, CourseRecord{ID: course.ID, Title: course.Title})
	}
	return records, nil
}

func (r *metricsRepository) GetCourse(ctx context.Context, courseID uint) (CourseRecord, error) {
	var course models.Course
	if err := r.db.WithContext(ctx).First(&course, courseID).Error; err != nil {
		return CourseRecord{}, err
	}
	return CourseRecord{ID: course.ID, Title: course.Title}, nil
}

type stepRow struct {
	StepID         uint
	LessonID       uint
	ModuleID       uint
	CourseID       uint
	ModulePosition int
	LessonPosition int
	StepPosition   int
	Type           string
	Cost           *int
}

func (r *metricsRepository) ListStepsOrdered(ctx context.Context, courseID *uint) ([]analytics.StepRef, error) {
	query := r.stepQuery(ctx)
	if courseID != nil {
		query = query.Where("modules.course_id = ?", *courseID)
	}

	var rows []stepRow
	err := query.
		Order("modules.course_id ASC, modules.position ASC, lessons.position ASC, steps.position ASC, steps.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	steps := make([]analytics.StepRef, 0, len(rows))
	for _, row := range rows {
		steps = append(steps, row.toStepRef())
	}
	return steps, nil
}

// FindStep returns the step with its coordinates, or gorm.ErrRecordNotFound.
func (r *metricsRepository) FindStep(ctx context.Context, stepID uint) (analytics.StepRef, error) {
	var rows []stepRow
	if err := r.stepQuery(ctx).Where("steps.id = ?", stepID).Limit(1).Scan(&rows).Error; err != nil {
		return analytics.StepRef{}, err
	}
	if len(rows) == 0 {
		return analytics.StepRef{}, gorm.ErrRecordNotFound
	}
	return rows[0].toStepRef(), nil
}

func (r *metricsRepository) stepQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("steps").
		Select(`steps.id AS step_id, steps.lesson_id AS lesson_id, lessons.module_id AS module_id,
			modules.course_id AS course_id, modules.position AS module_position,
			lessons.position AS lesson_position, steps.position AS step_position,
			steps.type AS type, steps.cost AS cost`).
		Joins("JOIN lessons ON lessons.id = steps.lesson_id").
		Joins("JOIN modules ON modules.id = lessons.module_id")
}

func (row stepRow) toStepRef() analytics.StepRef {
	return analytics.StepRef{
		StepID:         row.StepID,
		LessonID:       row.LessonID,
		ModuleID:       row.ModuleID,
		CourseID:       row.CourseID,
		ModulePosition: row.ModulePosition,
		LessonPosition: row.LessonPosition,
		StepPosition:   row.StepPosition,
		Type:           row.Type,
		Cost:           row.Cost,
	}
}

func (r *metricsRepository) ListSubmissions(ctx context.Context, stepIDs []uint) ([]analytics.Submission, error) {
	var out []analytics.Submission
	err := forEachChunk(stepIDs, func(chunk []uint) error {
		var submissions []models.Submission
		if err := r.db.WithContext(ctx).Where("step_id IN ?", chunk).Order("id ASC").Find(&submissions).Error; err != nil {
			return err
		}
		for _, submission := range submissions {
			out = append(out, analytics.Submission{
				UserID:         submission.UserID,
				StepID:         submission.StepID,
				Status:         submission.Status,
				Score:          submission.Score,
				AttemptTime:    submission.AttemptTime,
				SubmissionTime: submission.SubmissionTime,
			})
		}
		return nil
	})
	return out, err
}

func (r *metricsRepository) ListComments(ctx context.Context, stepIDs []uint) ([]analytics.Comment, error) {
	var out []analytics.Comment
	err := forEachChunk(stepIDs, func(chunk []uint) error {
		var comments []models.Comment
		err := r.db.WithContext(ctx).
			Select("id", "step_id", "user_id", "deleted").
			Where("step_id IN ?", chunk).
			Find(&comments).Error
		if err != nil {
			return err
		}
		for _, comment := range comments {
			out = append(out, analytics.Comment{UserID: comment.UserID, StepID: comment.StepID, Deleted: comment.Deleted})
		}
		return nil
	})
	return out, err
}

func (r *metricsRepository) ListAdditionalInfo(ctx context.Context, stepIDs []uint) (map[uint]analytics.StepInfo, error) {
	out := make(map[uint]analytics.StepInfo, len(stepIDs))
	err := forEachChunk(stepIDs, func(chunk []uint) error {
		var infos []models.AdditionalStepInfo
		if err := r.db.WithContext(ctx).Where("step_id IN ?", chunk).Find(&infos).Error; err != nil {
			return err
		}
		for _, info := range infos {
			out[info.StepID] = toStepInfo(info)
		}
		return nil
	})
	return out, err
}

func (r *metricsRepository) ListEnrolledLearners(ctx context.Context, courseID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Joins("JOIN learners ON learners.id = course_enrollments.learner_id").
		Where("course_enrollments.course_id = ?", courseID).
		Where("learners.is_learner = ?", true).
		Order("course_enrollments.learner_id ASC").
		Pluck("course_enrollments.learner_id", &ids).Error
	return ids, err
}

func (r *metricsRepository) ListAccounts(ctx context.Context, isLearner bool) ([]analytics.Account, error) {
	var learners []models.Learner
	err := r.db.WithContext(ctx).
		Where("is_learner = ?", isLearner).
		Order("last_name ASC, first_name ASC, id ASC").
		Find(&learners).Error
	if err != nil {
		return nil, err
	}

	accounts := make([]analytics.Account, 0, len(learners))
	for _, learner := range learners {
		accounts = append(accounts, analytics.Account{
			ID:        learner.ID,
			LastName:  learner.LastName,
			FirstName: learner.FirstName,
			IsLearner: learner.IsLearner,
		})
	}
	return accounts, nil
}

func toStepInfo(info models.AdditionalStepInfo) analytics.StepInfo {
	return analytics.StepInfo{Views: info.Views, UniqueViews: info.UniqueViews, Passed: info.Passed}
}

func forEachChunk(ids []uint, fn func(chunk []uint) error) error {
	for start := 0; start < len(ids); start += idChunkSize {
		end := start + idChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		if err := fn(ids[start:end]); err != nil {
			return err
		}
	}
	return nil
}
