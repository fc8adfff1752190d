package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/models"
)

// ImportRepository writes imported course data. Every write is an idempotent upsert keyed by
// the source system's ids, so re-running an import refreshes rows instead of duplicating them.
type ImportRepository interface {
	UpsertCourses(ctx context.Context, items []models.Course) (int64, error)
	UpsertModules(ctx context.Context, items []models.Module) (int64, error)
	UpsertLessons(ctx context.Context, items []models.Lesson) (int64, error)
	UpsertSteps(ctx context.Context, items []models.Step) (int64, error)
	UpsertStepInfos(ctx context.Context, items []models.AdditionalStepInfo) (int64, error)
	UpsertLearners(ctx context.Context, items []models.Learner) (int64, error)
	UpsertEnrollments(ctx context.Context, items []models.Enrollment) (int64, error)
	UpsertSubmissions(ctx context.Context, items []models.Submission) (int64, error)
	UpsertComments(ctx context.Context, items []models.Comment) (int64, error)
	InsertMissingLearners(ctx context.Context, items []models.Learner) (int64, error)
	LearnerIDs(ctx context.Context) (map[uint]struct{}, error)
	StepIDs(ctx context.Context) (map[uint]struct{}, error)
}

type importRepository struct {
	db        *gorm.DB
	batchSize int
}

// NewImportRepository constructs the import repository. batchSize bounds rows per INSERT.
func NewImportRepository(db *gorm.DB, batchSize int) ImportRepository {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &importRepository{db: db, batchSize: batchSize}
}

func (r *importRepository) UpsertCourses(ctx context.Context, items []models.Course) (int64, error) {
	return upsertBatch(ctx, r.db, r.batchSize, items, []string{"id"}, []string{"title", "updated_at"})
}

func (r *importRepository) UpsertModules(ctx context.Context, items []models.Module) (int64, error) {
	return upsertBatch(ctx, r.db, r.batchSize, items, []string{"id"}, []string{"course_id", "position"})
}

func (r *importRepository) UpsertLessons(ctx context.Context, items []models.Lesson) (int64, error) {
	return upsertBatch(ctx, r.db, r.batchSize, items, []string{"id"}, []string{"module_id", "position"})
}

func (r *importRepository) UpsertSteps(ctx context.Context, items []models.Step) (int64, error) {
	return upsertBatch(ctx, r.db, r.batchSize, items, []string{"id"}, []string{"lesson_id", "position", "type", "cost"})
}

func (r *importRepository) UpsertStepInfos(ctx context.Context, items []models.AdditionalStepInfo) (int64, error) {
	return upsertBatch(ctx, r.db, r.batchSize, items, []string{"step_id"}, []string{"views", "unique_views", "passed"})
}

func (r *importRepository) UpsertLearners(ctx context.Context, items []models.Learner) (int64, error) {
	return upsertBatch(ctx, r.db, r.batchSize, items, []string{"id"}, []string{"last_name", "first_name", "last_login", "date_joined", "is_learner"})
}

func (r *importRepository) UpsertEnrollments(ctx context.Context, items []models.Enrollment) (int64, error) {
	return upsertBatch(ctx, r.db, r.batchSize, items, []string{"course_id", "learner_id"}, nil)
}

func (r *importRepository) UpsertSubmissions(ctx context.Context, items []models.Submission) (int64, error) {
	return upsertBatch(ctx, r.db, r.batchSize, items, []string{"id"}, []string{"step_id", "user_id", "attempt_time", "submission_time", "status", "score"})
}

func (r *importRepository) UpsertComments(ctx context.Context, items []models.Comment) (int64, error) {
	return upsertBatch(ctx, r.db, r.batchSize, items, []string{"id"}, []string{"step_id", "user_id", "parent_comment_id", "time", "deleted", "text"})
}

// InsertMissingLearners adds accounts that are not stored yet and leaves existing rows untouched.
// Comment authors missing from the learner export go through here so a real learner is never
// downgraded to staff.
func (r *importRepository) InsertMissingLearners(ctx context.Context, items []models.Learner) (int64, error) {
	return upsertBatch(ctx, r.db, r.batchSize, items, []string{"id"}, nil)
}

func (r *importRepository) LearnerIDs(ctx context.Context) (map[uint]struct{}, error) {
	return r.pluckIDs(ctx, &models.Learner{}, "id")
}

func (r *importRepository) StepIDs(ctx context.Context) (map[uint]struct{}, error) {
	return r.pluckIDs(ctx, &models.Step{}, "id")
}

func (r *importRepository) pluckIDs(ctx context.Context, model interface{}, column string) (map[uint]struct{}, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(model).Pluck(column, &ids).Error; err != nil {
		return nil, err
	}
	set := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// upsertBatch inserts items in batches. Conflicting rows get the update columns refreshed,
// or are skipped when updates is empty.
func upsertBatch[T any](ctx context.Context, db *gorm.DB, batchSize int, items []T, conflict, updates []string) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	columns := make([]clause.Column, 0, len(conflict))
	for _, name := range conflict {
		columns = append(columns, clause.Column{Name: name})
	}
	onConflict := clause.OnConflict{Columns: columns, DoNothing: true}
	if len(updates) > 0 {
		onConflict = clause.OnConflict{Columns: columns, DoUpdates: clause.AssignmentColumns(updates)}
	}

	result := db.WithContext(ctx).Clauses(onConflict).CreateInBatches(&items, batchSize)
	return result.RowsAffected, result.Error
}
