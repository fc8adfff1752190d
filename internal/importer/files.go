package importer

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/models"
)

type structureRow struct {
	CourseID       uint   `validate:"required"`
	ModuleID       uint   `validate:"required"`
	ModulePosition int    `validate:"gte=0"`
	LessonID       uint   `validate:"required"`
	LessonPosition int    `validate:"gte=0"`
	StepID         uint   `validate:"required"`
	StepPosition   int    `validate:"gte=0"`
	StepType       string `validate:"required,max=64"`
	StepCost       *int   `validate:"omitempty,gte=0"`
}

type learnerRow struct {
	ID         uint   `validate:"required"`
	LastName   string `validate:"max=255"`
	FirstName  string `validate:"max=255"`
	LastLogin  *time.Time
	DateJoined *time.Time
}

type stepInfoRow struct {
	StepID      uint `validate:"required"`
	Views       *int `validate:"omitempty,gte=0"`
	UniqueViews *int `validate:"omitempty,gte=0"`
	Passed      *int `validate:"omitempty,gte=0"`
}

type commentRow struct {
	ID        uint   `validate:"required"`
	UserID    uint   `validate:"required"`
	LastName  string `validate:"max=255"`
	FirstName string `validate:"max=255"`
	StepID    uint   `validate:"required"`
	ParentID  *uint
	Time      *time.Time
	Deleted   bool
	Text      string
}

type submissionRow struct {
	ID             uint   `validate:"required"`
	StepID         uint   `validate:"required"`
	UserID         uint   `validate:"required"`
	AttemptTime    *time.Time
	SubmissionTime *time.Time
	Status         string `validate:"max=32"`
	Score          *float64
}

// ImportStructure loads course/module/lesson/step rows and returns the course ids it saw.
func (im *Importer) ImportStructure(ctx context.Context, r io.Reader, opts Options) (FileReport, []uint, error) {
	var report FileReport
	seenCourses := map[uint]struct{}{}
	var courses []uint

	coursesBatch := newPending(opts.BatchSize, im.repo.UpsertCourses)
	modules := newPending(opts.BatchSize, im.repo.UpsertModules).after(coursesBatch.drain)
	lessons := newPending(opts.BatchSize, im.repo.UpsertLessons).after(modules.drain)
	steps := newPending(opts.BatchSize, im.repo.UpsertSteps).after(lessons.drain)

	err := readRows(r, func(line int, record []string) error {
		row, err := parseStructureRow(record, opts.CourseID)
		if err == nil {
			err = im.validate.Struct(row)
		}
		if err != nil {
			im.skip(&report, line, err)
			return nil
		}

		if _, ok := seenCourses[row.CourseID]; !ok {
			seenCourses[row.CourseID] = struct{}{}
			courses = append(courses, row.CourseID)
			if err := coursesBatch.add(ctx, key(row.CourseID), models.Course{ID: row.CourseID, Title: courseTitle(row.CourseID, opts)}); err != nil {
				return err
			}
		}
		if err := modules.add(ctx, key(row.ModuleID), models.Module{ID: row.ModuleID, CourseID: row.CourseID, Position: row.ModulePosition}); err != nil {
			return err
		}
		if err := lessons.add(ctx, key(row.LessonID), models.Lesson{ID: row.LessonID, ModuleID: row.ModuleID, Position: row.LessonPosition}); err != nil {
			return err
		}
		if err := steps.add(ctx, key(row.StepID), models.Step{ID: row.StepID, LessonID: row.LessonID, Position: row.StepPosition, Type: row.StepType, Cost: row.StepCost}); err != nil {
			return err
		}
		report.Imported++
		return nil
	})
	if err != nil {
		return report, courses, err
	}

	return report, courses, steps.drain(ctx)
}

// ImportLearners loads learner accounts and enrolls them in opts.CourseID.
func (im *Importer) ImportLearners(ctx context.Context, r io.Reader, opts Options) (FileReport, error) {
	var report FileReport
	learners := newPending(opts.BatchSize, im.repo.UpsertLearners)
	enrollments := newPending(opts.BatchSize, im.repo.UpsertEnrollments).after(learners.drain)

	err := readRows(r, func(line int, record []string) error {
		row, err := parseLearnerRow(record)
		if err == nil {
			err = im.validate.Struct(row)
		}
		if err != nil {
			im.skip(&report, line, err)
			return nil
		}

		learner := models.Learner{
			ID:         row.ID,
			LastName:   strings.TrimSpace(row.LastName),
			FirstName:  strings.TrimSpace(row.FirstName),
			LastLogin:  row.LastLogin,
			DateJoined: row.DateJoined,
			IsLearner:  true,
		}
		if err := learners.add(ctx, key(row.ID), learner); err != nil {
			return err
		}
		if opts.CourseID != 0 {
			if err := enrollments.add(ctx, key(row.ID), models.Enrollment{CourseID: opts.CourseID, LearnerID: row.ID}); err != nil {
				return err
			}
		}
		report.Imported++
		return nil
	})
	if err != nil {
		return report, err
	}

	return report, enrollments.drain(ctx)
}

// ImportStepInfo loads view statistics. Rows for steps missing from the structure are skipped.
func (im *Importer) ImportStepInfo(ctx context.Context, r io.Reader, opts Options) (FileReport, error) {
	var report FileReport
	stepIDs, err := im.repo.StepIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("load step ids: %w", err)
	}
	infos := newPending(opts.BatchSize, im.repo.UpsertStepInfos)

	err = readRows(r, func(line int, record []string) error {
		row, err := parseStepInfoRow(record)
		if err == nil {
			err = im.validate.Struct(row)
		}
		if err != nil {
			im.skip(&report, line, err)
			return nil
		}
		if _, ok := stepIDs[row.StepID]; !ok {
			report.Skipped++
			return nil
		}

		if err := infos.add(ctx, key(row.StepID), models.AdditionalStepInfo{
			StepID:      row.StepID,
			Views:       row.Views,
			UniqueViews: row.UniqueViews,
			Passed:      row.Passed,
		}); err != nil {
			return err
		}
		report.Imported++
		return nil
	})
	if err != nil {
		return report, err
	}
	return report, infos.drain(ctx)
}

// ImportComments loads step comments. Authors missing from the learner export are stored as
// staff accounts; comments on unknown steps are skipped.
func (im *Importer) ImportComments(ctx context.Context, r io.Reader, opts Options) (FileReport, error) {
	var report FileReport
	userIDs, err := im.repo.LearnerIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("load learner ids: %w", err)
	}
	stepIDs, err := im.repo.StepIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("load step ids: %w", err)
	}

	staff := newPending(opts.BatchSize, im.repo.InsertMissingLearners)
	comments := newPending(opts.BatchSize, im.repo.UpsertComments).after(staff.drain)

	err = readRows(r, func(line int, record []string) error {
		row, err := parseCommentRow(record)
		if err == nil {
			err = im.validate.Struct(row)
		}
		if err != nil {
			im.skip(&report, line, err)
			return nil
		}
		if _, ok := stepIDs[row.StepID]; !ok {
			report.Skipped++
			return nil
		}

		if _, ok := userIDs[row.UserID]; !ok {
			userIDs[row.UserID] = struct{}{}
			report.StaffAdded++
			if err := staff.add(ctx, key(row.UserID), models.Learner{
				ID:        row.UserID,
				LastName:  strings.TrimSpace(row.LastName),
				FirstName: strings.TrimSpace(row.FirstName),
				IsLearner: false,
			}); err != nil {
				return err
			}
		}

		if err := comments.add(ctx, key(row.ID), models.Comment{
			ID:              row.ID,
			StepID:          row.StepID,
			UserID:          row.UserID,
			ParentCommentID: row.ParentID,
			Time:            row.Time,
			Deleted:         row.Deleted,
			Text:            im.sanitizer.Sanitize(row.Text),
		}); err != nil {
			return err
		}
		report.Imported++
		return nil
	})
	if err != nil {
		return report, err
	}

	return report, comments.drain(ctx)
}

// ImportSubmissions loads submission attempts. Rows with an unknown user or step are skipped.
func (im *Importer) ImportSubmissions(ctx context.Context, r io.Reader, opts Options) (FileReport, error) {
	var report FileReport
	userIDs, err := im.repo.LearnerIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("load learner ids: %w", err)
	}
	stepIDs, err := im.repo.StepIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("load step ids: %w", err)
	}
	submissions := newPending(opts.BatchSize, im.repo.UpsertSubmissions)

	err = readRows(r, func(line int, record []string) error {
		row, err := parseSubmissionRow(record)
		if err == nil {
			err = im.validate.Struct(row)
		}
		if err != nil {
			im.skip(&report, line, err)
			return nil
		}
		if _, ok := userIDs[row.UserID]; !ok {
			report.Skipped++
			return nil
		}
		if _, ok := stepIDs[row.StepID]; !ok {
			report.Skipped++
			return nil
		}

		if err := submissions.add(ctx, key(row.ID), models.Submission{
			ID:             row.ID,
			StepID:         row.StepID,
			UserID:         row.UserID,
			AttemptTime:    row.AttemptTime,
			SubmissionTime: row.SubmissionTime,
			Status:         row.Status,
			Score:          row.Score,
		}); err != nil {
			return err
		}
		report.Imported++
		return nil
	})
	if err != nil {
		return report, err
	}
	return report, submissions.drain(ctx)
}

func (im *Importer) skip(report *FileReport, line int, err error) {
	report.Skipped++
	im.logger.Warn().Err(err).Int("line", line).Msg("skipping malformed row")
}

func key(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func courseTitle(courseID uint, opts Options) string {
	if opts.CourseTitle != "" && (opts.CourseID == 0 || opts.CourseID == courseID) {
		return opts.CourseTitle
	}
	return fmt.Sprintf("Course %d", courseID)
}

func parseStructureRow(record []string, fallbackCourse uint) (structureRow, error) {
	var row structureRow
	var err error

	courseID, err := parseOptionalID(field(record, 0))
	if err != nil {
		return row, err
	}
	row.CourseID = fallbackCourse
	if courseID != nil {
		row.CourseID = *courseID
	}
	if row.ModuleID, err = parseID(field(record, 1)); err != nil {
		return row, err
	}
	if row.ModulePosition, err = parseInt(field(record, 2)); err != nil {
		return row, err
	}
	if row.LessonID, err = parseID(field(record, 3)); err != nil {
		return row, err
	}
	if row.LessonPosition, err = parseInt(field(record, 4)); err != nil {
		return row, err
	}
	if row.StepID, err = parseID(field(record, 5)); err != nil {
		return row, err
	}
	if row.StepPosition, err = parseInt(field(record, 6)); err != nil {
		return row, err
	}
	row.StepType = strings.TrimSpace(field(record, 7))
	row.StepCost, err = parseOptionalInt(field(record, 8))
	return row, err
}

func parseLearnerRow(record []string) (learnerRow, error) {
	var row learnerRow
	var err error

	if row.ID, err = parseID(field(record, 0)); err != nil {
		return row, err
	}
	row.LastName = field(record, 1)
	row.FirstName = field(record, 2)
	if row.LastLogin, err = parseTime(field(record, 3)); err != nil {
		return row, err
	}
	row.DateJoined, err = parseTime(field(record, 4))
	return row, err
}

func parseStepInfoRow(record []string) (stepInfoRow, error) {
	var row stepInfoRow
	var err error

	if row.StepID, err = parseID(field(record, 0)); err != nil {
		return row, err
	}
	if row.Views, err = parseOptionalInt(field(record, 1)); err != nil {
		return row, err
	}
	if row.UniqueViews, err = parseOptionalInt(field(record, 2)); err != nil {
		return row, err
	}
	row.Passed, err = parseOptionalInt(field(record, 3))
	return row, err
}

func parseCommentRow(record []string) (commentRow, error) {
	var row commentRow
	var err error

	if row.ID, err = parseID(field(record, 0)); err != nil {
		return row, err
	}
	if row.UserID, err = parseID(field(record, 1)); err != nil {
		return row, err
	}
	row.LastName = field(record, 2)
	row.FirstName = field(record, 3)
	if row.StepID, err = parseID(field(record, 4)); err != nil {
		return row, err
	}
	if row.ParentID, err = parseOptionalID(field(record, 5)); err != nil {
		return row, err
	}
	if row.Time, err = parseTime(field(record, 6)); err != nil {
		return row, err
	}
	if row.Deleted, err = parseFlag(field(record, 7)); err != nil {
		return row, err
	}
	row.Text = field(record, 9)
	return row, nil
}

func parseSubmissionRow(record []string) (submissionRow, error) {
	var row submissionRow
	var err error

	if row.ID, err = parseID(field(record, 0)); err != nil {
		return row, err
	}
	if row.StepID, err = parseID(field(record, 1)); err != nil {
		return row, err
	}
	if row.UserID, err = parseID(field(record, 2)); err != nil {
		return row, err
	}
	if row.AttemptTime, err = parseTime(field(record, 5)); err != nil {
		return row, err
	}
	if row.SubmissionTime, err = parseTime(field(record, 6)); err != nil {
		return row, err
	}
	row.Status = strings.ToLower(strings.TrimSpace(field(record, 7)))
	row.Score, err = parseOptionalFloat(field(record, 8))
	return row, err
}
