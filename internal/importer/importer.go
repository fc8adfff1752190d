// Package importer loads the course platform's CSV exports into the store.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/repository"
)

// Export file names, in import order. Structure and learners come first so comments and
// submissions can be checked against known steps and users.
const (
	FileStructure   = "structure.csv"
	FileLearners    = "learners.csv"
	FileStepInfo    = "step_info.csv"
	FileComments    = "comments.csv"
	FileSubmissions = "submissions.csv"
)

// ErrNotCSV is returned for files whose content is not delimited text.
var ErrNotCSV = errors.New("file is not a csv export")

// Options controls an import run.
type Options struct {
	// CourseID is the course learners are enrolled in. When zero it is taken from the structure
	// file if that file describes exactly one course.
	CourseID    uint
	CourseTitle string
	BatchSize   int
}

// FileReport summarises one imported file.
type FileReport struct {
	File       string `json:"file"`
	Imported   int    `json:"imported"`
	Skipped    int    `json:"skipped"`
	StaffAdded int    `json:"staff_added,omitempty"`
}

// Report summarises an import run.
type Report struct {
	CourseID uint         `json:"course_id"`
	Files    []FileReport `json:"files"`
}

// Importer reads CSV exports and upserts them through the import repository.
type Importer struct {
	repo      repository.ImportRepository
	validate  *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// New constructs an importer.
func New(repo repository.ImportRepository, validate *validator.Validate, logger zerolog.Logger) *Importer {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	return &Importer{
		repo:      repo,
		validate:  validate,
		sanitizer: bluemonday.UGCPolicy(),
		logger:    logger.With().Str("component", "csv_importer").Logger(),
	}
}

// ImportDir imports every known export present in dir. structure.csv is required, the rest
// are optional.
func (im *Importer) ImportDir(ctx context.Context, dir string, opts Options) (Report, error) {
	report := Report{CourseID: opts.CourseID}

	structurePath := filepath.Join(dir, FileStructure)
	var courses []uint
	fileReport, err := im.importFile(structurePath, func(r io.Reader) (FileReport, error) {
		var (
			rep FileReport
			err error
		)
		rep, courses, err = im.ImportStructure(ctx, r, opts)
		return rep, err
	})
	if err != nil {
		return report, err
	}
	report.Files = append(report.Files, fileReport)

	if opts.CourseID == 0 {
		if len(courses) != 1 {
			return report, fmt.Errorf("structure describes %d courses, a course id is required", len(courses))
		}
		opts.CourseID = courses[0]
		report.CourseID = courses[0]
	}

	steps := []struct {
		name string
		run  func(io.Reader) (FileReport, error)
	}{
		{FileLearners, func(r io.Reader) (FileReport, error) { return im.ImportLearners(ctx, r, opts) }},
		{FileStepInfo, func(r io.Reader) (FileReport, error) { return im.ImportStepInfo(ctx, r, opts) }},
		{FileComments, func(r io.Reader) (FileReport, error) { return im.ImportComments(ctx, r, opts) }},
		{FileSubmissions, func(r io.Reader) (FileReport, error) { return im.ImportSubmissions(ctx, r, opts) }},
	}
	for _, step := range steps {
		path := filepath.Join(dir, step.name)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			im.logger.Info().Str("file", step.name).Msg("export not present, skipping")
			continue
		}
		fileReport, err := im.importFile(path, step.run)
		if err != nil {
			return report, err
		}
		report.Files = append(report.Files, fileReport)
	}

	return report, nil
}

func (im *Importer) importFile(path string, run func(io.Reader) (FileReport, error)) (FileReport, error) {
	if err := checkCSV(path); err != nil {
		return FileReport{}, err
	}

	file, err := os.Open(path)
	if err != nil {
		return FileReport{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	report, err := run(file)
	report.File = filepath.Base(path)
	if err != nil {
		return report, fmt.Errorf("import %s: %w", report.File, err)
	}

	im.logger.Info().
		Str("file", report.File).
		Int("imported", report.Imported).
		Int("skipped", report.Skipped).
		Int("staff_added", report.StaffAdded).
		Msg("export imported")
	return report, nil
}

// checkCSV rejects spreadsheets and other binary files before they reach the CSV reader.
func checkCSV(path string) error {
	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("failed to detect file type: %w", err)
	}
	for m := mime; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is %s", ErrNotCSV, filepath.Base(path), mime.String())
}

// readRows streams data rows to fn, skipping a header row.
func readRows(r io.Reader, fn func(line int, record []string) error) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read line %d: %w", line+1, err)
		}
		line++
		if line == 1 && isHeader(record) {
			continue
		}
		if err := fn(line, record); err != nil {
			return err
		}
	}
}

func isHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	_, err := parseID(strings.TrimPrefix(record[0], "\ufeff"))
	return err != nil
}

// pending buffers rows keyed by id and flushes them in batches. A later row with the same id
// replaces the buffered one, so one INSERT never carries the same key twice.
type pending[T any] struct {
	size   int
	items  map[string]T
	order  []string
	flush  func(ctx context.Context, items []T) (int64, error)
	parent func(ctx context.Context) error
}

func newPending[T any](size int, flush func(ctx context.Context, items []T) (int64, error)) *pending[T] {
	if size <= 0 {
		size = 1000
	}
	return &pending[T]{size: size, items: map[string]T{}, flush: flush}
}

// after makes every drain run parent first, so referenced rows are written before their dependants.
func (p *pending[T]) after(parent func(ctx context.Context) error) *pending[T] {
	p.parent = parent
	return p
}

func (p *pending[T]) add(ctx context.Context, key string, item T) error {
	if _, ok := p.items[key]; !ok {
		p.order = append(p.order, key)
	}
	p.items[key] = item
	if len(p.order) >= p.size {
		return p.drain(ctx)
	}
	return nil
}

func (p *pending[T]) drain(ctx context.Context) error {
	if p.parent != nil {
		if err := p.parent(ctx); err != nil {
			return err
		}
	}
	if len(p.order) == 0 {
		return nil
	}
	batch := make([]T, 0, len(p.order))
	for _, key := range p.order {
		batch = append(batch, p.items[key])
	}
	p.items = map[string]T{}
	p.order = p.order[:0]

	_, err := p.flush(ctx, batch)
	return err
}
