package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/config"
	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/database"
	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/importer"
	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/repository"
)

func main() {
	dir := flag.String("dir", ".", "directory holding the CSV exports")
	courseID := flag.Uint("course-id", 0, "course the learners are enrolled in (defaults to the single course in structure.csv)")
	courseTitle := flag.String("course-title", "", "title stored for the imported course")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName+"-importer").Logger()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo := repository.NewImportRepository(db, cfg.ImportBatchSize)
	csvImporter := importer.New(repo, validator.New(validator.WithRequiredStructEnabled()), logger)

	started := time.Now()
	report, err := csvImporter.ImportDir(ctx, *dir, importer.Options{
		CourseID:    *courseID,
		CourseTitle: *courseTitle,
		BatchSize:   cfg.ImportBatchSize,
	})
	if err != nil {
		logger.Error().Err(err).Str("dir", *dir).Msg("import failed")
		os.Exit(1)
	}

	logger.Info().
		Uint("course_id", report.CourseID).
		Dur("duration", time.Since(started)).
		Msg("import completed, call POST /api/metrics/recompute to refresh cached metrics")

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		log.Fatalf("failed to write report: %v", err)
	}
}
