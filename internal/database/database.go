package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/config"
	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/models"
)

// Connect opens the configured store and migrates the schema.
func Connect(cfg config.Config) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch cfg.DatabaseDriver {
	case config.DriverSQLite:
		db, err = ConnectSQLite(cfg.DatabaseURL)
	default:
		db, err = ConnectPostgres(cfg.DatabaseURL, poolSize(cfg))
	}
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(models.All()...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// poolSize leaves room for the scope listing and health checks next to the course workers.
func poolSize(cfg config.Config) int {
	return cfg.MetricsWorkers + 2
}
