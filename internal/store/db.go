package store

import (
	"fmt"
	"log"
	"os"
	"time"

	gormLogger "gorm.io/gorm/logger"

	"github.com/flowforge/orchestrator/internal/domain"
	"github.com/flowforge/orchestrator/internal/platform/logger"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open connects to Postgres via dsn, runs AutoMigrate for every
// persisted entity, and returns the *gorm.DB handle components build
// their Store on top of.
func Open(dsn string, log_ *logger.Logger) (*gorm.DB, error) {
	gl := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gl})
	if err != nil {
		return nil, fmt.Errorf("store: connecting to postgres: %w", err)
	}

	if err := AutoMigrateAll(db); err != nil {
		return nil, fmt.Errorf("store: automigrate: %w", err)
	}

	log_.Info("store connected", "driver", "postgres")
	return db, nil
}

// AutoMigrateAll migrates every entity the orchestrator persists.
func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Task{},
		&domain.Run{},
		&domain.Artifact{},
		&domain.Decision{},
	)
}
