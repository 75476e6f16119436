// Package testutil provides the test-database helpers shared by the
// store and pipeline packages: an in-memory SQLite handle for tests
// that don't need Postgres's row-lock semantics, and a thin logger.
package testutil

import (
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/flowforge/orchestrator/internal/domain"
	"github.com/flowforge/orchestrator/internal/platform/logger"
)

// DB opens a fresh in-memory SQLite database, migrated with every
// orchestrator entity, scoped to the life of t.
func DB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("testutil: opening sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if err := db.AutoMigrate(&domain.Task{}, &domain.Run{}, &domain.Artifact{}, &domain.Decision{}); err != nil {
		t.Fatalf("testutil: automigrate: %v", err)
	}
	return db
}

// Logger returns a development-mode logger for test output.
func Logger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("testutil: building logger: %v", err)
	}
	return log
}
