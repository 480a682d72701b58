// Package store is the PostgreSQL persistence layer. Plain row access goes
// through gorm; the spatial queries (ZIP intersection, report matching) are
// raw parameterized SQL against PostGIS, since they lean on functions and
// index choices an ORM cannot express.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/couchcryptid/storm-alert-triage/internal/domain"
	"github.com/couchcryptid/storm-alert-triage/internal/outbox"
)

// Store wraps the database handle with the query surface the rest of the
// service consumes.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects to PostgreSQL and runs migrations.
func Open(dsn string, logger *slog.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	s := New(db, logger)
	if err := s.AutoMigrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// New wraps an existing handle. Used by tests with an in-memory database.
func New(db *gorm.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// AutoMigrate creates or updates the service-owned tables. The ZIP shape
// table (zcta5_raw) is loaded out of band and never touched here.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(
		&domain.EnrichedAlert{},
		&domain.StormReportObservation{},
		&domain.StormReportMatch{},
		&domain.TriageAuditEntry{},
		&outbox.Entry{},
		&zoneCacheRow{},
	); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// CheckReadiness reports whether the database is reachable. Processes without
// an ingestion cycle (the delivery worker) gate readiness on this alone.
func (s *Store) CheckReadiness(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
