// Package model is the persistence layer behind the RPC handlers. Every
// backend model controller (Bmc) takes the caller's auth.Ctx and scopes its
// queries to the rows that caller owns.
package model

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ModelManager owns the database handle shared by all Bmcs.
type ModelManager struct {
	db *gorm.DB
}

// NewModelManager wraps an open gorm handle.
func NewModelManager(db *gorm.DB) *ModelManager {
	return &ModelManager{db: db}
}

// Open opens the SQLite database at dsn. Slow queries and errors are logged
// to log.
func Open(dsn string, log *zap.Logger) (*ModelManager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.New(zap.NewStdLog(log.Named("gorm")), gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("model: open %s: %w", dsn, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	// SQLite serializes writers, and each connection to ":memory:" is its
	// own database.
	sqlDB.SetMaxOpenConns(1)
	return NewModelManager(db), nil
}

// Migrate creates or updates the tables.
func (mm *ModelManager) Migrate(ctx context.Context) error {
	return mm.db.WithContext(ctx).AutoMigrate(&Project{}, &Task{})
}

// Ping checks the database connection.
func (mm *ModelManager) Ping(ctx context.Context) error {
	sqlDB, err := mm.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (mm *ModelManager) Close() error {
	sqlDB, err := mm.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (mm *ModelManager) conn(ctx context.Context) *gorm.DB {
	return mm.db.WithContext(ctx)
}
