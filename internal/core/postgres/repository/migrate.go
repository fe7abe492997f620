package repository

import (
	"context"
	"fmt"
	"time"

	"go-stepflow/internal/config"
	"go-stepflow/internal/domain"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Open connects to Postgres and, as configured, migrates the schema and
// seeds the action catalog.
func Open(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		TranslateError: true,
		Logger: logger.New(gormWriter{log.Sugar()}, logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if cfg.AutoMigrate {
		if err := Migrate(ctx, db); err != nil {
			return nil, err
		}
	}
	if cfg.SeedActions {
		if err := SeedActions(ctx, db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

func Migrate(ctx context.Context, db *gorm.DB) error {
	err := db.WithContext(ctx).AutoMigrate(
		&domain.WorkflowAction{},
		&domain.WorkflowDefinition{},
		&domain.WorkflowStep{},
		&domain.SubmissionWorkflowProgress{},
		&domain.Submission{},
		&domain.Response{},
		&templateRecord{},
		&userRecord{},
		&userRoleRecord{},
	)
	if err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

// SeedActions inserts the default catalog, leaving existing codes alone.
func SeedActions(ctx context.Context, db *gorm.DB) error {
	actions := domain.DefaultActions()
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
		Create(&actions).Error
	if err != nil {
		return fmt.Errorf("seeding actions: %w", err)
	}
	return nil
}

// gormWriter routes gorm's logger through zap.
type gormWriter struct {
	log *zap.SugaredLogger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warnf(format, args...)
}
