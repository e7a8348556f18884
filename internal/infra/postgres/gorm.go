package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/sifan077/PowerLink/config"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// NewGorm opens the GORM handle used by the repositories. SQL logging is
// routed through log at warn level; record-not-found is an expected outcome
// on redirects and is never logged.
func NewGorm(cfg config.PostgresConfig, log *zap.Logger) (*gorm.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	sqlLog := gormlogger.New(zap.NewStdLog(log.Named("gorm")), gormlogger.Config{
		SlowThreshold:             slowQueryThreshold,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})

	db, err := gorm.Open(postgres.New(postgres.Config{DSN: ConnString(cfg)}), &gorm.Config{
		Logger:         sqlLog,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: open gorm: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres: underlying sql db: %w", err)
	}
	if cfg.MaxConns > 0 {
		sqlDB.SetMaxOpenConns(int(cfg.MaxConns))
	}
	if cfg.MinConns > 0 {
		sqlDB.SetMaxIdleConns(int(cfg.MinConns))
	}
	sqlDB.SetConnMaxLifetime(parseDuration(cfg.MaxConnLifetime, 30*time.Minute))
	sqlDB.SetConnMaxIdleTime(parseDuration(cfg.MaxConnIdleTime, 5*time.Minute))

	return db, nil
}

// Migrate creates or updates the tables for the given models.
func Migrate(ctx context.Context, db *gorm.DB, models ...interface{}) error {
	if len(models) == 0 {
		return nil
	}
	if err := db.WithContext(ctx).AutoMigrate(models...); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}
