package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/hoplink/hoplink/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewGorm opens the GORM handle used by the repositories. GORM's own SQL
// logging stays at Warn so the access log is the only per-request output.
func NewGorm(cfg config.PostgresConfig) (*gorm.DB, error) {
	// TranslateError turns driver unique violations into
	// gorm.ErrDuplicatedKey, which the repositories map to their own
	// sentinels.
	db, err := gorm.Open(postgres.Open(ConnString(cfg)), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Warn),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: open gorm: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres: unwrap sql db: %w", err)
	}
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// AutoMigrate applies schema migrations for the given models at startup.
func AutoMigrate(ctx context.Context, db *gorm.DB, models ...interface{}) error {
	if len(models) == 0 {
		return nil
	}
	if err := db.WithContext(ctx).AutoMigrate(models...); err != nil {
		return fmt.Errorf("postgres: auto migrate: %w", err)
	}
	return nil
}
