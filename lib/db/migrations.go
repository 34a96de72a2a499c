package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/icco/moviecatalog/models"
	"gorm.io/gorm"
)

// RunMigrations runs all database migrations
func RunMigrations(gormDB *gorm.DB, logger *slog.Logger) error {
	ctx := context.Background()

	if gormDB.Dialector.Name() == "sqlite" {
		enableSQLiteOptimizations(ctx, gormDB, logger)
	}

	if err := gormDB.WithContext(ctx).AutoMigrate(&models.MovieEntity{}); err != nil {
		return fmt.Errorf("failed to migrate movies: %w", err)
	}

	// Listing order is (created_at, id).
	if err := gormDB.WithContext(ctx).Exec("CREATE INDEX IF NOT EXISTS idx_movies_created_id ON movies(created_at, id)").Error; err != nil {
		logger.Warn("Failed to create index", slog.String("index", "idx_movies_created_id"), slog.Any("error", err))
	}

	return nil
}

// enableSQLiteOptimizations applies sqlite pragmas; failures are logged only.
func enableSQLiteOptimizations(ctx context.Context, gormDB *gorm.DB, logger *slog.Logger) {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}

	for _, pragma := range pragmas {
		if err := gormDB.WithContext(ctx).Exec(pragma).Error; err != nil {
			logger.Warn("Failed to execute pragma", slog.String("pragma", pragma), slog.Any("error", err))
		} else {
			logger.Debug("Executed pragma", slog.String("pragma", pragma))
		}
	}
}
