package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/icco/moviecatalog/handlers"
	"github.com/icco/moviecatalog/lib/catalog"
	"github.com/icco/moviecatalog/lib/config"
	"github.com/icco/moviecatalog/lib/db"
	"github.com/icco/moviecatalog/lib/lock"
	"github.com/icco/moviecatalog/lib/store"
	"github.com/icco/moviecatalog/lib/tmdb"
	"github.com/urfave/cli"
)

func makeServeCMD() cli.Command {
	return cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Serves the catalog API",
		Action:  serve,
	}
}

func serve(c *cli.Context) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DBDriver == config.DriverSQLite {
		fl := lock.NewFileLock("", logger)
		key := lock.KeyForDB(cfg.DBPath)
		ok, err := fl.TryLock(ctx, key, 5*time.Second)
		if err != nil {
			return fmt.Errorf("failed to lock database: %w", err)
		}
		if !ok {
			return fmt.Errorf("database %s is in use by another process", cfg.DBPath)
		}
		defer func() {
			if err := fl.Unlock(key); err != nil {
				logger.Error("Failed to release lock", slog.Any("error", err))
			}
		}()
	}

	gormDB, err := db.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(gormDB); err != nil {
			logger.Error("Failed to close database", slog.Any("error", err))
		}
	}()

	var feed catalog.Feed
	if cfg.TMDBAPIKey != "" {
		feed = tmdb.NewClient(cfg.TMDBAPIKey, logger, tmdb.WithBaseURL(cfg.TMDBBaseURL))
	} else {
		logger.Warn("TMDB_API_KEY is not set, popular movies are disabled")
	}

	cat := catalog.New(store.New(gormDB, logger), feed, logger)
	defer cat.Close()
	cat.Load(ctx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handlers.NewRouter(gormDB, cat, cfg.MaxImageDimension),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownErr <- srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Starting server", slog.Int("port", cfg.Port), slog.String("db_driver", cfg.DBDriver))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	if err := <-shutdownErr; err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}

	logger.Info("Stopped server")
	return nil
}
