// ABOUTME: Entry point for the reader sync service
// ABOUTME: Wires config, storage, services and the HTTP surface, then runs until signalled

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"reader-sync/config"
	"reader-sync/driver"
	"reader-sync/handler"
	"reader-sync/models"
	"reader-sync/repository"
	"reader-sync/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("Starting service", "service", cfg.ServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Service terminated with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	pool, err := repository.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := repository.EnsureSchema(ctx, pool); err != nil {
		return err
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return err
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return err
	}

	articles := repository.NewPostgresArticleRepository(pool, logger)
	queueRepo := repository.NewPostgresSyncQueueRepository(pool, logger)
	sessions := repository.NewRedisSessionStateRepository(redisClient, logger)
	legacy := repository.NewPostgresLegacyStoreRepository(pool, logger)
	quota := repository.NewPostgresQuotaEstimator(pool, cfg.Storage.QuotaBytes)

	rateLimits := service.NewRateLimitManager(cfg.RateLimit.DailyLimit, sessions, logger)
	if err := rateLimits.Load(ctx); err != nil {
		logger.Warn("Could not restore rate limit snapshot", "error", err)
	}

	syncClient := driver.NewSyncAPIClient(
		cfg.SyncAPI.BaseURL,
		cfg.SyncAPI.Timeout,
		func(state *models.RateLimitState) {
			rateLimits.UpdateFromHeaders(context.Background(), state)
		},
		logger,
	)

	queue := service.NewOutboundQueueService(queueRepo, syncClient, logger)
	engine := service.NewArticleQueryEngine(articles, sessions, logger)
	readState := service.NewReadStateService(articles, sessions, queue, engine, logger)
	fullSync := service.NewFullSyncService(
		syncClient, queue, rateLimits, articles, engine,
		cfg.RateLimit.FullSyncCost, logger)
	steward := service.NewStorageStewardService(
		articles, legacy, quota,
		cfg.Storage.ArticleCeiling,
		cfg.Storage.MigrationBatchSize,
		cfg.Storage.MigrationBatchDelay,
		logger)

	e := handler.NewRouter(handler.Dependencies{
		Engine:    engine,
		ReadState: readState,
		FullSync:  fullSync,
		Queue:     queue,
		Steward:   steward,
		Logger:    logger,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(":" + cfg.HTTP.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.Info("HTTP server listening", "port", cfg.HTTP.Port)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
