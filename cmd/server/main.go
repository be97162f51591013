// Package main is the entry point for the rate limiter server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blueberrycongee/ratelimiter/internal/config"
	"github.com/blueberrycongee/ratelimiter/internal/httpapi"
	"github.com/blueberrycongee/ratelimiter/internal/keys"
	"github.com/blueberrycongee/ratelimiter/internal/metrics"
	"github.com/blueberrycongee/ratelimiter/internal/ratelimit"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	logger.Info("starting rate limiter", "node", settings.ServiceName, "listen_addr", settings.ListenAddr)

	keyManager, err := keys.NewManager(settings.APIKeysFile, logger)
	if err != nil {
		return fmt.Errorf("load key registry: %w", err)
	}
	defer func() { _ = keyManager.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if watchErr := keyManager.Watch(ctx); watchErr != nil {
		logger.Warn("key registry hot-reload disabled", "error", watchErr)
	}
	installReloadSignalHandler(ctx, keyManager, logger)

	redisOpts, err := redis.ParseURL(settings.RedisURL)
	if err != nil {
		return fmt.Errorf("parse REDIS_URL: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)

	store := ratelimit.NewStore(redisClient)
	if err := store.Initialize(ctx); err != nil {
		return fmt.Errorf("register admission script: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Error("failed to close store client", "error", closeErr)
		}
	}()

	engine := ratelimit.NewEngine(ratelimit.EngineConfig{
		Store:         store,
		WindowSeconds: int64(settings.WindowSeconds),
	})

	reporter := metrics.NewReporter(metrics.ReporterConfig{
		ServiceName: settings.ServiceName,
		Logger:      logger,
	})
	go reporter.Run(ctx)

	handler := httpapi.NewHandler(httpapi.HandlerConfig{
		Registry:      keyManager,
		Engine:        engine,
		Reporter:      reporter,
		Logger:        logger,
		ServiceName:   settings.ServiceName,
		WindowSeconds: settings.WindowSeconds,
	})
	server := httpapi.NewServer(settings.ListenAddr, handler, settings.ReadTimeout, settings.WriteTimeout)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", settings.ListenAddr)
		if listenErr := server.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			serverErr <- listenErr
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutting down server...")
	case listenErr := <-serverErr:
		if listenErr != nil {
			return fmt.Errorf("server error: %w", listenErr)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	cancel()

	logger.Info("server stopped")
	return nil
}

// installReloadSignalHandler triggers an immediate key-registry reload on
// SIGHUP, in addition to the fsnotify-driven watch.
func installReloadSignalHandler(ctx context.Context, manager *keys.Manager, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := manager.Reload(); err != nil {
					logger.Error("SIGHUP reload failed, keeping current registry", "error", err)
				}
			}
		}
	}()
}
