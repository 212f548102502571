package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fieldline-hq/fieldline/internal/app"
	"github.com/fieldline-hq/fieldline/internal/audit"
	"github.com/fieldline-hq/fieldline/internal/guard"
	"github.com/fieldline-hq/fieldline/internal/observability"
	"github.com/fieldline-hq/fieldline/internal/permissions"
	"github.com/fieldline-hq/fieldline/internal/platform/cache"
	"github.com/fieldline-hq/fieldline/internal/platform/db"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	permRepo := permissions.NewRepository(dbpool)
	if err := permissions.SeedCatalog(ctx, permRepo); err != nil {
		logger.Error("seed permission catalog", slog.Any("error", err))
		os.Exit(1)
	}

	// A cyclic role graph is a configuration error and aborts startup.
	graph, err := permissions.NewGraphResolver(ctx, permRepo, logger)
	if err != nil {
		logger.Error("load role graph", slog.Any("error", err))
		os.Exit(1)
	}

	decisionCache := permissions.NewCache(redisClient, cfg.PermCacheTTL)
	if err := decisionCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("cache invalidation listener", slog.Any("error", err))
	}

	auditRepo := audit.NewPGRepository(dbpool)
	auditLogger := audit.NewLogger(auditRepo, logger,
		audit.WithQueueSize(cfg.AuditQueueSize),
		audit.WithWriteMetrics(metrics))
	auditLogger.Start(ctx)
	defer auditLogger.Close()

	resolver := permissions.NewResolver(permRepo, graph, decisionCache, logger,
		permissions.WithAuditSink(auditLogger),
		permissions.WithMetrics(metrics))

	permHandler := permissions.NewHandler(logger, resolver)
	auditHandler := audit.NewHandler(logger, auditLogger, permissions.Middleware{Resolver: resolver, Logger: logger})
	lastRecordGuard := guard.New(guard.NewPGCounter(dbpool), resolver, logger,
		guard.WithAuditSink(auditLogger))
	guardHandler := guard.NewHandler(logger, lastRecordGuard)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Metrics:            metrics,
		PermissionsHandler: permHandler,
		AuditHandler:       auditHandler,
		GuardHandler:       guardHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", slog.Any("error", err))
	}
}
