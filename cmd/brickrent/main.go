package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brickrent/brickrent/internal/app"
	"github.com/brickrent/brickrent/internal/observability"
	"github.com/brickrent/brickrent/internal/ownership"
	"github.com/brickrent/brickrent/internal/platform/db"
	"github.com/brickrent/brickrent/internal/provider"
	"github.com/brickrent/brickrent/internal/revenue"
	"github.com/brickrent/brickrent/internal/settlement"
	"github.com/brickrent/brickrent/internal/shared"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	earningsCache := settlement.NewCache(redisClient, cfg.EarningsCacheTTL)

	providerClient := provider.NewClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey, cfg.ProviderTimeout)

	revenueRepo := revenue.NewRepository(pool)
	revenueService := revenue.NewService(revenueRepo, providerClient, auditLogger, metrics, earningsCache, logger)
	revenueHandler := revenue.NewHandler(logger, revenueService)

	ownershipRepo := ownership.NewRepository(pool)
	settlementRepo := settlement.NewRepository(pool)
	settlementService := settlement.NewService(settlementRepo, revenueRepo, ownershipRepo,
		auditLogger, metrics, earningsCache, settlement.Terms{
			FixedExpensePerQuarter: cfg.FixedExpensePerQuarter,
			ManagementFeePercent:   cfg.ManagementFeePercent,
		}, logger)
	settlementHandler := settlement.NewHandler(logger, settlementService)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Pool:              pool,
		Metrics:           metrics,
		RevenueHandler:    revenueHandler,
		SettlementHandler: settlementHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
