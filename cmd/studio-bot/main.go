// Package main запускает HTTP-сервер сервиса бронирования студии.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sivanpabraj/studio-m/internal/config"
	"github.com/sivanpabraj/studio-m/internal/handler"
	"github.com/sivanpabraj/studio-m/internal/middleware"
	"github.com/sivanpabraj/studio-m/internal/notifier"
	"github.com/sivanpabraj/studio-m/internal/pricing"
	"github.com/sivanpabraj/studio-m/internal/ratelimit"
	"github.com/sivanpabraj/studio-m/internal/repository"
	"github.com/sivanpabraj/studio-m/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var limitStore ratelimit.Store
	if cfg.RedisAddress != "" {
		limitStore = ratelimit.NewRedisStore(redis.NewClient(&redis.Options{Addr: cfg.RedisAddress}))
		sugar.Infow("rate limiting backed by redis", "addr", cfg.RedisAddress)
	} else {
		mem := ratelimit.NewMemoryStore()
		mem.StartJanitor(ctx, 5*time.Minute, time.Hour)
		limitStore = mem
	}
	limiter := ratelimit.NewLimiter(limitStore, cfg.RateRules())

	var notifyClient *notifier.Client
	if cfg.NotifierAddress != "" {
		notifyClient = notifier.NewClient(cfg.NotifierAddress, logger)
	}

	svc := service.NewService(repo, limiter, pricing.NewCalculator(cfg.Rates()), notifyClient, logger, service.Options{
		OwnerActorID: cfg.OwnerActorID,
		StrictDates:  cfg.StrictDates,
		DraftTTL:     cfg.DraftTTL,
	})
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.GatewaySecret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Фоновая уборка просроченных черновиков и простаивающих сессий
	g.Go(func() error {
		svc.StartDraftCleanup(ctx, time.Hour)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting studio booking server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
