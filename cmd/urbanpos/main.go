// Package main запускает HTTP-сервер кассового сервиса UrbanPOS.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/urbanpos/internal/checkout"
	"github.com/mmeshcher/urbanpos/internal/config"
	"github.com/mmeshcher/urbanpos/internal/handler"
	"github.com/mmeshcher/urbanpos/internal/middleware"
	"github.com/mmeshcher/urbanpos/internal/ratesync"
	"github.com/mmeshcher/urbanpos/internal/repository"
	"github.com/mmeshcher/urbanpos/internal/service"
)

// store объединяет контракты сервиса и синхронизатора курсов.
type store interface {
	service.Repository
	ratesync.Store
}

func openStore(cfg *config.Config, sugar *zap.SugaredLogger) (store, error) {
	if cfg.DatabaseURI == "" {
		sugar.Warn("DATABASE_URI is empty, using in-memory store")
		return repository.NewMemoryRepository(), nil
	}
	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := openStore(cfg, sugar)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	var (
		syncer     *ratesync.Syncer
		rateSyncer service.RateSyncer
	)
	if cfg.RatesAppID != "" {
		client := ratesync.NewClient(cfg.RatesBaseURL, cfg.RatesAppID, logger)
		syncer = ratesync.NewSyncer(client, repo, logger)
		rateSyncer = syncer
	} else {
		sugar.Warn("OPEN_EXCHANGE_RATES_APP_ID is empty, exchange rate sync disabled")
	}

	if cfg.MasterKey == "" {
		sugar.Warn("MASTER_KEY is empty, only stored access keys can log in")
	}

	coordinator := checkout.NewCoordinator(repo, logger)
	svc := service.NewService(repo, coordinator, rateSyncer, cfg.MasterKey)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.SessionSecret).WithVerifier(svc)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Периодическая синхронизация курсов валют
	if syncer != nil {
		g.Go(func() error {
			syncer.Run(ctx, cfg.RateSyncInterval)
			return nil
		})
	}

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting urbanpos server", "addr", cfg.RunAddress)
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
