package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/V4T54L/worksync/internal/adapter/api"
	"github.com/V4T54L/worksync/internal/adapter/api/handler"
	"github.com/V4T54L/worksync/internal/app"
	"github.com/V4T54L/worksync/internal/pkg/config"
	"github.com/V4T54L/worksync/internal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.LogLevel)
	slog.SetDefault(logger)

	// --- Graceful Shutdown Context ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	a.StartBackground(ctx)

	stopWatch, err := a.Prompts.Watch()
	if err != nil {
		logger.Warn("prompt hot reload disabled", "error", err)
	} else {
		defer stopWatch()
	}

	scheduler, err := a.Scheduler()
	if err != nil {
		logger.Error("failed to schedule jobs", "error", err)
		os.Exit(1)
	}

	// --- Background workers ---
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.Drainer.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		scheduler.Run(ctx)
	}()

	// --- Start Admin and Metrics Server ---
	adminServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: api.NewAdminRouter(a.Admin, a.Registry, logger),
	}
	go func() {
		logger.Info("starting admin & metrics server", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin & metrics server failed", "error", err)
		}
	}()

	// --- Start API Server ---
	activity := handler.NewActivityBroker(ctx, time.Second, logger)
	router := api.NewRouter(logger, a.APIKeys, api.Services{
		Events:   a.Ingest,
		Queries:  a.Answer,
		Summary:  a.Pipeline,
		Activity: activity,
	}, cfg.MaxEventSize, a.Metrics)

	apiServer := &http.Server{
		Addr:        cfg.HTTPServerAddr,
		Handler:     router,
		ReadTimeout: 5 * time.Second,
		// A query makes two retried model calls: classification then answer.
		WriteTimeout: time.Duration(2*max(cfg.RetryAttempts, 1))*cfg.LLMTimeout + 30*time.Second,
		IdleTimeout:  15 * time.Second,
	}
	go func() {
		logger.Info("starting api server", "addr", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", "error", err)
			stop() // Trigger shutdown on server error
		}
	}()

	// --- Wait for shutdown signal ---
	<-ctx.Done()
	logger.Info("shutting down servers...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api server shutdown failed", "error", err)
	}
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin server shutdown failed", "error", err)
	}

	// Drainers flush the batched tiers before the stores close.
	wg.Wait()
	logger.Info("servers shut down gracefully")
}
