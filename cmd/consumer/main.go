package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/V4T54L/worksync/internal/adapter/stream"
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

	log := logger.New(cfg.LogLevel)
	log.Info("starting kafka consumer worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}
	defer a.Close()
	a.StartBackground(ctx)

	consumer, err := stream.NewConsumer(stream.ConsumerConfig{
		Brokers: cfg.KafkaBrokers,
		GroupID: cfg.KafkaGroupID,
		Topics:  cfg.KafkaTopics,
	}, a.Ingest, log)
	if err != nil {
		log.Error("failed to create kafka consumer", "error", err)
		os.Exit(1)
	}

	// Batched tiers are drained here too. Redis pops are atomic, so this
	// runs safely beside the server's drainer.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Drainer.Run(ctx)
	}()

	log.Info("consumer worker started", "group", cfg.KafkaGroupID, "topics", cfg.KafkaTopics)
	if err := consumer.Run(ctx); err != nil {
		log.Error("consumer stopped with errors", "error", err)
	}

	wg.Wait()
	log.Info("consumer worker shut down gracefully")
}
