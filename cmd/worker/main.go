package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"wifiportal/internal/cache"
	"wifiportal/internal/config"
	"wifiportal/internal/database"
	"wifiportal/internal/log"
	"wifiportal/internal/queue"
	"wifiportal/internal/service"
	"wifiportal/internal/storage"
	"wifiportal/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Redis.Disabled {
		logger.Fatal().Msg("the worker needs redis, unset redis.disabled")
	}
	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	// the api owns migrations
	cfg.Database.Migrate = false
	store, closeStore, err := database.OpenStore(ctx, cfg, "wifiportal-worker", logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer closeStore()

	var objects service.ObjectStorage
	if cfg.Storage.Endpoint != "" {
		objectStore, err := storage.NewObjectStore(cfg.Storage)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init object store")
		}
		objects = objectStore
	}

	access := service.NewAccessService(store, cfg.Access, logger)
	exports := service.NewExportService(store, objects, nil, cfg.Storage.PresignTTL, logger)

	processor := tasks.NewProcessor(access, exports, logger)
	consumer := queue.NewConsumer(client, cfg.Queue, logger, processor)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("consumer stopped unexpectedly")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warn().Msg("consumer did not stop in time")
	}
}
