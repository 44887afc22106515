package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"wifiportal/internal/cache"
	"wifiportal/internal/config"
	"wifiportal/internal/database"
	"wifiportal/internal/handlers"
	"wifiportal/internal/idempotency"
	"wifiportal/internal/jobs"
	"wifiportal/internal/log"
	"wifiportal/internal/metrics"
	"wifiportal/internal/queue"
	"wifiportal/internal/server"
	"wifiportal/internal/service"
	"wifiportal/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	ctx := context.Background()

	store, closeStore, err := database.OpenStore(ctx, cfg, "wifiportal-api", logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	var (
		dedup    idempotency.Deduplicator
		enqueuer service.Enqueuer
		sweepQ   jobs.Enqueuer
	)
	if redisClient != nil {
		producer := queue.NewProducer(redisClient, cfg.Queue.Stream)
		dedup = idempotency.NewRedis(redisClient, cfg.Access.IdempotencyTTL)
		enqueuer, sweepQ = producer, producer
	} else {
		logger.Warn().Msg("redis disabled, idempotency keys are process local and sweeps run in the api")
		dedup = idempotency.NewMemory(cfg.Access.IdempotencyTTL)
	}

	var objects service.ObjectStorage
	if cfg.Storage.Endpoint != "" {
		objectStore, err := storage.NewObjectStore(cfg.Storage)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init object store")
		}
		if err := objectStore.EnsureBucket(ctx); err != nil {
			logger.Warn().Err(err).Msg("ensure bucket failed")
		}
		objects = objectStore
	} else {
		logger.Info().Msg("object storage not configured, voucher exports disabled")
	}

	m := metrics.New()
	access := service.NewAccessService(store, cfg.Access, logger,
		service.WithDeduplicator(dedup),
		service.WithMetrics(m),
	)

	handlerSet := handlers.NewHandlerSet(logger, cfg, store, redisClient, handlers.Services{
		Auth:      service.NewAuthService(store, cfg, logger),
		Access:    access,
		Hotspots:  service.NewHotspotService(store, logger),
		Vouchers:  service.NewVoucherService(store, cfg.Access.PortalURL),
		Dashboard: service.NewDashboardService(store, nil),
		Exports:   service.NewExportService(store, objects, enqueuer, cfg.Storage.PresignTTL, logger),
	})
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet, m)

	scheduler := jobs.NewScheduler(sweepQ, access, cfg.Access.SweepSchedule, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, closeStore, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, closeStore func(), redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn().Msg("sweep still running at shutdown")
	}

	closeStore()
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("redis close error")
		}
	}

	logger.Info().Msg("server exited cleanly")
}
