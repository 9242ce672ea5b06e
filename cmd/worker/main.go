// Package main runs the background worker: the reservation archival sweep and notification delivery.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/tablehost/backend/config"
	"github.com/tablehost/backend/internal/archival"
	"github.com/tablehost/backend/internal/realtime"
	"github.com/tablehost/backend/internal/reservations"
	"github.com/tablehost/backend/internal/worker"
	"github.com/tablehost/backend/pkg/database"
	"github.com/tablehost/backend/pkg/queue"
	"github.com/tablehost/backend/pkg/redis"
	"github.com/tablehost/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Archived batches reach API-server clients through the Redis channels; this hub has no local sockets.
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, nil)

	var exporter archival.Exporter
	if cfg.AWS.ArchiveBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			ArchiveBucket:   cfg.AWS.ArchiveBucket,
		}, logger)
		if err != nil {
			logger.Warn("archive export disabled", zap.Error(err))
		} else {
			exporter = archival.NewS3Exporter(s3Client, logger)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if !cfg.Archival.InProcess {
		scheduler := archival.NewScheduler(reservations.NewRepository(pool), hub, exporter, archival.Config{
			Interval:   cfg.Archival.Interval,
			Age:        cfg.Archival.Age,
			RunOnStart: cfg.Archival.RunOnStart,
		}, logger)
		g.Go(func() error { return scheduler.Run(gctx) })
	}

	jobQueue := queue.NewQueue(rdb.Client, logger)
	mailer := worker.LogMailer{Logger: logger.Named("mailer")}
	concurrency := cfg.Worker.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	for i := 0; i < concurrency; i++ {
		processor := worker.NewNotificationProcessor(jobQueue, mailer, logger.With(zap.Int("worker", i)))
		g.Go(func() error {
			processor.Run(gctx)
			return nil
		})
	}

	logger.Info("worker started", zap.Int("concurrency", concurrency), zap.Bool("archival", !cfg.Archival.InProcess))
	if err := g.Wait(); err != nil {
		logger.Error("worker", zap.Error(err))
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
