package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"siteCMS/internal/config"
	"siteCMS/internal/database"
	"siteCMS/internal/metrics"
	"siteCMS/internal/notify"
	"siteCMS/internal/render"
	"siteCMS/internal/storage"
	"siteCMS/internal/store"
	"siteCMS/internal/tasks"
	"siteCMS/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	var db *gorm.DB
	if cfg.Sections.Store == config.SectionsStoreDatabase {
		var err error
		db, err = database.InitDatabase(cfg.Database, logger)
		if err != nil {
			log.Fatalf("init database: %v", err)
		}
		logger.Info("database connection ready for worker")
	}

	repo, err := store.New(cfg.Sections, db)
	if err != nil {
		log.Fatalf("init sections store: %v", err)
	}

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	logger.Info("storage client ready", slog.String("bucket", cfg.MinIO.Bucket))

	redisAddr := cfg.Redis.Addr()
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	var preview worker.Screenshotter
	if cfg.Worker.PreviewEnabled {
		preview = worker.NewRodScreenshotter(logger)
	}

	publishHandler := worker.NewPublishTaskHandler(repo, render.MustNew(), storageClient, notify.NewPublisher(redisClient), preview, logger)

	server := asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Queues:      map[string]int{tasks.QueuePublish: 1},
	})

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeSectionsPublish, publishHandler)

	logger.Info("worker service started",
		slog.String("redis_addr", redisAddr),
		slog.Int("concurrency", cfg.Worker.Concurrency),
		slog.Bool("preview", cfg.Worker.PreviewEnabled),
	)
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
