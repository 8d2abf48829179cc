package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"siteCMS/internal/api"
	"siteCMS/internal/auth"
	"siteCMS/internal/config"
	"siteCMS/internal/database"
	"siteCMS/internal/notify"
	"siteCMS/internal/ratelimit"
	"siteCMS/internal/render"
	"siteCMS/internal/storage"
	"siteCMS/internal/store"
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
		if err := database.Migrate(db); err != nil {
			log.Fatalf("auto migrate: %v", err)
		}
		logger.Info("database ready",
			slog.String("host", cfg.Database.Host),
			slog.Int("port", cfg.Database.Port),
			slog.String("db", cfg.Database.Name),
		)
	}

	repo, err := store.New(cfg.Sections, db)
	if err != nil {
		log.Fatalf("init sections store: %v", err)
	}
	logger.Info("sections store ready", slog.String("kind", cfg.Sections.Store))

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	adminAuth, err := auth.NewAdminAuth(cfg.Admin)
	if err != nil {
		log.Fatalf("init admin auth: %v", err)
	}
	if !adminAuth.Configured() {
		logger.Warn("admin password is not configured, login is disabled")
	}

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	logger.Info("storage client ready", slog.String("bucket", cfg.MinIO.Bucket))

	var enqueuer api.TaskEnqueuer
	if cfg.Sections.PublishEnabled {
		asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()})
		defer func() {
			if err := asynqClient.Close(); err != nil {
				logger.Error("close asynq client failed", slog.Any("error", err))
			}
		}()
		enqueuer = asynqClient
	}

	var scanner api.Scanner
	if cfg.Uploads.ClamdAddr != "" {
		scanner = api.ClamdScanner{Addr: cfg.Uploads.ClamdAddr}
	}

	router := api.NewRouter(cfg, logger)
	api.RegisterRoutes(router, adminAuth, api.Handlers{
		Auth:     api.NewAuthHandler(adminAuth, ratelimit.New(redisClient, cfg.RateLimit), logger, cfg.API.Production),
		Sections: api.NewSectionsHandler(repo, render.MustNew(), enqueuer, notify.NewPublisher(redisClient), storageClient, cfg.Sections.PublishUnique, logger),
		Uploads:  api.NewUploadHandler(storageClient, scanner, cfg.Uploads.MaxBytes, logger),
		Ws:       api.NewWsHandler(redisClient, repo, logger, cfg.API.AllowedOrigins),
	})

	address := ":" + strconv.Itoa(cfg.API.Port)
	logger.Info("api listening", slog.String("addr", address), slog.Bool("publish", cfg.Sections.PublishEnabled))
	if err := router.Run(address); err != nil {
		log.Fatalf("failed to start api server: %v", err)
	}
}
