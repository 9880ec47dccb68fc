package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/caseforge/docstream/internal/config"
	"github.com/caseforge/docstream/internal/logging"
	"github.com/caseforge/docstream/internal/models"
	"github.com/caseforge/docstream/internal/queue"
	"github.com/caseforge/docstream/internal/statuscache"
	"github.com/caseforge/docstream/internal/storage/postgres"
	"github.com/caseforge/docstream/internal/stream"
	"github.com/caseforge/docstream/middleware"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting api")

	dbCfg, err := postgres.LoadConfigFromEnv(ctx)
	if err != nil {
		logger.Error("failed to load db config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	db, err := postgres.ConnectDB(dbCfg, logger)
	if err != nil {
		logger.Error("database connection failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := db.AutoMigrate(&models.Job{}, &statuscache.SnapshotRecord{}); err != nil {
		logger.Error("migration failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("database connected")

	// Workers run in a separate process, so snapshots go through the
	// database-backed store. The worker binary owns the sweep.
	store := statuscache.NewGORMStore(db, cfg.StatusTTL)

	repo := postgres.NewJobRepository(db)
	service := queue.NewService(repo, store, logger)
	handler := queue.NewHandler(service, store)
	gateway := stream.NewGateway(store, cfg.StreamPollInterval, cfg.StreamHeartbeat, cfg.StreamGraceDelay, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandler(logger))

	router.POST("/jobs", handler.Enqueue)
	router.GET("/jobs/:id", handler.Get)
	router.POST("/jobs/:id/cancel", handler.Cancel)
	router.GET("/status/:namespace/:id", handler.Status)
	router.GET("/stream/:namespace/:id", gateway.Handle)

	logger.Info("listening", slog.String("addr", cfg.ListenAddr))
	if err := router.Run(cfg.ListenAddr); err != nil {
		logger.Error("server stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
