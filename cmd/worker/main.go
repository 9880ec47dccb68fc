package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/caseforge/docstream/internal/collab"
	"github.com/caseforge/docstream/internal/config"
	"github.com/caseforge/docstream/internal/docgen"
	"github.com/caseforge/docstream/internal/logging"
	"github.com/caseforge/docstream/internal/models"
	"github.com/caseforge/docstream/internal/pipeline"
	"github.com/caseforge/docstream/internal/pool"
	"github.com/caseforge/docstream/internal/statuscache"
	"github.com/caseforge/docstream/internal/storage/postgres"
	"github.com/caseforge/docstream/internal/worker"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting worker")

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

	store := statuscache.NewGORMStore(db, cfg.StatusTTL)

	sweeper, err := statuscache.NewSweeper(store, cfg.SweepSchedule, logger)
	if err != nil {
		logger.Error("invalid sweep schedule", slog.String("error", err.Error()))
		os.Exit(1)
	}
	sweeper.Start()
	defer sweeper.Stop()

	weights, err := docgen.LoadWeights(cfg.PhaseWeightsFile)
	if err != nil {
		logger.Error("invalid phase weights", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var notifier collab.Notifier = collab.NopNotifier{}
	if cfg.AMQPURL != "" {
		amqpNotifier, err := collab.NewAMQPNotifier(cfg.AMQPURL, "docstream.notifications", logger)
		if err != nil {
			logger.Error("notifier connection failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer amqpNotifier.Close()
		notifier = amqpNotifier
	}

	objects := collab.NewHTTPObjectStore(cfg.StorageURL, cfg.StorageTimeout)
	normalizer := collab.NewHTTPNormalizer(cfg.NormalizerURL, cfg.NormalizerTimeout)

	generator := docgen.NewGenerator(
		docgen.NewDirTemplates(cfg.TemplateDir),
		objects,
		notifier,
		cfg.ArtifactDir,
		weights,
		logger,
	)
	if cfg.FillToolPath != "" {
		generator.RegisterFiller("acroform", docgen.NewToolFiller(cfg.FillToolPath, cfg.FillToolTimeout, logger))
	}

	invoker := pipeline.NewInvoker(
		normalizer,
		notifier,
		pipeline.Window{Start: cfg.PipelineWindowStart, End: cfg.PipelineWindowEnd},
		cfg.PipelinePollInterval,
		logger,
	)

	registry := worker.NewRegistry()
	registry.Register(generator)
	registry.Register(invoker)
	registry.Register(worker.NewComposite("generate_and_normalize", generator, invoker))

	repo := postgres.NewJobRepository(db)
	workerPool := pool.NewWorkerPool(cfg.WorkerCount, repo, registry, store, cfg.LockDuration, logger)
	workerPool.Start()
	logger.Info("worker pool active", slog.Int("workers", cfg.WorkerCount))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	workerPool.Stop()
	logger.Info("shutdown complete")
}
