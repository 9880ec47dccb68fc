package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"

	"github.com/caseforge/docstream/internal/models"
	"github.com/caseforge/docstream/internal/progress"
	"github.com/caseforge/docstream/internal/queue"
	"github.com/caseforge/docstream/internal/statuscache"
)

// Worker claims one job at a time and runs it to a terminal outcome or a
// scheduled retry. A handler error never crashes the worker; panics are
// converted into handler errors and fed through the same retry
// transition.
type Worker struct {
	ID           string
	repo         queue.JobRepoInterface
	registry     *Registry
	store        statuscache.Store
	lockDuration time.Duration
	logger       *slog.Logger
	quit         chan struct{}
}

func New(id string, repo queue.JobRepoInterface, registry *Registry, store statuscache.Store, lockDuration time.Duration, logger *slog.Logger) *Worker {
	return &Worker{
		ID:           id,
		repo:         repo,
		registry:     registry,
		store:        store,
		lockDuration: lockDuration,
		logger:       logger.With(slog.String("worker_id", id)),
		quit:         make(chan struct{}),
	}
}

// Start runs the claim loop in a goroutine. The loop backs off while the
// queue is empty and resets as soon as work appears.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		currentDelay := 1 * time.Second
		maxDelay := 60 * time.Second

		for {
			job := w.pullJob(ctx)

			if job != nil {
				w.Process(ctx, job)
				currentDelay = 1 * time.Second
			} else {
				currentDelay = min(currentDelay*2, maxDelay)
			}

			select {
			case <-time.After(currentDelay):
			case <-w.quit:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (w *Worker) Stop() { close(w.quit) }

func (w *Worker) pullJob(ctx context.Context) *models.Job {
	job, err := w.repo.AcquireNext(ctx, w.ID, w.lockDuration)
	if err != nil {
		w.logger.Warn("claim failed", slog.String("error", err.Error()))
		return nil
	}
	return job
}

// Process dispatches one claimed job and applies the retry transition on
// failure. Exported so tests can drive it without the claim loop.
func (w *Worker) Process(ctx context.Context, job *models.Job) {
	handler, ok := w.registry.Resolve(job.Type)
	if !ok {
		// No handler will ever exist for this job, so retrying is
		// pointless.
		w.logger.Error("no handler registered", slog.String("type", job.Type), slog.String("job_id", job.ID))
		if err := w.repo.MarkFailed(ctx, job.ID, fmt.Sprintf("no handler for type %q", job.Type)); err != nil {
			w.logger.Error("mark failed", slog.String("error", err.Error()))
		}
		return
	}

	pub := progress.NewPublisher(w.store, handler.Namespace(), job.ID, w.logger)

	result, err := w.execute(ctx, handler, job, pub)
	if err == nil {
		if dbErr := w.repo.MarkCompleted(ctx, job.ID, datatypes.JSON(result)); dbErr != nil {
			w.logger.Error("mark completed", slog.String("job_id", job.ID), slog.String("error", dbErr.Error()))
		}
		pub.Succeed(ctx, result, "completed")
		w.logger.Info("job completed", slog.String("job_id", job.ID), slog.String("type", job.Type))
		return
	}

	attempt := job.Attempts + 1
	decision := queue.Decide(queue.RetryPolicy{
		Limit:      job.RetryLimit,
		Base:       time.Duration(job.RetryBaseMS) * time.Millisecond,
		Multiplier: job.RetryMultiplier,
	}, attempt, err)

	if decision.Retry {
		w.logger.Warn("job attempt failed, retrying",
			slog.String("job_id", job.ID),
			slog.Int("attempt", attempt),
			slog.Duration("delay", decision.Delay),
			slog.String("error", err.Error()),
		)
		nextRun := time.Now().Add(decision.Delay)
		if dbErr := w.repo.RetryLater(ctx, job.ID, attempt, nextRun, err.Error()); dbErr != nil {
			w.logger.Error("retry later", slog.String("job_id", job.ID), slog.String("error", dbErr.Error()))
		}
		return
	}

	w.logger.Error("job failed permanently",
		slog.String("job_id", job.ID),
		slog.Int("attempts", job.Attempts),
		slog.String("error", err.Error()),
	)
	if dbErr := w.repo.MarkFailed(ctx, job.ID, err.Error()); dbErr != nil {
		w.logger.Error("mark failed", slog.String("job_id", job.ID), slog.String("error", dbErr.Error()))
	}
	pub.Fail(ctx, err)
}

// execute invokes the handler with panic recovery so a throwing handler
// always resolves to the retry/failure transition.
func (w *Worker) execute(ctx context.Context, handler Handler, job *models.Job, pub *progress.Publisher) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler.Execute(ctx, job, pub)
}
