package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/caseforge/docstream/common"
	"github.com/caseforge/docstream/internal/config"
	"github.com/caseforge/docstream/internal/dto"
	"github.com/caseforge/docstream/internal/models"
	"github.com/caseforge/docstream/internal/progress"
	"github.com/caseforge/docstream/internal/statuscache"
)

// Service implements job submission: dedup-aware enqueue, pre-dispatch
// cancellation, and job lookup.
type Service struct {
	repo   JobRepoInterface
	store  statuscache.Store
	logger *slog.Logger
}

func NewService(repo JobRepoInterface, store statuscache.Store, logger *slog.Logger) *Service {
	return &Service{repo: repo, store: store, logger: logger}
}

var _ ServiceInterface = (*Service)(nil)

// Enqueue validates the submission and persists a queued job. When a
// dedup key matches an existing non-terminal job, that job's id is
// returned instead of creating a duplicate.
func (s *Service) Enqueue(ctx context.Context, in *dto.EnqueueDTO) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", common.Errf(http.StatusRequestTimeout, "request canceled or timed out")
	}

	if !json.Valid(in.Payload) {
		return "", common.Errf(http.StatusBadRequest, "payload must be valid JSON")
	}

	if !slices.Contains(config.AllowedJobTypes, in.Type) {
		return "", common.Errf(http.StatusBadRequest, "invalid job type").WithFields(map[string]any{
			"provided": in.Type,
			"allowed":  config.AllowedJobTypes,
		})
	}

	if in.DedupKey != "" {
		existing, err := s.repo.FindActiveByDedupKey(ctx, in.DedupKey)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return "", common.Errf(http.StatusInternalServerError, "failed to check dedup key")
		}
		if existing != nil {
			s.logger.Debug("dedup hit",
				slog.String("dedup_key", in.DedupKey),
				slog.String("job_id", existing.ID),
			)
			return existing.ID, nil
		}
	}

	retryLimit := in.RetryLimit
	if retryLimit == 0 {
		retryLimit = 3
	}

	job := models.Job{
		ID:          uuid.NewString(),
		Type:        in.Type,
		Payload:     datatypes.JSON(in.Payload),
		Priority:    in.Priority,
		DedupKey:    in.DedupKey,
		Status:      models.StatusQueued,
		RetryLimit:  retryLimit,
		AvailableAt: time.Now().Add(time.Duration(in.StartDelayMS) * time.Millisecond),
	}

	if err := s.repo.Create(ctx, &job); err != nil {
		switch {
		case errors.Is(err, ErrDedupConflict):
			// A concurrent submission won the dedup race between our
			// check and the insert. Answer with the winner's id.
			winner, findErr := s.repo.FindActiveByDedupKey(ctx, in.DedupKey)
			if findErr != nil {
				return "", common.Errf(http.StatusConflict, "duplicate submission in flight")
			}
			return winner.ID, nil
		case errors.Is(err, context.Canceled):
			return "", common.Errf(http.StatusRequestTimeout, "request was canceled")
		case errors.Is(err, context.DeadlineExceeded):
			return "", common.Errf(http.StatusRequestTimeout, "request timeout")
		default:
			return "", common.Errf(http.StatusInternalServerError, "failed to add job to database")
		}
	}

	// Seed the snapshot so clients can stream before a worker claims the
	// job.
	pub := progress.NewPublisher(s.store, NamespaceForType(in.Type), job.ID, s.logger)
	pub.Queued(ctx, "queued")

	return job.ID, nil
}

// GetJob retrieves a job by id, mapping repository errors to API errors.
func (s *Service) GetJob(ctx context.Context, id string) (*dto.JobResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	job, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, common.Errf(http.StatusNotFound, "job not found")
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
		}
		return nil, common.Errf(http.StatusInternalServerError, "failed to get job")
	}

	return &dto.JobResponseDTO{
		ID:         job.ID,
		Type:       job.Type,
		Payload:    json.RawMessage(job.Payload),
		Priority:   job.Priority,
		DedupKey:   job.DedupKey,
		Status:     job.Status,
		Attempts:   job.Attempts,
		RetryLimit: job.RetryLimit,
		Result:     json.RawMessage(job.Result),
		Error:      job.Error,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
	}, nil
}

// Cancel succeeds only while the job is still queued. Once a worker has
// claimed it, the job runs to a terminal outcome.
func (s *Service) Cancel(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	if err := s.repo.CancelQueued(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return common.Errf(http.StatusNotFound, "job not found")
		}
		if errors.Is(err, ErrNotCancellable) {
			return common.Errf(http.StatusConflict, "job is already running or finished")
		}
		return common.Errf(http.StatusInternalServerError, "failed to cancel job")
	}

	return nil
}

// NamespaceForType maps a job type to its status-cache namespace.
func NamespaceForType(jobType string) string {
	if jobType == "normalize_case" {
		return config.NamespacePipeline
	}
	return config.NamespaceDocgen
}
