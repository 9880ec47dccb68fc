package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/caseforge/docstream/internal/models"
	"github.com/caseforge/docstream/internal/queue"
)

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

var _ queue.JobRepoInterface = (*JobRepository)(nil)

// Create inserts a new job record. A duplicate-key failure on the
// partial dedup index surfaces as ErrDedupConflict so the service can
// answer with the winning job instead of a server error.
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return queue.ErrDedupConflict
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// Get retrieves a single job by id.
func (r *JobRepository) Get(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, queue.ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// FindActiveByDedupKey returns the non-terminal job holding the key, or
// ErrNotFound. At most one such job exists per key.
func (r *JobRepository) FindActiveByDedupKey(ctx context.Context, key string) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).
		Where("dedup_key = ? AND status IN ?", key, []string{
			models.StatusCreated, models.StatusQueued, models.StatusActive,
		}).
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, queue.ErrNotFound
		}
		return nil, fmt.Errorf("find by dedup key: %w", err)
	}
	return &job, nil
}

// CancelQueued flips a still-queued job to cancelled. The conditional
// update keeps the transition race-free against a concurrent claim.
func (r *JobRepository) CancelQueued(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ?", id, models.StatusQueued).
		Update("status", models.StatusCancelled)
	if res.Error != nil {
		return fmt.Errorf("cancel job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var job models.Job
		if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return queue.ErrNotFound
			}
			return fmt.Errorf("cancel job: %w", err)
		}
		return queue.ErrNotCancellable
	}
	return nil
}

// AcquireNext atomically claims the oldest eligible queued job, highest
// priority first, marks it active, and stamps the lock fields. Returns
// (nil, nil) when nothing is eligible.
func (r *JobRepository) AcquireNext(ctx context.Context, workerID string, lockDuration time.Duration) (*models.Job, error) {
	var claimed *models.Job

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job models.Job

		q := tx.Where("status = ? AND available_at <= ?", models.StatusQueued, time.Now()).
			Order("priority DESC, created_at ASC")
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		if err := q.First(&job).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		now := time.Now()
		if err := tx.Model(&models.Job{}).
			Where("id = ? AND status = ?", job.ID, models.StatusQueued).
			Updates(map[string]any{
				"status":    models.StatusActive,
				"locked_at": now,
				"locked_by": workerID,
			}).Error; err != nil {
			return err
		}

		job.Status = models.StatusActive
		job.LockedAt = &now
		job.LockedBy = workerID
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("acquire next job: %w", err)
	}
	return claimed, nil
}

// RetryLater re-queues a failed attempt with its computed backoff delay.
func (r *JobRepository) RetryLater(ctx context.Context, id string, attempts int, nextRun time.Time, errMsg string) error {
	if err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ?", id, models.StatusActive).
		Updates(map[string]any{
			"status":       models.StatusQueued,
			"attempts":     attempts,
			"available_at": nextRun,
			"error":        errMsg,
			"locked_at":    nil,
			"locked_by":    "",
		}).Error; err != nil {
		return fmt.Errorf("retry later: %w", err)
	}
	return nil
}

// MarkCompleted records the terminal success outcome and its result.
func (r *JobRepository) MarkCompleted(ctx context.Context, id string, result datatypes.JSON) error {
	if err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ?", id, models.StatusActive).
		Updates(map[string]any{
			"status":    models.StatusCompleted,
			"result":    result,
			"locked_at": nil,
			"locked_by": "",
		}).Error; err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

// MarkFailed records the terminal failure outcome with its last error.
func (r *JobRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	if err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ?", id, models.StatusActive).
		Updates(map[string]any{
			"status":    models.StatusFailed,
			"error":     errMsg,
			"locked_at": nil,
			"locked_by": "",
		}).Error; err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// ListStuck returns active jobs whose lock is older than the threshold,
// which usually means their worker died mid-flight.
func (r *JobRepository) ListStuck(ctx context.Context, olderThan time.Duration) ([]models.Job, error) {
	var jobs []models.Job
	cutoff := time.Now().Add(-olderThan)
	if err := r.db.WithContext(ctx).
		Where("status = ? AND locked_at < ?", models.StatusActive, cutoff).
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list stuck jobs: %w", err)
	}
	return jobs, nil
}

// Release puts a stuck active job back on the queue without touching its
// attempt count.
func (r *JobRepository) Release(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ?", id, models.StatusActive).
		Updates(map[string]any{
			"status":    models.StatusQueued,
			"locked_at": nil,
			"locked_by": "",
		}).Error; err != nil {
		return fmt.Errorf("release job: %w", err)
	}
	return nil
}
