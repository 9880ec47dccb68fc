package queue

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/caseforge/docstream/internal/dto"
	"github.com/caseforge/docstream/internal/models"
)

// JobRepoInterface defines the contract for job persistence. Dispatch
// methods (AcquireNext, RetryLater, MarkCompleted, MarkFailed, Release)
// are the only writers of job state after enqueue.
type JobRepoInterface interface {
	Create(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id string) (*models.Job, error)
	FindActiveByDedupKey(ctx context.Context, key string) (*models.Job, error)
	CancelQueued(ctx context.Context, id string) error
	AcquireNext(ctx context.Context, workerID string, lockDuration time.Duration) (*models.Job, error)
	RetryLater(ctx context.Context, id string, attempts int, nextRun time.Time, errMsg string) error
	MarkCompleted(ctx context.Context, id string, result datatypes.JSON) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	ListStuck(ctx context.Context, olderThan time.Duration) ([]models.Job, error)
	Release(ctx context.Context, id string) error
}

// ServiceInterface defines the contract for job submission business logic.
type ServiceInterface interface {
	Enqueue(ctx context.Context, in *dto.EnqueueDTO) (string, error)
	GetJob(ctx context.Context, id string) (*dto.JobResponseDTO, error)
	Cancel(ctx context.Context, id string) error
}

// HandlerInterface defines the contract for HTTP request handlers.
type HandlerInterface interface {
	Enqueue(c *gin.Context)
	Get(c *gin.Context)
	Cancel(c *gin.Context)
	Status(c *gin.Context)
}
