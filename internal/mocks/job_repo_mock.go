package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"gorm.io/datatypes"

	"github.com/caseforge/docstream/internal/models"
)

type JobRepoMock struct {
	mock.Mock
}

func (m *JobRepoMock) Create(ctx context.Context, job *models.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *JobRepoMock) Get(ctx context.Context, id string) (*models.Job, error) {
	args := m.Called(ctx, id)

	job, _ := args.Get(0).(*models.Job)
	return job, args.Error(1)
}

func (m *JobRepoMock) FindActiveByDedupKey(ctx context.Context, key string) (*models.Job, error) {
	args := m.Called(ctx, key)

	job, _ := args.Get(0).(*models.Job)
	return job, args.Error(1)
}

func (m *JobRepoMock) CancelQueued(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *JobRepoMock) AcquireNext(ctx context.Context, workerID string, lockDuration time.Duration) (*models.Job, error) {
	args := m.Called(ctx, workerID, lockDuration)

	job, _ := args.Get(0).(*models.Job)
	return job, args.Error(1)
}

func (m *JobRepoMock) RetryLater(ctx context.Context, id string, attempts int, nextRun time.Time, errMsg string) error {
	args := m.Called(ctx, id, attempts, nextRun, errMsg)
	return args.Error(0)
}

func (m *JobRepoMock) MarkCompleted(ctx context.Context, id string, result datatypes.JSON) error {
	args := m.Called(ctx, id, result)
	return args.Error(0)
}

func (m *JobRepoMock) MarkFailed(ctx context.Context, id string, errMsg string) error {
	args := m.Called(ctx, id, errMsg)
	return args.Error(0)
}

func (m *JobRepoMock) ListStuck(ctx context.Context, olderThan time.Duration) ([]models.Job, error) {
	args := m.Called(ctx, olderThan)

	jobs, _ := args.Get(0).([]models.Job)
	return jobs, args.Error(1)
}

func (m *JobRepoMock) Release(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
