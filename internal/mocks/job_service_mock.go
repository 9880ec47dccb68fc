package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/caseforge/docstream/internal/dto"
)

type JobServiceMock struct {
	mock.Mock
}

func (m *JobServiceMock) Enqueue(ctx context.Context, in *dto.EnqueueDTO) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

func (m *JobServiceMock) GetJob(ctx context.Context, id string) (*dto.JobResponseDTO, error) {
	args := m.Called(ctx, id)

	resp, _ := args.Get(0).(*dto.JobResponseDTO)
	return resp, args.Error(1)
}

func (m *JobServiceMock) Cancel(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
