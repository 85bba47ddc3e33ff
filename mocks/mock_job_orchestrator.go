package mocks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"annotext/internal/domain"
	"annotext/internal/service"
)

// MockJobOrchestrator is a mock implementation of service.JobOrchestrator.
type MockJobOrchestrator struct {
	mock.Mock
}

func (m *MockJobOrchestrator) job(args mock.Arguments) (*domain.ProcessingJob, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProcessingJob), args.Error(1)
}

func (m *MockJobOrchestrator) Submit(ctx context.Context, input *service.SubmitInput) (*domain.ProcessingJob, error) {
	return m.job(m.Called(ctx, input))
}

func (m *MockJobOrchestrator) SubmitBatch(ctx context.Context, input *service.BatchInput) (*domain.ProcessingJob, error) {
	return m.job(m.Called(ctx, input))
}

func (m *MockJobOrchestrator) SubmitSystemJob(ctx context.Context, jobType domain.JobType, payload domain.JobPayload, requestedBy *uuid.UUID) (*domain.ProcessingJob, error) {
	return m.job(m.Called(ctx, jobType, payload, requestedBy))
}

func (m *MockJobOrchestrator) GetStatus(ctx context.Context, id uuid.UUID) (*domain.JobStatusView, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.JobStatusView), args.Error(1)
}

func (m *MockJobOrchestrator) Cancel(ctx context.Context, id uuid.UUID) (*domain.ProcessingJob, error) {
	return m.job(m.Called(ctx, id))
}

func (m *MockJobOrchestrator) Retry(ctx context.Context, id uuid.UUID) (*domain.ProcessingJob, error) {
	return m.job(m.Called(ctx, id))
}

func (m *MockJobOrchestrator) Reset(ctx context.Context, id uuid.UUID) (*domain.ProcessingJob, error) {
	return m.job(m.Called(ctx, id))
}

func (m *MockJobOrchestrator) RecordSuccess(ctx context.Context, job *domain.ProcessingJob, result json.RawMessage) error {
	args := m.Called(ctx, job, result)
	return args.Error(0)
}

func (m *MockJobOrchestrator) RecordFailure(ctx context.Context, job *domain.ProcessingJob, err error) (domain.FailureOutcome, time.Duration, error) {
	args := m.Called(ctx, job, err)
	return args.Get(0).(domain.FailureOutcome), args.Get(1).(time.Duration), args.Error(2)
}

func (m *MockJobOrchestrator) ScheduleRetry(ctx context.Context, id uuid.UUID, delay time.Duration) error {
	args := m.Called(ctx, id, delay)
	return args.Error(0)
}

func (m *MockJobOrchestrator) RecoverStrandedRetries(ctx context.Context, failedBefore time.Time) (int, error) {
	args := m.Called(ctx, failedBefore)
	return args.Int(0), args.Error(1)
}
