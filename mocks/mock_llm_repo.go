package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"annotext/internal/domain"
)

// MockLLMModelRepo is a mock implementation of port.LLMModelRepository.
type MockLLMModelRepo struct {
	mock.Mock
}

func (m *MockLLMModelRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.LLMModel, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LLMModel), args.Error(1)
}

func (m *MockLLMModelRepo) ListActive(ctx context.Context) ([]domain.LLMModel, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.LLMModel), args.Error(1)
}

func (m *MockLLMModelRepo) RecordUsage(ctx context.Context, ev domain.UsageEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

// MockProcessingConfigRepo is a mock implementation of port.ProcessingConfigRepository.
type MockProcessingConfigRepo struct {
	mock.Mock
}

func (m *MockProcessingConfigRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.LLMProcessingConfig, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LLMProcessingConfig), args.Error(1)
}

func (m *MockProcessingConfigRepo) GetActiveForModel(ctx context.Context, modelID uuid.UUID) (*domain.LLMProcessingConfig, error) {
	args := m.Called(ctx, modelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LLMProcessingConfig), args.Error(1)
}

func (m *MockProcessingConfigRepo) Save(ctx context.Context, cfg *domain.LLMProcessingConfig) error {
	args := m.Called(ctx, cfg)
	return args.Error(0)
}
