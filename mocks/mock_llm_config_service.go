package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"annotext/internal/domain"
	"annotext/internal/service"
)

// MockLLMConfigService is a mock implementation of service.LLMConfigService.
type MockLLMConfigService struct {
	mock.Mock
}

func (m *MockLLMConfigService) ResolveModel(ctx context.Context, modelID *uuid.UUID) (*service.ResolvedModel, error) {
	args := m.Called(ctx, modelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ResolvedModel), args.Error(1)
}

func (m *MockLLMConfigService) ResolveConfig(ctx context.Context, model *domain.LLMModel, configID *uuid.UUID) (*domain.LLMProcessingConfig, error) {
	args := m.Called(ctx, model, configID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LLMProcessingConfig), args.Error(1)
}

func (m *MockLLMConfigService) SaveConfig(ctx context.Context, cfg *domain.LLMProcessingConfig) (*domain.LLMProcessingConfig, error) {
	args := m.Called(ctx, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LLMProcessingConfig), args.Error(1)
}
