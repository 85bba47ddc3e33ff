package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"annotext/internal/domain"
	"annotext/internal/service"
)

// MockEntityService is a mock implementation of service.EntityService.
type MockEntityService struct {
	mock.Mock
}

func (m *MockEntityService) ReplaceExtracted(ctx context.Context, documentID uuid.UUID, entities []domain.PositionedEntity, by *uuid.UUID) (domain.EntityCounts, error) {
	args := m.Called(ctx, documentID, entities, by)
	return args.Get(0).(domain.EntityCounts), args.Error(1)
}

func (m *MockEntityService) CreateManual(ctx context.Context, input *service.CreateEntityInput) (*domain.Entity, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Entity), args.Error(1)
}

func (m *MockEntityService) SetVerification(ctx context.Context, input *service.VerifyInput) (int64, error) {
	args := m.Called(ctx, input)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockEntityService) Delete(ctx context.Context, ids []uuid.UUID) (int64, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockEntityService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Entity, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Entity), args.Error(1)
}

func (m *MockEntityService) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]domain.Entity, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Entity), args.Error(1)
}
