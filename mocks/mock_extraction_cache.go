package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"annotext/internal/domain"
)

// MockExtractionCache is a mock implementation of port.ExtractionCache.
type MockExtractionCache struct {
	mock.Mock
}

func (m *MockExtractionCache) Get(ctx context.Context, key string) ([]domain.PositionedEntity, bool, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]domain.PositionedEntity), args.Bool(1), args.Error(2)
}

func (m *MockExtractionCache) Set(ctx context.Context, key string, entities []domain.PositionedEntity, ttl time.Duration) error {
	args := m.Called(ctx, key, entities, ttl)
	return args.Error(0)
}
