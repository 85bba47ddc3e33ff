package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"annotext/internal/domain"
	"annotext/internal/port"
)

// MockEntityRepo is a mock implementation of port.EntityRepository.
// WithinDocumentTx runs fn against Tx when the expectation returns nil.
type MockEntityRepo struct {
	mock.Mock
	Tx *MockEntityTx
}

func (m *MockEntityRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Entity, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Entity), args.Error(1)
}

func (m *MockEntityRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Entity, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Entity), args.Error(1)
}

func (m *MockEntityRepo) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]domain.Entity, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Entity), args.Error(1)
}

func (m *MockEntityRepo) WithinDocumentTx(ctx context.Context, documentID uuid.UUID, fn func(tx port.EntityTx) error) error {
	args := m.Called(ctx, documentID)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(m.Tx)
}

// MockEntityTx is a mock implementation of port.EntityTx.
type MockEntityTx struct {
	mock.Mock
}

func (m *MockEntityTx) CreateBatch(ctx context.Context, entities []domain.Entity) error {
	args := m.Called(ctx, entities)
	return args.Error(0)
}

func (m *MockEntityTx) SetVerification(ctx context.Context, documentID uuid.UUID, ids []uuid.UUID, verified bool, by *uuid.UUID, notes string, at time.Time) (int64, error) {
	args := m.Called(ctx, documentID, ids, verified, by, notes, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockEntityTx) SoftDelete(ctx context.Context, documentID uuid.UUID, ids []uuid.UUID, at time.Time) (int64, error) {
	args := m.Called(ctx, documentID, ids, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockEntityTx) SoftDeleteUnverified(ctx context.Context, documentID uuid.UUID, source domain.EntitySource, at time.Time) (int64, error) {
	args := m.Called(ctx, documentID, source, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockEntityTx) EnsureEntityTypes(ctx context.Context, names []string) error {
	args := m.Called(ctx, names)
	return args.Error(0)
}

func (m *MockEntityTx) ListLiveSpans(ctx context.Context, documentID uuid.UUID) ([]domain.EntitySpan, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.EntitySpan), args.Error(1)
}

func (m *MockEntityTx) CountByDocument(ctx context.Context, documentID uuid.UUID) (domain.EntityCounts, error) {
	args := m.Called(ctx, documentID)
	return args.Get(0).(domain.EntityCounts), args.Error(1)
}

func (m *MockEntityTx) UpdateDocumentCounts(ctx context.Context, documentID uuid.UUID, counts domain.EntityCounts) error {
	args := m.Called(ctx, documentID, counts)
	return args.Error(0)
}

// MockEntityTypeRepo is a mock implementation of port.EntityTypeRepository.
type MockEntityTypeRepo struct {
	mock.Mock
}

func (m *MockEntityTypeRepo) ListActiveNames(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
