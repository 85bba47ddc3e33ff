package port

import (
	"context"
	"time"

	"github.com/google/uuid"

	"annotext/internal/domain"
)

// EntityTx is the set of entity mutations available inside a document-scoped transaction.
type EntityTx interface {
	CreateBatch(ctx context.Context, entities []domain.Entity) error
	SetVerification(ctx context.Context, documentID uuid.UUID, ids []uuid.UUID, verified bool, by *uuid.UUID, notes string, at time.Time) (int64, error)
	SoftDelete(ctx context.Context, documentID uuid.UUID, ids []uuid.UUID, at time.Time) (int64, error)
	SoftDeleteUnverified(ctx context.Context, documentID uuid.UUID, source domain.EntitySource, at time.Time) (int64, error)
	EnsureEntityTypes(ctx context.Context, names []string) error
	ListLiveSpans(ctx context.Context, documentID uuid.UUID) ([]domain.EntitySpan, error)
	CountByDocument(ctx context.Context, documentID uuid.UUID) (domain.EntityCounts, error)
	UpdateDocumentCounts(ctx context.Context, documentID uuid.UUID, counts domain.EntityCounts) error
}

// EntityRepository defines the contract for entity persistence.
type EntityRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Entity, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Entity, error)
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]domain.Entity, error)
	// WithinDocumentTx runs fn in a transaction holding the document row lock.
	// fn's error rolls the transaction back.
	WithinDocumentTx(ctx context.Context, documentID uuid.UUID, fn func(tx EntityTx) error) error
}

// EntityTypeRepository exposes the registry of known entity types.
type EntityTypeRepository interface {
	ListActiveNames(ctx context.Context) ([]string, error)
}
