package port

import (
	"context"
	"time"

	"github.com/google/uuid"

	"annotext/internal/domain"
)

// DocumentRepository is the narrow view of document persistence the pipeline needs.
type DocumentRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error)
	UpdateProcessingStatus(ctx context.Context, id uuid.UUID, status domain.DocumentProcessingStatus, processedAt *time.Time) error
}
