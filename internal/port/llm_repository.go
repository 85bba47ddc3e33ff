package port

import (
	"context"

	"github.com/google/uuid"

	"annotext/internal/domain"
)

// LLMModelRepository provides read access to configured models and their usage counters.
type LLMModelRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.LLMModel, error)
	// ListActive returns active models, default first, then by priority.
	ListActive(ctx context.Context) ([]domain.LLMModel, error)
	RecordUsage(ctx context.Context, ev domain.UsageEvent) error
}

// ProcessingConfigRepository defines the contract for processing config persistence.
type ProcessingConfigRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.LLMProcessingConfig, error)
	GetActiveForModel(ctx context.Context, modelID uuid.UUID) (*domain.LLMProcessingConfig, error)
	Save(ctx context.Context, cfg *domain.LLMProcessingConfig) error
}
