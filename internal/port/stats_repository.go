package port

import (
	"context"

	"annotext/internal/domain"
)

// StatsRepository provides aggregate processing statistics queries.
type StatsRepository interface {
	GetProcessingStats(ctx context.Context) (*domain.ProcessingStats, error)
}
