package port

import (
	"context"
	"time"

	"annotext/internal/domain"
)

// ExtractionCache stores positioned entities by extraction cache key.
// Writes are last-writer-wins; a miss never affects correctness.
type ExtractionCache interface {
	Get(ctx context.Context, key string) ([]domain.PositionedEntity, bool, error)
	Set(ctx context.Context, key string, entities []domain.PositionedEntity, ttl time.Duration) error
}

// UsageRecorder accepts per-call usage observations. Implementations must be
// safe for concurrent use.
type UsageRecorder interface {
	Record(ctx context.Context, ev domain.UsageEvent)
}
