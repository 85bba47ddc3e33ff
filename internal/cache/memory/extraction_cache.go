package memory

import (
	"context"
	"sync"
	"time"

	"annotext/internal/domain"
	"annotext/internal/port"
)

type entry struct {
	entities  []domain.PositionedEntity
	expiresAt time.Time
}

// ExtractionCache is an in-process TTL cache used when Redis is not configured.
type ExtractionCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

var _ port.ExtractionCache = (*ExtractionCache)(nil)

// NewExtractionCache creates an empty cache.
func NewExtractionCache() *ExtractionCache {
	return &ExtractionCache{entries: map[string]entry{}, now: time.Now}
}

func (c *ExtractionCache) Get(_ context.Context, key string) ([]domain.PositionedEntity, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && !c.now().Before(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	out := make([]domain.PositionedEntity, len(e.entities))
	copy(out, e.entities)
	return out, true, nil
}

func (c *ExtractionCache) Set(_ context.Context, key string, entities []domain.PositionedEntity, ttl time.Duration) error {
	stored := make([]domain.PositionedEntity, len(entities))
	copy(stored, entities)
	c.mu.Lock()
	c.entries[key] = entry{entities: stored, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (c *ExtractionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
