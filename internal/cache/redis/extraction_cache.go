package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"annotext/internal/config"
	"annotext/internal/domain"
	"annotext/internal/port"
)

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (goredis.UniversalClient, error) {
	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        []string{cfg.Addr},
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

type extractionCache struct {
	client goredis.UniversalClient
}

// NewExtractionCache returns a Redis-backed ExtractionCache.
func NewExtractionCache(client goredis.UniversalClient) port.ExtractionCache {
	return &extractionCache{client: client}
}

func (c *extractionCache) Get(ctx context.Context, key string) ([]domain.PositionedEntity, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("extractionCache.Get: %w", err)
	}
	var ents []domain.PositionedEntity
	if err := json.Unmarshal(raw, &ents); err != nil {
		// A corrupt entry is treated as a miss and overwritten on the next Set.
		return nil, false, nil
	}
	return ents, true, nil
}

func (c *extractionCache) Set(ctx context.Context, key string, entities []domain.PositionedEntity, ttl time.Duration) error {
	raw, err := json.Marshal(entities)
	if err != nil {
		return fmt.Errorf("extractionCache.Set: marshaling: %w", err)
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("extractionCache.Set: %w", err)
	}
	return nil
}
