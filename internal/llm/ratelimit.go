package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"annotext/internal/port"
)

// RateLimitedClient spaces calls to stay under a requests-per-minute budget.
type RateLimitedClient struct {
	next    port.CompletionClient
	limiter *rate.Limiter
}

// NewRateLimitedClient wraps next with a limiter allowing perMinute calls
// per minute and a burst of one.
func NewRateLimitedClient(next port.CompletionClient, perMinute int) *RateLimitedClient {
	return &RateLimitedClient{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

func (c *RateLimitedClient) Complete(ctx context.Context, req port.CompletionRequest) (*port.Completion, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}
	return c.next.Complete(ctx, req)
}
