package llm

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"annotext/internal/config"
	"annotext/internal/domain"
	"annotext/internal/port"
)

// DefaultTimeout bounds a single provider call when the model sets none.
const DefaultTimeout = 300 * time.Second

// ProviderConfig is everything a provider client needs to talk to one model.
type ProviderConfig struct {
	ModelID     uuid.UUID
	Provider    domain.Provider
	APIKey      string
	Model       string
	BaseURL     string
	TimeoutSecs int
	CostPer1K   float64
	RatePerMin  int
}

// Timeout returns the configured per-call timeout.
func (c *ProviderConfig) Timeout() time.Duration {
	if c.TimeoutSecs <= 0 {
		return DefaultTimeout
	}
	return time.Duration(c.TimeoutSecs) * time.Second
}

// FromModel builds a ProviderConfig from a stored model row.
func FromModel(m *domain.LLMModel) *ProviderConfig {
	return &ProviderConfig{
		ModelID:     m.ID,
		Provider:    m.Provider,
		APIKey:      m.APIKey,
		Model:       m.ModelName,
		BaseURL:     m.APIBaseURL,
		TimeoutSecs: m.TimeoutSecs,
		CostPer1K:   m.CostPer1KTokens,
		RatePerMin:  m.RateLimitPerMinute,
	}
}

// FromConfig builds a ProviderConfig from static configuration, used when no
// model row exists.
func FromConfig(c *config.LLMProviderConfig) *ProviderConfig {
	return &ProviderConfig{
		Provider:    domain.Provider(c.Provider),
		APIKey:      c.APIKey,
		Model:       c.DefaultModel,
		BaseURL:     c.BaseURL,
		TimeoutSecs: c.TimeoutSecs,
		CostPer1K:   c.CostPer1K,
		RatePerMin:  c.RatePerMin,
	}
}

// ProviderFactory creates a CompletionClient from a provider config.
type ProviderFactory func(cfg *ProviderConfig) (port.CompletionClient, error)

var (
	mu        sync.RWMutex
	providers = map[domain.Provider]ProviderFactory{}
)

// RegisterProvider registers a provider factory by name.
func RegisterProvider(name domain.Provider, factory ProviderFactory) {
	mu.Lock()
	defer mu.Unlock()
	providers[name] = factory
}

// NewClient creates a CompletionClient using the registered factory. The
// returned client stamps completions with the model id and cost, and waits
// on a per-model limiter when RatePerMin is set.
func NewClient(cfg *ProviderConfig) (port.CompletionClient, error) {
	mu.RLock()
	factory, ok := providers[cfg.Provider]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedProvider, cfg.Provider)
	}
	client, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("llm.NewClient(%s): %w", cfg.Provider, err)
	}
	client = &meteredClient{next: client, modelID: cfg.ModelID, costPer1K: cfg.CostPer1K}
	if cfg.RatePerMin > 0 {
		client = NewRateLimitedClient(client, cfg.RatePerMin)
	}
	return client, nil
}
