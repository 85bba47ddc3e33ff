package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"annotext/internal/config"
	"annotext/internal/domain"
	"annotext/internal/llm"
	"annotext/internal/logger"
	"annotext/internal/port"
)

// maxFallbackModels caps how many active models one call may fall through.
const maxFallbackModels = 3

// ResolvedModel is a model row together with a ready client for it.
type ResolvedModel struct {
	Model  *domain.LLMModel
	Client port.CompletionClient
}

// LLMConfigService resolves which model and processing config a job runs
// with, and validates config changes.
type LLMConfigService interface {
	// ResolveModel returns the requested model, or the active fallback chain
	// when modelID is nil.
	ResolveModel(ctx context.Context, modelID *uuid.UUID) (*ResolvedModel, error)
	ResolveConfig(ctx context.Context, model *domain.LLMModel, configID *uuid.UUID) (*domain.LLMProcessingConfig, error)
	SaveConfig(ctx context.Context, cfg *domain.LLMProcessingConfig) (*domain.LLMProcessingConfig, error)
}

type cachedClient struct {
	stamp  string
	client port.CompletionClient
}

type llmConfigService struct {
	modelRepo  port.LLMModelRepository
	configRepo port.ProcessingConfigRepository
	static     config.LLMConfig
	defaultPT  domain.PromptType
	log        *logger.Logger

	mu      sync.Mutex
	clients map[string]cachedClient
}

// NewLLMConfigService creates a new LLMConfigService. static is used when no
// model row is active.
func NewLLMConfigService(modelRepo port.LLMModelRepository, configRepo port.ProcessingConfigRepository, static config.LLMConfig, defaultPromptType string, log *logger.Logger) LLMConfigService {
	if log == nil {
		log = logger.Nop()
	}
	pt := domain.NormalizePromptType(defaultPromptType)
	if pt == "" {
		pt = domain.PromptTypeDomainSpecific
	}
	return &llmConfigService{
		modelRepo:  modelRepo,
		configRepo: configRepo,
		static:     static,
		defaultPT:  pt,
		log:        log,
		clients:    map[string]cachedClient{},
	}
}

func (s *llmConfigService) ResolveModel(ctx context.Context, modelID *uuid.UUID) (*ResolvedModel, error) {
	if modelID != nil {
		m, err := s.modelRepo.GetByID(ctx, *modelID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("llmConfigService.ResolveModel: model %s: %w", modelID, domain.ErrNoActiveModel)
			}
			return nil, err
		}
		if !m.IsActive {
			return nil, fmt.Errorf("llmConfigService.ResolveModel: model %s is inactive: %w", m.ID, domain.ErrNoActiveModel)
		}
		client, err := s.chain(ctx, []domain.LLMModel{*m})
		if err != nil {
			return nil, err
		}
		return &ResolvedModel{Model: m, Client: client}, nil
	}

	active, err := s.modelRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("llmConfigService.ResolveModel: %w", err)
	}
	if len(active) == 0 {
		return s.resolveStatic()
	}
	if len(active) > maxFallbackModels {
		active = active[:maxFallbackModels]
	}
	client, err := s.chain(ctx, active)
	if err != nil {
		return nil, err
	}
	m := active[0]
	return &ResolvedModel{Model: &m, Client: client}, nil
}

// chain builds (or reuses) the client for models in order. The first model
// must build; later ones are skipped with a warning.
func (s *llmConfigService) chain(_ context.Context, models []domain.LLMModel) (port.CompletionClient, error) {
	stamps := make([]string, len(models))
	for i := range models {
		stamps[i] = models[i].ID.String() + "@" + models[i].UpdatedAt.Format(time.RFC3339Nano)
	}
	key := strings.Join(stamps, ",")

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[key]; ok {
		return c.client, nil
	}

	var clients []port.CompletionClient
	var names []string
	for i := range models {
		c, err := llm.NewClient(llm.FromModel(&models[i]))
		if err != nil {
			if i == 0 {
				return nil, fmt.Errorf("llmConfigService: building client for %s: %w", models[i].Name, err)
			}
			s.log.Warn("skipping fallback model", "model", models[i].Name, "error", err)
			continue
		}
		clients = append(clients, c)
		names = append(names, models[i].Name)
	}

	var client port.CompletionClient = clients[0]
	if len(clients) > 1 {
		client = llm.NewFallbackClient(clients, names, s.log)
	}
	s.clients[key] = cachedClient{stamp: key, client: client}
	return client, nil
}

// resolveStatic serves deployments that configure providers through the
// environment instead of model rows.
func (s *llmConfigService) resolveStatic() (*ResolvedModel, error) {
	if s.static.Primary.Provider == "" {
		return nil, fmt.Errorf("llmConfigService.ResolveModel: %w", domain.ErrNoActiveModel)
	}
	model := &domain.LLMModel{
		Name:            "static-" + s.static.Primary.Provider,
		Provider:        domain.Provider(s.static.Primary.Provider),
		ModelName:       s.static.Primary.DefaultModel,
		APIBaseURL:      s.static.Primary.BaseURL,
		TimeoutSecs:     s.static.Primary.TimeoutSecs,
		CostPer1KTokens: s.static.Primary.CostPer1K,
		IsActive:        true,
		IsDefault:       true,
	}

	const key = "static"
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[key]; ok {
		return &ResolvedModel{Model: model, Client: c.client}, nil
	}

	primary, err := llm.NewClient(llm.FromConfig(&s.static.Primary))
	if err != nil {
		return nil, fmt.Errorf("llmConfigService: building static primary client: %w", err)
	}
	client := primary
	if sec := s.static.SecondaryConfig(); sec != nil {
		secondary, err := llm.NewClient(llm.FromConfig(sec))
		if err != nil {
			s.log.Warn("skipping static secondary provider", "provider", sec.Provider, "error", err)
		} else {
			client = llm.NewFallbackClient(
				[]port.CompletionClient{primary, secondary},
				[]string{s.static.Primary.Provider, sec.Provider},
				s.log,
			)
		}
	}
	s.clients[key] = cachedClient{stamp: key, client: client}
	return &ResolvedModel{Model: model, Client: client}, nil
}

func (s *llmConfigService) ResolveConfig(ctx context.Context, model *domain.LLMModel, configID *uuid.UUID) (*domain.LLMProcessingConfig, error) {
	var cfg *domain.LLMProcessingConfig
	var err error
	switch {
	case configID != nil:
		cfg, err = s.configRepo.GetByID(ctx, *configID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("llmConfigService.ResolveConfig: config %s: %w", configID, domain.ErrNoActiveConfig)
		}
	case model != nil && model.ID != uuid.Nil:
		cfg, err = s.configRepo.GetActiveForModel(ctx, model.ID)
		if errors.Is(err, domain.ErrNotFound) {
			cfg, err = s.defaultConfig(model), nil
		}
	default:
		cfg = s.defaultConfig(model)
	}
	if err != nil {
		return nil, fmt.Errorf("llmConfigService.ResolveConfig: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("llmConfigService.ResolveConfig: %w: %w", domain.ErrConfiguration, err)
	}
	return cfg, nil
}

func (s *llmConfigService) defaultConfig(model *domain.LLMModel) *domain.LLMProcessingConfig {
	cfg := domain.DefaultProcessingConfig()
	cfg.PromptType = s.defaultPT
	if model != nil {
		cfg.LLMModelID = model.ID
	}
	return &cfg
}

func (s *llmConfigService) SaveConfig(ctx context.Context, cfg *domain.LLMProcessingConfig) (*domain.LLMProcessingConfig, error) {
	cfg.PromptType = domain.NormalizePromptType(string(cfg.PromptType))
	if cfg.PromptType == "" {
		cfg.PromptType = s.defaultPT
	}
	if cfg.PromptType != domain.PromptTypeCustom {
		cfg.CustomPrompt = ""
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.modelRepo.GetByID(ctx, cfg.LLMModelID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, &domain.ValidationError{Field: "llm_model_id", Message: "unknown model", Err: domain.ErrModelNotFound}
		}
		return nil, err
	}
	now := time.Now().UTC()
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now
	if err := s.configRepo.Save(ctx, cfg); err != nil {
		return nil, fmt.Errorf("llmConfigService.SaveConfig: %w", err)
	}
	return cfg, nil
}
