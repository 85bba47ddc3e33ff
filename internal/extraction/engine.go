package extraction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"annotext/internal/domain"
	"annotext/internal/logger"
	"annotext/internal/port"
)

// EngineConfig holds engine-wide settings.
type EngineConfig struct {
	CacheTTL         time.Duration
	ChunkConcurrency int
}

// Engine runs prompt rendering, chunking, provider calls, parsing, span
// location and caching for one text at a time.
type Engine struct {
	cache port.ExtractionCache
	usage port.UsageRecorder
	log   *logger.Logger
	cfg   EngineConfig
}

// NewEngine creates an Engine. cache and usage may be nil.
func NewEngine(cache port.ExtractionCache, usage port.UsageRecorder, log *logger.Logger, cfg EngineConfig) *Engine {
	if cfg.ChunkConcurrency <= 0 {
		cfg.ChunkConcurrency = 4
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{cache: cache, usage: usage, log: log, cfg: cfg}
}

// ExtractRequest describes one extraction.
type ExtractRequest struct {
	Text       string
	PromptType domain.PromptType
	Model      *domain.LLMModel
	Config     domain.LLMProcessingConfig
	Client     port.CompletionClient
	Types      TypeSet
	// OnProgress is called after each window finishes. It may be called concurrently.
	OnProgress func(done, total int)
}

// ExtractStats summarizes one extraction.
type ExtractStats struct {
	Chunks     int               `json:"chunks"`
	CacheHit   bool              `json:"cache_hit"`
	Candidates int               `json:"candidates"`
	Unmatched  int               `json:"unmatched_candidates"`
	TokensUsed int               `json:"tokens_used"`
	Duration   time.Duration     `json:"-"`
	Model      string            `json:"model"`
	PromptType domain.PromptType `json:"prompt_type"`
}

// ExtractResult is the engine output.
type ExtractResult struct {
	Entities []domain.PositionedEntity
	Stats    ExtractStats
}

// Extract runs the extraction pipeline. Provider failures are returned
// wrapped; unparsable output is not an error and yields zero entities.
func (e *Engine) Extract(ctx context.Context, req ExtractRequest) (*ExtractResult, error) {
	if req.Model == nil || req.Client == nil {
		return nil, fmt.Errorf("extraction.Engine.Extract: %w", domain.ErrNoActiveModel)
	}
	started := time.Now()

	promptType := req.PromptType
	if promptType == "" {
		promptType = req.Config.PromptType
	}
	if promptType == domain.PromptTypeCustom {
		if err := ValidateCustomTemplate(req.Config.CustomPrompt); err != nil {
			return nil, fmt.Errorf("extraction.Engine.Extract: %w: %w", domain.ErrConfiguration, err)
		}
	} else if _, known := Template(promptType); !known {
		e.log.Debug("unknown prompt type, using domain-specific template", "prompt_type", promptType)
		promptType = domain.PromptTypeDomainSpecific
	}

	stats := ExtractStats{Model: req.Model.ModelName, PromptType: promptType}
	key := CacheKey(req.Text, promptType, req.Model.ID, &req.Config)

	if cached, ok := e.cacheGet(ctx, key); ok {
		e.record(ctx, domain.UsageEvent{Kind: domain.UsageCacheHit, ModelID: req.Model.ID, Success: true})
		for i := range cached {
			cached[i].Meta.Cached = true
		}
		stats.CacheHit = true
		stats.Duration = time.Since(started)
		return &ExtractResult{Entities: cached, Stats: stats}, nil
	}

	loc := NewLocator(req.Text)
	windows := SplitWindows(loc.RuneLen(), req.Config.ChunkSize, req.Config.OverlapSize)
	stats.Chunks = len(windows)
	if len(windows) == 0 {
		stats.Duration = time.Since(started)
		return &ExtractResult{Entities: []domain.PositionedEntity{}, Stats: stats}, nil
	}

	perWindow := make([][]domain.PositionedEntity, len(windows))
	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.ChunkConcurrency)
	for _, w := range windows {
		w := w
		g.Go(func() error {
			ents, cands, unmatched, tokens, err := e.extractWindow(gctx, req, loc, w, promptType)
			if err != nil {
				return fmt.Errorf("chunk %d/%d: %w", w.Index+1, len(windows), err)
			}
			perWindow[w.Index] = ents

			mu.Lock()
			done++
			stats.Candidates += cands
			stats.Unmatched += unmatched
			stats.TokensUsed += tokens
			n := done
			mu.Unlock()

			if req.OnProgress != nil {
				req.OnProgress(n, len(windows))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("extraction.Engine.Extract: %w", err)
	}

	entities := MergeWindows(perWindow)
	elapsed := time.Since(started)
	for i := range entities {
		entities[i].Meta.ProcessingTime = elapsed.Seconds()
		entities[i].Meta.Model = req.Model.ModelName
		entities[i].Meta.PromptType = promptType
	}

	e.cacheSet(ctx, key, entities)
	e.record(ctx, domain.UsageEvent{
		Kind:      domain.UsageOutcome,
		ModelID:   req.Model.ID,
		Success:   true,
		Entities:  len(entities),
		Unmatched: stats.Unmatched,
	})
	if stats.Unmatched > 0 {
		e.log.Info("dropped candidates with no occurrence in source",
			"model", req.Model.ModelName, "unmatched", stats.Unmatched, "candidates", stats.Candidates)
	}

	stats.Duration = elapsed
	return &ExtractResult{Entities: entities, Stats: stats}, nil
}

func (e *Engine) extractWindow(ctx context.Context, req ExtractRequest, loc *Locator, w Window, promptType domain.PromptType) ([]domain.PositionedEntity, int, int, int, error) {
	prompt, err := RenderPrompt(promptType, loc.Slice(w.Start, w.End), req.Config.CustomPrompt)
	if err != nil {
		return nil, 0, 0, 0, err
	}

	callCtx, cancel := context.WithTimeout(ctx, req.Model.Timeout())
	defer cancel()

	callStart := time.Now()
	comp, err := req.Client.Complete(callCtx, port.CompletionRequest{
		SystemMessage: SystemMessage,
		Prompt:        prompt,
		MaxTokens:     req.Config.MaxTokens,
		Temperature:   req.Config.Temperature,
		JSONMode:      true,
	})
	latency := time.Since(callStart)
	if err != nil {
		if ctx.Err() != nil {
			// cancelled by the job or a failed sibling window
			return nil, 0, 0, 0, err
		}
		e.record(ctx, domain.UsageEvent{Kind: domain.UsageRequest, ModelID: req.Model.ID, Latency: latency})
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", domain.ErrProviderTimeout, err)
		}
		return nil, 0, 0, 0, err
	}

	modelID := req.Model.ID
	costPer1K := req.Model.CostPer1KTokens
	if comp.ModelID != uuid.Nil && comp.ModelID != modelID {
		// answered by a fallback model
		modelID = comp.ModelID
		costPer1K = comp.CostPer1K
	}
	tokens := comp.TokensUsed()
	e.record(ctx, domain.UsageEvent{
		Kind:    domain.UsageRequest,
		ModelID: modelID,
		Success: true,
		Latency: latency,
		Tokens:  tokens,
		Cost:    domain.TokenCost(tokens, costPer1K),
	})
	if comp.Truncated {
		e.log.Warn("provider output truncated", "model", comp.Model, "chunk", w.Index)
	}

	cands := ParseResponse(comp.Text, req.Types)
	ents, unmatched := loc.LocateWindow(cands, w.Start, w.End)
	for i := range ents {
		ents[i].Meta.Chunk = w.Index
	}
	return ents, len(cands), unmatched, tokens, nil
}

func (e *Engine) cacheGet(ctx context.Context, key string) ([]domain.PositionedEntity, bool) {
	if e.cache == nil {
		return nil, false
	}
	ents, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		e.log.Warn("extraction cache read failed", "error", err)
		return nil, false
	}
	return ents, ok
}

func (e *Engine) cacheSet(ctx context.Context, key string, ents []domain.PositionedEntity) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Set(ctx, key, ents, e.cfg.CacheTTL); err != nil {
		e.log.Warn("extraction cache write failed", "error", err)
	}
}

func (e *Engine) record(ctx context.Context, ev domain.UsageEvent) {
	if e.usage == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	e.usage.Record(ctx, ev)
}
