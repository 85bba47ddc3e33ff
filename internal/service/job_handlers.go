package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/charmap"

	"annotext/internal/domain"
	"annotext/internal/extraction"
	"annotext/internal/logger"
	"annotext/internal/port"
)

// ProgressFunc reports job progress. It is safe to call from several goroutines.
type ProgressFunc func(percent int, step string)

// JobHandler executes one job type. The returned result is stored on the job.
type JobHandler interface {
	Handle(ctx context.Context, job *domain.ProcessingJob, progress ProgressFunc) (json.RawMessage, error)
}

// JobHandlerFunc adapts a function to JobHandler.
type JobHandlerFunc func(ctx context.Context, job *domain.ProcessingJob, progress ProgressFunc) (json.RawMessage, error)

// Handle calls f.
func (f JobHandlerFunc) Handle(ctx context.Context, job *domain.ProcessingJob, progress ProgressFunc) (json.RawMessage, error) {
	return f(ctx, job, progress)
}

// HandlerRegistry maps job types to their handlers.
type HandlerRegistry map[domain.JobType]JobHandler

// NewHandlerRegistry wires the standard job types. custom jobs have no handler.
func NewHandlerRegistry(extractor, connectionTest, cleanup JobHandler) HandlerRegistry {
	return HandlerRegistry{
		domain.JobTypeEntityExtraction: extractor,
		domain.JobTypeLLMProcessing:    extractor,
		domain.JobTypeConnectionTest:   connectionTest,
		domain.JobTypeCleanup:          cleanup,
	}
}

// Lookup returns the handler for jobType or an ErrNoJobHandler error.
func (r HandlerRegistry) Lookup(jobType domain.JobType) (JobHandler, error) {
	h, ok := r[jobType]
	if !ok || h == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoJobHandler, jobType)
	}
	return h, nil
}

// ExtractionHandlerConfig holds settings for the extraction handler.
type ExtractionHandlerConfig struct {
	Bucket              string
	ApplyConfidenceGate bool
}

// ExtractionHandler runs entity extraction for one document.
type ExtractionHandler struct {
	docRepo  port.DocumentRepository
	storage  port.ObjectStorage
	typeRepo port.EntityTypeRepository
	entities EntityService
	models   LLMConfigService
	engine   *extraction.Engine
	cfg      ExtractionHandlerConfig
	log      *logger.Logger
}

// NewExtractionHandler creates a new ExtractionHandler. storage may be nil when
// every document carries its text inline.
func NewExtractionHandler(
	docRepo port.DocumentRepository,
	storage port.ObjectStorage,
	typeRepo port.EntityTypeRepository,
	entities EntityService,
	models LLMConfigService,
	engine *extraction.Engine,
	cfg ExtractionHandlerConfig,
	log *logger.Logger,
) *ExtractionHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ExtractionHandler{
		docRepo:  docRepo,
		storage:  storage,
		typeRepo: typeRepo,
		entities: entities,
		models:   models,
		engine:   engine,
		cfg:      cfg,
		log:      log,
	}
}

// ExtractionResult is stored as the result of an extraction job.
type ExtractionResult struct {
	EntitiesExtracted   int               `json:"entities_extracted"`
	EntitiesDropped     int               `json:"entities_dropped"`
	UnmatchedCandidates int               `json:"unmatched_candidates"`
	TotalEntities       int               `json:"total_entities"`
	VerifiedEntities    int               `json:"verified_entities"`
	Chunks              int               `json:"chunks"`
	CacheHit            bool              `json:"cache_hit"`
	TokensUsed          int               `json:"tokens_used"`
	Model               string            `json:"model,omitempty"`
	PromptType          domain.PromptType `json:"prompt_type,omitempty"`
	ProcessingSeconds   float64           `json:"processing_seconds"`
}

func (h *ExtractionHandler) Handle(ctx context.Context, job *domain.ProcessingJob, progress ProgressFunc) (json.RawMessage, error) {
	if job.DocumentID == nil {
		return nil, domain.NewValidationError("document_id", "extraction job has no document")
	}
	payload, err := job.DecodePayload()
	if err != nil {
		return nil, &domain.ValidationError{Field: "payload", Message: err.Error(), Err: err}
	}

	progress(5, "Loading document")
	doc, err := h.docRepo.GetByID(ctx, *job.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("extractionHandler: %w", err)
	}
	if err := h.docRepo.UpdateProcessingStatus(ctx, doc.ID, domain.DocumentStatusProcessing, nil); err != nil {
		h.log.Warn("marking document processing failed", "document_id", doc.ID, "error", err)
	}

	text, err := h.loadText(ctx, doc)
	if err != nil {
		return nil, err
	}
	log := h.log.With("job_id", job.ID, "document_id", doc.ID)

	if strings.TrimSpace(text) == "" {
		log.Info("document has no text, clearing extracted entities")
		counts, err := h.entities.ReplaceExtracted(ctx, doc.ID, nil, job.RequestedBy)
		if err != nil {
			return nil, err
		}
		h.markCompleted(ctx, doc.ID)
		return json.Marshal(ExtractionResult{TotalEntities: counts.Total, VerifiedEntities: counts.Verified})
	}

	progress(10, "Resolving model")
	resolved, err := h.models.ResolveModel(ctx, payload.ModelID)
	if err != nil {
		return nil, err
	}
	cfg, err := h.models.ResolveConfig(ctx, resolved.Model, payload.ConfigID)
	if err != nil {
		return nil, err
	}

	promptType := payload.PromptType
	if promptType == "" {
		promptType = cfg.PromptType
	}

	res, err := h.engine.Extract(ctx, extraction.ExtractRequest{
		Text:       text,
		PromptType: promptType,
		Model:      resolved.Model,
		Config:     *cfg,
		Client:     resolved.Client,
		Types:      h.entityTypes(ctx),
		OnProgress: func(done, total int) {
			progress(10+done*80/total, fmt.Sprintf("Processed chunk %d/%d", done, total))
		},
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	kept, dropped := res.Entities, 0
	if h.cfg.ApplyConfidenceGate {
		kept, dropped = applyConfidenceGate(res.Entities, cfg.ConfidenceThreshold)
	}

	progress(92, "Saving entities")
	counts, err := h.entities.ReplaceExtracted(ctx, doc.ID, kept, job.RequestedBy)
	if err != nil {
		return nil, err
	}
	h.markCompleted(ctx, doc.ID)

	log.Info("extraction finished",
		"entities", len(kept), "dropped", dropped, "unmatched", res.Stats.Unmatched,
		"chunks", res.Stats.Chunks, "cache_hit", res.Stats.CacheHit)

	return json.Marshal(ExtractionResult{
		EntitiesExtracted:   len(kept),
		EntitiesDropped:     dropped,
		UnmatchedCandidates: res.Stats.Unmatched,
		TotalEntities:       counts.Total,
		VerifiedEntities:    counts.Verified,
		Chunks:              res.Stats.Chunks,
		CacheHit:            res.Stats.CacheHit,
		TokensUsed:          res.Stats.TokensUsed,
		Model:               res.Stats.Model,
		PromptType:          res.Stats.PromptType,
		ProcessingSeconds:   res.Stats.Duration.Seconds(),
	})
}

func (h *ExtractionHandler) markCompleted(ctx context.Context, documentID uuid.UUID) {
	now := time.Now().UTC()
	if err := h.docRepo.UpdateProcessingStatus(ctx, documentID, domain.DocumentStatusCompleted, &now); err != nil {
		h.log.Warn("marking document completed failed", "document_id", documentID, "error", err)
	}
}

// loadText returns the inline content, or downloads the stored file.
func (h *ExtractionHandler) loadText(ctx context.Context, doc *domain.Document) (string, error) {
	if doc.Content != "" || doc.FileKey == "" {
		return doc.Content, nil
	}
	if h.storage == nil {
		return "", fmt.Errorf("extractionHandler: document %s is stored externally: %w", doc.ID, domain.ErrConfiguration)
	}
	raw, err := h.storage.Download(ctx, h.cfg.Bucket, doc.FileKey)
	if err != nil {
		return "", fmt.Errorf("extractionHandler: downloading %s: %w", doc.FileKey, err)
	}
	return decodeText(raw)
}

// decodeText reads raw as UTF-8, falling back to Latin-1.
func decodeText(raw []byte) (string, error) {
	if utf8.Valid(raw) {
		return string(raw), nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decoding document text: %w", err)
	}
	return string(decoded), nil
}

func (h *ExtractionHandler) entityTypes(ctx context.Context) extraction.TypeSet {
	names, err := h.typeRepo.ListActiveNames(ctx)
	if err != nil || len(names) == 0 {
		if err != nil {
			h.log.Warn("loading entity types failed, using defaults", "error", err)
		}
		names = domain.DefaultEntityTypes
	}
	return extraction.NewTypeSet(names)
}

func applyConfidenceGate(ents []domain.PositionedEntity, threshold float64) ([]domain.PositionedEntity, int) {
	kept := make([]domain.PositionedEntity, 0, len(ents))
	for _, e := range ents {
		if e.Confidence >= threshold {
			kept = append(kept, e)
		}
	}
	return kept, len(ents) - len(kept)
}

// Connection test parameters.
const (
	connectionTestPrompt = "Test message"
	connectionTestSystem = "Respond with 'OK'"
)

// NewConnectionTestHandler sends a minimal prompt through the resolved model.
func NewConnectionTestHandler(models LLMConfigService, log *logger.Logger) JobHandler {
	if log == nil {
		log = logger.Nop()
	}
	return JobHandlerFunc(func(ctx context.Context, job *domain.ProcessingJob, progress ProgressFunc) (json.RawMessage, error) {
		payload, err := job.DecodePayload()
		if err != nil {
			return nil, &domain.ValidationError{Field: "payload", Message: err.Error(), Err: err}
		}
		progress(10, "Resolving model")
		resolved, err := models.ResolveModel(ctx, payload.ModelID)
		if err != nil {
			return nil, err
		}

		progress(50, "Calling provider")
		started := time.Now()
		comp, err := resolved.Client.Complete(ctx, port.CompletionRequest{
			SystemMessage: connectionTestSystem,
			Prompt:        connectionTestPrompt,
			MaxTokens:     10,
			Temperature:   0,
		})
		if err != nil {
			return nil, err
		}
		latency := time.Since(started)
		log.Info("connection test succeeded", "model", resolved.Model.Name, "latency_ms", latency.Milliseconds())

		return json.Marshal(map[string]any{
			"success":          true,
			"model":            resolved.Model.Name,
			"provider":         comp.Provider,
			"response":         comp.Text,
			"response_time_ms": latency.Milliseconds(),
			"tokens_used":      comp.TokensUsed(),
		})
	})
}

// NewCleanupHandler soft-retires terminal jobs older than the payload's
// older_than_days, or defaultDays when unset.
func NewCleanupHandler(jobRepo port.JobRepository, defaultDays int, log *logger.Logger) JobHandler {
	if log == nil {
		log = logger.Nop()
	}
	return JobHandlerFunc(func(ctx context.Context, job *domain.ProcessingJob, progress ProgressFunc) (json.RawMessage, error) {
		payload, err := job.DecodePayload()
		if err != nil {
			return nil, &domain.ValidationError{Field: "payload", Message: err.Error(), Err: err}
		}
		days := payload.OlderThanDays
		if days <= 0 {
			days = defaultDays
		}
		if days <= 0 {
			return nil, fmt.Errorf("cleanup: retention window is not set: %w", domain.ErrConfiguration)
		}

		progress(10, fmt.Sprintf("Retiring jobs older than %d days", days))
		cutoff := time.Now().UTC().AddDate(0, 0, -days)
		n, err := jobRepo.RetireTerminalBefore(ctx, cutoff)
		if err != nil {
			return nil, fmt.Errorf("cleanup: %w", err)
		}
		log.Info("retired old jobs", "count", n, "older_than_days", days)
		return json.Marshal(map[string]any{"jobs_retired": n, "older_than_days": days})
	})
}
