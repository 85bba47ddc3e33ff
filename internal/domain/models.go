package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Document is the externally owned text container entities are extracted from.
// Only the fields the pipeline reads or maintains are mapped.
type Document struct {
	ID                 uuid.UUID                `db:"id" json:"id"`
	ProjectID          *uuid.UUID               `db:"project_id" json:"project_id,omitempty"`
	Title              string                   `db:"title" json:"title"`
	Content            string                   `db:"content" json:"-"`
	FileKey            string                   `db:"file_key" json:"file_key,omitempty"`
	ProcessingStatus   DocumentProcessingStatus `db:"processing_status" json:"processing_status"`
	ProcessedAt        *time.Time               `db:"processed_at" json:"processed_at"`
	TotalEntities      int                      `db:"total_entities" json:"total_entities"`
	VerifiedEntities   int                      `db:"verified_entities" json:"verified_entities"`
	UnverifiedEntities int                      `db:"unverified_entities" json:"unverified_entities"`
	CreatedAt          time.Time                `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time                `db:"updated_at" json:"updated_at"`
}

// EntityCounts are the derived counters kept on a document.
type EntityCounts struct {
	Total      int `db:"total" json:"total"`
	Verified   int `db:"verified" json:"verified"`
	Unverified int `db:"unverified" json:"unverified"`
}

// EntitySpan identifies a live entity by position and type.
type EntitySpan struct {
	Start      int    `db:"start_position"`
	End        int    `db:"end_position"`
	EntityType string `db:"entity_type"`
}

// Entity is a positioned, typed span of a document.
type Entity struct {
	ID                uuid.UUID       `db:"id" json:"id"`
	DocumentID        uuid.UUID       `db:"document_id" json:"document_id"`
	Text              string          `db:"text" json:"text"`
	EntityType        string          `db:"entity_type" json:"entity_type"`
	StartPosition     int             `db:"start_position" json:"start_position"`
	EndPosition       int             `db:"end_position" json:"end_position"`
	LineNumber        int             `db:"line_number" json:"line_number"`
	ConfidenceScore   float64         `db:"confidence_score" json:"confidence_score"`
	Source            EntitySource    `db:"source" json:"source"`
	IsVerified        bool            `db:"is_verified" json:"is_verified"`
	VerifiedBy        *uuid.UUID      `db:"verified_by" json:"verified_by"`
	VerifiedAt        *time.Time      `db:"verified_at" json:"verified_at"`
	VerificationNotes string          `db:"verification_notes" json:"verification_notes"`
	ContextBefore     string          `db:"context_before" json:"context_before"`
	ContextAfter      string          `db:"context_after" json:"context_after"`
	Metadata          json.RawMessage `db:"metadata" json:"metadata"`
	CreatedBy         *uuid.UUID      `db:"created_by" json:"created_by"`
	IsDeleted         bool            `db:"is_deleted" json:"-"`
	DeletedAt         *time.Time      `db:"deleted_at" json:"-"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// Validate checks the span and confidence invariants.
func (e *Entity) Validate() error {
	if strings.TrimSpace(e.Text) == "" {
		return NewValidationError("text", "must not be empty")
	}
	if e.EntityType == "" {
		return NewValidationError("entity_type", "must not be empty")
	}
	if e.StartPosition < 0 || e.StartPosition >= e.EndPosition {
		return NewValidationError("start_position", "must be non-negative and less than end_position")
	}
	if e.ConfidenceScore < 0 || e.ConfidenceScore > 1 {
		return NewValidationError("confidence_score", "must be between 0 and 1")
	}
	return nil
}

// EntityType is a registered entity type name.
type EntityType struct {
	ID          int       `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	DisplayName string    `db:"display_name" json:"display_name"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// PositionedEntity is an extracted entity with exact character offsets.
type PositionedEntity struct {
	Text          string     `json:"text"`
	EntityType    string     `json:"entity_type"`
	Start         int        `json:"start"`
	End           int        `json:"end"`
	LineNumber    int        `json:"line_number"`
	Confidence    float64    `json:"confidence"`
	ContextBefore string     `json:"context_before,omitempty"`
	ContextAfter  string     `json:"context_after,omitempty"`
	Meta          EntityMeta `json:"meta"`
}

// EntityMeta is stored as the entity metadata column.
type EntityMeta struct {
	ProcessingTime float64    `json:"processing_time"`
	Model          string     `json:"model"`
	PromptType     PromptType `json:"prompt_type"`
	Chunk          int        `json:"chunk"`
	Cached         bool       `json:"cached,omitempty"`
}

// LLMModel is a configured provider endpoint plus its persisted usage counters.
type LLMModel struct {
	ID                     uuid.UUID  `db:"id" json:"id"`
	Name                   string     `db:"name" json:"name"`
	Provider               Provider   `db:"provider" json:"provider"`
	ModelName              string     `db:"model_name" json:"model_name"`
	APIKey                 string     `db:"api_key" json:"-"`
	APIBaseURL             string     `db:"api_base_url" json:"api_base_url"`
	TimeoutSecs            int        `db:"timeout_secs" json:"timeout_secs"`
	RateLimitPerMinute     int        `db:"rate_limit_per_minute" json:"rate_limit_per_minute"`
	CostPer1KTokens        float64    `db:"cost_per_1k_tokens" json:"cost_per_1k_tokens"`
	IsActive               bool       `db:"is_active" json:"is_active"`
	IsDefault              bool       `db:"is_default" json:"is_default"`
	Priority               int        `db:"priority" json:"priority"`
	TotalRequests          int64      `db:"total_requests" json:"total_requests"`
	SuccessfulRequests     int64      `db:"successful_requests" json:"successful_requests"`
	FailedRequests         int64      `db:"failed_requests" json:"failed_requests"`
	CacheHits              int64      `db:"cache_hits" json:"cache_hits"`
	TotalTokens            int64      `db:"total_tokens" json:"total_tokens"`
	TotalCost              float64    `db:"total_cost" json:"total_cost"`
	AverageResponseTime    float64    `db:"average_response_time" json:"average_response_time"`
	TotalEntitiesExtracted int64      `db:"total_entities_extracted" json:"total_entities_extracted"`
	HallucinatedCandidates int64      `db:"hallucinated_candidates" json:"hallucinated_candidates"`
	LastUsedAt             *time.Time `db:"last_used_at" json:"last_used_at"`
	CreatedAt              time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time  `db:"updated_at" json:"updated_at"`
}

// SuccessRate returns the percentage of successful requests.
func (m *LLMModel) SuccessRate() float64 {
	if m.TotalRequests == 0 {
		return 0
	}
	return float64(m.SuccessfulRequests) / float64(m.TotalRequests) * 100
}

// Timeout returns the hard per-call timeout for this model.
func (m *LLMModel) Timeout() time.Duration {
	if m.TimeoutSecs <= 0 {
		return 300 * time.Second
	}
	return time.Duration(m.TimeoutSecs) * time.Second
}

// Processing config defaults.
const (
	DefaultChunkSize           = 1000
	DefaultOverlapSize         = 100
	DefaultMaxTokens           = 4000
	DefaultTemperature         = 0.1
	DefaultConfidenceThreshold = 0.7
	MinCustomPromptLength      = 50
)

// LLMProcessingConfig controls how a document is chunked and sent to a model.
type LLMProcessingConfig struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	LLMModelID          uuid.UUID  `db:"llm_model_id" json:"llm_model_id"`
	Name                string     `db:"name" json:"name"`
	ChunkSize           int        `db:"chunk_size" json:"chunk_size"`
	OverlapSize         int        `db:"overlap_size" json:"overlap_size"`
	MaxTokens           int        `db:"max_tokens" json:"max_tokens"`
	Temperature         float64    `db:"temperature" json:"temperature"`
	ConfidenceThreshold float64    `db:"confidence_threshold" json:"confidence_threshold"`
	PromptType          PromptType `db:"prompt_type" json:"prompt_type"`
	CustomPrompt        string     `db:"custom_prompt" json:"custom_prompt"`
	IsActive            bool       `db:"is_active" json:"is_active"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// DefaultProcessingConfig returns a config populated with the standard defaults.
func DefaultProcessingConfig() LLMProcessingConfig {
	return LLMProcessingConfig{
		Name:                "default",
		ChunkSize:           DefaultChunkSize,
		OverlapSize:         DefaultOverlapSize,
		MaxTokens:           DefaultMaxTokens,
		Temperature:         DefaultTemperature,
		ConfidenceThreshold: DefaultConfidenceThreshold,
		PromptType:          PromptTypeDomainSpecific,
		IsActive:            true,
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *LLMProcessingConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return NewValidationError("chunk_size", "must be positive")
	}
	if c.OverlapSize < 0 {
		return NewValidationError("overlap_size", "must not be negative")
	}
	if c.OverlapSize >= c.ChunkSize {
		return NewValidationError("overlap_size", fmt.Sprintf("must be less than chunk_size (%d)", c.ChunkSize))
	}
	if c.MaxTokens <= 0 {
		return NewValidationError("max_tokens", "must be positive")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return NewValidationError("temperature", "must be between 0 and 2")
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return NewValidationError("confidence_threshold", "must be between 0 and 1")
	}
	if c.PromptType == PromptTypeCustom && !IsValidCustomPrompt(c.CustomPrompt) {
		return &ValidationError{Field: "custom_prompt", Message: ErrInvalidPromptTemplate.Error(), Err: ErrInvalidPromptTemplate}
	}
	return nil
}

// IsValidCustomPrompt reports whether a user template is usable.
func IsValidCustomPrompt(tpl string) bool {
	if len([]rune(strings.TrimSpace(tpl))) < MinCustomPromptLength {
		return false
	}
	return strings.Contains(tpl, TextPlaceholder)
}

// TextPlaceholder is substituted with the text being analyzed.
const TextPlaceholder = "{text}"

// UsageKind distinguishes the observations fed to the usage tracker.
type UsageKind string

const (
	// UsageRequest is one billed provider call, successful or not.
	UsageRequest UsageKind = "request"
	// UsageCacheHit is an extraction served from cache; it is not billed.
	UsageCacheHit UsageKind = "cache_hit"
	// UsageOutcome reports the entities kept and candidates dropped by one extraction.
	UsageOutcome UsageKind = "outcome"
)

// UsageEvent is one observation fed to the usage tracker.
type UsageEvent struct {
	Kind      UsageKind
	ModelID   uuid.UUID
	Success   bool
	Latency   time.Duration
	Tokens    int
	Cost      float64
	Entities  int
	Unmatched int
	At        time.Time
}

// TokenCost returns tokens/1000 * costPer1K.
func TokenCost(tokens int, costPer1K float64) float64 {
	return float64(tokens) / 1000 * costPer1K
}

// ProcessingStats aggregates pipeline activity for reporting.
type ProcessingStats struct {
	JobsByStatus       map[JobStatus]int `json:"jobs_by_status"`
	TotalJobs          int               `json:"total_jobs"`
	TotalEntities      int               `json:"total_entities"`
	VerifiedEntities   int               `json:"verified_entities"`
	UnverifiedEntities int               `json:"unverified_entities"`
	EntitiesByType     map[string]int    `json:"entities_by_type"`
	DocumentsProcessed int               `json:"documents_processed"`
}
