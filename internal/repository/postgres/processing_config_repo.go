package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"annotext/internal/domain"
	"annotext/internal/port"
)

type processingConfigRepo struct {
	db *sqlx.DB
}

// NewProcessingConfigRepo creates a new PostgreSQL-backed ProcessingConfigRepository.
func NewProcessingConfigRepo(db *sqlx.DB) port.ProcessingConfigRepository {
	return &processingConfigRepo{db: db}
}

var errNoConfig = fmt.Errorf("processing config: %w", domain.ErrNotFound)

func (r *processingConfigRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.LLMProcessingConfig, error) {
	var cfg domain.LLMProcessingConfig
	err := r.db.GetContext(ctx, &cfg, "SELECT * FROM llm_processing_configs WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNoConfig
		}
		return nil, fmt.Errorf("processingConfigRepo.GetByID: %w", err)
	}
	return &cfg, nil
}

func (r *processingConfigRepo) GetActiveForModel(ctx context.Context, modelID uuid.UUID) (*domain.LLMProcessingConfig, error) {
	var cfg domain.LLMProcessingConfig
	err := r.db.GetContext(ctx, &cfg,
		`SELECT * FROM llm_processing_configs
		 WHERE llm_model_id = $1 AND is_active = TRUE
		 ORDER BY updated_at DESC LIMIT 1`, modelID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNoConfig
		}
		return nil, fmt.Errorf("processingConfigRepo.GetActiveForModel: %w", err)
	}
	return &cfg, nil
}

// Save upserts cfg. An active config deactivates the model's other configs in
// the same transaction so at most one stays active.
func (r *processingConfigRepo) Save(ctx context.Context, cfg *domain.LLMProcessingConfig) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if cfg.IsActive {
			if _, err := tx.ExecContext(ctx,
				`UPDATE llm_processing_configs SET is_active = FALSE, updated_at = $1
				 WHERE llm_model_id = $2 AND id <> $3 AND is_active = TRUE`,
				cfg.UpdatedAt, cfg.LLMModelID, cfg.ID); err != nil {
				return fmt.Errorf("processingConfigRepo.Save deactivate: %w", err)
			}
		}
		_, err := tx.NamedExecContext(ctx, `INSERT INTO llm_processing_configs (
			id, llm_model_id, name, chunk_size, overlap_size, max_tokens, temperature,
			confidence_threshold, prompt_type, custom_prompt, is_active, created_at, updated_at
		) VALUES (
			:id, :llm_model_id, :name, :chunk_size, :overlap_size, :max_tokens, :temperature,
			:confidence_threshold, :prompt_type, :custom_prompt, :is_active, :created_at, :updated_at
		)
		ON CONFLICT (id) DO UPDATE SET
			llm_model_id = EXCLUDED.llm_model_id, name = EXCLUDED.name,
			chunk_size = EXCLUDED.chunk_size, overlap_size = EXCLUDED.overlap_size,
			max_tokens = EXCLUDED.max_tokens, temperature = EXCLUDED.temperature,
			confidence_threshold = EXCLUDED.confidence_threshold, prompt_type = EXCLUDED.prompt_type,
			custom_prompt = EXCLUDED.custom_prompt, is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`, cfg)
		if err != nil {
			return fmt.Errorf("processingConfigRepo.Save: %w", err)
		}
		return nil
	})
}
