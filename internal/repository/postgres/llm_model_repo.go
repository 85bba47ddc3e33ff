package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"annotext/internal/domain"
	"annotext/internal/port"
)

type llmModelRepo struct {
	db *sqlx.DB
}

// NewLLMModelRepo creates a new PostgreSQL-backed LLMModelRepository.
func NewLLMModelRepo(db *sqlx.DB) port.LLMModelRepository {
	return &llmModelRepo{db: db}
}

const llmModelColumns = `id, name, provider, model_name, api_key, api_base_url, timeout_secs,
	rate_limit_per_minute, cost_per_1k_tokens, is_active, is_default, priority,
	total_requests, successful_requests, failed_requests, cache_hits, total_tokens, total_cost,
	average_response_time, total_entities_extracted, hallucinated_candidates, last_used_at,
	created_at, updated_at`

func (r *llmModelRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.LLMModel, error) {
	var m domain.LLMModel
	err := r.db.GetContext(ctx, &m, "SELECT "+llmModelColumns+" FROM llm_models WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrModelNotFound
		}
		return nil, fmt.Errorf("llmModelRepo.GetByID: %w", err)
	}
	return &m, nil
}

func (r *llmModelRepo) ListActive(ctx context.Context) ([]domain.LLMModel, error) {
	var models []domain.LLMModel
	err := r.db.SelectContext(ctx, &models,
		`SELECT `+llmModelColumns+` FROM llm_models WHERE is_active = TRUE
		 ORDER BY is_default DESC, priority ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("llmModelRepo.ListActive: %w", err)
	}
	return models, nil
}

// RecordUsage applies one usage observation as an atomic increment so that
// concurrent workers never lose updates.
func (r *llmModelRepo) RecordUsage(ctx context.Context, ev domain.UsageEvent) error {
	if ev.ModelID == uuid.Nil {
		return nil
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()

	var (
		query string
		args  []interface{}
	)
	switch ev.Kind {
	case domain.UsageRequest:
		var ok, failed int
		if ev.Success {
			ok = 1
		} else {
			failed = 1
		}
		query = `UPDATE llm_models SET
			average_response_time = (average_response_time * total_requests + $1) / (total_requests + 1),
			total_requests = total_requests + 1,
			successful_requests = successful_requests + $2,
			failed_requests = failed_requests + $3,
			total_tokens = total_tokens + $4,
			total_cost = total_cost + $5,
			last_used_at = $6
		 WHERE id = $7`
		args = []interface{}{ev.Latency.Seconds(), ok, failed, ev.Tokens, ev.Cost, at, ev.ModelID}
	case domain.UsageCacheHit:
		query = "UPDATE llm_models SET cache_hits = cache_hits + 1, last_used_at = $1 WHERE id = $2"
		args = []interface{}{at, ev.ModelID}
	case domain.UsageOutcome:
		query = `UPDATE llm_models SET
			total_entities_extracted = total_entities_extracted + $1,
			hallucinated_candidates = hallucinated_candidates + $2
		 WHERE id = $3`
		args = []interface{}{ev.Entities, ev.Unmatched, ev.ModelID}
	default:
		return fmt.Errorf("llmModelRepo.RecordUsage: unknown usage kind %q", ev.Kind)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("llmModelRepo.RecordUsage: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrModelNotFound
	}
	return nil
}
