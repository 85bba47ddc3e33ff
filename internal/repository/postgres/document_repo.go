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

type documentRepo struct {
	db *sqlx.DB
}

// NewDocumentRepo creates a new PostgreSQL-backed DocumentRepository.
func NewDocumentRepo(db *sqlx.DB) port.DocumentRepository {
	return &documentRepo{db: db}
}

const documentColumns = `id, project_id, title, COALESCE(content, '') AS content, COALESCE(file_key, '') AS file_key,
	processing_status, processed_at, total_entities, verified_entities, unverified_entities,
	created_at, updated_at`

func (r *documentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	var doc domain.Document
	err := r.db.GetContext(ctx, &doc,
		"SELECT "+documentColumns+" FROM documents WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("documentRepo.GetByID: %w", err)
	}
	return &doc, nil
}

func (r *documentRepo) UpdateProcessingStatus(ctx context.Context, id uuid.UUID, status domain.DocumentProcessingStatus, processedAt *time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE documents SET processing_status = $1, processed_at = COALESCE($2, processed_at), updated_at = $3
		 WHERE id = $4`,
		status, processedAt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("documentRepo.UpdateProcessingStatus: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}
