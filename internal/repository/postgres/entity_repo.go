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

type entityRepo struct {
	db *sqlx.DB
}

// NewEntityRepo creates a new PostgreSQL-backed EntityRepository.
func NewEntityRepo(db *sqlx.DB) port.EntityRepository {
	return &entityRepo{db: db}
}

func (r *entityRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Entity, error) {
	var e domain.Entity
	err := r.db.GetContext(ctx, &e,
		"SELECT * FROM entities WHERE id = $1 AND is_deleted = FALSE", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEntityNotFound
		}
		return nil, fmt.Errorf("entityRepo.GetByID: %w", err)
	}
	return &e, nil
}

func (r *entityRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In("SELECT * FROM entities WHERE id IN (?) AND is_deleted = FALSE", ids)
	if err != nil {
		return nil, fmt.Errorf("entityRepo.GetByIDs: %w", err)
	}
	var entities []domain.Entity
	if err := r.db.SelectContext(ctx, &entities, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("entityRepo.GetByIDs: %w", err)
	}
	return entities, nil
}

func (r *entityRepo) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]domain.Entity, error) {
	var entities []domain.Entity
	err := r.db.SelectContext(ctx, &entities,
		`SELECT * FROM entities WHERE document_id = $1 AND is_deleted = FALSE
		 ORDER BY start_position ASC, end_position ASC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("entityRepo.ListByDocument: %w", err)
	}
	return entities, nil
}

// WithinDocumentTx takes the document row lock before running fn so that
// concurrent mutations of one document serialize across processes.
func (r *entityRepo) WithinDocumentTx(ctx context.Context, documentID uuid.UUID, fn func(tx port.EntityTx) error) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var locked uuid.UUID
		err := tx.GetContext(ctx, &locked, "SELECT id FROM documents WHERE id = $1 FOR UPDATE", documentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrDocumentNotFound
			}
			return fmt.Errorf("entityRepo.WithinDocumentTx lock: %w", err)
		}
		return fn(&entityTx{tx: tx})
	})
}

type entityTx struct {
	tx *sqlx.Tx
}

func (t *entityTx) CreateBatch(ctx context.Context, entities []domain.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	_, err := t.tx.NamedExecContext(ctx, `INSERT INTO entities (
		id, document_id, text, entity_type, start_position, end_position, line_number,
		confidence_score, source, is_verified, verified_by, verified_at, verification_notes,
		context_before, context_after, metadata, created_by, is_deleted, created_at, updated_at
	) VALUES (
		:id, :document_id, :text, :entity_type, :start_position, :end_position, :line_number,
		:confidence_score, :source, :is_verified, :verified_by, :verified_at, :verification_notes,
		:context_before, :context_after, :metadata, :created_by, FALSE, :created_at, :updated_at
	)`, entities)
	if err != nil {
		return fmt.Errorf("entityRepo.CreateBatch: %w", err)
	}
	return nil
}

func (t *entityTx) SetVerification(ctx context.Context, documentID uuid.UUID, ids []uuid.UUID, verified bool, by *uuid.UUID, notes string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var verifiedBy *uuid.UUID
	var verifiedAt *time.Time
	if verified {
		verifiedBy = by
		verifiedAt = &at
	}
	query, args, err := sqlx.In(`UPDATE entities SET
			is_verified = ?, verified_by = ?, verified_at = ?, verification_notes = ?, updated_at = ?
		 WHERE document_id = ? AND id IN (?) AND is_deleted = FALSE`,
		verified, verifiedBy, verifiedAt, notes, at, documentID, ids)
	if err != nil {
		return 0, fmt.Errorf("entityRepo.SetVerification: %w", err)
	}
	result, err := t.tx.ExecContext(ctx, t.tx.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("entityRepo.SetVerification: %w", err)
	}
	return result.RowsAffected()
}

func (t *entityTx) SoftDelete(ctx context.Context, documentID uuid.UUID, ids []uuid.UUID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`UPDATE entities SET is_deleted = TRUE, deleted_at = ?, updated_at = ?
		 WHERE document_id = ? AND id IN (?) AND is_deleted = FALSE`,
		at, at, documentID, ids)
	if err != nil {
		return 0, fmt.Errorf("entityRepo.SoftDelete: %w", err)
	}
	result, err := t.tx.ExecContext(ctx, t.tx.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("entityRepo.SoftDelete: %w", err)
	}
	return result.RowsAffected()
}

func (t *entityTx) SoftDeleteUnverified(ctx context.Context, documentID uuid.UUID, source domain.EntitySource, at time.Time) (int64, error) {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE entities SET is_deleted = TRUE, deleted_at = $1, updated_at = $1
		 WHERE document_id = $2 AND source = $3 AND is_verified = FALSE AND is_deleted = FALSE`,
		at, documentID, source)
	if err != nil {
		return 0, fmt.Errorf("entityRepo.SoftDeleteUnverified: %w", err)
	}
	return result.RowsAffected()
}

func (t *entityTx) EnsureEntityTypes(ctx context.Context, names []string) error {
	for _, name := range names {
		_, err := t.tx.ExecContext(ctx,
			`INSERT INTO entity_types (name, display_name, is_active, created_at)
			 VALUES ($1, $2, TRUE, $3)
			 ON CONFLICT (name) DO NOTHING`,
			name, displayName(name), time.Now().UTC())
		if err != nil {
			return fmt.Errorf("entityRepo.EnsureEntityTypes %q: %w", name, err)
		}
	}
	return nil
}

func (t *entityTx) ListLiveSpans(ctx context.Context, documentID uuid.UUID) ([]domain.EntitySpan, error) {
	var spans []domain.EntitySpan
	err := t.tx.SelectContext(ctx, &spans,
		`SELECT start_position, end_position, entity_type
		 FROM entities WHERE document_id = $1 AND is_deleted = FALSE`, documentID)
	if err != nil {
		return nil, fmt.Errorf("entityRepo.ListLiveSpans: %w", err)
	}
	return spans, nil
}

func (t *entityTx) CountByDocument(ctx context.Context, documentID uuid.UUID) (domain.EntityCounts, error) {
	var counts domain.EntityCounts
	err := t.tx.GetContext(ctx, &counts,
		`SELECT COUNT(*) AS total,
			COUNT(*) FILTER (WHERE is_verified) AS verified,
			COUNT(*) FILTER (WHERE NOT is_verified) AS unverified
		 FROM entities WHERE document_id = $1 AND is_deleted = FALSE`, documentID)
	if err != nil {
		return domain.EntityCounts{}, fmt.Errorf("entityRepo.CountByDocument: %w", err)
	}
	return counts, nil
}

func (t *entityTx) UpdateDocumentCounts(ctx context.Context, documentID uuid.UUID, counts domain.EntityCounts) error {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE documents SET total_entities = $1, verified_entities = $2, unverified_entities = $3, updated_at = $4
		 WHERE id = $5`,
		counts.Total, counts.Verified, counts.Unverified, time.Now().UTC(), documentID)
	if err != nil {
		return fmt.Errorf("entityRepo.UpdateDocumentCounts: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}
