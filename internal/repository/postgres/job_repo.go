package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"annotext/internal/domain"
	"annotext/internal/port"
)

type jobRepo struct {
	db *sqlx.DB
}

// NewJobRepo creates a new PostgreSQL-backed JobRepository.
func NewJobRepo(db *sqlx.DB) port.JobRepository {
	return &jobRepo{db: db}
}

// jsonb columns that may be NULL are coalesced so they scan into json.RawMessage.
const jobColumns = `id, parent_id, job_type, name, status, progress, current_step, priority,
	retry_count, max_retries, started_at, completed_at, estimated_completion, retry_after,
	COALESCE(payload, 'null'::jsonb) AS payload,
	COALESCE(result, 'null'::jsonb) AS result,
	error_message,
	COALESCE(error_details, 'null'::jsonb) AS error_details,
	document_id, project_id, requested_by, notification_sent,
	created_at, updated_at, deleted_at`

var jsonNull = []byte("null")

func normalizeJob(j *domain.ProcessingJob) {
	if bytes.Equal(j.Payload, jsonNull) {
		j.Payload = nil
	}
	if bytes.Equal(j.Result, jsonNull) {
		j.Result = nil
	}
	if bytes.Equal(j.ErrorDetails, jsonNull) {
		j.ErrorDetails = nil
	}
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func (r *jobRepo) Create(ctx context.Context, job *domain.ProcessingJob) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}

	query := `INSERT INTO processing_jobs (
		id, parent_id, job_type, name, status, progress, current_step, priority,
		retry_count, max_retries, started_at, completed_at, estimated_completion, retry_after,
		payload, result, error_message, error_details,
		document_id, project_id, requested_by, notification_sent, created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8,
		$9, $10, $11, $12, $13, $14,
		$15, $16, $17, $18,
		$19, $20, $21, $22, $23, $24
	)`

	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.ParentID, job.JobType, job.Name, job.Status, job.Progress, job.CurrentStep, job.Priority,
		job.RetryCount, job.MaxRetries, job.StartedAt, job.CompletedAt, job.EstimatedCompletion, job.RetryAfter,
		nullableJSON(job.Payload), nullableJSON(job.Result), job.ErrorMessage, nullableJSON(job.ErrorDetails),
		job.DocumentID, job.ProjectID, job.RequestedBy, job.NotificationSent, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateJob
		}
		return fmt.Errorf("jobRepo.Create: %w", err)
	}
	return nil
}

func (r *jobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ProcessingJob, error) {
	var job domain.ProcessingJob
	err := r.db.GetContext(ctx, &job,
		"SELECT "+jobColumns+" FROM processing_jobs WHERE id = $1 AND deleted_at IS NULL", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("jobRepo.GetByID: %w", err)
	}
	normalizeJob(&job)
	return &job, nil
}

func (r *jobRepo) FindActive(ctx context.Context, documentID uuid.UUID, jobType domain.JobType) (*domain.ProcessingJob, error) {
	var job domain.ProcessingJob
	err := r.db.GetContext(ctx, &job,
		`SELECT `+jobColumns+` FROM processing_jobs
		 WHERE document_id = $1 AND job_type = $2 AND deleted_at IS NULL
		   AND status IN ('pending', 'queued', 'running', 'paused', 'retrying')
		 ORDER BY created_at DESC LIMIT 1`,
		documentID, jobType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("jobRepo.FindActive: %w", err)
	}
	normalizeJob(&job)
	return &job, nil
}

func (r *jobRepo) ListByParent(ctx context.Context, parentID uuid.UUID) ([]domain.ProcessingJob, error) {
	var jobs []domain.ProcessingJob
	err := r.db.SelectContext(ctx, &jobs,
		`SELECT `+jobColumns+` FROM processing_jobs
		 WHERE parent_id = $1 AND deleted_at IS NULL ORDER BY created_at ASC`, parentID)
	if err != nil {
		return nil, fmt.Errorf("jobRepo.ListByParent: %w", err)
	}
	for i := range jobs {
		normalizeJob(&jobs[i])
	}
	return jobs, nil
}

const updateJobQuery = `UPDATE processing_jobs SET
	status = $1, progress = $2, current_step = $3, priority = $4,
	retry_count = $5, max_retries = $6, started_at = $7, completed_at = $8,
	estimated_completion = $9, retry_after = $10, payload = $11, result = $12,
	error_message = $13, error_details = $14, notification_sent = $15, updated_at = $16
 WHERE id = $17 AND status = $18 AND deleted_at IS NULL`

func updateJob(ctx context.Context, ex sqlx.ExecerContext, job *domain.ProcessingJob, expected domain.JobStatus) (int64, error) {
	result, err := ex.ExecContext(ctx, updateJobQuery,
		job.Status, job.Progress, job.CurrentStep, job.Priority,
		job.RetryCount, job.MaxRetries, job.StartedAt, job.CompletedAt,
		job.EstimatedCompletion, job.RetryAfter, nullableJSON(job.Payload), nullableJSON(job.Result),
		job.ErrorMessage, nullableJSON(job.ErrorDetails), job.NotificationSent, job.UpdatedAt,
		job.ID, expected)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *jobRepo) Update(ctx context.Context, job *domain.ProcessingJob, expected domain.JobStatus) error {
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = time.Now().UTC()
	}
	rows, err := updateJob(ctx, r.db, job, expected)
	if err != nil {
		return fmt.Errorf("jobRepo.Update: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists,
		"SELECT EXISTS (SELECT 1 FROM processing_jobs WHERE id = $1 AND deleted_at IS NULL)", job.ID); err != nil {
		return fmt.Errorf("jobRepo.Update exists: %w", err)
	}
	if !exists {
		return domain.ErrJobNotFound
	}
	return domain.ErrJobStateChanged
}

// ClaimQueued locks claimable rows with SKIP LOCKED so concurrent workers never
// claim the same job, then applies the running transition in the same tx.
func (r *jobRepo) ClaimQueued(ctx context.Context, limit int) ([]domain.ProcessingJob, error) {
	if limit <= 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	var claimed []domain.ProcessingJob

	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var jobs []domain.ProcessingJob
		err := tx.SelectContext(ctx, &jobs,
			`SELECT `+jobColumns+` FROM processing_jobs
			 WHERE status = 'queued' AND deleted_at IS NULL
			   AND (retry_after IS NULL OR retry_after <= $1)
			 ORDER BY priority DESC, created_at ASC
			 LIMIT $2
			 FOR UPDATE SKIP LOCKED`, now, limit)
		if err != nil {
			return fmt.Errorf("jobRepo.ClaimQueued select: %w", err)
		}
		for i := range jobs {
			job := jobs[i]
			normalizeJob(&job)
			if err := job.Start(now); err != nil {
				return err
			}
			if _, err := updateJob(ctx, tx, &job, domain.JobStatusQueued); err != nil {
				return fmt.Errorf("jobRepo.ClaimQueued update: %w", err)
			}
			claimed = append(claimed, job)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// RequeueStale returns running jobs whose worker vanished to the queue. Bulk
// umbrella jobs are never claimed by a worker and are left alone.
func (r *jobRepo) RequeueStale(ctx context.Context, startedBefore time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE processing_jobs SET status = 'queued', started_at = NULL, progress = 0,
			estimated_completion = NULL, current_step = 'Requeued after worker loss', updated_at = $1
		 WHERE status = 'running' AND job_type <> $2 AND deleted_at IS NULL
		   AND started_at < $3 AND updated_at < $3`,
		time.Now().UTC(), domain.JobTypeBulkExtraction, startedBefore)
	if err != nil {
		return 0, fmt.Errorf("jobRepo.RequeueStale: %w", err)
	}
	return result.RowsAffected()
}

func (r *jobRepo) ListStrandedFailures(ctx context.Context, updatedBefore time.Time, limit int) ([]domain.ProcessingJob, error) {
	var jobs []domain.ProcessingJob
	err := r.db.SelectContext(ctx, &jobs,
		`SELECT `+jobColumns+` FROM processing_jobs
		 WHERE status = 'failed' AND job_type <> $1 AND deleted_at IS NULL
		   AND retry_count < max_retries AND updated_at < $2
		 ORDER BY updated_at ASC
		 LIMIT $3`,
		domain.JobTypeBulkExtraction, updatedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("jobRepo.ListStrandedFailures: %w", err)
	}
	return jobs, nil
}

func (r *jobRepo) RetireTerminalBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE processing_jobs SET deleted_at = $1
		 WHERE status IN ('completed', 'failed', 'cancelled')
		   AND updated_at < $2 AND deleted_at IS NULL`,
		time.Now().UTC(), before)
	if err != nil {
		return 0, fmt.Errorf("jobRepo.RetireTerminalBefore: %w", err)
	}
	return result.RowsAffected()
}

func (r *jobRepo) MarkNotified(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE processing_jobs SET notification_sent = TRUE WHERE id = $1 AND deleted_at IS NULL", id)
	if err != nil {
		return fmt.Errorf("jobRepo.MarkNotified: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}
