package port

import (
	"context"
	"time"

	"github.com/google/uuid"

	"annotext/internal/domain"
)

// JobRepository defines the contract for processing job persistence.
type JobRepository interface {
	// Create inserts a job. It returns domain.ErrDuplicateJob when an active
	// job already exists for the same document and job type.
	Create(ctx context.Context, job *domain.ProcessingJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ProcessingJob, error)
	FindActive(ctx context.Context, documentID uuid.UUID, jobType domain.JobType) (*domain.ProcessingJob, error)
	ListByParent(ctx context.Context, parentID uuid.UUID) ([]domain.ProcessingJob, error)
	// Update writes the job only if its stored status still equals expected,
	// returning domain.ErrJobStateChanged otherwise.
	Update(ctx context.Context, job *domain.ProcessingJob, expected domain.JobStatus) error
	// ClaimQueued atomically moves up to limit claimable queued jobs to running,
	// in priority DESC, created_at ASC order.
	ClaimQueued(ctx context.Context, limit int) ([]domain.ProcessingJob, error)
	RequeueStale(ctx context.Context, startedBefore time.Time) (int64, error)
	// ListStrandedFailures returns failed jobs with retry budget left that
	// have not been touched since updatedBefore.
	ListStrandedFailures(ctx context.Context, updatedBefore time.Time, limit int) ([]domain.ProcessingJob, error)
	RetireTerminalBefore(ctx context.Context, before time.Time) (int64, error)
	MarkNotified(ctx context.Context, id uuid.UUID) error
}
