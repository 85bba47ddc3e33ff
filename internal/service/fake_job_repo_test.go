package service_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"annotext/internal/domain"
)

// memJobRepo is an in-memory port.JobRepository with the same conditional
// write and claim semantics as the postgres implementation.
type memJobRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]domain.ProcessingJob
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: map[uuid.UUID]domain.ProcessingJob{}}
}

func isActive(s domain.JobStatus) bool {
	for _, a := range domain.NonTerminalJobStatuses {
		if a == s {
			return true
		}
	}
	return false
}

func (r *memJobRepo) Create(_ context.Context, job *domain.ProcessingJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.DocumentID != nil {
		for _, j := range r.jobs {
			if j.DocumentID != nil && *j.DocumentID == *job.DocumentID &&
				j.JobType == job.JobType && isActive(j.Status) {
				return domain.ErrDuplicateJob
			}
		}
	}
	r.jobs[job.ID] = *job
	return nil
}

func (r *memJobRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.ProcessingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.DeletedAt != nil {
		return nil, domain.ErrJobNotFound
	}
	return &j, nil
}

func (r *memJobRepo) FindActive(_ context.Context, documentID uuid.UUID, jobType domain.JobType) (*domain.ProcessingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.DocumentID != nil && *j.DocumentID == documentID && j.JobType == jobType && isActive(j.Status) {
			found := j
			return &found, nil
		}
	}
	return nil, domain.ErrJobNotFound
}

func (r *memJobRepo) ListByParent(_ context.Context, parentID uuid.UUID) ([]domain.ProcessingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ProcessingJob
	for _, j := range r.jobs {
		if j.ParentID != nil && *j.ParentID == parentID {
			out = append(out, j)
		}
	}
	return out, nil
}

func (r *memJobRepo) Update(_ context.Context, job *domain.ProcessingJob, expected domain.JobStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.jobs[job.ID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if stored.Status != expected {
		return domain.ErrJobStateChanged
	}
	r.jobs[job.ID] = *job
	return nil
}

func (r *memJobRepo) ClaimQueued(_ context.Context, limit int) ([]domain.ProcessingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	var ready []domain.ProcessingJob
	for _, j := range r.jobs {
		if j.Status == domain.JobStatusQueued && (j.RetryAfter == nil || !j.RetryAfter.After(now)) {
			ready = append(ready, j)
		}
	}
	sort.Slice(ready, func(a, b int) bool {
		if ready[a].Priority != ready[b].Priority {
			return ready[a].Priority > ready[b].Priority
		}
		return ready[a].CreatedAt.Before(ready[b].CreatedAt)
	})
	if len(ready) > limit {
		ready = ready[:limit]
	}
	for i := range ready {
		if err := ready[i].Start(now); err != nil {
			return nil, err
		}
		r.jobs[ready[i].ID] = ready[i]
	}
	return ready, nil
}

func (r *memJobRepo) RequeueStale(_ context.Context, startedBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, j := range r.jobs {
		if j.Status == domain.JobStatusRunning && j.JobType != domain.JobTypeBulkExtraction &&
			j.StartedAt != nil && j.StartedAt.Before(startedBefore) {
			j.Status = domain.JobStatusQueued
			r.jobs[id] = j
			n++
		}
	}
	return n, nil
}

func (r *memJobRepo) ListStrandedFailures(_ context.Context, updatedBefore time.Time, limit int) ([]domain.ProcessingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ProcessingJob
	for _, j := range r.jobs {
		if j.Status == domain.JobStatusFailed && j.JobType != domain.JobTypeBulkExtraction &&
			j.DeletedAt == nil && j.RetryCount < j.MaxRetries && j.UpdatedAt.Before(updatedBefore) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].UpdatedAt.Before(out[b].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memJobRepo) RetireTerminalBefore(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, j := range r.jobs {
		if j.IsTerminal() && j.UpdatedAt.Before(before) && j.DeletedAt == nil {
			t := time.Now()
			j.DeletedAt = &t
			r.jobs[id] = j
			n++
		}
	}
	return n, nil
}

func (r *memJobRepo) MarkNotified(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.jobs[id]
	j.NotificationSent = true
	r.jobs[id] = j
	return nil
}

func (r *memJobRepo) get(id uuid.UUID) domain.ProcessingJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id]
}
