package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"annotext/internal/domain"
	"annotext/internal/llm"
	"annotext/internal/logger"
	"annotext/internal/port"
)

const (
	failureClassConfiguration = "configuration"
	failureClassTransient     = "transient"
)

// SubmitInput is the DTO for submitting a single document for extraction.
type SubmitInput struct {
	DocumentID  uuid.UUID
	JobType     domain.JobType
	PromptType  domain.PromptType
	ModelID     *uuid.UUID
	ConfigID    *uuid.UUID
	RequestedBy *uuid.UUID
	Priority    int
}

// BatchInput is the DTO for submitting many documents under one umbrella job.
type BatchInput struct {
	DocumentIDs []uuid.UUID
	PromptType  domain.PromptType
	ModelID     *uuid.UUID
	RequestedBy *uuid.UUID
	Priority    int
}

// OrchestratorConfig holds job lifecycle settings.
type OrchestratorConfig struct {
	MaxRetries int
	RetryDelay time.Duration
}

// JobOrchestrator owns every processing job state change.
type JobOrchestrator interface {
	Submit(ctx context.Context, input *SubmitInput) (*domain.ProcessingJob, error)
	SubmitBatch(ctx context.Context, input *BatchInput) (*domain.ProcessingJob, error)
	SubmitSystemJob(ctx context.Context, jobType domain.JobType, payload domain.JobPayload, requestedBy *uuid.UUID) (*domain.ProcessingJob, error)
	GetStatus(ctx context.Context, id uuid.UUID) (*domain.JobStatusView, error)
	Cancel(ctx context.Context, id uuid.UUID) (*domain.ProcessingJob, error)
	Retry(ctx context.Context, id uuid.UUID) (*domain.ProcessingJob, error)
	Reset(ctx context.Context, id uuid.UUID) (*domain.ProcessingJob, error)

	// RecordSuccess completes a running job.
	RecordSuccess(ctx context.Context, job *domain.ProcessingJob, result json.RawMessage) error
	// RecordFailure classifies err, fails the job and reports whether the
	// caller should schedule a retry and after which delay.
	RecordFailure(ctx context.Context, job *domain.ProcessingJob, err error) (domain.FailureOutcome, time.Duration, error)
	// ScheduleRetry re-queues a failed job once delay has passed.
	ScheduleRetry(ctx context.Context, id uuid.UUID, delay time.Duration) error
	// RecoverStrandedRetries re-queues transient failures whose scheduled
	// retry was lost, e.g. because the process exited before scheduling it.
	RecoverStrandedRetries(ctx context.Context, failedBefore time.Time) (int, error)
}

type jobOrchestrator struct {
	jobRepo  port.JobRepository
	docRepo  port.DocumentRepository
	inflight *InFlightJobs
	notifier port.NotificationSender
	users    port.UserDirectory
	cfg      OrchestratorConfig
	locks    *keyedMutex
	log      *logger.Logger
	now      func() time.Time
}

// NewJobOrchestrator creates a new JobOrchestrator. notifier and users may be
// nil to disable notifications.
func NewJobOrchestrator(
	jobRepo port.JobRepository,
	docRepo port.DocumentRepository,
	inflight *InFlightJobs,
	notifier port.NotificationSender,
	users port.UserDirectory,
	cfg OrchestratorConfig,
	log *logger.Logger,
) JobOrchestrator {
	if log == nil {
		log = logger.Nop()
	}
	if inflight == nil {
		inflight = NewInFlightJobs()
	}
	return &jobOrchestrator{
		jobRepo:  jobRepo,
		docRepo:  docRepo,
		inflight: inflight,
		notifier: notifier,
		users:    users,
		cfg:      cfg,
		locks:    newKeyedMutex(),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (o *jobOrchestrator) Submit(ctx context.Context, input *SubmitInput) (*domain.ProcessingJob, error) {
	jobType := input.JobType
	if jobType == "" {
		jobType = domain.JobTypeEntityExtraction
	}
	if jobType != domain.JobTypeEntityExtraction && jobType != domain.JobTypeLLMProcessing {
		return nil, domain.NewValidationError("job_type", "must be entity_extraction or llm_processing")
	}
	if input.DocumentID == uuid.Nil {
		return nil, domain.NewValidationError("document_id", "is required")
	}

	doc, err := o.docRepo.GetByID(ctx, input.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("jobOrchestrator.Submit: %w", err)
	}

	payload := domain.JobPayload{
		PromptType: domain.NormalizePromptType(string(input.PromptType)),
		ModelID:    input.ModelID,
		ConfigID:   input.ConfigID,
	}
	job, _, err := o.submitDocument(ctx, doc, jobType, payload, input.RequestedBy, input.Priority, nil)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// submitDocument returns the active job for (doc, jobType), creating one if
// none exists. created reports whether a new row was inserted.
func (o *jobOrchestrator) submitDocument(
	ctx context.Context,
	doc *domain.Document,
	jobType domain.JobType,
	payload domain.JobPayload,
	requestedBy *uuid.UUID,
	priority int,
	parentID *uuid.UUID,
) (job *domain.ProcessingJob, created bool, err error) {
	unlock := o.locks.Lock(fmt.Sprintf("submit:%s:%s", doc.ID, jobType))
	defer unlock()

	existing, err := o.findActive(ctx, doc.ID, jobType)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if existing.Status == domain.JobStatusPending {
			if err := existing.Enqueue(o.now()); err != nil {
				return nil, false, err
			}
			if err := o.jobRepo.Update(ctx, existing, domain.JobStatusPending); err != nil {
				return nil, false, fmt.Errorf("jobOrchestrator.Submit: requeue: %w", err)
			}
			o.log.Info("re-queued pending job", "job_id", existing.ID, "document_id", doc.ID)
		}
		return existing, false, nil
	}

	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, false, fmt.Errorf("jobOrchestrator.Submit: encoding payload: %w", err)
	}

	now := o.now()
	job = domain.NewProcessingJob(jobType, "Extract entities: "+doc.Title, o.cfg.MaxRetries, now)
	job.DocumentID = &doc.ID
	job.ProjectID = doc.ProjectID
	job.ParentID = parentID
	job.RequestedBy = requestedBy
	job.Priority = priority
	job.Payload = rawPayload
	if err := job.Enqueue(now); err != nil {
		return nil, false, err
	}

	if err := o.jobRepo.Create(ctx, job); err != nil {
		if errors.Is(err, domain.ErrDuplicateJob) {
			// another process won the insert
			existing, ferr := o.findActive(ctx, doc.ID, jobType)
			if ferr != nil {
				return nil, false, ferr
			}
			if existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("jobOrchestrator.Submit: %w", err)
	}

	o.log.Info("job submitted", "job_id", job.ID, "job_type", jobType, "document_id", doc.ID)
	return job, true, nil
}

func (o *jobOrchestrator) findActive(ctx context.Context, documentID uuid.UUID, jobType domain.JobType) (*domain.ProcessingJob, error) {
	job, err := o.jobRepo.FindActive(ctx, documentID, jobType)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("jobOrchestrator.findActive: %w", err)
	}
	return job, nil
}

func (o *jobOrchestrator) SubmitBatch(ctx context.Context, input *BatchInput) (*domain.ProcessingJob, error) {
	ids := uniqueIDs(input.DocumentIDs)
	if len(ids) == 0 {
		return nil, domain.NewValidationError("document_ids", "must contain at least one document")
	}

	payload := domain.JobPayload{
		PromptType:  domain.NormalizePromptType(string(input.PromptType)),
		ModelID:     input.ModelID,
		DocumentIDs: ids,
	}
	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("jobOrchestrator.SubmitBatch: encoding payload: %w", err)
	}

	now := o.now()
	umbrella := domain.NewProcessingJob(domain.JobTypeBulkExtraction,
		fmt.Sprintf("Bulk extraction of %d documents", len(ids)), 0, now)
	umbrella.RequestedBy = input.RequestedBy
	umbrella.Priority = input.Priority
	umbrella.Payload = rawPayload
	// the umbrella is never claimed by a worker; it runs until its children settle
	if err := umbrella.Start(now); err != nil {
		return nil, err
	}
	if err := o.jobRepo.Create(ctx, umbrella); err != nil {
		return nil, fmt.Errorf("jobOrchestrator.SubmitBatch: %w", err)
	}

	childPayload := domain.JobPayload{PromptType: payload.PromptType, ModelID: input.ModelID}
	var created, alreadyActive, missing int
	for _, id := range ids {
		doc, err := o.docRepo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				missing++
				continue
			}
			return nil, fmt.Errorf("jobOrchestrator.SubmitBatch: %w", err)
		}
		_, isNew, err := o.submitDocument(ctx, doc, domain.JobTypeEntityExtraction, childPayload,
			input.RequestedBy, input.Priority, &umbrella.ID)
		if err != nil {
			return nil, fmt.Errorf("jobOrchestrator.SubmitBatch: document %s: %w", id, err)
		}
		if isNew {
			created++
		} else {
			alreadyActive++
		}
	}

	o.log.Info("batch submitted", "job_id", umbrella.ID, "documents", len(ids),
		"created", created, "already_active", alreadyActive, "missing", missing)

	if created == 0 {
		result, _ := json.Marshal(map[string]any{
			"total_documents": 0,
			"processed":       0,
			"failed":          0,
			"cancelled":       0,
			"success_rate":    0.0,
			"already_active":  alreadyActive,
			"missing":         missing,
		})
		if err := umbrella.Complete(result, o.now()); err != nil {
			return nil, err
		}
		if err := o.jobRepo.Update(ctx, umbrella, domain.JobStatusRunning); err != nil {
			return nil, fmt.Errorf("jobOrchestrator.SubmitBatch: %w", err)
		}
	}
	return umbrella, nil
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (o *jobOrchestrator) SubmitSystemJob(ctx context.Context, jobType domain.JobType, payload domain.JobPayload, requestedBy *uuid.UUID) (*domain.ProcessingJob, error) {
	var name string
	maxRetries := o.cfg.MaxRetries
	switch jobType {
	case domain.JobTypeConnectionTest:
		name = "LLM connection test"
		maxRetries = 0
	case domain.JobTypeCleanup:
		name = "Processing job cleanup"
		if payload.OlderThanDays < 0 {
			return nil, domain.NewValidationError("older_than_days", "must not be negative")
		}
	default:
		return nil, domain.NewValidationError("job_type", "must be connection_test or cleanup")
	}

	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("jobOrchestrator.SubmitSystemJob: encoding payload: %w", err)
	}
	now := o.now()
	job := domain.NewProcessingJob(jobType, name, maxRetries, now)
	job.RequestedBy = requestedBy
	job.Payload = rawPayload
	if err := job.Enqueue(now); err != nil {
		return nil, err
	}
	if err := o.jobRepo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("jobOrchestrator.SubmitSystemJob: %w", err)
	}
	o.log.Info("system job submitted", "job_id", job.ID, "job_type", jobType)
	return job, nil
}

func (o *jobOrchestrator) GetStatus(ctx context.Context, id uuid.UUID) (*domain.JobStatusView, error) {
	job, err := o.jobRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return job.StatusView(), nil
}

func (o *jobOrchestrator) Cancel(ctx context.Context, id uuid.UUID) (*domain.ProcessingJob, error) {
	job, err := o.jobRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := job.Status
	if err := job.Cancel(o.now()); err != nil {
		return nil, err
	}
	// persist first so a racing worker write loses
	if err := o.jobRepo.Update(ctx, job, prev); err != nil {
		return nil, fmt.Errorf("jobOrchestrator.Cancel: %w", err)
	}
	if o.inflight.Cancel(job.ID) {
		o.log.Info("interrupted running job", "job_id", job.ID)
	}

	if job.JobType == domain.JobTypeBulkExtraction {
		o.cancelChildren(ctx, job.ID)
	}
	if job.ParentID != nil {
		o.refreshParent(ctx, *job.ParentID)
	}
	o.log.Info("job cancelled", "job_id", job.ID, "previous_status", prev)
	return job, nil
}

func (o *jobOrchestrator) cancelChildren(ctx context.Context, parentID uuid.UUID) {
	children, err := o.jobRepo.ListByParent(ctx, parentID)
	if err != nil {
		o.log.Warn("listing batch sub-jobs for cancel failed", "job_id", parentID, "error", err)
		return
	}
	for i := range children {
		child := &children[i]
		if !child.CanCancel() {
			continue
		}
		prev := child.Status
		if err := child.Cancel(o.now()); err != nil {
			continue
		}
		if err := o.jobRepo.Update(ctx, child, prev); err != nil {
			o.log.Warn("cancelling batch sub-job failed", "job_id", child.ID, "error", err)
			continue
		}
		o.inflight.Cancel(child.ID)
	}
}

func (o *jobOrchestrator) Retry(ctx context.Context, id uuid.UUID) (*domain.ProcessingJob, error) {
	job, err := o.jobRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.CanRetry() {
		return nil, fmt.Errorf("%w: status=%s retry_count=%d max_retries=%d",
			domain.ErrJobNotRetryable, job.Status, job.RetryCount, job.MaxRetries)
	}
	if err := job.PrepareRetry(nil, o.now()); err != nil {
		return nil, err
	}
	if err := o.jobRepo.Update(ctx, job, domain.JobStatusFailed); err != nil {
		return nil, fmt.Errorf("jobOrchestrator.Retry: %w", err)
	}
	o.log.Info("job retried manually", "job_id", job.ID, "retry_count", job.RetryCount)
	return job, nil
}

func (o *jobOrchestrator) Reset(ctx context.Context, id uuid.UUID) (*domain.ProcessingJob, error) {
	job, err := o.jobRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := job.Status
	o.inflight.Cancel(job.ID)
	job.Reset(o.now())
	if err := o.jobRepo.Update(ctx, job, prev); err != nil {
		return nil, fmt.Errorf("jobOrchestrator.Reset: %w", err)
	}
	o.log.Info("job reset", "job_id", job.ID, "previous_status", prev)
	return job, nil
}

func (o *jobOrchestrator) RecordSuccess(ctx context.Context, job *domain.ProcessingJob, result json.RawMessage) error {
	if err := job.Complete(result, o.now()); err != nil {
		return err
	}
	if err := o.jobRepo.Update(ctx, job, domain.JobStatusRunning); err != nil {
		return o.stateChanged(ctx, job.ID, err)
	}
	o.notify(ctx, job)
	if job.ParentID != nil {
		o.refreshParent(ctx, *job.ParentID)
	}
	return nil
}

func (o *jobOrchestrator) RecordFailure(ctx context.Context, job *domain.ProcessingJob, cause error) (domain.FailureOutcome, time.Duration, error) {
	retryable := !errors.Is(cause, domain.ErrConfiguration) &&
		!errors.Is(cause, domain.ErrValidation) &&
		!errors.Is(cause, domain.ErrNotFound)

	class := failureClassTransient
	if !retryable {
		class = failureClassConfiguration
	}
	details := failureDetails{
		Error:   cause.Error(),
		Class:   class,
		Attempt: job.RetryCount + 1,
	}
	var perr *llm.ProviderError
	if errors.As(cause, &perr) {
		details.Provider = perr.Provider
		details.StatusCode = perr.StatusCode
	}
	rawDetails, _ := json.Marshal(details)

	outcome, err := job.Fail(domain.PublicErrorMessage(cause), rawDetails, retryable, o.now())
	if err != nil {
		return domain.OutcomeFailed, 0, err
	}
	if err := o.jobRepo.Update(ctx, job, domain.JobStatusRunning); err != nil {
		return domain.OutcomeFailed, 0, o.stateChanged(ctx, job.ID, err)
	}

	delay := o.cfg.RetryDelay
	var rl *llm.RateLimitError
	if errors.As(cause, &rl) && rl.RetryAfter > 0 {
		delay = rl.RetryAfter
	}

	if outcome == domain.OutcomeRetryRequested {
		o.log.Warn("job failed, retry requested",
			"job_id", job.ID, "attempt", details.Attempt, "max_retries", job.MaxRetries,
			"retry_in", delay.String(), "error", cause)
		return outcome, delay, nil
	}

	o.log.Error("job failed", "job_id", job.ID, "class", class, "attempt", details.Attempt, "error", cause)
	if job.DocumentID != nil {
		now := o.now()
		if err := o.docRepo.UpdateProcessingStatus(ctx, *job.DocumentID, domain.DocumentStatusFailed, &now); err != nil {
			o.log.Warn("marking document failed", "document_id", *job.DocumentID, "error", err)
		}
	}
	o.notify(ctx, job)
	if job.ParentID != nil {
		o.refreshParent(ctx, *job.ParentID)
	}
	return outcome, delay, nil
}

type failureDetails struct {
	Error      string `json:"error"`
	Class      string `json:"class"`
	Attempt    int    `json:"attempt"`
	Provider   string `json:"provider,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}

func (o *jobOrchestrator) ScheduleRetry(ctx context.Context, id uuid.UUID, delay time.Duration) error {
	job, err := o.jobRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != domain.JobStatusFailed {
		// cancelled, reset or retried by hand in the meantime
		o.log.Debug("skipping scheduled retry", "job_id", id, "status", job.Status)
		return nil
	}
	now := o.now()
	retryAt := now.Add(delay)
	if err := job.PrepareRetry(&retryAt, now); err != nil {
		return err
	}
	if err := o.jobRepo.Update(ctx, job, domain.JobStatusFailed); err != nil {
		return fmt.Errorf("jobOrchestrator.ScheduleRetry: %w", err)
	}
	o.log.Info("job re-queued", "job_id", id, "retry_count", job.RetryCount, "retry_after", retryAt)
	return nil
}

const strandedBatchSize = 50

func (o *jobOrchestrator) RecoverStrandedRetries(ctx context.Context, failedBefore time.Time) (int, error) {
	jobs, err := o.jobRepo.ListStrandedFailures(ctx, failedBefore, strandedBatchSize)
	if err != nil {
		return 0, fmt.Errorf("jobOrchestrator.RecoverStrandedRetries: %w", err)
	}
	recovered := 0
	for i := range jobs {
		job := &jobs[i]
		if !retryPending(job) {
			continue
		}
		now := o.now()
		if err := job.PrepareRetry(nil, now); err != nil {
			continue
		}
		if err := o.jobRepo.Update(ctx, job, domain.JobStatusFailed); err != nil {
			if errors.Is(err, domain.ErrJobStateChanged) {
				continue
			}
			return recovered, fmt.Errorf("jobOrchestrator.RecoverStrandedRetries: %w", err)
		}
		o.log.Warn("re-queued stranded retry", "job_id", job.ID, "retry_count", job.RetryCount)
		recovered++
	}
	return recovered, nil
}

// stateChanged turns a lost conditional write into ErrJobCancelled when the
// job was cancelled underneath the worker.
func (o *jobOrchestrator) stateChanged(ctx context.Context, id uuid.UUID, err error) error {
	if !errors.Is(err, domain.ErrJobStateChanged) {
		return err
	}
	current, gerr := o.jobRepo.GetByID(ctx, id)
	if gerr == nil && current.Status == domain.JobStatusCancelled {
		return domain.ErrJobCancelled
	}
	return err
}

// refreshParent recomputes an umbrella job's progress from its sub-jobs and
// completes it once every sub-job has settled.
func (o *jobOrchestrator) refreshParent(ctx context.Context, parentID uuid.UUID) {
	unlock := o.locks.Lock("batch:" + parentID.String())
	defer unlock()

	parent, err := o.jobRepo.GetByID(ctx, parentID)
	if err != nil {
		o.log.Warn("loading batch job failed", "job_id", parentID, "error", err)
		return
	}
	if parent.Status != domain.JobStatusRunning {
		return
	}
	children, err := o.jobRepo.ListByParent(ctx, parentID)
	if err != nil {
		o.log.Warn("listing batch sub-jobs failed", "job_id", parentID, "error", err)
		return
	}
	if len(children) == 0 {
		return
	}

	var processed, failed, cancelled int
	for i := range children {
		switch {
		case children[i].Status == domain.JobStatusCompleted:
			processed++
		case children[i].Status == domain.JobStatusCancelled:
			cancelled++
		case children[i].Status == domain.JobStatusFailed && !retryPending(&children[i]):
			failed++
		}
	}
	total := len(children)
	settled := processed + failed + cancelled

	now := o.now()
	if err := parent.UpdateProgress(settled*100/total, fmt.Sprintf("%d/%d documents", settled, total), now); err != nil {
		return
	}
	if settled == total {
		result, _ := json.Marshal(map[string]any{
			"total_documents": total,
			"processed":       processed,
			"failed":          failed,
			"cancelled":       cancelled,
			"success_rate":    float64(processed) * 100 / float64(total),
		})
		if err := parent.Complete(result, now); err != nil {
			return
		}
	}
	if err := o.jobRepo.Update(ctx, parent, domain.JobStatusRunning); err != nil {
		o.log.Warn("updating batch job failed", "job_id", parentID, "error", err)
		return
	}
	if parent.Status == domain.JobStatusCompleted {
		o.log.Info("batch completed", "job_id", parentID, "processed", processed, "failed", failed, "cancelled", cancelled)
		o.notify(ctx, parent)
	}
}

// retryPending reports whether a failed job is waiting for an automatic retry.
func retryPending(job *domain.ProcessingJob) bool {
	if !job.CanRetry() {
		return false
	}
	var d failureDetails
	if err := json.Unmarshal(job.ErrorDetails, &d); err != nil {
		return false
	}
	return d.Class == failureClassTransient
}

// notify is best effort; delivery problems are logged only.
func (o *jobOrchestrator) notify(ctx context.Context, job *domain.ProcessingJob) {
	if o.notifier == nil || o.users == nil {
		return
	}
	if job.RequestedBy == nil || job.ParentID != nil || job.NotificationSent {
		return
	}
	email, name, err := o.users.ContactFor(ctx, *job.RequestedBy)
	if err != nil || email == "" {
		o.log.Debug("no contact for job requester", "job_id", job.ID, "error", err)
		return
	}

	summary := "Completed successfully."
	if job.Status == domain.JobStatusFailed {
		summary = job.ErrorMessage
	}
	err = o.notifier.SendJobNotification(ctx, port.JobNotification{
		ToEmail: email,
		ToName:  name,
		JobID:   job.ID,
		JobName: job.Name,
		JobType: job.JobType,
		Status:  job.Status,
		Summary: summary,
	})
	if err != nil {
		o.log.Warn("sending job notification failed", "job_id", job.ID, "error", err)
		return
	}
	if err := o.jobRepo.MarkNotified(ctx, job.ID); err != nil {
		o.log.Warn("marking job notified failed", "job_id", job.ID, "error", err)
		return
	}
	job.NotificationSent = true
}
