package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProcessingJob tracks one unit of long-running background work.
type ProcessingJob struct {
	ID                  uuid.UUID       `db:"id" json:"id"`
	ParentID            *uuid.UUID      `db:"parent_id" json:"parent_id,omitempty"`
	JobType             JobType         `db:"job_type" json:"job_type"`
	Name                string          `db:"name" json:"name"`
	Status              JobStatus       `db:"status" json:"status"`
	Progress            int             `db:"progress" json:"progress"`
	CurrentStep         string          `db:"current_step" json:"current_step"`
	Priority            int             `db:"priority" json:"priority"`
	RetryCount          int             `db:"retry_count" json:"retry_count"`
	MaxRetries          int             `db:"max_retries" json:"max_retries"`
	StartedAt           *time.Time      `db:"started_at" json:"started_at"`
	CompletedAt         *time.Time      `db:"completed_at" json:"completed_at"`
	EstimatedCompletion *time.Time      `db:"estimated_completion" json:"estimated_completion"`
	RetryAfter          *time.Time      `db:"retry_after" json:"retry_after,omitempty"`
	Payload             json.RawMessage `db:"payload" json:"payload,omitempty"`
	Result              json.RawMessage `db:"result" json:"result,omitempty"`
	ErrorMessage        string          `db:"error_message" json:"error_message,omitempty"`
	ErrorDetails        json.RawMessage `db:"error_details" json:"-"`
	DocumentID          *uuid.UUID      `db:"document_id" json:"document_id,omitempty"`
	ProjectID           *uuid.UUID      `db:"project_id" json:"project_id,omitempty"`
	RequestedBy         *uuid.UUID      `db:"requested_by" json:"requested_by,omitempty"`
	NotificationSent    bool            `db:"notification_sent" json:"-"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
	DeletedAt           *time.Time      `db:"deleted_at" json:"-"`
}

// JobPayload is the typed form of ProcessingJob.Payload.
type JobPayload struct {
	PromptType    PromptType  `json:"prompt_type,omitempty"`
	ModelID       *uuid.UUID  `json:"model_id,omitempty"`
	ConfigID      *uuid.UUID  `json:"config_id,omitempty"`
	DocumentIDs   []uuid.UUID `json:"document_ids,omitempty"`
	OlderThanDays int         `json:"older_than_days,omitempty"`
}

// DecodePayload unmarshals the job payload, tolerating an empty column.
func (j *ProcessingJob) DecodePayload() (JobPayload, error) {
	var p JobPayload
	if len(j.Payload) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return p, fmt.Errorf("decoding job payload: %w", err)
	}
	return p, nil
}

// FailureOutcome tells the scheduler what to do after a failure was recorded.
type FailureOutcome int

const (
	// OutcomeFailed means the job is terminally failed.
	OutcomeFailed FailureOutcome = iota
	// OutcomeRetryRequested means the job should be re-queued by the scheduler.
	OutcomeRetryRequested
)

func (o FailureOutcome) String() string {
	if o == OutcomeRetryRequested {
		return "retry_requested"
	}
	return "failed"
}

var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:  {JobStatusQueued, JobStatusRunning, JobStatusCancelled},
	JobStatusQueued:   {JobStatusRunning, JobStatusCancelled},
	JobStatusRunning:  {JobStatusCompleted, JobStatusFailed, JobStatusCancelled, JobStatusPaused},
	JobStatusPaused:   {JobStatusRunning, JobStatusCancelled},
	JobStatusFailed:   {JobStatusRetrying},
	JobStatusRetrying: {JobStatusQueued, JobStatusCancelled},
}

// CanTransition reports whether the graph allows from -> to.
func CanTransition(from, to JobStatus) bool {
	for _, s := range jobTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// NewProcessingJob creates a pending job.
func NewProcessingJob(jobType JobType, name string, maxRetries int, now time.Time) *ProcessingJob {
	return &ProcessingJob{
		ID:         uuid.New(),
		JobType:    jobType,
		Name:       name,
		Status:     JobStatusPending,
		MaxRetries: maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (j *ProcessingJob) transition(to JobStatus, now time.Time) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidJobTransition, j.Status, to)
	}
	j.Status = to
	j.UpdatedAt = now
	return nil
}

// IsTerminal reports whether the job has reached completed, cancelled or exhausted failed.
func (j *ProcessingJob) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusCancelled, JobStatusFailed:
		return true
	}
	return false
}

// CanRetry reports whether a failed job still has retry budget.
func (j *ProcessingJob) CanRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// CanCancel reports whether cancel() is permitted in the current state.
func (j *ProcessingJob) CanCancel() bool {
	return CanTransition(j.Status, JobStatusCancelled)
}

// Enqueue moves a pending job onto the queue.
func (j *ProcessingJob) Enqueue(now time.Time) error {
	return j.transition(JobStatusQueued, now)
}

// Start marks the job running and resets progress.
func (j *ProcessingJob) Start(now time.Time) error {
	if j.Status != JobStatusPending && j.Status != JobStatusQueued {
		return fmt.Errorf("%w: cannot start from %s", ErrInvalidJobTransition, j.Status)
	}
	if err := j.transition(JobStatusRunning, now); err != nil {
		return err
	}
	t := now
	j.StartedAt = &t
	j.Progress = 0
	j.RetryAfter = nil
	j.EstimatedCompletion = nil
	return nil
}

// UpdateProgress records progress while running. Progress is clamped to [0,100]
// and may move backwards.
func (j *ProcessingJob) UpdateProgress(p int, step string, now time.Time) error {
	if j.Status != JobStatusRunning {
		return fmt.Errorf("%w: progress update while %s", ErrInvalidJobTransition, j.Status)
	}
	j.Progress = ClampProgress(p)
	if step != "" {
		j.CurrentStep = step
	}
	j.UpdatedAt = now
	j.EstimatedCompletion = j.estimateCompletion(now)
	return nil
}

func (j *ProcessingJob) estimateCompletion(now time.Time) *time.Time {
	if j.StartedAt == nil || j.Progress <= 0 || j.Progress >= 100 {
		return nil
	}
	elapsed := now.Sub(*j.StartedAt)
	remaining := time.Duration(float64(elapsed) * float64(100-j.Progress) / float64(j.Progress))
	eta := now.Add(remaining)
	return &eta
}

// ClampProgress bounds a progress value to [0,100].
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Complete marks the job completed with the given result.
func (j *ProcessingJob) Complete(result json.RawMessage, now time.Time) error {
	if err := j.transition(JobStatusCompleted, now); err != nil {
		return err
	}
	t := now
	j.CompletedAt = &t
	j.Progress = 100
	j.Result = result
	j.ErrorMessage = ""
	j.ErrorDetails = nil
	j.EstimatedCompletion = nil
	return nil
}

// Fail records a failure. It never re-queues the job itself: when retryable is
// true and budget remains it returns OutcomeRetryRequested and leaves the
// follow-up to the scheduler.
func (j *ProcessingJob) Fail(message string, details json.RawMessage, retryable bool, now time.Time) (FailureOutcome, error) {
	if err := j.transition(JobStatusFailed, now); err != nil {
		return OutcomeFailed, err
	}
	t := now
	j.CompletedAt = &t
	j.ErrorMessage = message
	j.ErrorDetails = details
	j.EstimatedCompletion = nil
	if retryable && j.RetryCount < j.MaxRetries {
		return OutcomeRetryRequested, nil
	}
	return OutcomeFailed, nil
}

// PrepareRetry moves a failed job back onto the queue via retrying, consuming
// one unit of retry budget and clearing the previous attempt's fields.
func (j *ProcessingJob) PrepareRetry(retryAfter *time.Time, now time.Time) error {
	if !j.CanRetry() {
		return fmt.Errorf("%w: status=%s retry_count=%d max_retries=%d",
			ErrJobNotRetryable, j.Status, j.RetryCount, j.MaxRetries)
	}
	if err := j.transition(JobStatusRetrying, now); err != nil {
		return err
	}
	j.RetryCount++
	j.ErrorMessage = ""
	j.ErrorDetails = nil
	j.Result = nil
	j.StartedAt = nil
	j.CompletedAt = nil
	j.Progress = 0
	j.CurrentStep = ""
	j.RetryAfter = retryAfter
	return j.transition(JobStatusQueued, now)
}

// Pause suspends a running job.
func (j *ProcessingJob) Pause(now time.Time) error {
	return j.transition(JobStatusPaused, now)
}

// Resume continues a paused job.
func (j *ProcessingJob) Resume(now time.Time) error {
	if j.Status != JobStatusPaused {
		return fmt.Errorf("%w: cannot resume from %s", ErrInvalidJobTransition, j.Status)
	}
	return j.transition(JobStatusRunning, now)
}

// Cancel marks the job cancelled. Any in-flight work is interrupted by the caller.
func (j *ProcessingJob) Cancel(now time.Time) error {
	if err := j.transition(JobStatusCancelled, now); err != nil {
		return err
	}
	t := now
	j.CompletedAt = &t
	j.EstimatedCompletion = nil
	j.RetryAfter = nil
	return nil
}

// Reset returns the job to pending from any state and clears all attempt data.
func (j *ProcessingJob) Reset(now time.Time) {
	j.Status = JobStatusPending
	j.Progress = 0
	j.CurrentStep = ""
	j.RetryCount = 0
	j.StartedAt = nil
	j.CompletedAt = nil
	j.EstimatedCompletion = nil
	j.RetryAfter = nil
	j.Result = nil
	j.ErrorMessage = ""
	j.ErrorDetails = nil
	j.NotificationSent = false
	j.UpdatedAt = now
}

// ProcessingTime returns completed_at - started_at once both are set.
func (j *ProcessingJob) ProcessingTime() (time.Duration, bool) {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0, false
	}
	return j.CompletedAt.Sub(*j.StartedAt), true
}

// JobStatusView is the read model returned to API clients.
type JobStatusView struct {
	ID                  uuid.UUID       `json:"id"`
	JobType             JobType         `json:"job_type"`
	Status              JobStatus       `json:"status"`
	Progress            int             `json:"progress"`
	CurrentStep         string          `json:"current_step"`
	RetryCount          int             `json:"retry_count"`
	MaxRetries          int             `json:"max_retries"`
	Result              json.RawMessage `json:"result,omitempty"`
	Error               string          `json:"error,omitempty"`
	StartedAt           *time.Time      `json:"started_at,omitempty"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
	EstimatedCompletion *time.Time      `json:"estimated_completion,omitempty"`
	ProcessingSeconds   *float64        `json:"processing_seconds,omitempty"`
}

// StatusView builds the API read model for the job.
func (j *ProcessingJob) StatusView() *JobStatusView {
	v := &JobStatusView{
		ID:                  j.ID,
		JobType:             j.JobType,
		Status:              j.Status,
		Progress:            j.Progress,
		CurrentStep:         j.CurrentStep,
		RetryCount:          j.RetryCount,
		MaxRetries:          j.MaxRetries,
		Result:              j.Result,
		Error:               j.ErrorMessage,
		StartedAt:           j.StartedAt,
		CompletedAt:         j.CompletedAt,
		EstimatedCompletion: j.EstimatedCompletion,
	}
	if d, ok := j.ProcessingTime(); ok {
		secs := d.Seconds()
		v.ProcessingSeconds = &secs
	}
	return v
}
