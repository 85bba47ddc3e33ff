package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"annotext/internal/domain"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func runningJob(t *testing.T, maxRetries int) *domain.ProcessingJob {
	t.Helper()
	job := domain.NewProcessingJob(domain.JobTypeEntityExtraction, "extract", maxRetries, t0)
	require.NoError(t, job.Enqueue(t0))
	require.NoError(t, job.Start(t0))
	return job
}

func TestProcessingJob_StartSetsStartedAtAndResetsProgress(t *testing.T) {
	job := domain.NewProcessingJob(domain.JobTypeEntityExtraction, "extract", 3, t0)
	job.Progress = 40

	require.NoError(t, job.Start(t0.Add(time.Second)))

	assert.Equal(t, domain.JobStatusRunning, job.Status)
	assert.Equal(t, 0, job.Progress)
	require.NotNil(t, job.StartedAt)
	assert.Equal(t, t0.Add(time.Second), *job.StartedAt)
}

func TestProcessingJob_StartRejectedFromRunning(t *testing.T) {
	job := runningJob(t, 3)

	err := job.Start(t0)

	assert.ErrorIs(t, err, domain.ErrInvalidJobTransition)
}

func TestProcessingJob_UpdateProgressClamps(t *testing.T) {
	job := runningJob(t, 3)

	require.NoError(t, job.UpdateProgress(150, "persisting", t0.Add(time.Minute)))
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, "persisting", job.CurrentStep)

	require.NoError(t, job.UpdateProgress(-5, "", t0.Add(time.Minute)))
	assert.Equal(t, 0, job.Progress)
	assert.Equal(t, "persisting", job.CurrentStep)
}

func TestProcessingJob_UpdateProgressAllowsRegression(t *testing.T) {
	job := runningJob(t, 3)

	require.NoError(t, job.UpdateProgress(60, "chunk 3/5", t0.Add(time.Minute)))
	require.NoError(t, job.UpdateProgress(30, "re-chunking", t0.Add(2*time.Minute)))

	assert.Equal(t, 30, job.Progress)
}

func TestProcessingJob_UpdateProgressEstimatesCompletion(t *testing.T) {
	job := runningJob(t, 3)

	require.NoError(t, job.UpdateProgress(25, "", t0.Add(time.Minute)))

	require.NotNil(t, job.EstimatedCompletion)
	assert.Equal(t, t0.Add(4*time.Minute), *job.EstimatedCompletion)
}

func TestProcessingJob_UpdateProgressRequiresRunning(t *testing.T) {
	job := domain.NewProcessingJob(domain.JobTypeEntityExtraction, "extract", 3, t0)

	assert.ErrorIs(t, job.UpdateProgress(10, "", t0), domain.ErrInvalidJobTransition)
}

func TestProcessingJob_Complete(t *testing.T) {
	job := runningJob(t, 3)
	done := t0.Add(90 * time.Second)

	require.NoError(t, job.Complete(json.RawMessage(`{"entities_extracted":4}`), done))

	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.True(t, job.IsTerminal())
	d, ok := job.ProcessingTime()
	require.True(t, ok)
	assert.Equal(t, 90*time.Second, d)
}

func TestProcessingJob_ProcessingTimeUndefinedUntilBothSet(t *testing.T) {
	job := runningJob(t, 3)

	_, ok := job.ProcessingTime()

	assert.False(t, ok)
}

func TestProcessingJob_FailWithBudgetRequestsRetry(t *testing.T) {
	job := runningJob(t, 3)

	outcome, err := job.Fail("timeout", nil, true, t0.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRetryRequested, outcome)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, 0, job.RetryCount)

	require.NoError(t, job.PrepareRetry(nil, t0.Add(2*time.Second)))

	assert.Equal(t, domain.JobStatusQueued, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	assert.Empty(t, job.ErrorMessage)
	assert.Nil(t, job.CompletedAt)
	assert.Nil(t, job.StartedAt)
}

func TestProcessingJob_FailNonRetryableIsTerminal(t *testing.T) {
	job := runningJob(t, 3)

	outcome, err := job.Fail("no active model", nil, false, t0)

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFailed, outcome)
	assert.True(t, job.IsTerminal())
	// A manual retry remains possible once the configuration is fixed.
	assert.True(t, job.CanRetry())
}

func TestProcessingJob_RetriesExhaustAfterMaxRetries(t *testing.T) {
	job := runningJob(t, 3)

	for attempt := 0; attempt < 3; attempt++ {
		outcome, err := job.Fail("provider timed out", nil, true, t0)
		require.NoError(t, err)
		require.Equal(t, domain.OutcomeRetryRequested, outcome, "attempt %d", attempt)
		require.NoError(t, job.PrepareRetry(nil, t0))
		require.NoError(t, job.Start(t0))
	}

	outcome, err := job.Fail("provider timed out", nil, true, t0)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeFailed, outcome)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, 3, job.RetryCount)
	assert.False(t, job.CanRetry())
	assert.ErrorIs(t, job.PrepareRetry(nil, t0), domain.ErrJobNotRetryable)
}

func TestProcessingJob_ResetClearsEverything(t *testing.T) {
	job := runningJob(t, 1)
	_, err := job.Fail("boom", json.RawMessage(`{"x":1}`), true, t0)
	require.NoError(t, err)
	require.NoError(t, job.PrepareRetry(nil, t0))
	require.NoError(t, job.Start(t0))
	_, err = job.Fail("boom", nil, true, t0)
	require.NoError(t, err)
	require.False(t, job.CanRetry())

	job.Reset(t0.Add(time.Hour))

	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Equal(t, 0, job.RetryCount)
	assert.Equal(t, 0, job.Progress)
	assert.Empty(t, job.ErrorMessage)
	assert.Nil(t, job.ErrorDetails)
	assert.Nil(t, job.StartedAt)
	assert.Nil(t, job.CompletedAt)
	assert.NoError(t, job.Enqueue(t0))
}

func TestProcessingJob_CancelAllowedStates(t *testing.T) {
	tests := []struct {
		status  domain.JobStatus
		allowed bool
	}{
		{domain.JobStatusPending, true},
		{domain.JobStatusQueued, true},
		{domain.JobStatusRunning, true},
		{domain.JobStatusRetrying, true},
		{domain.JobStatusPaused, true},
		{domain.JobStatusCompleted, false},
		{domain.JobStatusFailed, false},
		{domain.JobStatusCancelled, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			job := &domain.ProcessingJob{Status: tt.status}
			err := job.Cancel(t0)
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, domain.JobStatusCancelled, job.Status)
				assert.NotNil(t, job.CompletedAt)
			} else {
				assert.ErrorIs(t, err, domain.ErrInvalidJobTransition)
				assert.Equal(t, tt.status, job.Status)
			}
		})
	}
}

func TestProcessingJob_PauseResume(t *testing.T) {
	job := runningJob(t, 3)

	require.NoError(t, job.Pause(t0))
	assert.Equal(t, domain.JobStatusPaused, job.Status)
	assert.ErrorIs(t, job.Complete(nil, t0), domain.ErrInvalidJobTransition)

	require.NoError(t, job.Resume(t0))
	assert.Equal(t, domain.JobStatusRunning, job.Status)
}

func TestProcessingJob_CompletedCannotFail(t *testing.T) {
	job := runningJob(t, 3)
	require.NoError(t, job.Complete(nil, t0))

	_, err := job.Fail("late", nil, true, t0)

	assert.ErrorIs(t, err, domain.ErrInvalidJobTransition)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
}

func TestProcessingJob_DecodePayload(t *testing.T) {
	job := &domain.ProcessingJob{Payload: json.RawMessage(`{"prompt_type":"general"}`)}

	p, err := job.DecodePayload()

	require.NoError(t, err)
	assert.Equal(t, domain.PromptTypeGeneral, p.PromptType)

	empty := &domain.ProcessingJob{}
	p, err = empty.DecodePayload()
	require.NoError(t, err)
	assert.Empty(t, p.PromptType)
}

func TestProcessingJob_StatusView(t *testing.T) {
	job := runningJob(t, 3)
	require.NoError(t, job.Complete(json.RawMessage(`{}`), t0.Add(2*time.Second)))

	v := job.StatusView()

	assert.Equal(t, job.ID, v.ID)
	assert.Equal(t, domain.JobStatusCompleted, v.Status)
	require.NotNil(t, v.ProcessingSeconds)
	assert.InDelta(t, 2.0, *v.ProcessingSeconds, 0.0001)
}
