package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"annotext/internal/domain"
	"annotext/internal/service"
	"annotext/mocks"
)

var workerCfg = service.JobWorkerConfig{
	PollInterval: 20 * time.Millisecond,
	Concurrency:  2,
	JobTimeout:   5 * time.Second,
}

func runningJob(jobType domain.JobType) domain.ProcessingJob {
	now := time.Now().UTC()
	return domain.ProcessingJob{
		ID:         uuid.New(),
		JobType:    jobType,
		Status:     domain.JobStatusRunning,
		MaxRetries: 3,
		StartedAt:  &now,
	}
}

func claimOnce(repo *mocks.MockJobRepo, jobs ...domain.ProcessingJob) {
	repo.On("ClaimQueued", mock.Anything, mock.AnythingOfType("int")).Return(jobs, nil).Once()
	repo.On("ClaimQueued", mock.Anything, mock.AnythingOfType("int")).Return([]domain.ProcessingJob{}, nil).Maybe()
}

// runWorker starts w, waits until cond holds (or a timeout), then stops it.
func runWorker(t *testing.T, w *service.JobWorker, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	assert.Eventually(t, cond, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}
}

func TestJobWorker_DispatchesAndRecordsSuccess(t *testing.T) {
	repo := new(mocks.MockJobRepo)
	orch := new(mocks.MockJobOrchestrator)
	job := runningJob(domain.JobTypeEntityExtraction)
	claimOnce(repo, job)
	repo.On("Update", mock.Anything, mock.Anything, domain.JobStatusRunning).Return(nil).Maybe()

	var recorded atomic.Bool
	result := json.RawMessage(`{"entities_extracted":1}`)
	orch.On("RecordSuccess", mock.Anything, mock.MatchedBy(func(j *domain.ProcessingJob) bool { return j.ID == job.ID }), result).
		Run(func(mock.Arguments) { recorded.Store(true) }).Return(nil)

	handlers := service.HandlerRegistry{
		domain.JobTypeEntityExtraction: service.JobHandlerFunc(func(ctx context.Context, j *domain.ProcessingJob, progress service.ProgressFunc) (json.RawMessage, error) {
			progress(50, "halfway")
			return result, nil
		}),
	}
	w := service.NewJobWorker(repo, orch, handlers, service.NewInFlightJobs(), workerCfg, nil)
	runWorker(t, w, recorded.Load)

	orch.AssertExpectations(t)
	repo.AssertCalled(t, "Update", mock.Anything, mock.Anything, domain.JobStatusRunning)
	for _, call := range repo.Calls {
		if call.Method == "ClaimQueued" {
			assert.LessOrEqual(t, call.Arguments.Get(1).(int), workerCfg.Concurrency)
		}
	}
}

func TestJobWorker_SchedulesRequestedRetry(t *testing.T) {
	repo := new(mocks.MockJobRepo)
	orch := new(mocks.MockJobOrchestrator)
	job := runningJob(domain.JobTypeEntityExtraction)
	claimOnce(repo, job)

	cause := errors.New("provider down")
	orch.On("RecordFailure", mock.Anything, mock.Anything, cause).
		Return(domain.OutcomeRetryRequested, 5*time.Second, nil)

	var scheduled atomic.Bool
	orch.On("ScheduleRetry", mock.Anything, job.ID, 5*time.Second).
		Run(func(mock.Arguments) { scheduled.Store(true) }).Return(nil)

	handlers := service.HandlerRegistry{
		domain.JobTypeEntityExtraction: service.JobHandlerFunc(func(context.Context, *domain.ProcessingJob, service.ProgressFunc) (json.RawMessage, error) {
			return nil, cause
		}),
	}
	w := service.NewJobWorker(repo, orch, handlers, service.NewInFlightJobs(), workerCfg, nil)
	runWorker(t, w, scheduled.Load)

	orch.AssertExpectations(t)
}

func TestJobWorker_MissingHandlerFailsJob(t *testing.T) {
	repo := new(mocks.MockJobRepo)
	orch := new(mocks.MockJobOrchestrator)
	job := runningJob(domain.JobTypeCustom)
	claimOnce(repo, job)

	var failed atomic.Bool
	orch.On("RecordFailure", mock.Anything, mock.Anything, mock.MatchedBy(func(err error) bool {
		return errors.Is(err, domain.ErrNoJobHandler) && errors.Is(err, domain.ErrConfiguration)
	})).Run(func(mock.Arguments) { failed.Store(true) }).Return(domain.OutcomeFailed, time.Duration(0), nil)

	w := service.NewJobWorker(repo, orch, service.NewHandlerRegistry(nil, nil, nil), service.NewInFlightJobs(), workerCfg, nil)
	runWorker(t, w, failed.Load)

	orch.AssertNotCalled(t, "ScheduleRetry", mock.Anything, mock.Anything, mock.Anything)
}

func TestJobWorker_HandlerPanicBecomesFailure(t *testing.T) {
	repo := new(mocks.MockJobRepo)
	orch := new(mocks.MockJobOrchestrator)
	job := runningJob(domain.JobTypeCleanup)
	claimOnce(repo, job)

	var failed atomic.Bool
	orch.On("RecordFailure", mock.Anything, mock.Anything, mock.MatchedBy(func(err error) bool {
		return strings.Contains(err.Error(), "panicked")
	})).Run(func(mock.Arguments) { failed.Store(true) }).Return(domain.OutcomeFailed, time.Duration(0), nil)

	handlers := service.HandlerRegistry{
		domain.JobTypeCleanup: service.JobHandlerFunc(func(context.Context, *domain.ProcessingJob, service.ProgressFunc) (json.RawMessage, error) {
			panic("boom")
		}),
	}
	w := service.NewJobWorker(repo, orch, handlers, service.NewInFlightJobs(), workerCfg, nil)
	runWorker(t, w, failed.Load)
}

func TestJobWorker_CancelInterruptsRunningJob(t *testing.T) {
	repo := new(mocks.MockJobRepo)
	orch := new(mocks.MockJobOrchestrator)
	inflight := service.NewInFlightJobs()
	job := runningJob(domain.JobTypeEntityExtraction)
	claimOnce(repo, job)

	var discarded atomic.Bool
	orch.On("RecordFailure", mock.Anything, mock.Anything, context.Canceled).
		Run(func(mock.Arguments) { discarded.Store(true) }).
		Return(domain.OutcomeFailed, time.Duration(0), domain.ErrJobCancelled)

	started := make(chan struct{})
	handlers := service.HandlerRegistry{
		domain.JobTypeEntityExtraction: service.JobHandlerFunc(func(ctx context.Context, _ *domain.ProcessingJob, _ service.ProgressFunc) (json.RawMessage, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	}
	w := service.NewJobWorker(repo, orch, handlers, inflight, workerCfg, nil)

	go func() {
		<-started
		inflight.Cancel(job.ID)
	}()
	runWorker(t, w, discarded.Load)

	assert.Equal(t, 0, inflight.Len())
	orch.AssertNotCalled(t, "ScheduleRetry", mock.Anything, mock.Anything, mock.Anything)
}

func TestJobWorker_LostProgressWriteInterruptsJob(t *testing.T) {
	repo := new(mocks.MockJobRepo)
	orch := new(mocks.MockJobOrchestrator)
	job := runningJob(domain.JobTypeEntityExtraction)
	claimOnce(repo, job)
	repo.On("Update", mock.Anything, mock.Anything, domain.JobStatusRunning).Return(domain.ErrJobStateChanged)

	var interrupted atomic.Bool
	orch.On("RecordFailure", mock.Anything, mock.Anything, context.Canceled).
		Run(func(mock.Arguments) { interrupted.Store(true) }).
		Return(domain.OutcomeFailed, time.Duration(0), domain.ErrJobCancelled)

	handlers := service.HandlerRegistry{
		domain.JobTypeEntityExtraction: service.JobHandlerFunc(func(ctx context.Context, _ *domain.ProcessingJob, progress service.ProgressFunc) (json.RawMessage, error) {
			progress(10, "starting")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
				return json.RawMessage(`{}`), nil
			}
		}),
	}
	w := service.NewJobWorker(repo, orch, handlers, service.NewInFlightJobs(), workerCfg, nil)
	runWorker(t, w, interrupted.Load)
	require.True(t, interrupted.Load())
}

func TestJobWorker_ReapsStaleJobs(t *testing.T) {
	repo := new(mocks.MockJobRepo)
	orch := new(mocks.MockJobOrchestrator)
	repo.On("ClaimQueued", mock.Anything, mock.AnythingOfType("int")).Return([]domain.ProcessingJob{}, nil).Maybe()

	var reaped atomic.Bool
	repo.On("RequeueStale", mock.Anything, mock.MatchedBy(func(before time.Time) bool {
		return before.Before(time.Now().Add(-50 * time.Millisecond))
	})).Return(int64(1), nil)
	orch.On("RecoverStrandedRetries", mock.Anything, mock.MatchedBy(func(before time.Time) bool {
		return before.Before(time.Now().Add(-50 * time.Millisecond))
	})).Run(func(mock.Arguments) { reaped.Store(true) }).Return(1, nil)

	cfg := workerCfg
	cfg.StaleAfter = 100 * time.Millisecond
	w := service.NewJobWorker(repo, orch, service.HandlerRegistry{}, service.NewInFlightJobs(), cfg, nil)
	runWorker(t, w, reaped.Load)
	repo.AssertCalled(t, "RequeueStale", mock.Anything, mock.Anything)
}

func TestJobWorker_CleanShutdown(t *testing.T) {
	repo := new(mocks.MockJobRepo)
	repo.On("ClaimQueued", mock.Anything, mock.AnythingOfType("int")).Return([]domain.ProcessingJob{}, nil).Maybe()
	w := service.NewJobWorker(repo, new(mocks.MockJobOrchestrator), service.HandlerRegistry{}, service.NewInFlightJobs(), workerCfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}
}
