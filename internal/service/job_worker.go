package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"annotext/internal/domain"
	"annotext/internal/logger"
	"annotext/internal/port"
)

// JobWorkerConfig holds settings for the job worker.
type JobWorkerConfig struct {
	PollInterval time.Duration
	Concurrency  int
	JobTimeout   time.Duration
	StaleAfter   time.Duration
}

type retryRequest struct {
	jobID uuid.UUID
	delay time.Duration
}

// JobWorker polls for queued jobs and runs them through the handler registry.
type JobWorker struct {
	jobRepo      port.JobRepository
	orchestrator JobOrchestrator
	handlers     HandlerRegistry
	inflight     *InFlightJobs
	cfg          JobWorkerConfig
	log          *logger.Logger
	retries      chan retryRequest
	wg           sync.WaitGroup
}

// NewJobWorker creates a new JobWorker. inflight must be the registry shared
// with the orchestrator so cancellations reach running jobs.
func NewJobWorker(
	jobRepo port.JobRepository,
	orchestrator JobOrchestrator,
	handlers HandlerRegistry,
	inflight *InFlightJobs,
	cfg JobWorkerConfig,
	log *logger.Logger,
) *JobWorker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}
	return &JobWorker{
		jobRepo:      jobRepo,
		orchestrator: orchestrator,
		handlers:     handlers,
		inflight:     inflight,
		cfg:          cfg,
		log:          log,
		retries:      make(chan retryRequest, cfg.Concurrency),
	}
}

// Start runs the polling loop until ctx is canceled. It blocks until all
// in-flight jobs have finished and their retries are scheduled.
func (w *JobWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	reapEvery := w.cfg.StaleAfter / 4
	if reapEvery < w.cfg.PollInterval {
		reapEvery = w.cfg.PollInterval
	}
	reaper := time.NewTicker(reapEvery)
	defer reaper.Stop()

	sem := make(chan struct{}, w.cfg.Concurrency)

	w.log.Info("job worker started",
		"poll", w.cfg.PollInterval.String(), "concurrency", w.cfg.Concurrency,
		"job_timeout", w.cfg.JobTimeout.String(), "stale_after", w.cfg.StaleAfter.String())

	for {
		select {
		case <-ctx.Done():
			w.log.Info("job worker shutting down, waiting for in-flight jobs", "in_flight", w.inflight.Len())
			w.drain()
			w.log.Info("job worker shutdown complete")
			return

		case req := <-w.retries:
			w.scheduleRetry(ctx, req)

		case <-reaper.C:
			w.reapStale(ctx)

		case <-ticker.C:
			available := w.cfg.Concurrency - len(sem)
			if available <= 0 {
				continue
			}

			jobs, err := w.jobRepo.ClaimQueued(ctx, available)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				w.log.Error("claiming queued jobs failed", "error", err)
				continue
			}

			for i := range jobs {
				job := jobs[i]

				sem <- struct{}{}
				w.wg.Add(1)
				go func() {
					defer w.wg.Done()
					defer func() { <-sem }()
					w.run(&job)
				}()
			}
		}
	}
}

// drain waits for running jobs while still consuming their retry requests.
func (w *JobWorker) drain() {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	for {
		select {
		case req := <-w.retries:
			w.scheduleRetry(context.Background(), req)
		case <-done:
			for {
				select {
				case req := <-w.retries:
					w.scheduleRetry(context.Background(), req)
				default:
					return
				}
			}
		}
	}
}

func (w *JobWorker) scheduleRetry(ctx context.Context, req retryRequest) {
	if err := w.orchestrator.ScheduleRetry(ctx, req.jobID, req.delay); err != nil {
		w.log.Error("scheduling retry failed", "job_id", req.jobID, "error", err)
	}
}

func (w *JobWorker) reapStale(ctx context.Context) {
	if w.cfg.StaleAfter <= 0 {
		return
	}
	cutoff := time.Now().UTC().Add(-w.cfg.StaleAfter)
	n, err := w.jobRepo.RequeueStale(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error("requeueing stale jobs failed", "error", err)
		}
		return
	}
	if n > 0 {
		w.log.Warn("requeued stale running jobs", "count", n)
	}

	if _, err := w.orchestrator.RecoverStrandedRetries(ctx, cutoff); err != nil && ctx.Err() == nil {
		w.log.Error("recovering stranded retries failed", "error", err)
	}
}

// run executes one claimed job. It uses a fresh context independent of the
// poll context so in-flight jobs complete during shutdown.
func (w *JobWorker) run(job *domain.ProcessingJob) {
	jobCtx, cancel := context.WithTimeout(context.Background(), w.cfg.JobTimeout)
	defer cancel()
	w.inflight.register(job.ID, cancel)
	defer w.inflight.unregister(job.ID)

	log := w.log.With("job_id", job.ID, "job_type", job.JobType, "attempt", job.RetryCount+1)
	log.Info("dispatching job")
	started := time.Now()

	var result json.RawMessage
	handler, err := w.handlers.Lookup(job.JobType)
	if err == nil {
		result, err = w.handle(jobCtx, handler, job, w.progressFunc(jobCtx, cancel, job))
	}

	// the job context may already be done; persistence must still happen
	recCtx, recCancel := context.WithTimeout(context.WithoutCancel(jobCtx), 30*time.Second)
	defer recCancel()

	if err == nil {
		if rerr := w.orchestrator.RecordSuccess(recCtx, job, result); rerr != nil {
			w.logDiscarded(log, rerr)
			return
		}
		log.Info("job completed", "duration", time.Since(started).String())
		return
	}

	outcome, delay, rerr := w.orchestrator.RecordFailure(recCtx, job, err)
	if rerr != nil {
		w.logDiscarded(log, rerr)
		return
	}
	if outcome == domain.OutcomeRetryRequested {
		w.retries <- retryRequest{jobID: job.ID, delay: delay}
	}
}

func (w *JobWorker) logDiscarded(log *logger.Logger, err error) {
	if errors.Is(err, domain.ErrJobStateChanged) {
		log.Info("job changed while running, result discarded", "reason", err)
		return
	}
	log.Error("recording job outcome failed", "error", err)
}

func (w *JobWorker) handle(ctx context.Context, h JobHandler, job *domain.ProcessingJob, progress ProgressFunc) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()
	return h.Handle(ctx, job, progress)
}

// progressFunc persists progress with a conditional write. Losing that write
// means the job left running elsewhere, so the job context is cancelled.
func (w *JobWorker) progressFunc(ctx context.Context, cancel context.CancelFunc, job *domain.ProcessingJob) ProgressFunc {
	var mu sync.Mutex
	last := -1
	return func(percent int, step string) {
		mu.Lock()
		defer mu.Unlock()
		if ctx.Err() != nil || percent == last {
			return
		}
		last = percent
		if err := job.UpdateProgress(percent, step, time.Now().UTC()); err != nil {
			return
		}
		if err := w.jobRepo.Update(ctx, job, domain.JobStatusRunning); err != nil {
			if errors.Is(err, domain.ErrJobStateChanged) {
				w.log.Info("job no longer running, interrupting", "job_id", job.ID)
				cancel()
				return
			}
			w.log.Warn("persisting job progress failed", "job_id", job.ID, "error", err)
		}
	}
}
