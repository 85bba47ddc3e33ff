package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"annotext/internal/domain"
	"annotext/internal/middleware"
	"annotext/internal/service"
)

// JobHandler handles processing job endpoints.
type JobHandler struct {
	orchestrator service.JobOrchestrator
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(orchestrator service.JobOrchestrator) *JobHandler {
	return &JobHandler{orchestrator: orchestrator}
}

type submitExtractionRequest struct {
	DocumentID uuid.UUID      `json:"document_id" binding:"required"`
	JobType    domain.JobType `json:"job_type"`
	PromptType string         `json:"prompt_type"`
	ModelID    *uuid.UUID     `json:"model_id"`
	ConfigID   *uuid.UUID     `json:"config_id"`
	Priority   int            `json:"priority"`
}

// SubmitExtraction handles POST /api/v1/jobs/extract
// @Summary Submit an extraction job
// @Description Queue entity extraction for one document. A second submission while a job for the same document is active returns that job.
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body submitExtractionRequest true "Extraction request"
// @Param X-User-ID header string false "Requesting user ID (UUID)"
// @Success 202 {object} APIResponse{data=domain.JobStatusView} "Job queued"
// @Failure 400 {object} APIResponse "Invalid request"
// @Failure 404 {object} APIResponse "Document not found"
// @Router /jobs/extract [post]
func (h *JobHandler) SubmitExtraction(c *gin.Context) {
	var req submitExtractionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.DocumentID == uuid.Nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "document_id is required")
		return
	}
	if req.JobType == "" {
		req.JobType = domain.JobTypeEntityExtraction
	}

	job, err := h.orchestrator.Submit(c.Request.Context(), &service.SubmitInput{
		DocumentID:  req.DocumentID,
		JobType:     req.JobType,
		PromptType:  domain.NormalizePromptType(req.PromptType),
		ModelID:     req.ModelID,
		ConfigID:    req.ConfigID,
		RequestedBy: middleware.GetUserID(c),
		Priority:    req.Priority,
	})
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondAccepted(c, job.StatusView())
}

type submitBatchRequest struct {
	DocumentIDs []uuid.UUID `json:"document_ids" binding:"required"`
	PromptType  string      `json:"prompt_type"`
	ModelID     *uuid.UUID  `json:"model_id"`
	Priority    int         `json:"priority"`
}

// SubmitBatch handles POST /api/v1/jobs/batch
// @Summary Submit a batch extraction job
// @Description Queue one child extraction job per document under a bulk umbrella job
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body submitBatchRequest true "Batch request"
// @Param X-User-ID header string false "Requesting user ID (UUID)"
// @Success 202 {object} APIResponse{data=domain.JobStatusView} "Umbrella job queued"
// @Failure 400 {object} APIResponse "Invalid request"
// @Router /jobs/batch [post]
func (h *JobHandler) SubmitBatch(c *gin.Context) {
	var req submitBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.DocumentIDs) == 0 {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "document_ids must be a non-empty list")
		return
	}

	job, err := h.orchestrator.SubmitBatch(c.Request.Context(), &service.BatchInput{
		DocumentIDs: req.DocumentIDs,
		PromptType:  domain.NormalizePromptType(req.PromptType),
		ModelID:     req.ModelID,
		RequestedBy: middleware.GetUserID(c),
		Priority:    req.Priority,
	})
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondAccepted(c, job.StatusView())
}

// GetStatus handles GET /api/v1/jobs/:id
// @Summary Get job status
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID (UUID)"
// @Success 200 {object} APIResponse{data=domain.JobStatusView} "Job status"
// @Failure 400 {object} APIResponse "Invalid ID"
// @Failure 404 {object} APIResponse "Job not found"
// @Router /jobs/{id} [get]
func (h *JobHandler) GetStatus(c *gin.Context) {
	id, ok := parseIDParam(c, "job")
	if !ok {
		return
	}

	view, err := h.orchestrator.GetStatus(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, view)
}

// Cancel handles POST /api/v1/jobs/:id/cancel
// @Summary Cancel a job
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID (UUID)"
// @Success 200 {object} APIResponse{data=domain.JobStatusView} "Job cancelled"
// @Failure 404 {object} APIResponse "Job not found"
// @Failure 409 {object} APIResponse "Job cannot be cancelled in its current status"
// @Router /jobs/{id}/cancel [post]
func (h *JobHandler) Cancel(c *gin.Context) {
	h.transition(c, h.orchestrator.Cancel)
}

// Retry handles POST /api/v1/jobs/:id/retry
// @Summary Retry a failed job
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID (UUID)"
// @Success 200 {object} APIResponse{data=domain.JobStatusView} "Job re-queued"
// @Failure 404 {object} APIResponse "Job not found"
// @Failure 409 {object} APIResponse "Job is not retryable"
// @Router /jobs/{id}/retry [post]
func (h *JobHandler) Retry(c *gin.Context) {
	h.transition(c, h.orchestrator.Retry)
}

// Reset handles POST /api/v1/jobs/:id/reset
// @Summary Reset a job
// @Description Return a job to the queue with a fresh retry budget
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID (UUID)"
// @Success 200 {object} APIResponse{data=domain.JobStatusView} "Job reset"
// @Failure 404 {object} APIResponse "Job not found"
// @Router /jobs/{id}/reset [post]
func (h *JobHandler) Reset(c *gin.Context) {
	h.transition(c, h.orchestrator.Reset)
}

func (h *JobHandler) transition(c *gin.Context, fn func(ctx context.Context, id uuid.UUID) (*domain.ProcessingJob, error)) {
	id, ok := parseIDParam(c, "job")
	if !ok {
		return
	}

	job, err := fn(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, job.StatusView())
}

// ConnectionTest handles POST /api/v1/jobs/connection-test
// @Summary Test an LLM connection
// @Tags jobs
// @Accept json
// @Produce json
// @Param X-User-ID header string false "Requesting user ID (UUID)"
// @Success 202 {object} APIResponse{data=domain.JobStatusView} "Connection test queued"
// @Failure 400 {object} APIResponse "Invalid request"
// @Router /jobs/connection-test [post]
func (h *JobHandler) ConnectionTest(c *gin.Context) {
	var req struct {
		ModelID *uuid.UUID `json:"model_id"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
			return
		}
	}

	job, err := h.orchestrator.SubmitSystemJob(c.Request.Context(), domain.JobTypeConnectionTest,
		domain.JobPayload{ModelID: req.ModelID}, middleware.GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondAccepted(c, job.StatusView())
}

// Cleanup handles POST /api/v1/jobs/cleanup
// @Summary Retire old jobs
// @Description Queue a cleanup job that retires terminal jobs older than the retention window
// @Tags jobs
// @Accept json
// @Produce json
// @Success 202 {object} APIResponse{data=domain.JobStatusView} "Cleanup queued"
// @Failure 400 {object} APIResponse "Invalid request"
// @Router /jobs/cleanup [post]
func (h *JobHandler) Cleanup(c *gin.Context) {
	var req struct {
		OlderThanDays int `json:"older_than_days"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
			return
		}
	}

	job, err := h.orchestrator.SubmitSystemJob(c.Request.Context(), domain.JobTypeCleanup,
		domain.JobPayload{OlderThanDays: req.OlderThanDays}, middleware.GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondAccepted(c, job.StatusView())
}
