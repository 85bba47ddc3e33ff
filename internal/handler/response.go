package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"annotext/internal/domain"
	"annotext/internal/logger"
	"annotext/internal/middleware"
)

// APIResponse is the standard envelope for all API responses.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError holds error details in the response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var errLog = logger.Nop()

// SetErrorLogger sets the logger used for 5xx responses.
func SetErrorLogger(l *logger.Logger) {
	if l != nil {
		errLog = l
	}
}

// RespondOK sends a 200 success response.
func RespondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

// RespondCreated sends a 201 success response.
func RespondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: data})
}

// RespondAccepted sends a 202 success response for work queued in the background.
func RespondAccepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, APIResponse{Success: true, Data: data})
}

// RespondError sends an error response with the given status code.
func RespondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: msg},
	})
}

// MapDomainError translates domain errors to HTTP status codes and error codes.
func MapDomainError(err error) (status int, code, msg string) {
	var verr *domain.ValidationError
	switch {
	// Validation errors may wrap a not-found cause; they are still the caller's fault.
	case errors.Is(err, domain.ErrInvalidPromptTemplate):
		return http.StatusBadRequest, "INVALID_PROMPT_TEMPLATE", domain.ErrInvalidPromptTemplate.Error()
	case errors.As(err, &verr):
		return http.StatusBadRequest, "VALIDATION_ERROR", verr.Error()
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error()
	case errors.Is(err, domain.ErrJobNotFound):
		return http.StatusNotFound, "JOB_NOT_FOUND", "processing job not found"
	case errors.Is(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound, "DOCUMENT_NOT_FOUND", "document not found"
	case errors.Is(err, domain.ErrEntityNotFound):
		return http.StatusNotFound, "ENTITY_NOT_FOUND", "entity not found"
	case errors.Is(err, domain.ErrModelNotFound):
		return http.StatusNotFound, "MODEL_NOT_FOUND", "llm model not found"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "resource not found"
	case errors.Is(err, domain.ErrJobNotRetryable):
		return http.StatusConflict, "JOB_NOT_RETRYABLE", "job is not in a retryable state"
	case errors.Is(err, domain.ErrJobStateChanged):
		return http.StatusConflict, "JOB_STATE_CHANGED", "job was modified concurrently; reload and try again"
	case errors.Is(err, domain.ErrInvalidJobTransition):
		return http.StatusConflict, "INVALID_JOB_TRANSITION", "job state does not permit this action"
	case errors.Is(err, domain.ErrDuplicateJob):
		return http.StatusConflict, "DUPLICATE_JOB", "an active job already exists for this document"
	case errors.Is(err, domain.ErrNoActiveModel):
		return http.StatusServiceUnavailable, "NO_ACTIVE_MODEL", "no active llm model is configured"
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusServiceUnavailable, "CONFIGURATION_ERROR", "processing is misconfigured"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred"
	}
}

// HandleError maps a domain error and sends the appropriate error response.
func HandleError(c *gin.Context, err error) {
	status, code, msg := MapDomainError(err)
	if status >= 500 {
		requestID, _ := c.Get(middleware.ContextKeyRequestID)
		errLog.Error("internal error", "request_id", requestID, "path", c.Request.URL.Path, "error", err)
	}
	RespondError(c, status, code, msg)
}

// parseIDParam parses the :id path parameter. It writes the 400 response itself.
func parseIDParam(c *gin.Context, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid "+what+" ID")
		return uuid.Nil, false
	}
	return id, true
}
