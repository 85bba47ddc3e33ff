package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("resource not found")
	ErrJobNotFound      = fmt.Errorf("processing job: %w", ErrNotFound)
	ErrDocumentNotFound = fmt.Errorf("document: %w", ErrNotFound)
	ErrEntityNotFound   = fmt.Errorf("entity: %w", ErrNotFound)
	ErrModelNotFound    = fmt.Errorf("llm model: %w", ErrNotFound)

	// ErrConfiguration marks failures that retrying cannot fix.
	ErrConfiguration       = errors.New("configuration error")
	ErrUnsupportedProvider = fmt.Errorf("unsupported llm provider: %w", ErrConfiguration)
	ErrNoActiveModel       = fmt.Errorf("no active llm model: %w", ErrConfiguration)
	ErrNoActiveConfig      = fmt.Errorf("no active processing config: %w", ErrConfiguration)
	ErrNoJobHandler        = fmt.Errorf("no handler registered for job type: %w", ErrConfiguration)

	ErrInvalidJobTransition = errors.New("job state does not permit this action")
	ErrJobNotRetryable      = fmt.Errorf("job is not in a retryable state: %w", ErrInvalidJobTransition)
	ErrJobStateChanged      = fmt.Errorf("job was modified concurrently: %w", ErrInvalidJobTransition)
	ErrJobCancelled         = fmt.Errorf("job was cancelled: %w", ErrJobStateChanged)

	ErrValidation            = errors.New("validation failed")
	ErrInvalidPromptTemplate = errors.New("custom prompt template must contain {text} and be at least 50 characters")
	ErrEmptyDocument         = errors.New("document has no readable text")
	ErrDuplicateJob          = errors.New("an active job already exists for this document")

	// ErrRateLimited is matched by provider rate limit errors.
	ErrRateLimited = errors.New("rate limited by provider")
	// ErrProviderTimeout is matched by provider calls that exceeded their deadline.
	ErrProviderTimeout = errors.New("provider call timed out")
)

// ValidationError reports a malformed configuration or request field.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match both ErrValidation and any wrapped cause.
func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrValidation, e.Err}
	}
	return []error{ErrValidation}
}

// PublicErrorMessage returns the message stored on a failed job.
// Raw provider errors only go to logs and error_details.
func PublicErrorMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoActiveModel):
		return "No active LLM model is configured"
	case errors.Is(err, ErrNoActiveConfig):
		return "No active processing configuration is available"
	case errors.Is(err, ErrUnsupportedProvider):
		return "The configured LLM provider is not supported"
	case errors.Is(err, ErrNoJobHandler):
		return "This job type cannot be processed"
	case errors.Is(err, ErrDocumentNotFound):
		return "The document no longer exists"
	case errors.Is(err, ErrConfiguration):
		return "Processing is misconfigured"
	case errors.Is(err, ErrValidation):
		return err.Error()
	case errors.Is(err, ErrRateLimited):
		return "The LLM provider is rate limiting requests"
	case errors.Is(err, ErrProviderTimeout):
		return "The LLM provider timed out"
	case errors.Is(err, context.DeadlineExceeded):
		return "The job exceeded its time limit"
	default:
		return "The LLM provider request failed"
	}
}
