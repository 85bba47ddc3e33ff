package port

import (
	"context"

	"github.com/google/uuid"
)

// CompletionRequest is the provider-neutral shape of one LLM call.
type CompletionRequest struct {
	SystemMessage string
	Prompt        string
	MaxTokens     int
	Temperature   float64
	// JSONMode asks providers that support it to constrain output to a JSON object.
	JSONMode bool
}

// Completion is the raw text returned by a provider plus accounting data.
type Completion struct {
	Text             string
	Provider         string
	Model            string
	ModelID          uuid.UUID
	CostPer1K        float64
	PromptTokens     int
	CompletionTokens int
	Truncated        bool
}

// TokensUsed returns prompt plus completion tokens.
func (c *Completion) TokensUsed() int {
	return c.PromptTokens + c.CompletionTokens
}

// CompletionClient abstracts a single LLM vendor.
type CompletionClient interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}
