package llm

import (
	"context"

	"github.com/google/uuid"

	"annotext/internal/port"
)

// meteredClient records which model answered, so usage behind a fallback
// chain is attributed to the model that actually served the call.
type meteredClient struct {
	next      port.CompletionClient
	modelID   uuid.UUID
	costPer1K float64
}

func (m *meteredClient) Complete(ctx context.Context, req port.CompletionRequest) (*port.Completion, error) {
	out, err := m.next.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if out.ModelID == uuid.Nil {
		out.ModelID = m.modelID
		out.CostPer1K = m.costPer1K
	}
	return out, nil
}
