package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"annotext/internal/domain"
	"annotext/internal/port"
)

// Recount recomputes a document's entity counters from the live entity rows
// and writes them back. It must run inside the transaction that mutated the
// entities so the counters commit together with the change.
func Recount(ctx context.Context, tx port.EntityTx, documentID uuid.UUID) (domain.EntityCounts, error) {
	counts, err := tx.CountByDocument(ctx, documentID)
	if err != nil {
		return domain.EntityCounts{}, fmt.Errorf("service.Recount: counting: %w", err)
	}
	counts.Unverified = counts.Total - counts.Verified
	if err := tx.UpdateDocumentCounts(ctx, documentID, counts); err != nil {
		return domain.EntityCounts{}, fmt.Errorf("service.Recount: updating document: %w", err)
	}
	return counts, nil
}
