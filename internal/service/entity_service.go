package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"annotext/internal/domain"
	"annotext/internal/logger"
	"annotext/internal/port"
)

// CreateEntityInput is the DTO for a manually annotated entity.
type CreateEntityInput struct {
	DocumentID uuid.UUID
	CreatedBy  *uuid.UUID
	Text       string
	EntityType string
	Start      int
	End        int
	LineNumber int
	Confidence *float64
	Source     domain.EntitySource
}

// VerifyInput is the DTO for verify, unverify and bulk verify.
type VerifyInput struct {
	EntityIDs []uuid.UUID
	Verified  bool
	By        *uuid.UUID
	Notes     string
}

// EntityService owns every entity mutation. Each mutation runs in a
// document-scoped transaction that ends with a recount.
type EntityService interface {
	ReplaceExtracted(ctx context.Context, documentID uuid.UUID, entities []domain.PositionedEntity, by *uuid.UUID) (domain.EntityCounts, error)
	CreateManual(ctx context.Context, input *CreateEntityInput) (*domain.Entity, error)
	SetVerification(ctx context.Context, input *VerifyInput) (int64, error)
	Delete(ctx context.Context, ids []uuid.UUID) (int64, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Entity, error)
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]domain.Entity, error)
}

type entityService struct {
	entityRepo port.EntityRepository
	docRepo    port.DocumentRepository
	locks      *keyedMutex
	log        *logger.Logger
	now        func() time.Time
}

// NewEntityService creates a new EntityService implementation.
func NewEntityService(entityRepo port.EntityRepository, docRepo port.DocumentRepository, log *logger.Logger) EntityService {
	if log == nil {
		log = logger.Nop()
	}
	return &entityService{
		entityRepo: entityRepo,
		docRepo:    docRepo,
		locks:      newKeyedMutex(),
		log:        log,
		now:        time.Now,
	}
}

// mutate serializes fn per document in process and runs it under the
// document row lock, followed by the recount.
func (s *entityService) mutate(ctx context.Context, documentID uuid.UUID, fn func(tx port.EntityTx) error) (domain.EntityCounts, error) {
	unlock := s.locks.Lock(documentID.String())
	defer unlock()

	var counts domain.EntityCounts
	err := s.entityRepo.WithinDocumentTx(ctx, documentID, func(tx port.EntityTx) error {
		if err := fn(tx); err != nil {
			return err
		}
		c, err := Recount(ctx, tx, documentID)
		if err != nil {
			return err
		}
		counts = c
		return nil
	})
	return counts, err
}

func (s *entityService) ReplaceExtracted(ctx context.Context, documentID uuid.UUID, positioned []domain.PositionedEntity, by *uuid.UUID) (domain.EntityCounts, error) {
	now := s.now().UTC()
	entities := make([]domain.Entity, 0, len(positioned))
	for i := range positioned {
		p := &positioned[i]
		meta, err := json.Marshal(p.Meta)
		if err != nil {
			return domain.EntityCounts{}, fmt.Errorf("entityService.ReplaceExtracted: encoding metadata: %w", err)
		}
		e := domain.Entity{
			ID:              uuid.New(),
			DocumentID:      documentID,
			Text:            p.Text,
			EntityType:      strings.ToUpper(p.EntityType),
			StartPosition:   p.Start,
			EndPosition:     p.End,
			LineNumber:      p.LineNumber,
			ConfidenceScore: p.Confidence,
			Source:          domain.EntitySourceLLM,
			ContextBefore:   p.ContextBefore,
			ContextAfter:    p.ContextAfter,
			Metadata:        meta,
			CreatedBy:       by,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := e.Validate(); err != nil {
			s.log.Warn("skipping invalid extracted entity", "document_id", documentID, "text", e.Text, "error", err)
			continue
		}
		entities = append(entities, e)
	}

	var saved, skipped int
	counts, err := s.mutate(ctx, documentID, func(tx port.EntityTx) error {
		// Verified and manual entities survive reprocessing.
		if _, err := tx.SoftDeleteUnverified(ctx, documentID, domain.EntitySourceLLM, now); err != nil {
			return err
		}
		if len(entities) == 0 {
			return nil
		}
		live, err := tx.ListLiveSpans(ctx, documentID)
		if err != nil {
			return err
		}
		fresh := withoutExisting(entities, live)
		skipped = len(entities) - len(fresh)
		if len(fresh) == 0 {
			return nil
		}
		if err := tx.EnsureEntityTypes(ctx, typesOf(fresh)); err != nil {
			return err
		}
		saved = len(fresh)
		return tx.CreateBatch(ctx, fresh)
	})
	if err != nil {
		return domain.EntityCounts{}, fmt.Errorf("entityService.ReplaceExtracted: %w", err)
	}
	s.log.Info("extracted entities saved", "document_id", documentID, "saved", saved, "already_present", skipped, "total", counts.Total)
	return counts, nil
}

func (s *entityService) CreateManual(ctx context.Context, input *CreateEntityInput) (*domain.Entity, error) {
	if _, err := s.docRepo.GetByID(ctx, input.DocumentID); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	source := input.Source
	if source == "" {
		source = domain.EntitySourceManual
	}
	confidence := 1.0
	if input.Confidence != nil {
		confidence = *input.Confidence
	}
	lineNumber := input.LineNumber
	if lineNumber <= 0 {
		lineNumber = 1
	}
	meta, _ := json.Marshal(map[string]interface{}{})
	e := domain.Entity{
		ID:              uuid.New(),
		DocumentID:      input.DocumentID,
		Text:            input.Text,
		EntityType:      strings.ToUpper(strings.TrimSpace(input.EntityType)),
		StartPosition:   input.Start,
		EndPosition:     input.End,
		LineNumber:      lineNumber,
		ConfidenceScore: confidence,
		Source:          source,
		Metadata:        meta,
		CreatedBy:       input.CreatedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}

	_, err := s.mutate(ctx, input.DocumentID, func(tx port.EntityTx) error {
		if err := tx.EnsureEntityTypes(ctx, []string{e.EntityType}); err != nil {
			return err
		}
		return tx.CreateBatch(ctx, []domain.Entity{e})
	})
	if err != nil {
		return nil, fmt.Errorf("entityService.CreateManual: %w", err)
	}
	return &e, nil
}

func (s *entityService) SetVerification(ctx context.Context, input *VerifyInput) (int64, error) {
	if len(input.EntityIDs) == 0 {
		return 0, domain.NewValidationError("entity_ids", "must not be empty")
	}
	byDoc, err := s.groupByDocument(ctx, input.EntityIDs)
	if err != nil {
		return 0, err
	}
	now := s.now().UTC()
	var total int64
	for _, docID := range sortedDocIDs(byDoc) {
		ids := byDoc[docID]
		var n int64
		_, err := s.mutate(ctx, docID, func(tx port.EntityTx) error {
			var err error
			n, err = tx.SetVerification(ctx, docID, ids, input.Verified, input.By, input.Notes, now)
			return err
		})
		if err != nil {
			return total, fmt.Errorf("entityService.SetVerification: %w", err)
		}
		total += n
	}
	return total, nil
}

func (s *entityService) Delete(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, domain.NewValidationError("entity_ids", "must not be empty")
	}
	byDoc, err := s.groupByDocument(ctx, ids)
	if err != nil {
		return 0, err
	}
	now := s.now().UTC()
	var total int64
	for _, docID := range sortedDocIDs(byDoc) {
		docIDs := byDoc[docID]
		var n int64
		_, err := s.mutate(ctx, docID, func(tx port.EntityTx) error {
			var err error
			n, err = tx.SoftDelete(ctx, docID, docIDs, now)
			return err
		})
		if err != nil {
			return total, fmt.Errorf("entityService.Delete: %w", err)
		}
		total += n
	}
	return total, nil
}

func (s *entityService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Entity, error) {
	return s.entityRepo.GetByID(ctx, id)
}

func (s *entityService) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]domain.Entity, error) {
	return s.entityRepo.ListByDocument(ctx, documentID)
}

// groupByDocument resolves entity ids to their documents. A single unknown
// id fails the whole request.
func (s *entityService) groupByDocument(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	entities, err := s.entityRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	found := make(map[uuid.UUID]bool, len(entities))
	byDoc := map[uuid.UUID][]uuid.UUID{}
	for i := range entities {
		found[entities[i].ID] = true
		byDoc[entities[i].DocumentID] = append(byDoc[entities[i].DocumentID], entities[i].ID)
	}
	for _, id := range ids {
		if !found[id] {
			return nil, fmt.Errorf("%w: %s", domain.ErrEntityNotFound, id)
		}
	}
	return byDoc, nil
}

// sortedDocIDs gives a stable lock order across documents.
func sortedDocIDs(m map[uuid.UUID][]uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// withoutExisting drops entities whose (start, end, type) is already live on
// the document, such as a verified entity that survived reprocessing.
func withoutExisting(entities []domain.Entity, live []domain.EntitySpan) []domain.Entity {
	seen := make(map[domain.EntitySpan]struct{}, len(live))
	for _, sp := range live {
		sp.EntityType = strings.ToUpper(sp.EntityType)
		seen[sp] = struct{}{}
	}
	out := make([]domain.Entity, 0, len(entities))
	for i := range entities {
		k := domain.EntitySpan{Start: entities[i].StartPosition, End: entities[i].EndPosition, EntityType: entities[i].EntityType}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, entities[i])
	}
	return out
}

func typesOf(entities []domain.Entity) []string {
	set := map[string]struct{}{}
	for i := range entities {
		set[entities[i].EntityType] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
