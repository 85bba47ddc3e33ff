package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"annotext/internal/domain"
	"annotext/internal/service"
	"annotext/mocks"
)

func newEntityRepo() (*mocks.MockEntityRepo, *mocks.MockEntityTx) {
	tx := new(mocks.MockEntityTx)
	repo := &mocks.MockEntityRepo{Tx: tx}
	return repo, tx
}

func expectRecount(tx *mocks.MockEntityTx, docID uuid.UUID, total, verified int) {
	tx.On("CountByDocument", mock.Anything, docID).
		Return(domain.EntityCounts{Total: total, Verified: verified}, nil).Once()
	tx.On("UpdateDocumentCounts", mock.Anything, docID, domain.EntityCounts{
		Total: total, Verified: verified, Unverified: total - verified,
	}).Return(nil).Once()
}

func TestEntityService_ReplaceExtracted_RecountsInsideTx(t *testing.T) {
	repo, tx := newEntityRepo()
	docID := uuid.New()
	svc := service.NewEntityService(repo, new(mocks.MockDocumentRepo), nil)

	positioned := []domain.PositionedEntity{
		{Text: "Hazrat Ali", EntityType: "person", Start: 0, End: 10, LineNumber: 1, Confidence: 0.95},
		{Text: "Karbala", EntityType: "LOCATION", Start: 19, End: 26, LineNumber: 1, Confidence: 0.9},
		{Text: "", EntityType: "PERSON", Start: 3, End: 3, Confidence: 0.5},
	}

	repo.On("WithinDocumentTx", mock.Anything, docID).Return(nil)
	tx.On("SoftDeleteUnverified", mock.Anything, docID, domain.EntitySourceLLM, mock.Anything).Return(int64(4), nil)
	tx.On("ListLiveSpans", mock.Anything, docID).Return([]domain.EntitySpan{}, nil)
	tx.On("EnsureEntityTypes", mock.Anything, []string{"LOCATION", "PERSON"}).Return(nil)
	tx.On("CreateBatch", mock.Anything, mock.MatchedBy(func(ents []domain.Entity) bool {
		return len(ents) == 2 && ents[0].EntityType == "PERSON" && ents[0].Source == domain.EntitySourceLLM &&
			ents[1].StartPosition == 19 && ents[1].EndPosition == 26
	})).Return(nil)
	expectRecount(tx, docID, 5, 3)

	counts, err := svc.ReplaceExtracted(context.Background(), docID, positioned, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, counts.Total)
	assert.Equal(t, 3, counts.Verified)
	assert.Equal(t, counts.Total, counts.Verified+counts.Unverified)
	tx.AssertExpectations(t)
}

func TestEntityService_ReplaceExtracted_SkipsSpansAlreadyLive(t *testing.T) {
	repo, tx := newEntityRepo()
	docID := uuid.New()
	svc := service.NewEntityService(repo, new(mocks.MockDocumentRepo), nil)

	positioned := []domain.PositionedEntity{
		{Text: "Hussain", EntityType: "PERSON", Start: 5, End: 12, LineNumber: 1, Confidence: 0.9},
		{Text: "Karbala", EntityType: "LOCATION", Start: 19, End: 26, LineNumber: 1, Confidence: 0.9},
		{Text: "Karbala", EntityType: "PERSON", Start: 19, End: 26, LineNumber: 1, Confidence: 0.4},
	}

	repo.On("WithinDocumentTx", mock.Anything, docID).Return(nil)
	tx.On("SoftDeleteUnverified", mock.Anything, docID, domain.EntitySourceLLM, mock.Anything).Return(int64(0), nil)
	// A curator verified Karbala/LOCATION on an earlier run.
	tx.On("ListLiveSpans", mock.Anything, docID).
		Return([]domain.EntitySpan{{Start: 19, End: 26, EntityType: "location"}}, nil)
	tx.On("EnsureEntityTypes", mock.Anything, []string{"PERSON"}).Return(nil)
	tx.On("CreateBatch", mock.Anything, mock.MatchedBy(func(ents []domain.Entity) bool {
		if len(ents) != 2 {
			return false
		}
		for _, e := range ents {
			if e.StartPosition == 19 && e.EntityType == "LOCATION" {
				return false
			}
		}
		return true
	})).Return(nil)
	expectRecount(tx, docID, 3, 1)

	counts, err := svc.ReplaceExtracted(context.Background(), docID, positioned, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.EntityCounts{Total: 3, Verified: 1, Unverified: 2}, counts)
	tx.AssertExpectations(t)
}

func TestEntityService_ReplaceExtracted_AllAlreadyLive(t *testing.T) {
	repo, tx := newEntityRepo()
	docID := uuid.New()
	svc := service.NewEntityService(repo, new(mocks.MockDocumentRepo), nil)

	repo.On("WithinDocumentTx", mock.Anything, docID).Return(nil)
	tx.On("SoftDeleteUnverified", mock.Anything, docID, domain.EntitySourceLLM, mock.Anything).Return(int64(0), nil)
	tx.On("ListLiveSpans", mock.Anything, docID).
		Return([]domain.EntitySpan{{Start: 19, End: 26, EntityType: "LOCATION"}}, nil)
	expectRecount(tx, docID, 1, 1)

	_, err := svc.ReplaceExtracted(context.Background(), docID, []domain.PositionedEntity{
		{Text: "Karbala", EntityType: "LOCATION", Start: 19, End: 26, LineNumber: 1, Confidence: 0.9},
	}, nil)
	require.NoError(t, err)
	tx.AssertNotCalled(t, "CreateBatch", mock.Anything, mock.Anything)
	tx.AssertNotCalled(t, "EnsureEntityTypes", mock.Anything, mock.Anything)
}

func TestEntityService_ReplaceExtracted_EmptyOnlyClearsUnverified(t *testing.T) {
	repo, tx := newEntityRepo()
	docID := uuid.New()
	svc := service.NewEntityService(repo, new(mocks.MockDocumentRepo), nil)

	repo.On("WithinDocumentTx", mock.Anything, docID).Return(nil)
	tx.On("SoftDeleteUnverified", mock.Anything, docID, domain.EntitySourceLLM, mock.Anything).Return(int64(2), nil)
	expectRecount(tx, docID, 1, 1)

	counts, err := svc.ReplaceExtracted(context.Background(), docID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.EntityCounts{Total: 1, Verified: 1, Unverified: 0}, counts)
	tx.AssertNotCalled(t, "CreateBatch", mock.Anything, mock.Anything)
}

func TestEntityService_ReplaceExtracted_TxErrorPropagates(t *testing.T) {
	repo, _ := newEntityRepo()
	docID := uuid.New()
	svc := service.NewEntityService(repo, new(mocks.MockDocumentRepo), nil)
	repo.On("WithinDocumentTx", mock.Anything, docID).Return(domain.ErrDocumentNotFound)

	_, err := svc.ReplaceExtracted(context.Background(), docID, nil, nil)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestEntityService_CreateManual(t *testing.T) {
	repo, tx := newEntityRepo()
	docs := new(mocks.MockDocumentRepo)
	docID := uuid.New()
	user := uuid.New()
	docs.On("GetByID", mock.Anything, docID).Return(&domain.Document{ID: docID}, nil)
	svc := service.NewEntityService(repo, docs, nil)

	repo.On("WithinDocumentTx", mock.Anything, docID).Return(nil)
	tx.On("EnsureEntityTypes", mock.Anything, []string{"DESIGNATION"}).Return(nil)
	tx.On("CreateBatch", mock.Anything, mock.MatchedBy(func(ents []domain.Entity) bool {
		return len(ents) == 1 && ents[0].Source == domain.EntitySourceManual
	})).Return(nil)
	expectRecount(tx, docID, 1, 0)

	e, err := svc.CreateManual(context.Background(), &service.CreateEntityInput{
		DocumentID: docID, CreatedBy: &user, Text: "Imam", EntityType: " designation ", Start: 4, End: 8,
	})
	require.NoError(t, err)
	assert.Equal(t, "DESIGNATION", e.EntityType)
	assert.Equal(t, 1.0, e.ConfidenceScore)
	assert.Equal(t, 1, e.LineNumber)
	assert.Equal(t, &user, e.CreatedBy)
}

func TestEntityService_CreateManual_RejectsBadSpan(t *testing.T) {
	repo, _ := newEntityRepo()
	docs := new(mocks.MockDocumentRepo)
	docID := uuid.New()
	docs.On("GetByID", mock.Anything, docID).Return(&domain.Document{ID: docID}, nil)
	svc := service.NewEntityService(repo, docs, nil)

	_, err := svc.CreateManual(context.Background(), &service.CreateEntityInput{
		DocumentID: docID, Text: "x", EntityType: "PERSON", Start: 5, End: 5,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
	repo.AssertNotCalled(t, "WithinDocumentTx", mock.Anything, mock.Anything)
}

func TestEntityService_SetVerification_GroupsByDocument(t *testing.T) {
	repo, tx := newEntityRepo()
	svc := service.NewEntityService(repo, new(mocks.MockDocumentRepo), nil)
	docA, docB := uuid.New(), uuid.New()
	e1, e2, e3 := uuid.New(), uuid.New(), uuid.New()
	by := uuid.New()

	repo.On("GetByIDs", mock.Anything, []uuid.UUID{e1, e2, e3}).Return([]domain.Entity{
		{ID: e1, DocumentID: docA}, {ID: e2, DocumentID: docB}, {ID: e3, DocumentID: docA},
	}, nil)
	repo.On("WithinDocumentTx", mock.Anything, docA).Return(nil)
	repo.On("WithinDocumentTx", mock.Anything, docB).Return(nil)
	tx.On("SetVerification", mock.Anything, docA, []uuid.UUID{e1, e3}, true, &by, "checked", mock.Anything).Return(int64(2), nil)
	tx.On("SetVerification", mock.Anything, docB, []uuid.UUID{e2}, true, &by, "checked", mock.Anything).Return(int64(1), nil)
	expectRecount(tx, docA, 2, 2)
	expectRecount(tx, docB, 3, 1)

	n, err := svc.SetVerification(context.Background(), &service.VerifyInput{
		EntityIDs: []uuid.UUID{e1, e2, e3}, Verified: true, By: &by, Notes: "checked",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	tx.AssertExpectations(t)
}

func TestEntityService_SetVerification_UnknownEntity(t *testing.T) {
	repo, _ := newEntityRepo()
	svc := service.NewEntityService(repo, new(mocks.MockDocumentRepo), nil)
	known, unknown := uuid.New(), uuid.New()
	repo.On("GetByIDs", mock.Anything, []uuid.UUID{known, unknown}).
		Return([]domain.Entity{{ID: known, DocumentID: uuid.New()}}, nil)

	_, err := svc.SetVerification(context.Background(), &service.VerifyInput{EntityIDs: []uuid.UUID{known, unknown}})
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)
	repo.AssertNotCalled(t, "WithinDocumentTx", mock.Anything, mock.Anything)

	_, err = svc.SetVerification(context.Background(), &service.VerifyInput{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestEntityService_Delete(t *testing.T) {
	repo, tx := newEntityRepo()
	svc := service.NewEntityService(repo, new(mocks.MockDocumentRepo), nil)
	docID, id := uuid.New(), uuid.New()

	repo.On("GetByIDs", mock.Anything, []uuid.UUID{id}).Return([]domain.Entity{{ID: id, DocumentID: docID}}, nil)
	repo.On("WithinDocumentTx", mock.Anything, docID).Return(nil)
	tx.On("SoftDelete", mock.Anything, docID, []uuid.UUID{id}, mock.Anything).Return(int64(1), nil)
	expectRecount(tx, docID, 0, 0)

	n, err := svc.Delete(context.Background(), []uuid.UUID{id})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestEntityService_RecountFailureRollsBack(t *testing.T) {
	repo, tx := newEntityRepo()
	svc := service.NewEntityService(repo, new(mocks.MockDocumentRepo), nil)
	docID, id := uuid.New(), uuid.New()
	dbErr := errors.New("connection reset")

	repo.On("GetByIDs", mock.Anything, []uuid.UUID{id}).Return([]domain.Entity{{ID: id, DocumentID: docID}}, nil)
	repo.On("WithinDocumentTx", mock.Anything, docID).Return(nil)
	tx.On("SoftDelete", mock.Anything, docID, []uuid.UUID{id}, mock.Anything).Return(int64(1), nil)
	tx.On("CountByDocument", mock.Anything, docID).Return(domain.EntityCounts{}, dbErr)

	_, err := svc.Delete(context.Background(), []uuid.UUID{id})
	assert.ErrorIs(t, err, dbErr)
	tx.AssertNotCalled(t, "UpdateDocumentCounts", mock.Anything, mock.Anything, mock.Anything)
}
