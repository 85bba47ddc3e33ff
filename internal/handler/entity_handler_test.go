package handler_test

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"annotext/internal/domain"
	"annotext/internal/handler"
	"annotext/internal/middleware"
	"annotext/internal/service"
	"annotext/mocks"
)

func newEntityRouter() (*gin.Engine, *mocks.MockEntityService) {
	svc := new(mocks.MockEntityService)
	h := handler.NewEntityHandler(svc)

	r := gin.New()
	r.Use(middleware.Requester())
	v1 := r.Group("/api/v1")
	v1.POST("/documents/:id/entities", h.Create)
	v1.GET("/documents/:id/entities", h.ListByDocument)
	v1.POST("/entities/bulk-verify", h.BulkVerify)
	v1.POST("/entities/bulk-delete", h.BulkDelete)
	v1.POST("/entities/:id/verify", h.Verify)
	v1.POST("/entities/:id/unverify", h.Unverify)
	v1.DELETE("/entities/:id", h.Delete)
	return r, svc
}

func TestEntityHandler_Create(t *testing.T) {
	r, svc := newEntityRouter()
	docID, userID := uuid.New(), uuid.New()
	created := &domain.Entity{ID: uuid.New(), DocumentID: docID, Text: "Hazrat Ali", EntityType: "PERSON", EndPosition: 10}

	svc.On("CreateManual", mock.Anything, mock.MatchedBy(func(in *service.CreateEntityInput) bool {
		return in.DocumentID == docID && in.Start == 0 && in.End == 10 &&
			in.CreatedBy != nil && *in.CreatedBy == userID && in.Confidence == nil
	})).Return(created, nil)

	w := doJSON(r, http.MethodPost, "/api/v1/documents/"+docID.String()+"/entities", map[string]interface{}{
		"text": "Hazrat Ali", "entity_type": "person", "start_position": 0, "end_position": 10,
	}, "X-User-ID", userID.String())

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decodeResponse(t, w).Data.(map[string]interface{})
	assert.Equal(t, created.ID.String(), data["id"])
	svc.AssertExpectations(t)
}

func TestEntityHandler_Create_RejectsLLMSource(t *testing.T) {
	r, svc := newEntityRouter()

	w := doJSON(r, http.MethodPost, "/api/v1/documents/"+uuid.NewString()+"/entities", map[string]interface{}{
		"text": "Karbala", "entity_type": "LOCATION", "start_position": 3, "end_position": 10, "source": "llm",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "CreateManual", mock.Anything, mock.Anything)
}

func TestEntityHandler_Create_BadSpan(t *testing.T) {
	r, svc := newEntityRouter()
	svc.On("CreateManual", mock.Anything, mock.Anything).
		Return(nil, domain.NewValidationError("start_position", "must be non-negative and less than end_position"))

	w := doJSON(r, http.MethodPost, "/api/v1/documents/"+uuid.NewString()+"/entities", map[string]interface{}{
		"text": "Karbala", "entity_type": "LOCATION", "start_position": 10, "end_position": 3,
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeResponse(t, w).Error.Code)
}

func TestEntityHandler_ListByDocument_Empty(t *testing.T) {
	r, svc := newEntityRouter()
	docID := uuid.New()
	svc.On("ListByDocument", mock.Anything, docID).Return(nil, nil)

	w := doJSON(r, http.MethodGet, "/api/v1/documents/"+docID.String()+"/entities", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":[]}`, w.Body.String())
}

func TestEntityHandler_VerifyAndUnverify(t *testing.T) {
	r, svc := newEntityRouter()
	id := uuid.New()
	svc.On("SetVerification", mock.Anything, mock.MatchedBy(func(in *service.VerifyInput) bool {
		return in.Verified && len(in.EntityIDs) == 1 && in.EntityIDs[0] == id && in.Notes == "checked"
	})).Return(int64(1), nil).Once()
	svc.On("SetVerification", mock.Anything, mock.MatchedBy(func(in *service.VerifyInput) bool {
		return !in.Verified && in.EntityIDs[0] == id
	})).Return(int64(1), nil).Once()
	svc.On("GetByID", mock.Anything, id).Return(&domain.Entity{ID: id, IsVerified: true}, nil)

	w := doJSON(r, http.MethodPost, "/api/v1/entities/"+id.String()+"/verify", map[string]string{"notes": "checked"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodPost, "/api/v1/entities/"+id.String()+"/unverify", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	svc.AssertExpectations(t)
}

func TestEntityHandler_Verify_UnknownEntity(t *testing.T) {
	r, svc := newEntityRouter()
	svc.On("SetVerification", mock.Anything, mock.Anything).Return(int64(0), domain.ErrEntityNotFound)

	w := doJSON(r, http.MethodPost, "/api/v1/entities/"+uuid.NewString()+"/verify", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ENTITY_NOT_FOUND", decodeResponse(t, w).Error.Code)
}

func TestEntityHandler_BulkVerify_DefaultsToVerified(t *testing.T) {
	r, svc := newEntityRouter()
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	svc.On("SetVerification", mock.Anything, mock.MatchedBy(func(in *service.VerifyInput) bool {
		return in.Verified && len(in.EntityIDs) == 3
	})).Return(int64(3), nil)

	w := doJSON(r, http.MethodPost, "/api/v1/entities/bulk-verify", map[string]interface{}{"entity_ids": ids})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"updated":3}}`, w.Body.String())
}

func TestEntityHandler_DeleteAndBulkDelete(t *testing.T) {
	r, svc := newEntityRouter()
	id := uuid.New()
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	svc.On("Delete", mock.Anything, []uuid.UUID{id}).Return(int64(1), nil)
	svc.On("Delete", mock.Anything, ids).Return(int64(2), nil)

	w := doJSON(r, http.MethodDelete, "/api/v1/entities/"+id.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodPost, "/api/v1/entities/bulk-delete", map[string]interface{}{"entity_ids": ids})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"deleted":2}}`, w.Body.String())

	svc.AssertExpectations(t)
}

func TestEntityHandler_BulkDelete_Empty(t *testing.T) {
	r, _ := newEntityRouter()

	w := doJSON(r, http.MethodPost, "/api/v1/entities/bulk-delete", map[string]interface{}{"entity_ids": []string{}})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
