package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"annotext/internal/domain"
	"annotext/internal/middleware"
	"annotext/internal/service"
)

// EntityHandler handles entity curation endpoints.
type EntityHandler struct {
	entityService service.EntityService
}

// NewEntityHandler creates a new EntityHandler.
func NewEntityHandler(entityService service.EntityService) *EntityHandler {
	return &EntityHandler{entityService: entityService}
}

type createEntityRequest struct {
	Text       string              `json:"text" binding:"required"`
	EntityType string              `json:"entity_type" binding:"required"`
	Start      *int                `json:"start_position" binding:"required"`
	End        *int                `json:"end_position" binding:"required"`
	LineNumber int                 `json:"line_number"`
	Confidence *float64            `json:"confidence_score"`
	Source     domain.EntitySource `json:"source"`
}

// Create handles POST /api/v1/documents/:id/entities
// @Summary Create an entity
// @Description Add a manually annotated entity to a document
// @Tags entities
// @Accept json
// @Produce json
// @Param id path string true "Document ID (UUID)"
// @Param request body createEntityRequest true "Entity details"
// @Param X-User-ID header string false "Requesting user ID (UUID)"
// @Success 201 {object} APIResponse{data=domain.Entity} "Entity created"
// @Failure 400 {object} APIResponse "Invalid request or span"
// @Failure 404 {object} APIResponse "Document not found"
// @Router /documents/{id}/entities [post]
func (h *EntityHandler) Create(c *gin.Context) {
	docID, ok := parseIDParam(c, "document")
	if !ok {
		return
	}

	var req createEntityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "text, entity_type, start_position, and end_position are required")
		return
	}
	switch req.Source {
	case "", domain.EntitySourceManual, domain.EntitySourceImport, domain.EntitySourceCorrection:
	default:
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "source must be manual, import, or correction")
		return
	}

	entity, err := h.entityService.CreateManual(c.Request.Context(), &service.CreateEntityInput{
		DocumentID: docID,
		CreatedBy:  middleware.GetUserID(c),
		Text:       req.Text,
		EntityType: req.EntityType,
		Start:      *req.Start,
		End:        *req.End,
		LineNumber: req.LineNumber,
		Confidence: req.Confidence,
		Source:     req.Source,
	})
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondCreated(c, entity)
}

// ListByDocument handles GET /api/v1/documents/:id/entities
// @Summary List document entities
// @Tags entities
// @Produce json
// @Param id path string true "Document ID (UUID)"
// @Success 200 {object} APIResponse{data=[]domain.Entity} "Live entities ordered by position"
// @Failure 400 {object} APIResponse "Invalid ID"
// @Router /documents/{id}/entities [get]
func (h *EntityHandler) ListByDocument(c *gin.Context) {
	docID, ok := parseIDParam(c, "document")
	if !ok {
		return
	}

	entities, err := h.entityService.ListByDocument(c.Request.Context(), docID)
	if err != nil {
		HandleError(c, err)
		return
	}
	if entities == nil {
		entities = []domain.Entity{}
	}

	RespondOK(c, entities)
}

// Verify handles POST /api/v1/entities/:id/verify
// @Summary Verify an entity
// @Tags entities
// @Produce json
// @Param id path string true "Entity ID (UUID)"
// @Param X-User-ID header string false "Requesting user ID (UUID)"
// @Success 200 {object} APIResponse{data=domain.Entity} "Entity verified"
// @Failure 404 {object} APIResponse "Entity not found"
// @Router /entities/{id}/verify [post]
func (h *EntityHandler) Verify(c *gin.Context) {
	h.setVerification(c, true)
}

// Unverify handles POST /api/v1/entities/:id/unverify
// @Summary Unverify an entity
// @Tags entities
// @Produce json
// @Param id path string true "Entity ID (UUID)"
// @Success 200 {object} APIResponse{data=domain.Entity} "Entity unverified"
// @Failure 404 {object} APIResponse "Entity not found"
// @Router /entities/{id}/unverify [post]
func (h *EntityHandler) Unverify(c *gin.Context) {
	h.setVerification(c, false)
}

func (h *EntityHandler) setVerification(c *gin.Context, verified bool) {
	id, ok := parseIDParam(c, "entity")
	if !ok {
		return
	}
	var req struct {
		Notes string `json:"notes"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
			return
		}
	}

	if _, err := h.entityService.SetVerification(c.Request.Context(), &service.VerifyInput{
		EntityIDs: []uuid.UUID{id},
		Verified:  verified,
		By:        middleware.GetUserID(c),
		Notes:     req.Notes,
	}); err != nil {
		HandleError(c, err)
		return
	}

	entity, err := h.entityService.GetByID(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, entity)
}

type bulkEntityRequest struct {
	EntityIDs []uuid.UUID `json:"entity_ids" binding:"required"`
	Verified  *bool       `json:"verified"`
	Notes     string      `json:"notes"`
}

// BulkVerify handles POST /api/v1/entities/bulk-verify
// @Summary Bulk verify entities
// @Tags entities
// @Accept json
// @Produce json
// @Param request body bulkEntityRequest true "Entity IDs, verified defaults to true"
// @Param X-User-ID header string false "Requesting user ID (UUID)"
// @Success 200 {object} APIResponse "Number of entities updated"
// @Failure 400 {object} APIResponse "Invalid request"
// @Failure 404 {object} APIResponse "Entity not found"
// @Router /entities/bulk-verify [post]
func (h *EntityHandler) BulkVerify(c *gin.Context) {
	var req bulkEntityRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.EntityIDs) == 0 {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "entity_ids must be a non-empty list")
		return
	}
	verified := true
	if req.Verified != nil {
		verified = *req.Verified
	}

	n, err := h.entityService.SetVerification(c.Request.Context(), &service.VerifyInput{
		EntityIDs: req.EntityIDs,
		Verified:  verified,
		By:        middleware.GetUserID(c),
		Notes:     req.Notes,
	})
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, gin.H{"updated": n})
}

// Delete handles DELETE /api/v1/entities/:id
// @Summary Delete an entity
// @Tags entities
// @Produce json
// @Param id path string true "Entity ID (UUID)"
// @Success 200 {object} APIResponse "Entity deleted"
// @Failure 404 {object} APIResponse "Entity not found"
// @Router /entities/{id} [delete]
func (h *EntityHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "entity")
	if !ok {
		return
	}

	if _, err := h.entityService.Delete(c.Request.Context(), []uuid.UUID{id}); err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, gin.H{"message": "entity deleted"})
}

// BulkDelete handles POST /api/v1/entities/bulk-delete
// @Summary Bulk delete entities
// @Tags entities
// @Accept json
// @Produce json
// @Param request body bulkEntityRequest true "Entity IDs"
// @Success 200 {object} APIResponse "Number of entities deleted"
// @Failure 400 {object} APIResponse "Invalid request"
// @Failure 404 {object} APIResponse "Entity not found"
// @Router /entities/bulk-delete [post]
func (h *EntityHandler) BulkDelete(c *gin.Context) {
	var req bulkEntityRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.EntityIDs) == 0 {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "entity_ids must be a non-empty list")
		return
	}

	n, err := h.entityService.Delete(c.Request.Context(), req.EntityIDs)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, gin.H{"deleted": n})
}
