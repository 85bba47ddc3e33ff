package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"annotext/internal/domain"
	"annotext/internal/service"
)

// ConfigHandler handles processing configuration endpoints.
type ConfigHandler struct {
	configService service.LLMConfigService
}

// NewConfigHandler creates a new ConfigHandler.
func NewConfigHandler(configService service.LLMConfigService) *ConfigHandler {
	return &ConfigHandler{configService: configService}
}

type saveConfigRequest struct {
	ID                  *uuid.UUID `json:"id"`
	LLMModelID          uuid.UUID  `json:"llm_model_id" binding:"required"`
	Name                string     `json:"name"`
	ChunkSize           *int       `json:"chunk_size"`
	OverlapSize         *int       `json:"overlap_size"`
	MaxTokens           *int       `json:"max_tokens"`
	Temperature         *float64   `json:"temperature"`
	ConfidenceThreshold *float64   `json:"confidence_threshold"`
	PromptType          string     `json:"prompt_type"`
	CustomPrompt        string     `json:"custom_prompt"`
	IsActive            *bool      `json:"is_active"`
}

// toConfig overlays the supplied fields on the defaults.
func (r *saveConfigRequest) toConfig() domain.LLMProcessingConfig {
	cfg := domain.DefaultProcessingConfig()
	if r.ID != nil {
		cfg.ID = *r.ID
	}
	cfg.LLMModelID = r.LLMModelID
	if r.Name != "" {
		cfg.Name = r.Name
	}
	if r.ChunkSize != nil {
		cfg.ChunkSize = *r.ChunkSize
	}
	if r.OverlapSize != nil {
		cfg.OverlapSize = *r.OverlapSize
	}
	if r.MaxTokens != nil {
		cfg.MaxTokens = *r.MaxTokens
	}
	if r.Temperature != nil {
		cfg.Temperature = *r.Temperature
	}
	if r.ConfidenceThreshold != nil {
		cfg.ConfidenceThreshold = *r.ConfidenceThreshold
	}
	if r.PromptType != "" {
		cfg.PromptType = domain.PromptType(r.PromptType)
	}
	cfg.CustomPrompt = r.CustomPrompt
	if r.IsActive != nil {
		cfg.IsActive = *r.IsActive
	}
	return cfg
}

// Save handles PUT /api/v1/processing-configs
// @Summary Save a processing config
// @Description Create or update an LLM processing config. Omitted fields take their defaults.
// @Tags configs
// @Accept json
// @Produce json
// @Param request body saveConfigRequest true "Processing config"
// @Success 200 {object} APIResponse{data=domain.LLMProcessingConfig} "Saved config"
// @Failure 400 {object} APIResponse "Invalid config or unknown model"
// @Router /processing-configs [put]
func (h *ConfigHandler) Save(c *gin.Context) {
	var req saveConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.LLMModelID == uuid.Nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "llm_model_id is required")
		return
	}

	cfg := req.toConfig()
	saved, err := h.configService.SaveConfig(c.Request.Context(), &cfg)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, saved)
}
