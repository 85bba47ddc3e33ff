package handler

import (
	"github.com/gin-gonic/gin"

	"annotext/internal/service"
)

// StatsHandler handles stats and usage endpoints.
type StatsHandler struct {
	statsService service.StatsService
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(statsService service.StatsService) *StatsHandler {
	return &StatsHandler{statsService: statsService}
}

// GetStats handles GET /api/v1/stats
// @Summary Get processing statistics
// @Tags stats
// @Produce json
// @Success 200 {object} APIResponse{data=domain.ProcessingStats} "Aggregate statistics"
// @Router /stats [get]
func (h *StatsHandler) GetStats(c *gin.Context) {
	stats, err := h.statsService.GetProcessingStats(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, stats)
}

// GetUsage handles GET /api/v1/usage
// @Summary Get LLM usage
// @Description Per-model request counters and running averages
// @Tags stats
// @Produce json
// @Success 200 {object} APIResponse{data=service.UsageReport} "Usage report"
// @Router /usage [get]
func (h *StatsHandler) GetUsage(c *gin.Context) {
	report, err := h.statsService.GetUsageReport(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, report)
}
