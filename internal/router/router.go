package router

import (
	"github.com/gin-gonic/gin"

	"annotext/internal/handler"
	"annotext/internal/logger"
	"annotext/internal/middleware"
)

// Handlers groups the HTTP handlers mounted by Setup.
type Handlers struct {
	Health *handler.HealthHandler
	Job    *handler.JobHandler
	Entity *handler.EntityHandler
	Config *handler.ConfigHandler
	Stats  *handler.StatsHandler
}

// Setup configures the Gin engine with all routes and middleware.
func Setup(log *logger.Logger, corsOrigins []string, h Handlers) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS(corsOrigins))
	r.Use(middleware.Requester())

	// Health checks
	r.GET("/healthz", h.Health.Liveness)
	r.GET("/readyz", h.Health.Readiness)

	v1 := r.Group("/api/v1")

	// Processing jobs
	jobs := v1.Group("/jobs")
	jobs.POST("/extract", h.Job.SubmitExtraction)
	jobs.POST("/batch", h.Job.SubmitBatch)
	jobs.POST("/connection-test", h.Job.ConnectionTest)
	jobs.POST("/cleanup", h.Job.Cleanup)
	jobs.GET("/:id", h.Job.GetStatus)
	jobs.POST("/:id/cancel", h.Job.Cancel)
	jobs.POST("/:id/retry", h.Job.Retry)
	jobs.POST("/:id/reset", h.Job.Reset)

	// Entity curation
	v1.GET("/documents/:id/entities", h.Entity.ListByDocument)
	v1.POST("/documents/:id/entities", h.Entity.Create)

	entities := v1.Group("/entities")
	entities.POST("/bulk-verify", h.Entity.BulkVerify)
	entities.POST("/bulk-delete", h.Entity.BulkDelete)
	entities.POST("/:id/verify", h.Entity.Verify)
	entities.POST("/:id/unverify", h.Entity.Unverify)
	entities.DELETE("/:id", h.Entity.Delete)

	// Configuration and reporting
	v1.PUT("/processing-configs", h.Config.Save)
	v1.GET("/usage", h.Stats.GetUsage)
	v1.GET("/stats", h.Stats.GetStats)

	return r
}
