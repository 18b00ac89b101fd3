package api

import (
	"github.com/gin-gonic/gin"
	"github.com/arbourd/ioengine/internal/api/handlers"
	"github.com/arbourd/ioengine/internal/api/middleware"
	"github.com/arbourd/ioengine/internal/config"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/arbourd/ioengine/internal/api/docs" // swagger docs
)

// RegisterRoutes wires the admin/observability surface: healthz, live and
// historical stats, worker watchdog status, and swagger
// docs. There is deliberately nothing here for managing sockets directly —
// the engine's own Go API (Listen/Connect/Send/Close) is the only control
// surface; this HTTP API only observes it.
func RegisterRoutes(r *gin.Engine, h *handlers.Handler, cfg *config.Config) {
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")

	// Registered before the API-key middleware is attached, so liveness
	// probes need no key.
	api.GET("/healthz", h.Health)

	if cfg != nil && cfg.API.APIKey != "" {
		api.Use(middleware.RequireAPIKey(cfg.API.APIKey))
	}

	api.GET("/stats", h.Stats)
	api.GET("/stats/history", h.StatsHistory)
	api.GET("/monitor", h.Monitor)
}
