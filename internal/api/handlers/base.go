// Package handlers implements the admin/observability REST API endpoint
// handlers for the engine host.
//
// @title ioengine Admin API
// @version 1.0
// @description REST API for observing a running ioengine socket-table host: health, live socket stats, historical stats snapshots, and worker watchdog status.
//
// @contact.name ioengine maintainers
// @contact.url https://github.com/arbourd/ioengine
//
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
//
// @host localhost:8080
// @BasePath /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
package handlers

import (
	"log/slog"
	"time"

	"github.com/arbourd/ioengine/internal/config"
	"github.com/arbourd/ioengine/internal/database"
	"github.com/arbourd/ioengine/internal/ioengine"
)

// Handler contains dependencies for the admin API handlers.
type Handler struct {
	cfg       *config.Config
	logger    *slog.Logger
	startTime time.Time

	engine *ioengine.Engine
	db     *database.DB
}

// New creates a new Handler wired to the live engine and stats-history store.
func New(cfg *config.Config, logger *slog.Logger, engine *ioengine.Engine, db *database.DB) *Handler {
	return &Handler{
		cfg:       cfg,
		logger:    logger,
		startTime: time.Now(),
		engine:    engine,
		db:        db,
	}
}
