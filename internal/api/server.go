// Package api provides the admin/observability REST API for a running
// ioengine host: health, live and historical socket-table
// stats, and worker watchdog status, via a Gin-based HTTP server.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/arbourd/ioengine/internal/api/handlers"
	"github.com/arbourd/ioengine/internal/api/middleware"
	"github.com/arbourd/ioengine/internal/config"
	"github.com/arbourd/ioengine/internal/database"
	"github.com/arbourd/ioengine/internal/ioengine"
)

// Server is the admin REST API server.
//
// Security note: do not expose the API to untrusted networks without authentication.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	engine     *gin.Engine
	httpServer *http.Server
}

// New builds the admin API server, wired to the live ioengine.Engine it
// observes and the stats-history database it reads /stats/history from.
func New(cfg *config.Config, logger *slog.Logger, ioeng *ioengine.Engine, db *database.DB) *Server {
	if cfg == nil {
		panic("api.New: cfg is nil")
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.SlogRequestLogger(logger))
	mountStatusPage(engine)

	h := handlers.New(cfg, logger, ioeng, db)
	RegisterRoutes(engine, h, cfg)

	addr := net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{cfg: cfg, logger: logger, engine: engine, httpServer: httpServer}
}

func (s *Server) Addr() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.Addr
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
