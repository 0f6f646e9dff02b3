// Package api exposes the orchestrator over HTTP: the request pipeline, the
// WebSocket channel, memory access, and operational endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/nestor-ai/nestor/pkg/audit"
	"github.com/nestor-ai/nestor/pkg/config"
	"github.com/nestor-ai/nestor/pkg/health"
	"github.com/nestor-ai/nestor/pkg/memory"
	"github.com/nestor-ai/nestor/pkg/metrics"
	"github.com/nestor-ai/nestor/pkg/models"
	"github.com/nestor-ai/nestor/pkg/ws"
)

// Processor runs one request through the pipeline. Implemented by
// pipeline.Engine; tests inject doubles.
type Processor interface {
	Process(ctx context.Context, req models.Request) *models.PipelineResponse
}

// Memorizer is the memory surface the REST endpoints expose.
type Memorizer interface {
	Search(ctx context.Context, query string, limit int) []models.MemoryHit
	Store(ctx context.Context, entry memory.Entry) bool
}

// Server is the HTTP front of the orchestrator.
type Server struct {
	cfg        *config.Config
	engine     Processor
	memory     Memorizer
	wsManager  *ws.Manager
	auditLog   *audit.Log
	metrics    *metrics.Metrics
	monitor    *health.Monitor
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer wires the HTTP server and its routes.
func NewServer(cfg *config.Config, engine Processor, mem Memorizer, wsManager *ws.Manager, auditLog *audit.Log, m *metrics.Metrics, monitor *health.Monitor) *Server {
	s := &Server{
		cfg:       cfg,
		engine:    engine,
		memory:    mem,
		wsManager: wsManager,
		auditLog:  auditLog,
		metrics:   m,
		monitor:   monitor,
		logger:    slog.With("component", "api"),
	}

	e := echo.New()
	e.Use(securityHeaders())
	e.Use(corsMiddleware(cfg.CORSOrigins))

	e.GET("/", s.rootHandler)
	e.GET("/health", s.healthHandler)
	e.GET("/health/ready", s.readinessHandler)
	e.GET("/health/live", s.livenessHandler)

	e.POST("/api/actions/execute", s.executeHandler)
	e.GET("/api/actions/allowed", s.allowedActionsHandler)
	e.GET("/api/actions/history", s.historyHandler)

	e.POST("/api/memory/search", s.memorySearchHandler)
	e.POST("/api/memory/store", s.memoryStoreHandler)

	e.GET("/ws", s.wsHandler)

	if m != nil {
		metricsHandler := m.Handler()
		e.GET("/metrics", func(c *echo.Context) error {
			metricsHandler.ServeHTTP(c.Response(), c.Request())
			return nil
		})
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort),
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("API server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
