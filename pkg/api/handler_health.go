package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/nestor-ai/nestor/pkg/models"
	"github.com/nestor-ai/nestor/pkg/version"
)

const (
	healthStatusHealthy  = "healthy"
	healthStatusDegraded = "degraded"
)

// healthHandler handles GET /health.
// An unhealthy collaborator makes the service degraded, never 503: the
// orchestrator must not be restarted because an external service is down.
func (s *Server) healthHandler(c *echo.Context) error {
	resp := &HealthResponse{
		Status:    healthStatusHealthy,
		Version:   version.GitCommit,
		Timestamp: models.Now(),
	}

	if s.wsManager != nil {
		resp.Connections = s.wsManager.ActiveConnections()
	}

	if s.monitor != nil {
		resp.Collaborators = s.monitor.Statuses()
		if !s.monitor.IsHealthy() {
			resp.Status = healthStatusDegraded
		}
	}

	return c.JSON(http.StatusOK, resp)
}

// readinessHandler handles GET /health/ready. Not ready until every
// collaborator passed its first probe.
func (s *Server) readinessHandler(c *echo.Context) error {
	if s.monitor != nil && !s.monitor.IsHealthy() {
		return c.JSON(http.StatusServiceUnavailable, map[string]bool{"ready": false})
	}
	return c.JSON(http.StatusOK, map[string]bool{"ready": true})
}

// livenessHandler handles GET /health/live.
func (s *Server) livenessHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{"alive": true})
}
