package api

import (
	"net/http"
	"strconv"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/nestor-ai/nestor/pkg/models"
)

// historyDefaultLimit caps GET /api/actions/history when no limit is given.
const historyDefaultLimit = 50

// executeHandler handles POST /api/actions/execute.
//
// The pipeline always produces a response; rejections and partial failures
// are HTTP 200 with the corresponding status. Only a pipeline-level error
// maps to 500, and the body still carries the full response envelope.
func (s *Server) executeHandler(c *echo.Context) error {
	var req ExecuteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Content) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	}

	resp := s.engine.Process(c.Request().Context(), models.Request{
		ID:      req.ID,
		Kind:    req.Type,
		Content: req.Content,
		Context: req.Context,
	})

	status := http.StatusOK
	if resp.Status == models.StatusError {
		status = http.StatusInternalServerError
	}
	return c.JSON(status, resp)
}

// allowedActionsHandler handles GET /api/actions/allowed.
func (s *Server) allowedActionsHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &AllowedActionsResponse{
		AllowedActions: s.cfg.AllowedActions,
	})
}

// historyHandler handles GET /api/actions/history.
func (s *Server) historyHandler(c *echo.Context) error {
	limit := historyDefaultLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	history := []*models.PipelineResponse{}
	if s.auditLog != nil {
		history = s.auditLog.Tail(limit)
	}
	return c.JSON(http.StatusOK, &HistoryResponse{History: history})
}
