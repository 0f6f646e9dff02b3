package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/nestor-ai/nestor/pkg/memory"
	"github.com/nestor-ai/nestor/pkg/models"
)

// memorySearchHandler handles POST /api/memory/search.
func (s *Server) memorySearchHandler(c *echo.Context) error {
	var req MemorySearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}

	results := s.memory.Search(c.Request().Context(), req.Query, req.Limit)
	if results == nil {
		results = []models.MemoryHit{}
	}
	return c.JSON(http.StatusOK, &MemorySearchResponse{Results: results})
}

// memoryStoreHandler handles POST /api/memory/store.
func (s *Server) memoryStoreHandler(c *echo.Context) error {
	var req MemoryStoreRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Content) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	}

	entry := memory.Entry{
		RequestID: uuid.NewString(),
		Content:   req.Content,
		Metadata:  req.Metadata,
	}
	if !s.memory.Store(c.Request().Context(), entry) {
		return c.JSON(http.StatusOK, &MemoryStoreResponse{Status: "failed"})
	}
	return c.JSON(http.StatusOK, &MemoryStoreResponse{Status: "stored"})
}
