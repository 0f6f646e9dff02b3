package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/nestor-ai/nestor/pkg/version"
)

// rootHandler handles GET /.
func (s *Server) rootHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &ServiceInfo{
		Service: "Nestor Orchestrator Core",
		Version: version.GitCommit,
		Status:  "operational",
	})
}
