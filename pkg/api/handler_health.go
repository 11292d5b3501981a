package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/johnjames-bit/nyanclaw-sub000/pkg/version"
)

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Sessions int    `json:"sessions"`
	Tenants  int    `json:"tenants"`
}

// healthHandler handles GET /api/v1/health. Only in-process components are
// reported; external providers are excluded so orchestrators do not restart
// the service over an upstream outage.
func (s *Server) healthHandler(c echo.Context) error {
	resp := HealthResponse{
		Status:  "healthy",
		Version: version.GitCommit,
	}
	if s.memory != nil {
		resp.Sessions = s.memory.SessionCount()
	}
	if s.packages != nil {
		resp.Tenants = s.packages.TenantCount()
	}
	return c.JSON(http.StatusOK, resp)
}
