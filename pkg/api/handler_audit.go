package api

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/johnjames-bit/nyanclaw-sub000/pkg/models"
)

// AuditRequest is the body of POST /api/nyan-ai/audit.
type AuditRequest struct {
	Query   string `json:"query"`
	Draft   string `json:"draft"`
	Sources string `json:"sources,omitempty"`
	Strict  bool   `json:"strict,omitempty"`
}

// AuditResponse wraps the standalone audit outcome with its badge.
type AuditResponse struct {
	Audit *models.AuditResult `json:"audit"`
	Badge models.Badge        `json:"badge"`
}

// auditHandler handles POST /api/nyan-ai/audit: a single audit pass over a
// caller-supplied draft, without running the pipeline.
func (s *Server) auditHandler(c echo.Context) error {
	var req AuditRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	if strings.TrimSpace(req.Draft) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "draft is required")
	}

	audit := s.pipeline.Audit(c.Request().Context(), req.Query, req.Draft, req.Sources, req.Strict)
	return c.JSON(http.StatusOK, AuditResponse{
		Audit: audit,
		Badge: models.BadgeForVerdict(audit.Verdict),
	})
}
