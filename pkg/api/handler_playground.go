package api

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/johnjames-bit/nyanclaw-sub000/pkg/models"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/store"
)

// maxQueryChars bounds the accepted query length.
const maxQueryChars = 20_000

// FilePayload is one base64-encoded upload in a playground request.
type FilePayload struct {
	FileName string `json:"file_name"`
	FileType string `json:"file_type,omitempty"`
	Data     string `json:"data"`
}

// PlaygroundRequest is the body of POST /api/playground and /stream.
type PlaygroundRequest struct {
	Query       string        `json:"query"`
	SessionID   string        `json:"session_id"`
	Photos      []FilePayload `json:"photos,omitempty"`
	Documents   []FilePayload `json:"documents,omitempty"`
	Provider    string        `json:"provider,omitempty"`
	Chain       []string      `json:"chain,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

// NukeRequest is the body of POST /api/playground/nuke.
type NukeRequest struct {
	SessionID string `json:"session_id"`
}

func (r *PlaygroundRequest) toPipelineInput() (models.PipelineInput, error) {
	in := models.PipelineInput{
		Query:       strings.TrimSpace(r.Query),
		SessionID:   r.SessionID,
		Provider:    r.Provider,
		Chain:       r.Chain,
		Temperature: r.Temperature,
	}
	var err error
	if in.Photos, err = decodeFiles(r.Photos); err != nil {
		return in, fmt.Errorf("photos: %w", err)
	}
	if in.Documents, err = decodeFiles(r.Documents); err != nil {
		return in, fmt.Errorf("documents: %w", err)
	}
	return in, nil
}

func decodeFiles(files []FilePayload) ([]models.Attachment, error) {
	if len(files) == 0 {
		return nil, nil
	}
	out := make([]models.Attachment, 0, len(files))
	for _, f := range files {
		data, err := base64.StdEncoding.DecodeString(f.Data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.FileName, err)
		}
		out = append(out, models.Attachment{
			FileName: f.FileName,
			FileType: f.FileType,
			Data:     data,
		})
	}
	return out, nil
}

func bindPlaygroundRequest(c echo.Context) (*PlaygroundRequest, error) {
	var req PlaygroundRequest
	if err := c.Bind(&req); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	if len(req.Query) > maxQueryChars {
		return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "query too long")
	}
	if req.SessionID == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}
	return &req, nil
}

// tenantKey derives the opaque package-store key from the client's network
// identity; raw addresses never reach the store.
func (s *Server) tenantKey(c echo.Context) string {
	return store.DeriveTenantKey(clientIP(c), c.Request().UserAgent(), s.cfg.TenantSalt)
}

// playgroundHandler handles POST /api/playground.
func (s *Server) playgroundHandler(c echo.Context) error {
	req, err := bindPlaygroundRequest(c)
	if err != nil {
		return err
	}
	in, err := req.toPipelineInput()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in.TenantID = s.tenantKey(c)

	result, err := s.pipeline.RunCompound(c.Request().Context(), in)
	if err != nil {
		s.logger.Error("Pipeline run failed", "session_id", req.SessionID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "pipeline run failed")
	}
	return c.JSON(http.StatusOK, result)
}

// nukeHandler handles POST /api/playground/nuke: wipes the session's memory
// and its tenant package window.
func (s *Server) nukeHandler(c echo.Context) error {
	var req NukeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.SessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}

	if s.memory != nil {
		s.memory.Clear(req.SessionID)
	}
	if s.packages != nil {
		s.packages.NukeTenant(s.tenantKey(c))
	}
	s.logger.Info("Session nuked", "session_id", req.SessionID)
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// usageHandler handles GET /api/playground/usage.
func (s *Server) usageHandler(c echo.Context) error {
	if s.metrics == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "metrics not configured")
	}
	return c.JSON(http.StatusOK, s.metrics.Usage())
}
