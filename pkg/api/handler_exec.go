package api

import (
	"net/http"
	"strings"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/johnjames-bit/nyanclaw-sub000/pkg/watchtower"
)

// ExecRequest is the body of POST /api/exec.
type ExecRequest struct {
	Command        string            `json:"command"`
	Background     bool              `json:"background,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
	Cwd            string            `json:"cwd,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
}

// execHandler handles POST /api/exec. Foreground runs block and return the
// captured output; background runs return the registry entry immediately.
// Validation failures surface as blocked results, not HTTP errors.
func (s *Server) execHandler(c echo.Context) error {
	var req ExecRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Command) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "command is required")
	}

	opts := watchtower.ExecOptions{
		Timeout: time.Duration(req.TimeoutSeconds) * time.Second,
		Cwd:     req.Cwd,
		Env:     req.Env,
	}

	if req.Background {
		info, err := s.tower.ExecBackground(c.Request().Context(), req.Command, opts)
		if err != nil {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return c.JSON(http.StatusAccepted, info)
	}

	result := s.tower.ExecForeground(c.Request().Context(), req.Command, opts)
	return c.JSON(http.StatusOK, result)
}

// execListHandler handles GET /api/exec.
func (s *Server) execListHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, s.tower.ListProcesses())
}

// execPollHandler handles GET /api/exec/:id.
func (s *Server) execPollHandler(c echo.Context) error {
	info, err := s.tower.PollProcess(c.PathParam("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, info)
}

// execStopHandler handles DELETE /api/exec/:id.
func (s *Server) execStopHandler(c echo.Context) error {
	if err := s.tower.StopProcess(c.PathParam("id")); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "stopping"})
}
