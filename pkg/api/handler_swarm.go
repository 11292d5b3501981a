package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/johnjames-bit/nyanclaw-sub000/pkg/swarm"
)

// SwarmRequest is the body of POST /api/swarm.
type SwarmRequest struct {
	SessionID   string       `json:"session_id"`
	Tasks       []swarm.Task `json:"tasks"`
	TokenBudget int          `json:"token_budget,omitempty"`
}

// SwarmResponse describes a swarm and its workers.
type SwarmResponse struct {
	SwarmID    string            `json:"swarm_id"`
	Status     swarm.SwarmStatus `json:"status"`
	Workers    []swarm.Worker    `json:"workers"`
	TokensUsed int               `json:"tokens_used"`
}

// swarmSpawnHandler handles POST /api/swarm: register the swarm, launch its
// workers in the background, and return the pending entry.
func (s *Server) swarmSpawnHandler(c echo.Context) error {
	var req SwarmRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}

	id, workers, err := s.swarms.Spawn(swarm.Spec{
		ParentSessionID: req.SessionID,
		CallerID:        c.Request().RemoteAddr,
		Tasks:           req.Tasks,
		TokenBudget:     req.TokenBudget,
	})
	if err != nil {
		if errors.Is(err, swarm.ErrTooManySwarms) {
			return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	go func() {
		if _, err := s.swarms.Execute(context.Background(), id); err != nil {
			s.logger.Error("Swarm execution failed", "swarm_id", id, "error", err)
		}
	}()

	return c.JSON(http.StatusAccepted, SwarmResponse{
		SwarmID: id,
		Status:  swarm.SwarmPending,
		Workers: workers,
	})
}

// swarmStatusHandler handles GET /api/swarm/:id.
func (s *Server) swarmStatusHandler(c echo.Context) error {
	id := c.PathParam("id")
	status, workers, tokens, err := s.swarms.Status(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, SwarmResponse{
		SwarmID:    id,
		Status:     status,
		Workers:    workers,
		TokensUsed: tokens,
	})
}

// swarmAbortHandler handles DELETE /api/swarm/:id.
func (s *Server) swarmAbortHandler(c echo.Context) error {
	if err := s.swarms.Abort(c.PathParam("id")); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "aborted"})
}
