package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/johnjames-bit/nyanclaw-sub000/pkg/events"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/models"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/pipeline"
)

// Streaming chunk parameters: the final answer is replayed to the client in
// fixed-size slices on a fixed cadence.
const (
	tokenChunkChars   = 50
	tokenChunkSpacing = 10 * time.Millisecond
)

// streamHandler handles POST /api/playground/stream: one pipeline run
// delivered as SSE. Event order: status* → audit → token* → done, or error.
func (s *Server) streamHandler(c echo.Context) error {
	req, err := bindPlaygroundRequest(c)
	if err != nil {
		return err
	}
	in, err := req.toPipelineInput()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in.TenantID = s.tenantKey(c)
	if s.broker == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming not configured")
	}

	ch, cancel := s.broker.Subscribe(req.SessionID)
	defer cancel()

	go s.runForStream(c, in)

	h := c.Response().Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if err := writeSSE(c, ev); err != nil {
				return nil
			}
			if ev.Type == events.EventTypeDone || ev.Type == events.EventTypeError {
				return nil
			}
		}
	}
}

// runForStream executes the pipeline and publishes the event sequence for
// one streaming request.
func (s *Server) runForStream(c echo.Context, in models.PipelineInput) {
	sessionID := in.SessionID

	runner := s.pipeline
	if sp, ok := s.pipeline.(interface {
		WithStatus(func(string)) *pipeline.Pipeline
	}); ok {
		runner = sp.WithStatus(func(stage string) {
			s.broker.Publish(sessionID, events.EventTypeStatus, stage)
		})
	}

	result, err := runner.RunCompound(c.Request().Context(), in)
	if err != nil {
		s.logger.Error("Streaming pipeline run failed", "session_id", sessionID, "error", err)
		s.broker.Publish(sessionID, events.EventTypeError, err.Error())
		return
	}

	s.broker.Publish(sessionID, events.EventTypeAudit, map[string]any{
		"badge":        string(result.Badge),
		"audit_result": result.AuditResult,
	})

	// Replay the answer as paced fixed-size chunks for a typing effect.
	// Chunks advance on rune boundaries so multibyte characters survive
	// JSON encoding intact.
	answer := []rune(result.Answer)
	for start := 0; start < len(answer); start += tokenChunkChars {
		end := start + tokenChunkChars
		if end > len(answer) {
			end = len(answer)
		}
		s.broker.Publish(sessionID, events.EventTypeToken, string(answer[start:end]))
		time.Sleep(tokenChunkSpacing)
	}

	s.broker.Publish(sessionID, events.EventTypeDone, result)
}

// writeSSE renders one event in text/event-stream framing and flushes.
func writeSSE(c echo.Context, ev events.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", ev.Type, payload); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}
