// Package api exposes the HTTP surface: the playground run and stream
// endpoints, the standalone audit pass, tenant wipe, usage, and health.
// All semantics live in the core packages; handlers stay thin.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/johnjames-bit/nyanclaw-sub000/pkg/config"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/events"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/memory"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/metrics"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/models"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/pipeline"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/store"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/swarm"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/watchtower"
)

// Runner is the pipeline surface the handlers call.
type Runner interface {
	Run(ctx context.Context, in models.PipelineInput) (*models.PipelineResult, error)
	RunCompound(ctx context.Context, in models.PipelineInput) (*models.PipelineResult, error)
	Audit(ctx context.Context, query, draft, sources string, strict bool) *models.AuditResult
}

// StreamRunner additionally supports per-run status callbacks; satisfied by
// pipeline.Pipeline via WithStatus-style shallow copies in the handler.
var _ Runner = (*pipeline.Pipeline)(nil)

// Server wires the HTTP handlers to the core collaborators.
type Server struct {
	echo     *echo.Echo
	pipeline Runner
	memory   *memory.Manager
	packages *store.TenantPackageStore
	broker   *events.Broker
	metrics  *metrics.Metrics
	tower    *watchtower.Watchtower
	swarms   *swarm.Manager
	logger   *slog.Logger

	httpServer *http.Server
	cfg        config.ServerConfig
}

// NewServer builds the server and registers all routes. promReg may be nil
// to skip the /metrics endpoint; tower and swarms may be nil to skip the
// execution-runner routes.
func NewServer(cfg config.ServerConfig, rl config.RateLimitConfig, p Runner, mem *memory.Manager, packages *store.TenantPackageStore, broker *events.Broker, m *metrics.Metrics, tower *watchtower.Watchtower, swarms *swarm.Manager, promReg *prometheus.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		echo:     echo.New(),
		pipeline: p,
		memory:   mem,
		packages: packages,
		broker:   broker,
		metrics:  m,
		tower:    tower,
		swarms:   swarms,
		logger:   logger,
		cfg:      cfg,
	}

	s.echo.Use(securityHeaders())
	s.echo.Use(requestLogger(logger))
	s.echo.Use(rateLimiter(rl))

	s.echo.GET("/api/v1/health", s.healthHandler)
	s.echo.POST("/api/playground", s.playgroundHandler)
	s.echo.POST("/api/playground/stream", s.streamHandler)
	s.echo.POST("/api/playground/nuke", s.nukeHandler)
	s.echo.GET("/api/playground/usage", s.usageHandler)
	s.echo.POST("/api/nyan-ai/audit", s.auditHandler)
	if tower != nil {
		s.echo.POST("/api/exec", s.execHandler)
		s.echo.GET("/api/exec", s.execListHandler)
		s.echo.GET("/api/exec/:id", s.execPollHandler)
		s.echo.DELETE("/api/exec/:id", s.execStopHandler)
	}
	if swarms != nil {
		s.echo.POST("/api/swarm", s.swarmSpawnHandler)
		s.echo.GET("/api/swarm/:id", s.swarmStatusHandler)
		s.echo.DELETE("/api/swarm/:id", s.swarmAbortHandler)
	}
	if promReg != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})))
	}

	return s
}

// Handler exposes the underlying handler for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start begins serving on the configured address and blocks until the
// listener closes.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("HTTP server listening", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
