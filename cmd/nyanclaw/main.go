// nyanclaw server — wires the conversational pipeline, its seed modules,
// and the HTTP surface, and owns graceful shutdown.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/johnjames-bit/nyanclaw-sub000/pkg/api"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/cleanup"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/config"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/events"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/extraction"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/fetch"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/llm"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/memory"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/metrics"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/pipeline"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/preflight"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/seeds/chemistry"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/store"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/swarm"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/version"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/watchtower"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// chainProposer adapts the provider chain to the ticker-rescue contract.
type chainProposer struct {
	chain *llm.Chain
}

func (p *chainProposer) ProposeTicker(ctx context.Context, query string) (string, error) {
	resp, err := p.chain.CallWithRetry(ctx, llm.Request{
		Prompt: "If this text refers to one publicly traded company, reply with its stock " +
			"ticker symbol only; otherwise reply NONE.\n\n" + query,
		Temperature: 0,
		MaxTokens:   10,
	}, llm.CallOptions{})
	if err != nil {
		return "", err
	}
	ticker := strings.ToUpper(strings.TrimSpace(resp.Text))
	if ticker == "" || ticker == "NONE" {
		return "", fmt.Errorf("no ticker proposed")
	}
	return ticker, nil
}

func main() {
	configPath := flag.String("config",
		getEnv("NYANCLAW_CONFIG", "./nyanclaw.yaml"),
		"Path to the configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Warn("No .env file loaded, continuing with existing environment", "error", err)
	}

	slog.Info("Starting nyanclaw", "version", version.Full(), "config", *configPath)

	cfg, err := config.Initialize(*configPath)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Metrics and the LLM provider chain.
	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)
	chain := llm.DiscoverChain(m)
	if len(cfg.Providers.Order) > 0 {
		chain.SetDynamicChain(cfg.Providers.Order)
	}

	// Shared in-memory stores.
	mem := memory.NewManager(chain)
	packages := store.NewTenantPackageStore()
	extractCache := extraction.NewCache()
	extract := extraction.NewService(extractCache, extraction.PlainTextExtractor{})

	// Fetchers and the search cascade.
	braveKey := os.Getenv(cfg.Search.BraveKeyEnv)
	limiter := fetch.NewCapacityLimiter(float64(cfg.Search.DailyCapacity)/86400.0, 5)
	searchCascade := fetch.NewCascade(
		fetch.NewHTTPDDGSearcher(""),
		fetch.NewHTTPBraveSearcher("", braveKey, limiter),
	)
	market := fetch.NewCommandMarketFetcher(getEnv("MARKET_ADAPTER", "nyanclaw-market"))
	forex := fetch.NewHTTPForexFetcher("")

	router := preflight.NewRouter(market, forex, &chainProposer{chain: chain}, slog.Default())

	chemSearch := func(ctx context.Context, query string) (string, error) {
		hit, err := searchCascade.BestEffort(ctx, query, "chemistry")
		if err != nil || hit == nil {
			return "", err
		}
		return hit.Text, nil
	}
	compounds := &chemistry.Cascade{Search: chemSearch, Wikipedia: chemSearch}

	pipe := pipeline.New(chain, router, mem, packages, extract, pipeline.Options{
		Search:    searchCascade,
		Vision:    pipeline.NewChainVision(chain),
		Compounds: compounds,
		Metrics:   m,
	})
	pipe.Protocol = cfg.Protocol.Text
	pipe.ProtocolCompressed = cfg.Protocol.CompressedText

	// Sandboxed execution and the swarm runner.
	tower := watchtower.New(cfg.Watchtower.WorkspaceRoot, slog.Default())
	tower.Start(ctx)
	defer tower.Stop()

	swarmMgr := swarm.NewManager(pipe, mem, slog.Default())
	swarmMgr.Start(ctx)
	defer swarmMgr.Stop()

	// Retention sweeps. The swarm runs its own sweep loop.
	cleanupSvc := cleanup.NewService(cfg.Retention.SweepInterval, slog.Default(),
		cleanup.Target{Name: "packages", Sweeper: packages},
		cleanup.Target{Name: "memory", Sweeper: mem},
		cleanup.Target{Name: "extraction_cache", Sweeper: extractCache},
	)
	cleanupSvc.Start(ctx)
	defer cleanupSvc.Stop()

	broker := events.NewBroker(slog.Default())
	server := api.NewServer(cfg.Server, cfg.RateLimit, pipe, mem, packages, broker, m, tower, swarmMgr, promReg, slog.Default())

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("nyanclaw started", "port", cfg.Server.Port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		slog.Error("HTTP server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
	slog.Info("nyanclaw stopped")
}
