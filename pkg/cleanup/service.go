// Package cleanup runs the periodic retention sweeps over the in-memory
// stores: tenant package windows, session memory, the extraction cache,
// the process registry, and finished swarms.
package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// DefaultInterval is how often the sweep loop fires.
const DefaultInterval = time.Minute

// Sweeper removes expired entries as of now and reports how many went.
type Sweeper interface {
	Sweep(now time.Time) int
}

// Target pairs a sweeper with its log label.
type Target struct {
	Name    string
	Sweeper Sweeper
}

// Service periodically sweeps every registered target. Sweeps are
// idempotent; a target that has nothing to expire reports zero.
type Service struct {
	targets  []Target
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a cleanup service over the given targets. A zero
// interval selects DefaultInterval; nil sweepers are skipped.
func NewService(interval time.Duration, logger *slog.Logger, targets ...Target) *Service {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	kept := make([]Target, 0, len(targets))
	for _, t := range targets {
		if t.Sweeper != nil {
			kept = append(kept, t)
		}
	}
	return &Service{targets: kept, interval: interval, logger: logger}
}

// Start launches the background sweep loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("Cleanup service started",
		"targets", len(s.targets), "interval", s.interval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.RunAll(time.Now())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunAll(time.Now())
		}
	}
}

// RunAll sweeps every target once and returns the total expired count.
func (s *Service) RunAll(now time.Time) int {
	total := 0
	for _, t := range s.targets {
		n := t.Sweeper.Sweep(now)
		total += n
		if n > 0 {
			s.logger.Info("Retention sweep expired entries", "target", t.Name, "count", n)
		}
	}
	return total
}
