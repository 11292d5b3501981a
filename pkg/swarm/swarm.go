// Package swarm runs bounded parallel sub-queries through the pipeline,
// each worker under an isolated memory session, with a shared token budget
// as backpressure.
package swarm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/johnjames-bit/nyanclaw-sub000/pkg/models"
)

// Limits.
const (
	MaxWorkers         = 10
	MaxSwarms          = 5
	DefaultTokenBudget = 50_000
	CompletedTTL       = 15 * time.Minute
	sweepInterval      = time.Minute
)

// Validation errors.
var (
	ErrTooManyTasks   = errors.New("too many swarm tasks")
	ErrNoTasks        = errors.New("no swarm tasks")
	ErrTooManySwarms  = errors.New("swarm capacity reached")
	ErrSwarmNotFound  = errors.New("swarm not found")
	ErrWorkerNotFound = errors.New("worker not found")
)

// Runner executes one pipeline run. Satisfied by the pipeline orchestrator.
type Runner interface {
	Run(ctx context.Context, in models.PipelineInput) (*models.PipelineResult, error)
}

// SessionClearer releases per-worker memory sessions on abort.
type SessionClearer interface {
	Clear(sessionID string)
}

// WorkerStatus is a worker lifecycle state.
type WorkerStatus string

// Worker statuses.
const (
	WorkerPending WorkerStatus = "pending"
	WorkerRunning WorkerStatus = "running"
	WorkerDone    WorkerStatus = "done"
	WorkerFailed  WorkerStatus = "failed"
	WorkerAborted WorkerStatus = "aborted"
)

// SwarmStatus is the aggregate state of a swarm.
type SwarmStatus string

// Swarm statuses.
const (
	SwarmPending SwarmStatus = "pending"
	SwarmRunning SwarmStatus = "running"
	SwarmDone    SwarmStatus = "done"
	SwarmPartial SwarmStatus = "partial"
	SwarmFailed  SwarmStatus = "failed"
	SwarmAborted SwarmStatus = "aborted"
)

// Task is one sub-query to run.
type Task struct {
	Label string `json:"label"`
	Query string `json:"query"`
}

// Worker is the externally visible worker state.
type Worker struct {
	WorkerID  string                 `json:"workerId"`
	Label     string                 `json:"label"`
	Query     string                 `json:"query"`
	SessionID string                 `json:"sessionId"`
	Status    WorkerStatus           `json:"status"`
	Response  string                 `json:"response,omitempty"`
	Audit     *models.AuditResult    `json:"audit,omitempty"`
	Result    *models.PipelineResult `json:"-"`
}

// Spec configures a swarm spawn.
type Spec struct {
	ParentSessionID string   `json:"parentSessionId"`
	CallerID        string   `json:"callerId"`
	Tasks           []Task   `json:"tasks"`
	TokenBudget     int      `json:"tokenBudget"`
	Chain           []string `json:"chain,omitempty"`
}

type swarmEntry struct {
	id          string
	spec        Spec
	status      SwarmStatus
	workers     []*Worker
	tokensUsed  int
	createdAt   time.Time
	completedAt time.Time
	cancel      context.CancelFunc
}

// Manager owns the swarm registry.
type Manager struct {
	mu       sync.RWMutex
	registry map[string]*swarmEntry

	runner  Runner
	memory  SessionClearer
	logger  *slog.Logger
	workers int

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewManager wires a swarm manager. memory may be nil.
func NewManager(runner Runner, memory SessionClearer, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry: make(map[string]*swarmEntry),
		runner:   runner,
		memory:   memory,
		logger:   logger,
		workers:  MaxWorkers,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the completed-swarm garbage collector.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.Sweep(time.Now())
			}
		}
	}()
}

// Stop halts the sweeper and aborts every running swarm.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.registry {
		if e.cancel != nil {
			e.cancel()
		}
	}
}

// Spawn validates the spec and registers a pending swarm.
func (m *Manager) Spawn(spec Spec) (string, []Worker, error) {
	if len(spec.Tasks) == 0 {
		return "", nil, ErrNoTasks
	}
	if len(spec.Tasks) > MaxWorkers {
		return "", nil, fmt.Errorf("%w: %d > %d", ErrTooManyTasks, len(spec.Tasks), MaxWorkers)
	}
	if spec.TokenBudget <= 0 {
		spec.TokenBudget = DefaultTokenBudget
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeCountLocked() >= MaxSwarms {
		return "", nil, ErrTooManySwarms
	}

	e := &swarmEntry{
		id:        uuid.NewString(),
		spec:      spec,
		status:    SwarmPending,
		createdAt: time.Now(),
	}
	for i, task := range spec.Tasks {
		workerID := fmt.Sprintf("w%d", i)
		e.workers = append(e.workers, &Worker{
			WorkerID:  workerID,
			Label:     task.Label,
			Query:     task.Query,
			SessionID: fmt.Sprintf("%s:swarm:%s", spec.ParentSessionID, workerID),
			Status:    WorkerPending,
		})
	}
	m.registry[e.id] = e

	out := make([]Worker, len(e.workers))
	for i, w := range e.workers {
		out[i] = *w
	}
	return e.id, out, nil
}

func (m *Manager) activeCountLocked() int {
	n := 0
	for _, e := range m.registry {
		if e.status == SwarmPending || e.status == SwarmRunning {
			n++
		}
	}
	return n
}

// Execute launches all workers of a spawned swarm concurrently and blocks
// until they settle. Once accumulated token usage reaches the budget, every
// still-pending worker is aborted.
func (m *Manager) Execute(ctx context.Context, swarmID string) ([]Worker, error) {
	m.mu.Lock()
	e, ok := m.registry[swarmID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrSwarmNotFound
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.status = SwarmRunning
	workers := e.workers
	budget := e.spec.TokenBudget
	chain := e.spec.Chain
	m.mu.Unlock()

	g, gCtx := errgroup.WithContext(runCtx)
	g.SetLimit(m.workers)

	for _, w := range workers {
		w := w
		g.Go(func() error {
			m.mu.Lock()
			if w.Status != WorkerPending {
				m.mu.Unlock()
				return nil
			}
			if e.tokensUsed >= budget {
				w.Status = WorkerAborted
				m.mu.Unlock()
				m.clearSession(w.SessionID)
				return nil
			}
			w.Status = WorkerRunning
			m.mu.Unlock()

			result, err := m.runner.Run(gCtx, models.PipelineInput{
				Query:     w.Query,
				SessionID: w.SessionID,
				CallerID:  e.spec.CallerID,
				Chain:     chain,
			})

			m.mu.Lock()
			defer m.mu.Unlock()
			if err != nil || result == nil || !result.Success {
				w.Status = WorkerFailed
				if err != nil {
					m.logger.Warn("swarm worker failed", "swarm_id", swarmID, "worker_id", w.WorkerID, "error", err)
				}
				return nil
			}
			w.Status = WorkerDone
			w.Response = result.Answer
			w.Audit = result.AuditResult
			w.Result = result
			e.tokensUsed += result.TokensIn + result.TokensOut
			if e.tokensUsed >= budget {
				for _, other := range e.workers {
					if other.Status == WorkerPending {
						other.Status = WorkerAborted
					}
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	if e.status != SwarmAborted {
		e.status = aggregateStatus(e.workers)
	}
	e.completedAt = time.Now()
	m.logger.Info("swarm completed",
		"swarm_id", swarmID,
		"status", e.status,
		"tokens_used", e.tokensUsed,
		"latency", e.completedAt.Sub(e.createdAt))

	out := make([]Worker, len(e.workers))
	for i, w := range e.workers {
		out[i] = *w
	}
	return out, nil
}

func aggregateStatus(workers []*Worker) SwarmStatus {
	done, any := 0, 0
	for _, w := range workers {
		if w.Status == WorkerDone {
			done++
			any++
		}
	}
	switch {
	case done == len(workers):
		return SwarmDone
	case any > 0:
		return SwarmPartial
	default:
		return SwarmFailed
	}
}

// Status returns a swarm's aggregate state, worker views, and token usage.
func (m *Manager) Status(swarmID string) (SwarmStatus, []Worker, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.registry[swarmID]
	if !ok {
		return "", nil, 0, ErrSwarmNotFound
	}
	out := make([]Worker, len(e.workers))
	for i, w := range e.workers {
		out[i] = *w
	}
	return e.status, out, e.tokensUsed, nil
}

// Abort cancels a swarm, marks unfinished workers aborted, and clears their
// memory sessions.
func (m *Manager) Abort(swarmID string) error {
	m.mu.Lock()
	e, ok := m.registry[swarmID]
	if !ok {
		m.mu.Unlock()
		return ErrSwarmNotFound
	}
	if e.cancel != nil {
		e.cancel()
	}
	var toClear []string
	for _, w := range e.workers {
		if w.Status == WorkerPending || w.Status == WorkerRunning {
			w.Status = WorkerAborted
			toClear = append(toClear, w.SessionID)
		}
	}
	if len(toClear) > 0 {
		e.status = SwarmAborted
	} else {
		e.status = aggregateStatus(e.workers)
	}
	e.completedAt = time.Now()
	m.mu.Unlock()

	for _, sid := range toClear {
		m.clearSession(sid)
	}
	return nil
}

// AbortWorker aborts a single pending or running worker.
func (m *Manager) AbortWorker(swarmID, workerID string) error {
	m.mu.Lock()
	e, ok := m.registry[swarmID]
	if !ok {
		m.mu.Unlock()
		return ErrSwarmNotFound
	}
	var session string
	found := false
	for _, w := range e.workers {
		if w.WorkerID == workerID {
			found = true
			if w.Status == WorkerPending || w.Status == WorkerRunning {
				w.Status = WorkerAborted
				session = w.SessionID
			}
		}
	}
	m.mu.Unlock()
	if !found {
		return ErrWorkerNotFound
	}
	if session != "" {
		m.clearSession(session)
	}
	return nil
}

// Sweep drops completed swarms past their TTL.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, e := range m.registry {
		if e.status == SwarmPending || e.status == SwarmRunning {
			continue
		}
		if !e.completedAt.IsZero() && now.Sub(e.completedAt) > CompletedTTL {
			delete(m.registry, id)
			removed++
		}
	}
	return removed
}

func (m *Manager) clearSession(sessionID string) {
	if m.memory != nil {
		m.memory.Clear(sessionID)
	}
}
