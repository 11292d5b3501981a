package watchtower

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// Limits of the background registry.
const (
	DefaultForegroundTimeout = 30 * time.Second
	DefaultBackgroundTimeout = 120 * time.Second
	MaxOutputBytes           = 4096
	MaxBackground            = 20
	TermGrace                = 5 * time.Second
	CompletedTTL             = 10 * time.Minute
	sweepInterval            = time.Minute
)

// Status is a background process lifecycle state.
type Status string

// Background statuses.
const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
	StatusKilled  Status = "killed"
)

// ExecOptions tune one execution.
type ExecOptions struct {
	Timeout   time.Duration
	MaxOutput int
	Cwd       string
	Env       map[string]string
}

// ForegroundResult is the blocking entry point's return value.
type ForegroundResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
	TimedOut bool   `json:"timedOut"`
}

// ProcessInfo is the externally visible view of a background entry.
type ProcessInfo struct {
	RunID     string    `json:"runId"`
	PID       int       `json:"pid"`
	Command   string    `json:"command"`
	Status    Status    `json:"status"`
	Stdout    string    `json:"stdout"`
	Stderr    string    `json:"stderr"`
	ExitCode  int       `json:"exitCode"`
	TimedOut  bool      `json:"timedOut"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt,omitempty"`
}

type entry struct {
	id        string
	pid       int
	command   string
	status    Status
	stdout    *cappedBuffer
	stderr    *cappedBuffer
	exitCode  int
	timedOut  bool
	killedReq bool
	startedAt time.Time
	endedAt   time.Time
	cancel    context.CancelFunc
}

// Watchtower owns the background registry and the validation gate.
type Watchtower struct {
	mu            sync.RWMutex
	registry      map[string]*entry
	workspaceRoot string
	logger        *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a watchtower rooted at workspaceRoot.
func New(workspaceRoot string, logger *slog.Logger) *Watchtower {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watchtower{
		registry:      make(map[string]*entry),
		workspaceRoot: workspaceRoot,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

// Start launches the completed-entry garbage collector.
func (w *Watchtower) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case <-ticker.C:
				w.Sweep(time.Now())
			}
		}
	}()
}

// Stop halts the sweep loop and force-kills everything still running.
func (w *Watchtower) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.ClearRegistry()
}

// blocked folds a validation failure into the fixed blocked result.
func blocked(err error) ForegroundResult {
	return ForegroundResult{
		Stderr:   "[watchtower] blocked: " + err.Error(),
		ExitCode: 1,
	}
}

// ExecForeground validates and runs a command, blocking until exit or
// timeout. Validation failures are returned as results, never as errors.
func (w *Watchtower) ExecForeground(ctx context.Context, command string, opts ExecOptions) ForegroundResult {
	if err := validateCommand(command, w.workspaceRoot); err != nil {
		return blocked(err)
	}
	if err := validateEnv(opts.Env); err != nil {
		return blocked(err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultForegroundTimeout
	}
	maxOutput := opts.MaxOutput
	if maxOutput <= 0 || maxOutput > MaxOutputBytes {
		maxOutput = MaxOutputBytes
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
	cmd.Dir = opts.Cwd
	cmd.Env = buildEnv(opts.Env)
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = TermGrace

	stdout := newCappedBuffer(maxOutput)
	stderr := newCappedBuffer(maxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	result := ForegroundResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		TimedOut: runCtx.Err() == context.DeadlineExceeded,
	}
	switch {
	case err == nil:
		result.ExitCode = 0
	case cmd.ProcessState != nil:
		result.ExitCode = cmd.ProcessState.ExitCode()
	default:
		result.ExitCode = 1
		if result.Stderr == "" {
			result.Stderr = err.Error()
		}
	}
	return result
}

// ExecBackground validates, registers, and launches a command without
// blocking. Returns the run id and pid.
func (w *Watchtower) ExecBackground(ctx context.Context, command string, opts ExecOptions) (*ProcessInfo, error) {
	if err := validateCommand(command, w.workspaceRoot); err != nil {
		return nil, err
	}
	if err := validateEnv(opts.Env); err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultBackgroundTimeout
	}
	maxOutput := opts.MaxOutput
	if maxOutput <= 0 || maxOutput > MaxOutputBytes {
		maxOutput = MaxOutputBytes
	}

	w.mu.Lock()
	if len(w.registry) >= MaxBackground && !w.evictOneLocked() {
		w.mu.Unlock()
		return nil, ErrCapacityFull
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
	cmd.Dir = opts.Cwd
	cmd.Env = buildEnv(opts.Env)
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = TermGrace

	e := &entry{
		id:        uuid.NewString(),
		command:   command,
		status:    StatusRunning,
		stdout:    newCappedBuffer(maxOutput),
		stderr:    newCappedBuffer(maxOutput),
		startedAt: time.Now(),
		cancel:    cancel,
	}
	cmd.Stdout = e.stdout
	cmd.Stderr = e.stderr

	if err := cmd.Start(); err != nil {
		cancel()
		w.mu.Unlock()
		return nil, err
	}
	e.pid = cmd.Process.Pid
	w.registry[e.id] = e
	info := e.snapshot()
	w.mu.Unlock()

	go w.reap(e, cmd, runCtx)
	return &info, nil
}

// reap waits for process exit and settles the entry's terminal status.
func (w *Watchtower) reap(e *entry, cmd *exec.Cmd, runCtx context.Context) {
	err := cmd.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	e.endedAt = time.Now()
	e.timedOut = runCtx.Err() == context.DeadlineExceeded
	if cmd.ProcessState != nil {
		e.exitCode = cmd.ProcessState.ExitCode()
	} else if err != nil {
		e.exitCode = 1
	}

	switch {
	case e.killedReq:
		e.status = StatusKilled
	case e.timedOut || e.exitCode != 0:
		e.status = StatusFailed
	default:
		e.status = StatusDone
	}
	e.cancel()
	w.logger.Debug("background process finished",
		"run_id", e.id, "status", e.status, "exit_code", e.exitCode)
}

// evictOneLocked drops the oldest non-running entry; false when everything
// is still running.
func (w *Watchtower) evictOneLocked() bool {
	var oldest *entry
	for _, e := range w.registry {
		if e.status == StatusRunning {
			continue
		}
		if oldest == nil || e.startedAt.Before(oldest.startedAt) {
			oldest = e
		}
	}
	if oldest == nil {
		return false
	}
	delete(w.registry, oldest.id)
	return true
}

// PollProcess returns the current view of a background run.
func (w *Watchtower) PollProcess(runID string) (*ProcessInfo, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.registry[runID]
	if !ok {
		return nil, ErrNotFound
	}
	info := e.snapshot()
	return &info, nil
}

// StopProcess terminates a background run. Idempotent: stopping a finished
// or already-stopped run is a no-op.
func (w *Watchtower) StopProcess(runID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.registry[runID]
	if !ok {
		return ErrNotFound
	}
	if e.status != StatusRunning {
		return nil
	}
	e.killedReq = true
	e.cancel()
	return nil
}

// ListProcesses returns all registry entries, newest first.
func (w *Watchtower) ListProcesses() []ProcessInfo {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]ProcessInfo, 0, len(w.registry))
	for _, e := range w.registry {
		out = append(out, e.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// ClearRegistry force-kills every running entry and empties the registry.
func (w *Watchtower) ClearRegistry() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, e := range w.registry {
		if e.status == StatusRunning {
			e.killedReq = true
			e.cancel()
		}
		delete(w.registry, id)
	}
}

// Sweep drops completed entries older than the TTL.
func (w *Watchtower) Sweep(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	removed := 0
	for id, e := range w.registry {
		if e.status == StatusRunning {
			continue
		}
		if !e.endedAt.IsZero() && now.Sub(e.endedAt) > CompletedTTL {
			delete(w.registry, id)
			removed++
		}
	}
	return removed
}

func (e *entry) snapshot() ProcessInfo {
	return ProcessInfo{
		RunID:     e.id,
		PID:       e.pid,
		Command:   e.command,
		Status:    e.status,
		Stdout:    e.stdout.String(),
		Stderr:    e.stderr.String(),
		ExitCode:  e.exitCode,
		TimedOut:  e.timedOut,
		StartedAt: e.startedAt,
		EndedAt:   e.endedAt,
	}
}

// cappedBuffer keeps the first cap bytes written and drops the rest.
type cappedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	cap int
}

func newCappedBuffer(cap int) *cappedBuffer {
	return &cappedBuffer{cap: cap}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	remaining := b.cap - b.buf.Len()
	if remaining > 0 {
		if len(p) > remaining {
			b.buf.Write(p[:remaining])
		} else {
			b.buf.Write(p)
		}
	}
	// Report full consumption so the child never blocks on a full pipe.
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
