package swarm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnjames-bit/nyanclaw-sub000/pkg/models"
)

type fakeRunner struct {
	mu       sync.Mutex
	calls    []models.PipelineInput
	tokens   int
	fail     map[string]bool
	delay    time.Duration
}

func (f *fakeRunner) Run(_ context.Context, in models.PipelineInput) (*models.PipelineResult, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.calls = append(f.calls, in)
	f.mu.Unlock()
	if f.fail[in.Query] {
		return nil, errors.New("pipeline failed")
	}
	tokens := f.tokens
	if tokens == 0 {
		tokens = 100
	}
	return &models.PipelineResult{
		Success:   true,
		Answer:    "answer to " + in.Query,
		Badge:     models.BadgeVerified,
		TokensIn:  tokens / 2,
		TokensOut: tokens / 2,
	}, nil
}

type fakeClearer struct {
	mu      sync.Mutex
	cleared []string
}

func (f *fakeClearer) Clear(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, sessionID)
}

func tasks(n int) []Task {
	out := make([]Task, n)
	for i := range out {
		out[i] = Task{Label: fmt.Sprintf("t%d", i), Query: fmt.Sprintf("query %d", i)}
	}
	return out
}

func TestSpawnValidation(t *testing.T) {
	m := NewManager(&fakeRunner{}, nil, nil)

	_, _, err := m.Spawn(Spec{ParentSessionID: "p"})
	assert.ErrorIs(t, err, ErrNoTasks)

	_, _, err = m.Spawn(Spec{ParentSessionID: "p", Tasks: tasks(11)})
	assert.ErrorIs(t, err, ErrTooManyTasks)

	id, workers, err := m.Spawn(Spec{ParentSessionID: "p", Tasks: tasks(3)})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.Len(t, workers, 3)
	assert.Equal(t, "p:swarm:w0", workers[0].SessionID)
	assert.Equal(t, WorkerPending, workers[0].Status)
}

func TestSpawnCapacity(t *testing.T) {
	m := NewManager(&fakeRunner{}, nil, nil)
	for i := 0; i < MaxSwarms; i++ {
		_, _, err := m.Spawn(Spec{ParentSessionID: "p", Tasks: tasks(1)})
		require.NoError(t, err)
	}
	_, _, err := m.Spawn(Spec{ParentSessionID: "p", Tasks: tasks(1)})
	assert.ErrorIs(t, err, ErrTooManySwarms)
}

func TestExecuteAllDone(t *testing.T) {
	runner := &fakeRunner{}
	m := NewManager(runner, nil, nil)
	id, _, err := m.Spawn(Spec{ParentSessionID: "p", CallerID: "c", Tasks: tasks(4)})
	require.NoError(t, err)

	workers, err := m.Execute(context.Background(), id)
	require.NoError(t, err)
	for _, w := range workers {
		assert.Equal(t, WorkerDone, w.Status)
		assert.Contains(t, w.Response, "answer to")
	}

	status, _, tokens, err := m.Status(id)
	require.NoError(t, err)
	assert.Equal(t, SwarmDone, status)
	assert.Equal(t, 400, tokens)

	// Every worker ran with its isolated session id.
	runner.mu.Lock()
	defer runner.mu.Unlock()
	seen := make(map[string]bool)
	for _, call := range runner.calls {
		seen[call.SessionID] = true
		assert.Equal(t, "c", call.CallerID)
	}
	assert.Len(t, seen, 4)
}

func TestExecutePartialOnFailure(t *testing.T) {
	runner := &fakeRunner{fail: map[string]bool{"query 1": true}}
	m := NewManager(runner, nil, nil)
	id, _, err := m.Spawn(Spec{ParentSessionID: "p", Tasks: tasks(3)})
	require.NoError(t, err)

	workers, err := m.Execute(context.Background(), id)
	require.NoError(t, err)

	statuses := map[WorkerStatus]int{}
	for _, w := range workers {
		statuses[w.Status]++
	}
	assert.Equal(t, 2, statuses[WorkerDone])
	assert.Equal(t, 1, statuses[WorkerFailed])

	status, _, _, _ := m.Status(id)
	assert.Equal(t, SwarmPartial, status)
}

func TestExecuteAllFailed(t *testing.T) {
	runner := &fakeRunner{fail: map[string]bool{"query 0": true}}
	m := NewManager(runner, nil, nil)
	id, _, err := m.Spawn(Spec{ParentSessionID: "p", Tasks: tasks(1)})
	require.NoError(t, err)

	_, err = m.Execute(context.Background(), id)
	require.NoError(t, err)
	status, _, _, _ := m.Status(id)
	assert.Equal(t, SwarmFailed, status)
}

func TestTokenBudgetAbortsPending(t *testing.T) {
	// Each worker burns 30k tokens; budget 50k. Serial execution means the
	// second completion crosses the budget and the rest abort.
	runner := &fakeRunner{tokens: 30_000}
	m := NewManager(runner, nil, nil)
	m.workers = 1

	id, _, err := m.Spawn(Spec{ParentSessionID: "p", Tasks: tasks(5), TokenBudget: 50_000})
	require.NoError(t, err)

	workers, err := m.Execute(context.Background(), id)
	require.NoError(t, err)

	statuses := map[WorkerStatus]int{}
	for _, w := range workers {
		statuses[w.Status]++
	}
	assert.Equal(t, 2, statuses[WorkerDone])
	assert.Equal(t, 3, statuses[WorkerAborted])

	status, _, tokens, _ := m.Status(id)
	assert.Equal(t, SwarmPartial, status)
	assert.Equal(t, 60_000, tokens)
}

func TestAbortClearsSessions(t *testing.T) {
	clearer := &fakeClearer{}
	m := NewManager(&fakeRunner{}, clearer, nil)
	id, _, err := m.Spawn(Spec{ParentSessionID: "p", Tasks: tasks(2)})
	require.NoError(t, err)

	require.NoError(t, m.Abort(id))
	status, workers, _, _ := m.Status(id)
	assert.Equal(t, SwarmAborted, status)
	for _, w := range workers {
		assert.Equal(t, WorkerAborted, w.Status)
	}
	clearer.mu.Lock()
	defer clearer.mu.Unlock()
	assert.Len(t, clearer.cleared, 2)
}

func TestAbortWorker(t *testing.T) {
	m := NewManager(&fakeRunner{}, nil, nil)
	id, _, err := m.Spawn(Spec{ParentSessionID: "p", Tasks: tasks(2)})
	require.NoError(t, err)

	require.NoError(t, m.AbortWorker(id, "w1"))
	_, workers, _, _ := m.Status(id)
	assert.Equal(t, WorkerPending, workers[0].Status)
	assert.Equal(t, WorkerAborted, workers[1].Status)

	assert.ErrorIs(t, m.AbortWorker(id, "w9"), ErrWorkerNotFound)
	assert.ErrorIs(t, m.AbortWorker("missing", "w0"), ErrSwarmNotFound)
}

func TestSweepDropsExpiredSwarms(t *testing.T) {
	m := NewManager(&fakeRunner{}, nil, nil)
	id, _, err := m.Spawn(Spec{ParentSessionID: "p", Tasks: tasks(1)})
	require.NoError(t, err)
	_, err = m.Execute(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, 0, m.Sweep(time.Now()))
	assert.Equal(t, 1, m.Sweep(time.Now().Add(16*time.Minute)))
	_, _, _, err = m.Status(id)
	assert.ErrorIs(t, err, ErrSwarmNotFound)
}
