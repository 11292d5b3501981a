package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingSweeper struct {
	expired int
	calls   int
}

func (c *countingSweeper) Sweep(_ time.Time) int {
	c.calls++
	return c.expired
}

func TestRunAllTotalsAcrossTargets(t *testing.T) {
	a := &countingSweeper{expired: 3}
	b := &countingSweeper{expired: 0}
	svc := NewService(time.Hour, nil,
		Target{Name: "packages", Sweeper: a},
		Target{Name: "memory", Sweeper: b},
	)

	total := svc.RunAll(time.Now())
	assert.Equal(t, 3, total)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
}

func TestNewServiceSkipsNilSweepers(t *testing.T) {
	a := &countingSweeper{}
	svc := NewService(0, nil,
		Target{Name: "live", Sweeper: a},
		Target{Name: "absent", Sweeper: nil},
	)
	assert.Len(t, svc.targets, 1)
	assert.Equal(t, DefaultInterval, svc.interval)
}

func TestStartStopRunsInitialSweep(t *testing.T) {
	a := &countingSweeper{}
	svc := NewService(time.Hour, nil, Target{Name: "packages", Sweeper: a})

	svc.Start(context.Background())
	svc.Stop()

	assert.Equal(t, 1, a.calls)
	// Stop twice is a no-op; Start after Stop is not supported.
	svc.Stop()
}
