package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alertRecorder struct {
	mu     sync.Mutex
	alerts []Alert
}

func (r *alertRecorder) record(a Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

func (r *alertRecorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.alerts))
	for _, a := range r.alerts {
		out = append(out, a.Kind)
	}
	return out
}

func TestScheduler_TriggerRunsTask(t *testing.T) {
	s := New()
	var runs atomic.Int32
	require.NoError(t, s.Register("backup", "0 2 * * *", func(context.Context) error {
		runs.Add(1)
		return nil
	}))

	require.NoError(t, s.Trigger(context.Background(), "backup"))
	assert.Equal(t, int32(1), runs.Load())
}

func TestScheduler_SecondConcurrentTriggerRejected(t *testing.T) {
	rec := &alertRecorder{}
	s := New(WithAlertFunc(rec.record))

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, s.Register("backup", "0 2 * * *", func(context.Context) error {
		close(started)
		<-release
		return nil
	}))

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- s.Trigger(context.Background(), "backup")
	}()
	<-started

	err := s.Trigger(context.Background(), "backup")
	assert.ErrorIs(t, err, ErrTaskBusy, "overlapping runs of one task type are rejected")

	close(release)
	require.NoError(t, <-firstDone)

	assert.Equal(t, []string{AlertTaskSkipped}, rec.kinds())
}

func TestScheduler_FailureAlertsAndAllowsNextRun(t *testing.T) {
	rec := &alertRecorder{}
	s := New(WithAlertFunc(rec.record))

	var runs atomic.Int32
	boom := errors.New("dump tool exited 1")
	require.NoError(t, s.Register("backup", "0 2 * * *", func(context.Context) error {
		runs.Add(1)
		return boom
	}))

	assert.ErrorIs(t, s.Trigger(context.Background(), "backup"), boom)
	assert.ErrorIs(t, s.Trigger(context.Background(), "backup"), boom)

	assert.Equal(t, int32(2), runs.Load(), "one failure must not suppress later runs")
	assert.Equal(t, []string{AlertTaskFailed, AlertTaskFailed}, rec.kinds())

	require.Len(t, rec.alerts, 2)
	assert.Equal(t, "backup", rec.alerts[0].Task)
	assert.Equal(t, "dump tool exited 1", rec.alerts[0].Detail)
	assert.False(t, rec.alerts[0].Timestamp.IsZero())
}

func TestScheduler_PanicIsContained(t *testing.T) {
	rec := &alertRecorder{}
	s := New(WithAlertFunc(rec.record))

	first := true
	require.NoError(t, s.Register("prune", "30 3 * * *", func(context.Context) error {
		if first {
			first = false
			panic("nil manifest")
		}
		return nil
	}))

	err := s.Trigger(context.Background(), "prune")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	assert.Equal(t, []string{AlertTaskPanic}, rec.kinds())

	require.NoError(t, s.Trigger(context.Background(), "prune"), "the task lock must be released after a panic")
}

func TestScheduler_RegisterValidation(t *testing.T) {
	s := New()
	noop := func(context.Context) error { return nil }

	err := s.Register("backup", "not a cadence", noop)
	require.Error(t, err)

	require.NoError(t, s.Register("backup", "0 2 * * *", noop))
	assert.ErrorIs(t, s.Register("backup", "0 3 * * *", noop), ErrTaskExists)
}

func TestScheduler_TriggerUnknownTask(t *testing.T) {
	s := New()
	assert.ErrorIs(t, s.Trigger(context.Background(), "nope"), ErrTaskNotFound)
}

func TestScheduler_RunTriggersOnCadence(t *testing.T) {
	s := New()
	var runs atomic.Int32
	// Six-field expression: fires every second.
	require.NoError(t, s.Register("tick", "* * * * * *", func(context.Context) error {
		runs.Add(1)
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 2200*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	assert.GreaterOrEqual(t, runs.Load(), int32(1))
}

func TestScheduler_ShutdownDrainsInFlightRun(t *testing.T) {
	s := New()

	started := make(chan struct{})
	var finished atomic.Bool
	require.NoError(t, s.Register("slow", "* * * * * *", func(context.Context) error {
		close(started)
		time.Sleep(300 * time.Millisecond)
		finished.Store(true)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(runDone)
	}()

	<-started
	cancel()

	select {
	case <-runDone:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.True(t, finished.Load(), "in-flight run must complete before shutdown")
}
