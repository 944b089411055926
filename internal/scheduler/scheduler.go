package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/cronexpr"

	"github.com/kebairia/neoback/internal/logger"
	"github.com/kebairia/neoback/internal/metrics"
)

var (
	// ErrTaskExists means a task with that name is already registered.
	ErrTaskExists = errors.New("task already registered")
	// ErrTaskNotFound means no task with that name is registered.
	ErrTaskNotFound = errors.New("task not registered")
	// ErrTaskBusy means a run of the same task type is still in flight.
	ErrTaskBusy = errors.New("task already running")
)

// task is one registered unit of scheduled work. Its mutex enforces the
// one-run-per-task-type rule; it is held for the run's full duration.
type task struct {
	name string
	expr *cronexpr.Expression
	run  func(ctx context.Context) error
	mu   sync.Mutex
}

// Scheduler drives registered tasks on their cron cadences. Task failures
// are contained: they surface as alerts and never stop future triggers.
// Lifecycle: register tasks, then Run; cancelling Run's context cancels
// future triggers and drains in-flight runs.
type Scheduler struct {
	mu    sync.Mutex
	tasks map[string]*task

	alert AlertFunc
	now   func() time.Time
	log   logger.Logger
	wg    sync.WaitGroup
}

// Option adjusts a Scheduler.
type Option func(*Scheduler)

// WithAlertFunc routes alerts somewhere other than the log.
func WithAlertFunc(f AlertFunc) Option {
	return func(s *Scheduler) {
		if f != nil {
			s.alert = f
		}
	}
}

// WithClock overrides the scheduler's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLogger sets the scheduler's logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// New returns a Scheduler with no tasks registered.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		tasks: make(map[string]*task),
		now:   time.Now,
		log:   logger.Global(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.alert == nil {
		s.alert = LogAlerts(s.log)
	}
	return s
}

// Register adds a named task on a cron cadence.
func (s *Scheduler) Register(name, cadence string, run func(ctx context.Context) error) error {
	expr, err := cronexpr.Parse(cadence)
	if err != nil {
		return fmt.Errorf("parse cadence %q for task %s: %w", cadence, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[name]; ok {
		return fmt.Errorf("%w: %s", ErrTaskExists, name)
	}
	s.tasks[name] = &task{name: name, expr: expr, run: run}
	s.log.Info("task registered", "task", name, "cadence", cadence)
	return nil
}

// Run blocks, triggering tasks on their cadences, until ctx is cancelled.
// Cancellation stops future triggers; runs already in flight complete
// before Run returns.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	tasks := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	for _, t := range tasks {
		s.wg.Add(1)
		go func(t *task) {
			defer s.wg.Done()
			s.loop(ctx, t)
		}(t)
	}

	<-ctx.Done()
	s.log.Info("scheduler stopping, draining in-flight tasks")
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

// loop sleeps until each next trigger of t.
func (s *Scheduler) loop(ctx context.Context, t *task) {
	for {
		if ctx.Err() != nil {
			return
		}

		next := t.expr.Next(s.now())
		if next.IsZero() {
			s.log.Warn("task has no future trigger", "task", t.name)
			return
		}

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		// In-flight work drains on shutdown rather than being cut off.
		// Failures alert inside runTask and never stop the loop.
		_ = s.runTask(context.WithoutCancel(ctx), t)
	}
}

// Trigger runs a task immediately, outside its cadence. It reports
// ErrTaskBusy when a run of the same task type is in flight.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	return s.runTask(ctx, t)
}

// runTask executes one run of t under its mutual-exclusion lock. Failures
// and panics become alerts, never crashes.
func (s *Scheduler) runTask(ctx context.Context, t *task) (err error) {
	if !t.mu.TryLock() {
		s.emit(t.name, AlertTaskSkipped, "previous run still in flight")
		return fmt.Errorf("%w: %s", ErrTaskBusy, t.name)
	}
	defer t.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t.name, r)
			metrics.ScheduledRunsTotal.WithLabelValues(t.name, "panic").Inc()
			s.emit(t.name, AlertTaskPanic, fmt.Sprint(r))
		}
	}()

	start := s.now()
	s.log.Info("task started", "task", t.name)

	if err := t.run(ctx); err != nil {
		metrics.ScheduledRunsTotal.WithLabelValues(t.name, "failure").Inc()
		s.emit(t.name, AlertTaskFailed, err.Error())
		s.log.Error("task failed",
			"task", t.name,
			"duration", s.now().Sub(start).String(),
			"error", err.Error(),
		)
		return err
	}

	metrics.ScheduledRunsTotal.WithLabelValues(t.name, "success").Inc()
	s.log.Info("task finished", "task", t.name, "duration", s.now().Sub(start).String())
	return nil
}
