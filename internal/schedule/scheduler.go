// Package schedule owns the daemon's recurring tasks: feed refresh, janitor
// sweeps, and automatic device sync.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"stride/internal/logging"
)

// Task is a named recurring job. Runs never overlap: a tick that lands while
// the previous run is still going is skipped.
type task struct {
	name    string
	fn      func(context.Context)
	running atomic.Bool
}

// Scheduler wraps cron with single-instance semantics per task.
type Scheduler struct {
	logger *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	tasks   map[string]*task
	baseCtx context.Context
	cancel  context.CancelFunc
	started bool
}

// New builds an empty scheduler.
func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		logger: logging.NewComponentLogger(logger, "scheduler"),
		cron:   cron.New(),
		tasks:  make(map[string]*task),
	}
}

// Register adds a recurring task at the given interval. Intervals of zero or
// less disable the task. Must be called before Start.
func (s *Scheduler) Register(name string, every time.Duration, fn func(context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler already started; cannot register %q", name)
	}
	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("task %q already registered", name)
	}
	if every <= 0 {
		s.logger.Info("task disabled",
			logging.String(logging.FieldJob, name),
		)
		return nil
	}

	t := &task{name: name, fn: fn}
	s.tasks[name] = t

	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", every), func() {
		s.runTask(t)
	}); err != nil {
		delete(s.tasks, name)
		return fmt.Errorf("register task %q: %w", name, err)
	}

	s.logger.Info("task registered",
		logging.String(logging.FieldJob, name),
		logging.Duration("interval", every),
	)
	return nil
}

// Start begins firing registered tasks. Tasks receive a context cancelled
// on Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.baseCtx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.cron.Start()
	s.logger.Info("scheduler started",
		logging.Int("tasks", len(s.tasks)),
	)
}

// Stop halts scheduling and cancels in-progress runs, then waits for the
// cron runner to drain.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Running reports whether the named task is mid-run.
func (s *Scheduler) Running(name string) bool {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	return ok && t.running.Load()
}

// Trigger runs a task immediately, subject to the same single-instance rule.
// It reports whether the run actually started.
func (s *Scheduler) Trigger(name string) (bool, error) {
	s.mu.Lock()
	t, ok := s.tasks[name]
	started := s.started
	s.mu.Unlock()

	if !ok {
		return false, fmt.Errorf("unknown task %q", name)
	}
	if !started {
		return false, fmt.Errorf("scheduler not started")
	}
	if !t.running.CompareAndSwap(false, true) {
		return false, nil
	}
	go func() {
		defer t.running.Store(false)
		t.fn(s.context())
	}()
	return true, nil
}

func (s *Scheduler) runTask(t *task) {
	if !t.running.CompareAndSwap(false, true) {
		s.logger.Debug("task still running, skipping tick",
			logging.String(logging.FieldJob, t.name),
		)
		return
	}
	defer t.running.Store(false)

	ctx := s.context()
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	t.fn(ctx)
	s.logger.Debug("task finished",
		logging.String(logging.FieldJob, t.name),
		logging.Duration("elapsed", time.Since(start)),
	)
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}
