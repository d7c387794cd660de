// Package scheduler runs indexing work either on a bounded pool of parallel
// workers or inline on the caller's goroutine. The choice is made once, when
// the Scheduler is built, and callers use the same Schedule/Finish pair in
// both modes.
//
// Tasks return nothing to the caller; they publish their effect through the
// index backend (bundle files or the shared memory store).
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/goodfilms/picky/pkg/config"
	"github.com/goodfilms/picky/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Task is one unit of indexing work.
type Task func(ctx context.Context) error

// Capability checks whether parallel execution can be used. A non-nil error
// means it cannot, and the scheduler falls back to inline execution.
type Capability func() error

// Mode is the execution mode chosen at construction.
type Mode string

const (
	ModeParallel   Mode = "parallel"
	ModeSequential Mode = "sequential"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithCapability replaces the default capability check.
func WithCapability(check Capability) Option {
	return func(s *Scheduler) { s.check = check }
}

// WithMetrics records task outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// Scheduler distributes Tasks. It is safe for concurrent Schedule calls.
type Scheduler struct {
	parallel bool
	factor   int
	fork     bool
	check    Capability
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu       sync.Mutex
	group    *errgroup.Group
	firstErr error
}

// New builds a Scheduler. Parallel mode is used only when cfg.Parallel is
// set, the platform can run parallel workers and the capability check
// passes. Otherwise tasks run inline.
func New(cfg config.SchedulerConfig, opts ...Option) *Scheduler {
	s := &Scheduler{
		parallel: cfg.Parallel,
		factor:   cfg.Factor,
		check:    defaultCapability,
		logger:   slog.Default().With("component", "scheduler"),
	}
	if s.factor <= 0 {
		s.factor = config.DefaultSchedulerFactor
	}
	for _, opt := range opts {
		opt(s)
	}
	s.fork = s.configure()
	s.logger.Info("scheduler configured",
		"mode", s.Mode(),
		"factor", s.factor,
		"requested_parallel", s.parallel,
	)
	return s
}

func (s *Scheduler) configure() bool {
	if !s.parallel {
		return false
	}
	if err := s.check(); err != nil {
		s.logger.Warn("parallel indexing unavailable, falling back to sequential",
			"error", err,
		)
		return false
	}
	if !platformSupportsWorkers() {
		s.logger.Warn("platform cannot run parallel workers, falling back to sequential",
			"goos", runtime.GOOS,
		)
		return false
	}
	return true
}

// Fork reports whether tasks run on parallel workers.
func (s *Scheduler) Fork() bool { return s.fork }

// Parallel reports whether parallel execution was requested.
func (s *Scheduler) Parallel() bool { return s.parallel }

func (s *Scheduler) Factor() int { return s.factor }

func (s *Scheduler) Mode() Mode {
	if s.fork {
		return ModeParallel
	}
	return ModeSequential
}

// Schedule runs task. In parallel mode it is queued on the worker pool and
// Schedule blocks only while all factor workers are busy. In sequential
// mode it runs to completion before Schedule returns.
func (s *Scheduler) Schedule(ctx context.Context, task Task) {
	s.record("scheduled")
	if !s.fork {
		s.done(s.run(ctx, task))
		return
	}
	s.pool().Go(func() error {
		err := s.run(ctx, task)
		s.done(err)
		return err
	})
}

// Finish waits for every scheduled task and returns the first task error
// seen since the previous Finish. In sequential mode nothing is pending and
// it returns at once. A failed task never cancels the others.
func (s *Scheduler) Finish() error {
	s.mu.Lock()
	group := s.group
	s.group = nil
	s.mu.Unlock()

	var err error
	if group != nil {
		err = group.Wait()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		err = s.firstErr
	}
	s.firstErr = nil
	return err
}

func (s *Scheduler) pool() *errgroup.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.group == nil {
		s.group = &errgroup.Group{}
		s.group.SetLimit(s.factor)
	}
	return s.group
}

// run executes task and reports a panic as an error.
func (s *Scheduler) run(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}

func (s *Scheduler) done(err error) {
	if err == nil {
		s.record("succeeded")
		return
	}
	s.record("failed")
	s.logger.Error("task failed", "mode", s.Mode(), "error", err)
	s.mu.Lock()
	if s.firstErr == nil {
		s.firstErr = err
	}
	s.mu.Unlock()
}

func (s *Scheduler) record(status string) {
	if s.metrics == nil {
		return
	}
	s.metrics.SchedulerTasksTotal.WithLabelValues(string(s.Mode()), status).Inc()
}

func defaultCapability() error { return nil }

// platformSupportsWorkers is false where the runtime has a single thread of
// execution.
func platformSupportsWorkers() bool {
	switch runtime.GOOS {
	case "js", "wasip1":
		return false
	}
	return true
}
