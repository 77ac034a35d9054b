package reconcile

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"reconciler/internal/domain/entity/report"
)

// Runner executes one reconciliation run.
type Runner interface {
	Run(ctx context.Context, trigger string, windowEnd time.Time) report.RunSummary
}

// Scheduler fires runs on a fixed interval and on demand. A trigger arriving while
// a run is in flight is dropped.
type Scheduler struct {
	runner     Runner
	interval   time.Duration
	runOnStart bool
	metrics    *Metrics
	logger     *logrus.Entry
	now        func() time.Time

	running atomic.Bool
	wg      sync.WaitGroup

	mu   sync.Mutex
	base context.Context
}

func NewScheduler(runner Runner, interval time.Duration, runOnStart bool, metrics *Metrics, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		runner:     runner,
		interval:   interval,
		runOnStart: runOnStart,
		metrics:    metrics,
		logger:     logger.WithField("component", "scheduler"),
		now:        time.Now,
		base:       context.Background(),
	}
}

// WindowEnd is the exclusive end of the window a run at now reconciles: the
// start of the current UTC day, so the run covers yesterday.
func WindowEnd(now time.Time) time.Time {
	return now.UTC().Truncate(24 * time.Hour)
}

// Start fires runs until ctx is cancelled and then waits for the run in flight.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()

	if s.runOnStart {
		s.Fire(TriggerStartup, WindowEnd(s.now()))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return nil
		case <-ticker.C:
			s.Fire(TriggerSchedule, WindowEnd(s.now()))
		}
	}
}

// Fire starts a run in the background unless one is already going. It reports
// whether a run was started.
func (s *Scheduler) Fire(trigger string, windowEnd time.Time) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.metrics.skippedRun()
		s.logger.WithField("trigger", trigger).Warn("run in progress, trigger skipped")
		return false
	}

	s.mu.Lock()
	ctx := s.base
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		s.runner.Run(ctx, trigger, windowEnd)
	}()
	return true
}

// Running reports whether a run is in flight.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Wait blocks until the run in flight, if any, finishes.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
