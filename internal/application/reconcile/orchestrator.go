package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"reconciler/internal/domain/entity/report"
	"reconciler/internal/domain/interfaces"
)

const (
	TriggerSchedule = "schedule"
	TriggerStartup  = "startup"
	TriggerManual   = "manual"
)

// Checker reconciles one entity type over a window.
type Checker interface {
	Name() string
	Check(ctx context.Context, windowEnd time.Time) (report.CheckerReport, error)
}

// Orchestrator runs every checker in order, each with its own retry budget. A
// checker that exhausts its retries is reported and the run moves on.
type Orchestrator struct {
	checkers   []Checker
	maxRetries int
	retryDelay time.Duration
	publisher  interfaces.ReportPublisher
	metrics    *Metrics
	logger     *logrus.Entry

	mu   sync.RWMutex
	last *report.RunSummary
}

type OrchestratorConfig struct {
	MaxRetries int
	RetryDelay time.Duration
	Publisher  interfaces.ReportPublisher
	Metrics    *Metrics
}

func NewOrchestrator(checkers []Checker, cfg OrchestratorConfig, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		checkers:   checkers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		publisher:  cfg.Publisher,
		metrics:    cfg.Metrics,
		logger:     logger.WithField("component", "orchestrator"),
	}
}

// Run executes one reconciliation run over the window ending at windowEnd.
func (o *Orchestrator) Run(ctx context.Context, trigger string, windowEnd time.Time) report.RunSummary {
	summary := report.RunSummary{
		Trigger:   trigger,
		WindowEnd: windowEnd,
		StartedAt: time.Now().UTC(),
	}
	log := o.logger.WithFields(logrus.Fields{
		"trigger":    trigger,
		"window_end": windowEnd.Format(time.RFC3339),
	})
	log.Info("reconciliation run started")

	for _, checker := range o.checkers {
		if err := ctx.Err(); err != nil {
			summary.Checkers = append(summary.Checkers, report.CheckerOutcome{
				Checker: checker.Name(),
				Error:   err.Error(),
				Report:  report.CheckerReport{Checker: checker.Name()},
			})
			continue
		}
		summary.Checkers = append(summary.Checkers, o.runChecker(ctx, checker, windowEnd, log))
	}

	summary.FinishedAt = time.Now().UTC()
	o.mu.Lock()
	o.last = &summary
	o.mu.Unlock()

	fields := logrus.Fields{"took_ms": summary.FinishedAt.Sub(summary.StartedAt).Milliseconds()}
	if failed := summary.FailedCheckers(); len(failed) > 0 {
		log.WithFields(fields).WithField("failed", failed).Error("reconciliation run finished with failures")
	} else {
		log.WithFields(fields).Info("reconciliation run finished")
	}

	if o.publisher != nil {
		if err := o.publisher.PublishRun(ctx, summary); err != nil {
			log.WithError(err).Warn("failed to publish run summary")
		}
	}
	return summary
}

func (o *Orchestrator) runChecker(ctx context.Context, checker Checker, windowEnd time.Time, log *logrus.Entry) report.CheckerOutcome {
	log = log.WithField("checker", checker.Name())
	var last report.CheckerReport
	attempt := Retry(ctx, o.maxRetries, o.retryDelay, func(ctx context.Context, n int) error {
		rep, err := checker.Check(ctx, windowEnd)
		last = rep
		o.metrics.observeAttempt(checker.Name(), rep, err)
		if err != nil {
			log.WithError(err).WithField("attempt", n).Warn("checker attempt failed")
		}
		return err
	})

	outcome := report.CheckerOutcome{
		Checker:  checker.Name(),
		Attempts: attempt.Attempts,
		Report:   last,
	}
	if attempt.Err != nil {
		outcome.Error = attempt.Err.Error()
		log.WithError(attempt.Err).WithField("attempts", attempt.Attempts).Error("checker gave up")
		return outcome
	}
	o.metrics.markSuccess(checker.Name(), time.Now())
	return outcome
}

// Last returns the summary of the most recent finished run.
func (o *Orchestrator) Last() (report.RunSummary, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return report.RunSummary{}, false
	}
	return *o.last, true
}
