package reconcile

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"reconciler/internal/domain/entity/report"
)

type Metrics struct {
	Records       *prometheus.CounterVec
	CheckDuration *prometheus.HistogramVec
	CheckResults  *prometheus.CounterVec
	LastSuccess   *prometheus.GaugeVec
	RunsSkipped   prometheus.Counter
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		Records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconciler_records_total",
				Help: "Ledger records processed by checkers, by outcome.",
			},
			[]string{"checker", "outcome"},
		),
		CheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reconciler_check_duration_seconds",
				Help:    "Duration of a single checker attempt in seconds.",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
			},
			[]string{"checker"},
		),
		CheckResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconciler_check_attempts_total",
				Help: "Checker attempts by result.",
			},
			[]string{"checker", "result"},
		),
		LastSuccess: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "reconciler_last_success_timestamp_seconds",
				Help: "Unix time of the last successful checker run.",
			},
			[]string{"checker"},
		),
		RunsSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "reconciler_runs_skipped_total",
				Help: "Triggers ignored because a run was still in progress.",
			},
		),
	}

	registry.MustRegister(m.Records, m.CheckDuration, m.CheckResults, m.LastSuccess, m.RunsSkipped)
	return m
}

func (m *Metrics) observeAttempt(checker string, rep report.CheckerReport, err error) {
	if m == nil {
		return
	}
	m.CheckDuration.WithLabelValues(checker).Observe(rep.Duration.Seconds())
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CheckResults.WithLabelValues(checker, result).Inc()

	for outcome, n := range map[string]int{
		"fetched":   rep.Fetched,
		"added":     rep.Added,
		"modified":  rep.Modified,
		"invalid":   rep.Invalid,
		"failed":    rep.Failed,
		"duplicate": rep.Duplicates,
	} {
		if n > 0 {
			m.Records.WithLabelValues(checker, outcome).Add(float64(n))
		}
	}
}

func (m *Metrics) markSuccess(checker string, at time.Time) {
	if m == nil {
		return
	}
	m.LastSuccess.WithLabelValues(checker).Set(float64(at.Unix()))
}

func (m *Metrics) skippedRun() {
	if m == nil {
		return
	}
	m.RunsSkipped.Inc()
}
