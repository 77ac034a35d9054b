package report

import "time"

// CheckerReport holds the counters of one checker run.
type CheckerReport struct {
	Checker     string         `json:"checker"`
	Fetched     int            `json:"fetched"`
	Converted   int            `json:"converted"`
	Added       int            `json:"added"`
	Modified    int            `json:"modified"`
	Invalid     int            `json:"invalid"`
	Failed      int            `json:"failed"`
	Duplicates  int            `json:"duplicates"`
	Duration    time.Duration  `json:"duration"`
	Diagnostics map[string]any `json:"diagnostics,omitempty"`
}

// CheckerOutcome is the final state of one checker within a run, after retries.
type CheckerOutcome struct {
	Checker  string        `json:"checker"`
	Attempts int           `json:"attempts"`
	Error    string        `json:"error,omitempty"`
	Report   CheckerReport `json:"report"`
}

// Succeeded reports whether the checker finished without exhausting its retries.
func (o CheckerOutcome) Succeeded() bool {
	return o.Error == ""
}

// RunSummary describes one orchestrator run over a window.
type RunSummary struct {
	Trigger    string           `json:"trigger"`
	WindowEnd  time.Time        `json:"window_end"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Checkers   []CheckerOutcome `json:"checkers"`
}

// FailedCheckers lists the checkers that gave up.
func (s RunSummary) FailedCheckers() []string {
	var failed []string
	for _, c := range s.Checkers {
		if !c.Succeeded() {
			failed = append(failed, c.Checker)
		}
	}
	return failed
}
