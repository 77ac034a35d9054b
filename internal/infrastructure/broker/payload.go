package broker

import (
	"encoding/json"
	"fmt"

	"reconciler/internal/domain/entity/report"
)

const runMessageType = "reconciliation.run"

// RunMessage is the body of a published run summary.
type RunMessage struct {
	Run    report.RunSummary `json:"run"`
	Failed []string          `json:"failed,omitempty"`
	Added  int               `json:"added"`
}

func encodeRun(summary report.RunSummary) ([]byte, error) {
	msg := RunMessage{Run: summary, Failed: summary.FailedCheckers()}
	for _, c := range summary.Checkers {
		msg.Added += c.Report.Added
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode run summary: %w", err)
	}
	return body, nil
}
