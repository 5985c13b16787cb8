// Package report renders run snapshots as text, HTML and JSON.
package report

import (
	"time"

	"github.com/wesleyorama2/volley/internal/metrics"
	"github.com/wesleyorama2/volley/internal/threshold"
)

// Result is everything known about a finished run.
type Result struct {
	RunID     string        `json:"runId"`
	Name      string        `json:"name"`
	State     string        `json:"state"`
	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`

	Snapshot *metrics.Snapshot `json:"metrics"`

	// Threshold evaluation
	Passed     bool               `json:"passed"`
	Thresholds []threshold.Result `json:"thresholds,omitempty"`

	// Error is set when the run was aborted by a failure rather than by
	// its schedule or a stop request.
	Error string `json:"error,omitempty"`
}
