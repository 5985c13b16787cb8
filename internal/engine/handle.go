package engine

import (
	"sync"
	"time"

	"github.com/wesleyorama2/volley/internal/metrics"
	"github.com/wesleyorama2/volley/internal/report"
	"github.com/wesleyorama2/volley/internal/scheduler"
	"github.com/wesleyorama2/volley/internal/threshold"
)

// RunHandle identifies one run.
type RunHandle struct {
	id         string
	name       string
	sched      *scheduler.Scheduler
	agg        *metrics.Aggregator
	thresholds threshold.Config

	mu     sync.Mutex
	result *report.Result
	err    error

	done chan struct{}
}

// ID returns the run's unique identifier.
func (h *RunHandle) ID() string { return h.id }

// Name returns the run's label.
func (h *RunHandle) Name() string { return h.name }

// State returns the run's lifecycle state.
func (h *RunHandle) State() scheduler.State { return h.sched.State() }

// Elapsed returns the run clock.
func (h *RunHandle) Elapsed() time.Duration { return h.sched.Elapsed() }

// Profile returns the schedule being run.
func (h *RunHandle) Profile() scheduler.Profile { return h.sched.Profile() }

// Done is closed once the final result is available.
func (h *RunHandle) Done() <-chan struct{} { return h.done }

// Aggregator returns the run's aggregator, for live views and exporters.
func (h *RunHandle) Aggregator() *metrics.Aggregator { return h.agg }

// Snapshot returns a live snapshot, or the final one once the run is done.
func (h *RunHandle) Snapshot() *metrics.Snapshot {
	if res := h.Result(); res != nil {
		return res.Snapshot
	}
	return h.agg.Snapshot()
}

// Result returns the final result, or nil while the run is active.
func (h *RunHandle) Result() *report.Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}
