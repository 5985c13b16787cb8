package report

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/fatih/color"

	"github.com/wesleyorama2/volley/internal/format"
	"github.com/wesleyorama2/volley/internal/metrics"
)

// Header opens every text report.
const Header = "=== Test Execution Report ==="

// Renderer renders text reports.
type Renderer struct {
	// Color enables ANSI colours on markers, trailers and the status line
	Color bool

	// MaxMarkers caps the outcome markers printed per scenario. Zero prints
	// every retained outcome.
	MaxMarkers int

	// Details adds latency, band and failed-check lines per scenario and a
	// global summary.
	Details bool
}

type palette struct {
	ok, fail, head, dim *color.Color
}

func (r Renderer) palette() palette {
	p := palette{
		ok:   color.New(color.FgGreen),
		fail: color.New(color.FgRed),
		head: color.New(color.Bold),
		dim:  color.New(color.Faint),
	}
	for _, c := range []*color.Color{p.ok, p.fail, p.head, p.dim} {
		if r.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// Render renders snap as a plain report: one group per scenario in
// registration order, with outcome markers and a success trailer.
func Render(snap *metrics.Snapshot) string {
	return Renderer{}.Render(snap)
}

// Render renders snap.
func (r Renderer) Render(snap *metrics.Snapshot) string {
	var sb strings.Builder
	r.writeSnapshot(&sb, snap, r.palette())
	return sb.String()
}

// RenderResult renders the run summary, the snapshot, the thresholds and a
// PASSED/FAILED status line.
func (r Renderer) RenderResult(res *Result) string {
	p := r.palette()

	var sb strings.Builder
	if res.Name != "" {
		fmt.Fprintf(&sb, "%s\n", p.head.Sprint(res.Name))
	}
	fmt.Fprintf(&sb, "run %s  state=%s  duration=%s\n\n", res.RunID, res.State, format.Duration(res.Duration))

	r.writeSnapshot(&sb, res.Snapshot, p)

	if len(res.Thresholds) > 0 {
		fmt.Fprintf(&sb, "\n%s\n", p.head.Sprint("=== Thresholds ==="))
		for _, t := range res.Thresholds {
			icon := p.ok.Sprint("✓")
			if !t.Passed {
				icon = p.fail.Sprint("✗")
			}
			fmt.Fprintf(&sb, "  %s %s: %s", icon, t.Metric, t.Expression)
			if t.Value != "" {
				fmt.Fprintf(&sb, " (actual %s)", t.Value)
			}
			if !t.Passed && t.Message != "" {
				fmt.Fprintf(&sb, "  %s", p.dim.Sprint(t.Message))
			}
			sb.WriteString("\n")
		}
	}

	if res.Error != "" {
		fmt.Fprintf(&sb, "\nError: %s\n", res.Error)
	}

	status := p.ok.Sprint("PASSED")
	if !res.Passed {
		status = p.fail.Sprint("FAILED")
	}
	fmt.Fprintf(&sb, "\nStatus: %s\n", status)
	return sb.String()
}

func (r Renderer) writeSnapshot(sb *strings.Builder, snap *metrics.Snapshot, p palette) {
	sb.WriteString(Header)
	sb.WriteString("\n")
	if snap == nil {
		return
	}

	for _, st := range snap.Scenarios {
		fmt.Fprintf(sb, "\n  █ %s\n", st.Name)
		fmt.Fprintf(sb, "    invocations: %d\n", st.Count)

		markers := st.Recent
		if r.MaxMarkers > 0 && len(markers) > r.MaxMarkers {
			markers = markers[len(markers)-r.MaxMarkers:]
		}
		if hidden := st.Count - int64(len(markers)); hidden > 0 && len(markers) > 0 {
			fmt.Fprintf(sb, "    %s\n", p.dim.Sprintf("… %d earlier invocations not shown", hidden))
		}
		for _, o := range markers {
			icon := p.ok.Sprint("✓")
			if !o.Success {
				icon = p.fail.Sprint("✗")
			}
			fmt.Fprintf(sb, "    %s status %d, response time %dms\n", icon, o.StatusCode, o.Latency.Milliseconds())
		}

		if r.Details {
			r.writeDetails(sb, st)
		}

		trailer := fmt.Sprintf("↳  %d%% — ✓ %d / ✗ %d", st.SuccessRate(), st.SuccessCount, st.FailCount)
		if st.FailCount > 0 {
			trailer = p.fail.Sprint(trailer)
		} else if st.Count > 0 {
			trailer = p.ok.Sprint(trailer)
		}
		fmt.Fprintf(sb, "    %s\n", trailer)
	}

	if r.Details {
		fmt.Fprintf(sb, "\n  requests: %s (%s failed), %.2f/s, data: %s\n",
			format.Number(snap.TotalRequests), format.Percent(snap.ErrorRate), snap.RPS, format.Bytes(snap.DataTransferred))
		fmt.Fprintf(sb, "  latency: avg=%s p95=%s p99=%s max=%s\n",
			format.Latency(snap.Latency.Mean), format.Latency(snap.Latency.P95),
			format.Latency(snap.Latency.P99), format.Latency(snap.Latency.Max))
	}
}

func (r Renderer) writeDetails(sb *strings.Builder, st metrics.ScenarioStats) {
	l := st.Latency
	fmt.Fprintf(sb, "    latency: min=%s avg=%s p50=%s p90=%s p95=%s p99=%s max=%s\n",
		format.Latency(l.Min), format.Latency(l.Mean), format.Latency(l.P50),
		format.Latency(l.P90), format.Latency(l.P95), format.Latency(l.P99), format.Latency(l.Max))

	b := st.Buckets
	fmt.Fprintf(sb, "    response times: <1s=%d <3s=%d <5s=%d ≥5s=%d\n", b.Under1s, b.Under3s, b.Under5s, b.Over5s)

	if len(st.FailedValidators) > 0 {
		names := slices.Sorted(maps.Keys(st.FailedValidators))
		parts := make([]string, len(names))
		for i, n := range names {
			parts[i] = fmt.Sprintf("%s (%d)", n, st.FailedValidators[n])
		}
		fmt.Fprintf(sb, "    failed checks: %s\n", strings.Join(parts, ", "))
	}
}
