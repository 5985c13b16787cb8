// Package output draws the live progress display while a run is active.
package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/wesleyorama2/volley/internal/format"
	"github.com/wesleyorama2/volley/internal/metrics"
)

// Cursor control
const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"
)

const (
	boxHorizontal  = "━"
	boxVertical    = "│"
	boxTopLeft     = "┌"
	boxTopRight    = "┐"
	boxBottomLeft  = "└"
	boxBottomRight = "┘"

	progressFilled = "█"
	progressEmpty  = "░"
)

// nonInteractiveInterval is the minimum spacing of status lines when the
// output is not a terminal.
const nonInteractiveInterval = 5 * time.Second

// LiveStats contains real-time statistics for display.
type LiveStats struct {
	// Progress is 0.0 to 1.0, or negative when the run has no fixed length
	Progress  float64
	Elapsed   time.Duration
	Remaining time.Duration

	ActiveVUs int
	TargetVUs int

	CurrentRPS    float64
	TotalRequests int64
	Errors        int64
	ErrorRate     float64

	LatencyP95 time.Duration
	LatencyAvg time.Duration

	Phase string
}

// Source is a run being watched.
type Source interface {
	Snapshot() *metrics.Snapshot
	Done() <-chan struct{}
}

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	RunName     string
	ProfileKind string

	// TotalDuration is the scheduled length; zero for iteration-bound runs
	TotalDuration time.Duration
	TargetVUs     int

	UpdateInterval time.Duration
	Writer         io.Writer
	Quiet          bool
	ForceColors    bool
	ForceTTY       bool
}

// Console manages live console output during a run.
type Console struct {
	cfg       ConsoleConfig
	isTTY     bool
	useColors bool

	cyan, bold, dim, green, yellow, red, blue, magenta *color.Color

	mu          sync.Mutex
	linesOutput int
}

// NewConsole creates a console writer.
func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	if cfg.UpdateInterval == 0 {
		cfg.UpdateInterval = time.Second
	}

	isTTY := cfg.ForceTTY || IsTerminal(cfg.Writer)
	c := &Console{
		cfg:       cfg,
		isTTY:     isTTY,
		useColors: cfg.ForceColors || (isTTY && SupportsColors()),
		cyan:      color.New(color.FgCyan),
		bold:      color.New(color.Bold),
		dim:       color.New(color.Faint),
		green:     color.New(color.FgGreen),
		yellow:    color.New(color.FgYellow),
		red:       color.New(color.FgRed),
		blue:      color.New(color.FgBlue),
		magenta:   color.New(color.FgMagenta),
	}
	for _, col := range []*color.Color{c.cyan, c.bold, c.dim, c.green, c.yellow, c.red, c.blue, c.magenta} {
		if c.useColors {
			col.EnableColor()
		} else {
			col.DisableColor()
		}
	}
	return c
}

// IsTTY returns whether the output is a terminal.
func (c *Console) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the run header.
func (c *Console) PrintHeader() {
	if c.cfg.Quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	line := strings.Repeat(boxHorizontal, 56)
	kind := ""
	if c.cfg.ProfileKind != "" {
		kind = fmt.Sprintf(" [%s]", c.cfg.ProfileKind)
	}

	c.writeln(c.cyan.Sprint(line))
	c.writeln(c.bold.Sprintf("%s - Running%s", c.cfg.RunName, kind))
	c.writeln(c.cyan.Sprint(line))
	c.writeln("")
}

// Watch refreshes the display from src until the run is done or ctx is
// cancelled, then clears the live lines.
func (c *Console) Watch(ctx context.Context, src Source) error {
	if c.cfg.Quiet {
		return nil
	}

	interval := c.cfg.UpdateInterval
	if !c.isTTY && interval < nonInteractiveInterval {
		interval = nonInteractiveInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-src.Done():
			c.Clear()
			return nil
		case <-ctx.Done():
			c.Clear()
			return nil
		case <-ticker.C:
			stats := StatsFromSnapshot(src.Snapshot(), c.cfg.TotalDuration, c.cfg.TargetVUs)
			if c.isTTY {
				c.Update(stats)
			} else {
				c.PrintNonInteractiveUpdate(stats)
			}
		}
	}
}

// Update redraws the live display.
func (c *Console) Update(stats *LiveStats) {
	if c.cfg.Quiet || !c.isTTY {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clear()
	lines := c.renderLiveStats(stats)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

// Clear removes the live display so a report can be printed in its place.
func (c *Console) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clear()
}

func (c *Console) clear() {
	if !c.isTTY || c.linesOutput == 0 {
		return
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for range c.linesOutput {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	c.linesOutput = 0
}

// PrintNonInteractiveUpdate prints a one-line status, for CI logs and pipes.
func (c *Console) PrintNonInteractiveUpdate(stats *LiveStats) {
	if c.cfg.Quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln(fmt.Sprintf("[%s] %s | Progress: %s | VUs: %d | Reqs: %d | RPS: %.1f | Errors: %d (%.1f%%) | P95: %s",
		format.Duration(stats.Elapsed),
		stats.Phase,
		formatProgress(stats.Progress),
		stats.ActiveVUs,
		stats.TotalRequests,
		stats.CurrentRPS,
		stats.Errors,
		stats.ErrorRate*100,
		format.Latency(stats.LatencyP95)))
}

func (c *Console) renderLiveStats(stats *LiveStats) []string {
	var lines []string

	timeInfo := format.Duration(stats.Elapsed)
	if stats.Progress >= 0 {
		timeInfo = fmt.Sprintf("%s / %s", timeInfo, format.Duration(stats.Elapsed+stats.Remaining))
	}
	lines = append(lines, fmt.Sprintf("Progress: %s %s | %s",
		c.green.Sprint(renderProgressBar(stats.Progress, 40)),
		c.bold.Sprint(formatProgress(stats.Progress)),
		c.dim.Sprint(timeInfo)))
	lines = append(lines, fmt.Sprintf("Phase:    %s", c.magenta.Sprint(stats.Phase)))
	lines = append(lines, "")

	boxWidth := 55
	lines = append(lines, c.dim.Sprint(boxTopLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxTopRight))

	vusStr := fmt.Sprintf("VUs:     %s / %d", c.cyan.Sprint(stats.ActiveVUs), stats.TargetVUs)
	reqsStr := fmt.Sprintf("Requests:    %s", c.cyan.Sprint(format.Number(stats.TotalRequests)))
	lines = append(lines, c.formatBoxRow(vusStr, reqsStr, boxWidth))

	errColor := c.green
	if stats.ErrorRate > 0.01 {
		errColor = c.yellow
	}
	if stats.ErrorRate > 0.05 {
		errColor = c.red
	}
	rpsStr := fmt.Sprintf("RPS:     %s", c.green.Sprintf("%.1f", stats.CurrentRPS))
	errStr := fmt.Sprintf("Errors:      %s (%s)",
		errColor.Sprint(stats.Errors),
		errColor.Sprintf("%.1f%%", stats.ErrorRate*100))
	lines = append(lines, c.formatBoxRow(rpsStr, errStr, boxWidth))

	p95Str := fmt.Sprintf("P95:     %s", c.blue.Sprint(format.Latency(stats.LatencyP95)))
	avgStr := fmt.Sprintf("Avg:         %s", c.blue.Sprint(format.Latency(stats.LatencyAvg)))
	lines = append(lines, c.formatBoxRow(p95Str, avgStr, boxWidth))

	lines = append(lines, c.dim.Sprint(boxBottomLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxBottomRight))
	return lines
}

// formatBoxRow formats a row inside the stats box with two columns.
func (c *Console) formatBoxRow(left, right string, boxWidth int) string {
	colWidth := (boxWidth - 4) / 2
	leftPadding := max(colWidth-visibleLen(left), 0)
	rightPadding := max(colWidth-visibleLen(right), 0)

	return fmt.Sprintf("%s %s%s%s %s%s %s",
		c.dim.Sprint(boxVertical),
		left, strings.Repeat(" ", leftPadding),
		c.dim.Sprint(boxVertical),
		right, strings.Repeat(" ", rightPadding),
		c.dim.Sprint(boxVertical))
}

func (c *Console) write(s string) {
	fmt.Fprint(c.cfg.Writer, s)
}

func (c *Console) writeln(s string) {
	fmt.Fprintln(c.cfg.Writer, s)
}

// StatsFromSnapshot derives the display values from an aggregator snapshot.
func StatsFromSnapshot(snap *metrics.Snapshot, total time.Duration, targetVUs int) *LiveStats {
	progress := -1.0
	if total > 0 {
		progress = 0
	}
	if snap == nil {
		return &LiveStats{Progress: progress, TargetVUs: targetVUs, Phase: "initializing"}
	}

	var remaining time.Duration
	if total > 0 {
		progress = min(float64(snap.Elapsed)/float64(total), 1)
		remaining = max(total-snap.Elapsed, 0)
	}

	return &LiveStats{
		Progress:      progress,
		Elapsed:       snap.Elapsed,
		Remaining:     remaining,
		ActiveVUs:     snap.ActiveVUs,
		TargetVUs:     targetVUs,
		CurrentRPS:    snap.RPS,
		TotalRequests: snap.TotalRequests,
		Errors:        snap.FailedRequests,
		ErrorRate:     snap.ErrorRate,
		LatencyP95:    snap.Latency.P95,
		LatencyAvg:    snap.Latency.Mean,
		Phase:         snap.Phase,
	}
}

func renderProgressBar(progress float64, width int) string {
	progress = min(max(progress, 0), 1)
	filled := int(progress * float64(width))
	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, width-filled) + "]"
}

func formatProgress(progress float64) string {
	if progress < 0 {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", progress*100)
}

// visibleLen is the printed width of s, ignoring ANSI sequences.
func visibleLen(s string) int {
	return len([]rune(stripANSI(s)))
}

// stripANSI removes ANSI escape codes from a string.
func stripANSI(s string) string {
	var result strings.Builder
	inEscape := false
	for i := 0; i < len(s); i++ {
		if s[i] == '\033' {
			inEscape = true
			continue
		}
		if inEscape {
			if (s[i] >= 'a' && s[i] <= 'z') || (s[i] >= 'A' && s[i] <= 'Z') {
				inEscape = false
			}
			continue
		}
		result.WriteByte(s[i])
	}
	return result.String()
}
