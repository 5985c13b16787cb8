// Package metrics aggregates execution results into latency distributions,
// counters and response-time bands, and exposes consistent snapshots.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Config contains configuration for the aggregator.
type Config struct {
	// MaxRetainedSamples bounds the per-scenario ring of recent outcomes
	// (default: 100)
	MaxRetainedSamples int

	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int

	// SeriesInterval is the width of a time-series point (default: 1s)
	SeriesInterval time.Duration

	// MaxSeriesPoints bounds the time series (default: 3600)
	MaxSeriesPoints int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetainedSamples: 100,
		HistogramMin:       1,
		HistogramMax:       3600000000, // 1 hour in microseconds
		HistogramSigFigs:   3,
		SeriesInterval:     time.Second,
		MaxSeriesPoints:    3600,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxRetainedSamples <= 0 {
		c.MaxRetainedSamples = d.MaxRetainedSamples
	}
	if c.HistogramMin <= 0 {
		c.HistogramMin = d.HistogramMin
	}
	if c.HistogramMax <= c.HistogramMin {
		c.HistogramMax = d.HistogramMax
	}
	if c.HistogramSigFigs <= 0 {
		c.HistogramSigFigs = d.HistogramSigFigs
	}
	if c.SeriesInterval <= 0 {
		c.SeriesInterval = d.SeriesInterval
	}
	if c.MaxSeriesPoints <= 0 {
		c.MaxSeriesPoints = d.MaxSeriesPoints
	}
	return c
}

// Aggregator accumulates ExecutionResults.
//
// # Thread Safety
//
// Record may be called from any number of goroutines without external
// locking. Recorders share a read lock and serialize per scenario;
// Snapshot takes the write lock, so it never observes a half-applied
// record and every record lands entirely before or after it.
type Aggregator struct {
	config Config

	// gate is read-held by Record and write-held by Snapshot and Reset
	gate sync.RWMutex

	scenariosMu sync.Mutex
	scenarios   map[string]*scenarioState
	order       []*scenarioState

	globalMu   sync.Mutex
	globalHist *hdrhistogram.Histogram
	buckets    BucketCounts
	series     *series

	totalRequests   atomic.Int64
	successRequests atomic.Int64
	failedRequests  atomic.Int64
	totalBytes      atomic.Int64
	late            atomic.Int64

	activeVUs atomic.Int32
	phase     atomic.Value // string
	sealed    atomic.Bool

	startTime time.Time
}

type scenarioState struct {
	mu               sync.Mutex
	name             string
	hist             *hdrhistogram.Histogram
	count            int64
	success          int64
	bytes            int64
	buckets          BucketCounts
	statusCodes      map[int]int64
	failedValidators map[string]int64
	recent           *ring
}

// New creates an aggregator with default configuration.
func New() *Aggregator {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates an aggregator with custom configuration. Zero
// fields fall back to their defaults.
func NewWithConfig(config Config) *Aggregator {
	config = config.withDefaults()
	a := &Aggregator{
		config:     config,
		scenarios:  make(map[string]*scenarioState),
		globalHist: hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		startTime:  time.Now(),
	}
	a.series = newSeries(a.startTime, config.SeriesInterval, config.MaxSeriesPoints)
	a.phase.Store("")
	return a
}

// Declare registers scenario names up front so snapshots list them in this
// order, with zero counts when never invoked. Names already known keep
// their position.
func (a *Aggregator) Declare(names ...string) {
	a.gate.RLock()
	defer a.gate.RUnlock()
	for _, name := range names {
		a.scenario(name)
	}
}

// Record applies one result. It is the only way to mutate the aggregator.
// A NotSent result counts toward the totals but not the latency histogram
// or the buckets.
func (a *Aggregator) Record(result ExecutionResult) {
	a.gate.RLock()
	defer a.gate.RUnlock()

	if a.sealed.Load() {
		a.late.Add(1)
		return
	}

	micros := a.clamp(result.Latency)
	bucket := BucketFor(result.Latency)
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now()
	}
	timed := !result.NotSent

	s := a.scenario(result.Scenario)
	s.mu.Lock()
	if timed {
		_ = s.hist.RecordValue(micros)
		s.buckets.add(bucket)
	}
	s.count++
	if result.Success {
		s.success++
	}
	s.bytes += result.Bytes
	s.statusCodes[result.StatusCode]++
	for _, name := range result.FailedValidators {
		s.failedValidators[name]++
	}
	s.recent.push(Outcome{
		Success:    result.Success,
		StatusCode: result.StatusCode,
		Latency:    result.Latency,
		Timestamp:  result.Timestamp,
	})
	s.mu.Unlock()

	a.globalMu.Lock()
	if timed {
		_ = a.globalHist.RecordValue(micros)
		a.buckets.add(bucket)
	}
	a.series.record(time.Now(), result.Success)
	a.globalMu.Unlock()

	a.totalRequests.Add(1)
	a.totalBytes.Add(result.Bytes)
	if result.Success {
		a.successRequests.Add(1)
	} else {
		a.failedRequests.Add(1)
	}
}

// scenario returns the state for name, creating it on first use.
func (a *Aggregator) scenario(name string) *scenarioState {
	a.scenariosMu.Lock()
	defer a.scenariosMu.Unlock()

	s, ok := a.scenarios[name]
	if !ok {
		s = &scenarioState{
			name:             name,
			hist:             hdrhistogram.New(a.config.HistogramMin, a.config.HistogramMax, a.config.HistogramSigFigs),
			statusCodes:      make(map[int]int64),
			failedValidators: make(map[string]int64),
			recent:           newRing(a.config.MaxRetainedSamples),
		}
		a.scenarios[name] = s
		a.order = append(a.order, s)
	}
	return s
}

func (a *Aggregator) clamp(latency time.Duration) int64 {
	micros := latency.Microseconds()
	if micros < a.config.HistogramMin {
		micros = a.config.HistogramMin
	}
	if micros > a.config.HistogramMax {
		micros = a.config.HistogramMax
	}
	return micros
}

// SetActiveVUs updates the active VU count reported in snapshots.
func (a *Aggregator) SetActiveVUs(count int) {
	a.activeVUs.Store(int32(count))
}

// ActiveVUs returns the last reported VU count.
func (a *Aggregator) ActiveVUs() int {
	return int(a.activeVUs.Load())
}

// SetPhase labels the current run phase in snapshots.
func (a *Aggregator) SetPhase(phase string) {
	a.phase.Store(phase)
}

// Seal stops accepting results. Results offered afterwards are counted as
// late and otherwise ignored.
func (a *Aggregator) Seal() {
	a.gate.Lock()
	a.sealed.Store(true)
	a.gate.Unlock()
}

// Reset discards everything recorded, keeps declared scenario order and
// restarts the clock.
func (a *Aggregator) Reset() {
	a.gate.Lock()
	defer a.gate.Unlock()

	now := time.Now()
	a.scenariosMu.Lock()
	names := make([]string, len(a.order))
	for i, s := range a.order {
		names[i] = s.name
	}
	a.scenarios = make(map[string]*scenarioState)
	a.order = nil
	a.scenariosMu.Unlock()
	for _, name := range names {
		a.scenario(name)
	}

	a.globalMu.Lock()
	a.globalHist.Reset()
	a.buckets = BucketCounts{}
	a.series = newSeries(now, a.config.SeriesInterval, a.config.MaxSeriesPoints)
	a.globalMu.Unlock()

	a.totalRequests.Store(0)
	a.successRequests.Store(0)
	a.failedRequests.Store(0)
	a.totalBytes.Store(0)
	a.late.Store(0)
	a.activeVUs.Store(0)
	a.phase.Store("")
	a.sealed.Store(false)
	a.startTime = now
}

// Snapshot returns a consistent view of everything recorded so far.
func (a *Aggregator) Snapshot() *Snapshot {
	a.gate.Lock()
	defer a.gate.Unlock()

	now := time.Now()
	elapsed := now.Sub(a.startTime)

	a.scenariosMu.Lock()
	order := append([]*scenarioState(nil), a.order...)
	a.scenariosMu.Unlock()

	snap := &Snapshot{
		Scenarios:       make([]ScenarioStats, 0, len(order)),
		TotalRequests:   a.totalRequests.Load(),
		SuccessRequests: a.successRequests.Load(),
		FailedRequests:  a.failedRequests.Load(),
		DataTransferred: a.totalBytes.Load(),
		Latency:         latencyStats(a.globalHist),
		Buckets:         a.buckets,
		Series:          a.series.points(),
		ActiveVUs:       a.ActiveVUs(),
		Phase:           a.phase.Load().(string),
		Late:            a.late.Load(),
		StartTime:       a.startTime,
		Timestamp:       now,
		Elapsed:         elapsed,
	}

	if snap.TotalRequests > 0 {
		snap.ErrorRate = float64(snap.FailedRequests) / float64(snap.TotalRequests)
	}
	if elapsed > 0 {
		snap.RPS = float64(snap.TotalRequests) / elapsed.Seconds()
	}

	for _, s := range order {
		stats := ScenarioStats{
			Name:             s.name,
			Count:            s.count,
			SuccessCount:     s.success,
			FailCount:        s.count - s.success,
			Latency:          latencyStats(s.hist),
			Buckets:          s.buckets,
			Bytes:            s.bytes,
			StatusCodes:      make(map[int]int64, len(s.statusCodes)),
			FailedValidators: make(map[string]int64, len(s.failedValidators)),
			Recent:           s.recent.items(),
		}
		for k, v := range s.statusCodes {
			stats.StatusCodes[k] = v
		}
		for k, v := range s.failedValidators {
			stats.FailedValidators[k] = v
		}
		if elapsed > 0 {
			stats.ThroughputPerSecond = float64(s.count) / elapsed.Seconds()
		}
		snap.Scenarios = append(snap.Scenarios, stats)
	}

	return snap
}

func latencyStats(hist *hdrhistogram.Histogram) LatencyStats {
	if hist.TotalCount() == 0 {
		return LatencyStats{}
	}
	return LatencyStats{
		Min:    time.Duration(hist.Min()) * time.Microsecond,
		Max:    time.Duration(hist.Max()) * time.Microsecond,
		Mean:   time.Duration(hist.Mean()) * time.Microsecond,
		StdDev: time.Duration(hist.StdDev()) * time.Microsecond,
		P50:    time.Duration(hist.ValueAtQuantile(50)) * time.Microsecond,
		P90:    time.Duration(hist.ValueAtQuantile(90)) * time.Microsecond,
		P95:    time.Duration(hist.ValueAtQuantile(95)) * time.Microsecond,
		P99:    time.Duration(hist.ValueAtQuantile(99)) * time.Microsecond,
		Count:  hist.TotalCount(),
	}
}
