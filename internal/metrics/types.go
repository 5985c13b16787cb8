package metrics

import "time"

// ExecutionResult is the outcome of one scenario invocation.
type ExecutionResult struct {
	Scenario   string        `json:"scenario"`
	Success    bool          `json:"success"`
	StatusCode int           `json:"statusCode"`
	Latency    time.Duration `json:"latency"`
	Timestamp  time.Time     `json:"timestamp"`

	// FailedValidators names the validators that did not pass, plus the
	// synthetic entries transport-error, auth-error and validator-error.
	FailedValidators []string `json:"failedValidators,omitempty"`

	// Bytes sent and received
	Bytes int64 `json:"bytes"`

	// NotSent marks a result for which no call was issued, such as an
	// auth or payload failure. It counts as a request but carries no
	// latency.
	NotSent bool `json:"notSent,omitempty"`

	VUID int `json:"vuId"`
}

// Synthetic validator names recorded for failures that are not a
// validator returning false.
const (
	TransportErrorName = "transport-error"
	AuthErrorName      = "auth-error"
	ValidatorErrorName = "validator-error"
)

// Bucket classifies a latency into a response-time band.
type Bucket int

const (
	Under1s Bucket = iota
	Under3s
	Under5s
	Over5s
)

func (b Bucket) String() string {
	switch b {
	case Under1s:
		return "under1s"
	case Under3s:
		return "under3s"
	case Under5s:
		return "under5s"
	case Over5s:
		return "over5s"
	default:
		return "unknown"
	}
}

// BucketFor returns the band for latency. Each edge belongs to the next
// band up: exactly 1s is Under3s and exactly 5s is Over5s.
func BucketFor(latency time.Duration) Bucket {
	switch {
	case latency < time.Second:
		return Under1s
	case latency < 3*time.Second:
		return Under3s
	case latency < 5*time.Second:
		return Under5s
	default:
		return Over5s
	}
}

// BucketCounts holds the number of responses per band.
type BucketCounts struct {
	Under1s int64 `json:"under1s"`
	Under3s int64 `json:"under3s"`
	Under5s int64 `json:"under5s"`
	Over5s  int64 `json:"over5s"`
}

func (c *BucketCounts) add(b Bucket) {
	switch b {
	case Under1s:
		c.Under1s++
	case Under3s:
		c.Under3s++
	case Under5s:
		c.Under5s++
	default:
		c.Over5s++
	}
}

// Total is the sum over all bands.
func (c BucketCounts) Total() int64 {
	return c.Under1s + c.Under3s + c.Under5s + c.Over5s
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}

// Outcome is a retained per-invocation marker.
type Outcome struct {
	Success    bool          `json:"success"`
	StatusCode int           `json:"statusCode"`
	Latency    time.Duration `json:"latency"`
	Timestamp  time.Time     `json:"timestamp"`
}

// ScenarioStats is the aggregated view of one scenario.
type ScenarioStats struct {
	Name                string           `json:"name"`
	Count               int64            `json:"count"`
	SuccessCount        int64            `json:"successCount"`
	FailCount           int64            `json:"failCount"`
	Latency             LatencyStats     `json:"latency"`
	ThroughputPerSecond float64          `json:"throughputPerSecond"`
	Buckets             BucketCounts     `json:"buckets"`
	Bytes               int64            `json:"bytes"`
	StatusCodes         map[int]int64    `json:"statusCodes,omitempty"`
	FailedValidators    map[string]int64 `json:"failedValidators,omitempty"`

	// Recent holds the newest outcomes, oldest first, bounded by
	// Config.MaxRetainedSamples.
	Recent []Outcome `json:"recent,omitempty"`
}

// SuccessRate returns the floored success percentage, or 0 when nothing
// was recorded.
func (s ScenarioStats) SuccessRate() int {
	return SuccessRate(s.SuccessCount, s.Count)
}

// SuccessRate returns floor(success/total*100), or 0 when total is 0.
func SuccessRate(success, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(success * 100 / total)
}

// SeriesPoint is one interval of the run's time series.
type SeriesPoint struct {
	Offset   time.Duration `json:"offset"`
	Requests int64         `json:"requests"`
	Failures int64         `json:"failures"`
}

// Snapshot is a consistent point-in-time view of everything recorded.
type Snapshot struct {
	Scenarios []ScenarioStats `json:"scenarios"`

	TotalRequests   int64        `json:"totalRequests"`
	SuccessRequests int64        `json:"successRequests"`
	FailedRequests  int64        `json:"failedRequests"`
	ErrorRate       float64      `json:"errorRate"`
	DataTransferred int64        `json:"dataTransferred"`
	Latency         LatencyStats `json:"latency"`
	Buckets         BucketCounts `json:"buckets"`
	RPS             float64      `json:"rps"`

	Series []SeriesPoint `json:"series,omitempty"`

	ActiveVUs int    `json:"activeVUs"`
	Phase     string `json:"phase"`

	// Late counts results offered after the aggregator was sealed
	Late int64 `json:"late,omitempty"`

	StartTime time.Time     `json:"startTime"`
	Timestamp time.Time     `json:"timestamp"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Scenario returns the stats for name, if present.
func (s *Snapshot) Scenario(name string) (ScenarioStats, bool) {
	for _, st := range s.Scenarios {
		if st.Name == name {
			return st, true
		}
	}
	return ScenarioStats{}, false
}
