// Command sample-report writes an HTML report for a synthetic run, for
// working on the report template without running a load test.
package main

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/wesleyorama2/volley/internal/metrics"
	"github.com/wesleyorama2/volley/internal/report"
	"github.com/wesleyorama2/volley/internal/threshold"
)

func main() {
	outputPath := "sample-report.html"
	if len(os.Args) > 1 {
		outputPath = os.Args[1]
	}

	if err := report.WriteHTML(sampleResult(time.Now()), outputPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Sample report generated: %s\n", outputPath)
}

func sampleResult(now time.Time) *report.Result {
	start := now.Add(-2 * time.Minute)

	browse := metrics.ScenarioStats{
		Name:                "Load Test",
		Count:               3521,
		SuccessCount:        3487,
		FailCount:           34,
		ThroughputPerSecond: 29.34,
		Bytes:               7340032,
		Latency: metrics.LatencyStats{
			Min:    10 * time.Millisecond,
			Max:    1456 * time.Millisecond,
			Mean:   42 * time.Millisecond,
			StdDev: 31 * time.Millisecond,
			P50:    32 * time.Millisecond,
			P90:    81 * time.Millisecond,
			P95:    115 * time.Millisecond,
			P99:    234 * time.Millisecond,
			Count:  3521,
		},
		Buckets:          metrics.BucketCounts{Under1s: 3519, Under3s: 2},
		StatusCodes:      map[int]int64{200: 3487, 503: 34},
		FailedValidators: map[string]int64{"status is 200": 34},
		Recent:           sampleMarkers(start, 40, 7),
	}
	upload := metrics.ScenarioStats{
		Name:                "Large Payload Test",
		Count:               2326,
		SuccessCount:        2302,
		FailCount:           24,
		ThroughputPerSecond: 19.38,
		Bytes:               23260000,
		Latency: metrics.LatencyStats{
			Min:    15 * time.Millisecond,
			Max:    5892 * time.Millisecond,
			Mean:   254 * time.Millisecond,
			StdDev: 190 * time.Millisecond,
			P50:    145 * time.Millisecond,
			P90:    620 * time.Millisecond,
			P95:    1138 * time.Millisecond,
			P99:    3287 * time.Millisecond,
			Count:  2326,
		},
		Buckets:          metrics.BucketCounts{Under1s: 2190, Under3s: 111, Under5s: 20, Over5s: 5},
		StatusCodes:      map[int]int64{201: 2302, 401: 4},
		FailedValidators: map[string]int64{"status is 201": 4, metrics.TransportErrorName: 20},
		Recent:           sampleMarkers(start, 40, 11),
	}

	total := browse.Count + upload.Count
	failed := browse.FailCount + upload.FailCount

	return &report.Result{
		RunID:     "3f6c1f0e-6a53-4c2e-9c1b-2f0d7e5b9a41",
		Name:      "Coffee API",
		State:     "completed",
		StartTime: start,
		EndTime:   now,
		Duration:  2 * time.Minute,
		Passed:    false,
		Snapshot: &metrics.Snapshot{
			Scenarios:       []metrics.ScenarioStats{browse, upload},
			TotalRequests:   total,
			SuccessRequests: total - failed,
			FailedRequests:  failed,
			ErrorRate:       float64(failed) / float64(total),
			DataTransferred: browse.Bytes + upload.Bytes,
			Latency: metrics.LatencyStats{
				Min:    10 * time.Millisecond,
				Max:    5892 * time.Millisecond,
				Mean:   126 * time.Millisecond,
				StdDev: 150 * time.Millisecond,
				P50:    47 * time.Millisecond,
				P90:    310 * time.Millisecond,
				P95:    640 * time.Millisecond,
				P99:    2210 * time.Millisecond,
				Count:  total,
			},
			Buckets: metrics.BucketCounts{
				Under1s: browse.Buckets.Under1s + upload.Buckets.Under1s,
				Under3s: browse.Buckets.Under3s + upload.Buckets.Under3s,
				Under5s: upload.Buckets.Under5s,
				Over5s:  upload.Buckets.Over5s,
			},
			RPS:       48.73,
			Series:    sampleSeries(120),
			ActiveVUs: 0,
			Phase:     "done",
			StartTime: start,
			Timestamp: now,
			Elapsed:   2 * time.Minute,
		},
		Thresholds: []threshold.Result{
			{Metric: "http_req_duration", Expression: "p(95) < 500", Passed: false, Value: "640ms"},
			{Metric: "http_req_failed", Expression: "rate < 0.02", Passed: true, Value: "0.0099"},
			{Metric: "http_reqs", Expression: "rate > 40", Passed: true, Value: "48.73"},
		},
	}
}

// sampleSeries ramps up for 20s, holds, then ramps down for the last 20s.
func sampleSeries(seconds int) []metrics.SeriesPoint {
	points := make([]metrics.SeriesPoint, seconds)
	for i := range seconds {
		var rps float64
		switch {
		case i < 20:
			rps = float64(i) / 20 * 50
		case i < seconds-20:
			rps = 48 + float64(i%5) - 2
		default:
			rps = float64(seconds-i) / 20 * 50
		}
		rps = math.Max(rps, 1)

		points[i] = metrics.SeriesPoint{
			Offset:   time.Duration(i+1) * time.Second,
			Requests: int64(rps),
		}
		if i%17 == 0 {
			points[i].Failures = 1
		}
	}
	return points
}

// sampleMarkers returns n outcomes one second apart, every failEvery-th a
// failure.
func sampleMarkers(start time.Time, n, failEvery int) []metrics.Outcome {
	out := make([]metrics.Outcome, n)
	for i := range n {
		o := metrics.Outcome{
			Success:    true,
			StatusCode: 200,
			Latency:    time.Duration(30+i*3) * time.Millisecond,
			Timestamp:  start.Add(time.Duration(i) * time.Second),
		}
		if i%failEvery == failEvery-1 {
			o.Success = false
			o.StatusCode = 503
		}
		out[i] = o
	}
	return out
}
