// Package threshold evaluates pass/fail criteria against a metrics snapshot.
//
// Expressions take the form "metric op value":
//
//	p95 < 500ms
//	p(95)<5000      # bare numbers are milliseconds
//	rate < 0.05
//	count > 100
package threshold

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/volley/internal/metrics"
)

// Metric groups accepted in Config.
const (
	MetricDuration = "http_req_duration"
	MetricFailed   = "http_req_failed"
	MetricRequests = "http_reqs"
)

// ErrInvalidExpression is returned for an expression that cannot be parsed.
var ErrInvalidExpression = errors.New("invalid threshold expression")

var exprPattern = regexp.MustCompile(`^(\w+(?:\(\s*\d+\s*\))?)\s*([<>=!]+)\s*(.+)$`)

// Config declares the thresholds of a run. Zero values are unset.
type Config struct {
	// MaxP95Latency is shorthand for "p95 < d" on request duration
	MaxP95Latency time.Duration

	// MaxErrorRate is shorthand for "rate < r" on failed requests
	MaxErrorRate float64

	Duration []string
	Failed   []string
	Requests []string
}

// Empty reports whether no threshold is declared.
func (c Config) Empty() bool {
	return c.MaxP95Latency == 0 && c.MaxErrorRate == 0 &&
		len(c.Duration) == 0 && len(c.Failed) == 0 && len(c.Requests) == 0
}

// Result is the outcome of one threshold.
type Result struct {
	Metric     string `json:"metric"`
	Expression string `json:"expression"`
	Passed     bool   `json:"passed"`
	Value      string `json:"value"`
	Message    string `json:"message,omitempty"`
}

// Expression is a parsed "metric op value" threshold.
type Expression struct {
	Metric string
	Op     string
	Value  string
}

// Parse splits expr into its parts. "p(95)" is normalized to "p95".
func Parse(expr string) (Expression, error) {
	expr = strings.TrimSpace(expr)
	matches := exprPattern.FindStringSubmatch(expr)
	if len(matches) != 4 {
		return Expression{}, fmt.Errorf("%w: %q", ErrInvalidExpression, expr)
	}

	metric := matches[1]
	if strings.HasPrefix(metric, "p(") {
		metric = "p" + strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(metric, "p("), ")"))
	}

	op := matches[2]
	switch op {
	case "<", "<=", ">", ">=", "==", "=", "!=", "<>":
	default:
		return Expression{}, fmt.Errorf("%w: unknown operator %q", ErrInvalidExpression, op)
	}

	return Expression{Metric: metric, Op: op, Value: strings.TrimSpace(matches[3])}, nil
}

// Validate checks every expression without evaluating it.
func (c Config) Validate() error {
	var errs []error
	if c.MaxP95Latency < 0 {
		errs = append(errs, errors.New("maxP95Latency must be non-negative"))
	}
	if c.MaxErrorRate < 0 || c.MaxErrorRate > 1 {
		errs = append(errs, errors.New("maxErrorRate must be between 0 and 1"))
	}

	check := func(group string, exprs []string, metricOK func(string) bool) {
		for i, raw := range exprs {
			e, err := Parse(raw)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s[%d]: %w", group, i, err))
				continue
			}
			if !metricOK(e.Metric) {
				errs = append(errs, fmt.Errorf("%s[%d]: %w: unsupported metric %q", group, i, ErrInvalidExpression, e.Metric))
				continue
			}
			if group == MetricDuration {
				_, err = parseLatency(e.Value)
			} else {
				_, err = strconv.ParseFloat(e.Value, 64)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("%s[%d]: %w: bad value %q", group, i, ErrInvalidExpression, e.Value))
			}
		}
	}
	check(MetricDuration, c.Duration, func(m string) bool { _, ok := latencyMetric(m, metrics.LatencyStats{}); return ok })
	check(MetricFailed, c.Failed, func(m string) bool { return m == "rate" })
	check(MetricRequests, c.Requests, func(m string) bool { return m == "count" || m == "rate" })

	return errors.Join(errs...)
}

// expressions expands the shorthands into their expression form.
func (c Config) expressions() (duration, failed, requests []string) {
	if c.MaxP95Latency > 0 {
		duration = append(duration, fmt.Sprintf("p95 < %s", c.MaxP95Latency))
	}
	duration = append(duration, c.Duration...)

	if c.MaxErrorRate > 0 {
		failed = append(failed, "rate < "+strconv.FormatFloat(c.MaxErrorRate, 'f', -1, 64))
	}
	failed = append(failed, c.Failed...)

	return duration, failed, c.Requests
}

// Evaluate checks every declared threshold against snap.
func Evaluate(c Config, snap *metrics.Snapshot) []Result {
	duration, failed, requests := c.expressions()

	var results []Result
	for _, expr := range duration {
		results = append(results, evaluateDuration(expr, snap))
	}
	for _, expr := range failed {
		results = append(results, evaluateFailed(expr, snap))
	}
	for _, expr := range requests {
		results = append(results, evaluateRequests(expr, snap))
	}
	return results
}

// Passed reports whether every result passed.
func Passed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

func evaluateDuration(expr string, snap *metrics.Snapshot) Result {
	result := Result{Metric: MetricDuration, Expression: expr}

	e, err := Parse(expr)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse expression: %v", err)
		return result
	}

	actual, ok := latencyMetric(e.Metric, snap.Latency)
	if !ok {
		result.Message = fmt.Sprintf("unknown metric: %s", e.Metric)
		return result
	}

	limit, err := parseLatency(e.Value)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse threshold value: %v", err)
		return result
	}

	result.Value = actual.String()
	result.Passed = compare(float64(actual), e.Op, float64(limit))
	if !result.Passed {
		result.Message = fmt.Sprintf("%s is %s, threshold: %s %s", e.Metric, actual, e.Op, limit)
	}
	return result
}

func evaluateFailed(expr string, snap *metrics.Snapshot) Result {
	result := Result{Metric: MetricFailed, Expression: expr}

	e, err := Parse(expr)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse expression: %v", err)
		return result
	}
	if e.Metric != "rate" {
		result.Message = fmt.Sprintf("%s only supports 'rate' metric, got: %s", MetricFailed, e.Metric)
		return result
	}

	limit, err := strconv.ParseFloat(e.Value, 64)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse threshold value: %v", err)
		return result
	}

	result.Value = fmt.Sprintf("%.4f", snap.ErrorRate)
	result.Passed = compare(snap.ErrorRate, e.Op, limit)
	if !result.Passed {
		result.Message = fmt.Sprintf("error rate is %.4f, threshold: %s %.4f", snap.ErrorRate, e.Op, limit)
	}
	return result
}

func evaluateRequests(expr string, snap *metrics.Snapshot) Result {
	result := Result{Metric: MetricRequests, Expression: expr}

	e, err := Parse(expr)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse expression: %v", err)
		return result
	}

	limit, err := strconv.ParseFloat(e.Value, 64)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse threshold value: %v", err)
		return result
	}

	var actual float64
	switch e.Metric {
	case "count":
		actual = float64(snap.TotalRequests)
	case "rate":
		actual = snap.RPS
	default:
		result.Message = fmt.Sprintf("%s only supports 'count' or 'rate' metrics, got: %s", MetricRequests, e.Metric)
		return result
	}

	result.Value = fmt.Sprintf("%.2f", actual)
	result.Passed = compare(actual, e.Op, limit)
	if !result.Passed {
		result.Message = fmt.Sprintf("%s is %.2f, threshold: %s %.2f", e.Metric, actual, e.Op, limit)
	}
	return result
}

func latencyMetric(name string, l metrics.LatencyStats) (time.Duration, bool) {
	switch name {
	case "min":
		return l.Min, true
	case "max":
		return l.Max, true
	case "avg":
		return l.Mean, true
	case "med", "p50":
		return l.P50, true
	case "p90":
		return l.P90, true
	case "p95":
		return l.P95, true
	case "p99":
		return l.P99, true
	default:
		return 0, false
	}
}

// parseLatency accepts Go durations or bare milliseconds.
func parseLatency(s string) (time.Duration, error) {
	if ms, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(ms * float64(time.Millisecond)), nil
	}
	return time.ParseDuration(s)
}

func compare(actual float64, op string, limit float64) bool {
	switch op {
	case "<":
		return actual < limit
	case "<=":
		return actual <= limit
	case ">":
		return actual > limit
	case ">=":
		return actual >= limit
	case "==", "=":
		return actual == limit
	case "!=", "<>":
		return actual != limit
	default:
		return false
	}
}
