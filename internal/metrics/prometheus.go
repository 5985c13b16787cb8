package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "volley"

// Collector exports aggregator snapshots to Prometheus. Every scrape takes
// one snapshot, so all series of a scrape agree with each other.
type Collector struct {
	agg *Aggregator

	requests  *prometheus.Desc
	responses *prometheus.Desc
	latency   *prometheus.Desc
	bytes     *prometheus.Desc
	activeVUs *prometheus.Desc
	errorRate *prometheus.Desc
}

// NewCollector creates a collector reading from agg.
func NewCollector(agg *Aggregator) *Collector {
	return &Collector{
		agg: agg,
		requests: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "requests_total"),
			"Scenario invocations by outcome.",
			[]string{"scenario", "outcome"}, nil,
		),
		responses: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "responses_total"),
			"Scenario invocations by response-time band.",
			[]string{"scenario", "band"}, nil,
		),
		latency: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "request_latency_seconds"),
			"Scenario latency percentiles.",
			[]string{"scenario", "quantile"}, nil,
		),
		bytes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "data_transferred_bytes_total"),
			"Bytes sent and received by all scenarios.",
			nil, nil,
		),
		activeVUs: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "active_vus"),
			"Virtual users currently running.",
			nil, nil,
		),
		errorRate: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "error_rate"),
			"Fraction of failed invocations across all scenarios.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.requests
	ch <- c.responses
	ch <- c.latency
	ch <- c.bytes
	ch <- c.activeVUs
	ch <- c.errorRate
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.agg.Snapshot()

	for _, s := range snap.Scenarios {
		ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(s.SuccessCount), s.Name, "success")
		ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(s.FailCount), s.Name, "failure")

		bands := []struct {
			band  Bucket
			count int64
		}{
			{Under1s, s.Buckets.Under1s},
			{Under3s, s.Buckets.Under3s},
			{Under5s, s.Buckets.Under5s},
			{Over5s, s.Buckets.Over5s},
		}
		for _, b := range bands {
			ch <- prometheus.MustNewConstMetric(c.responses, prometheus.CounterValue, float64(b.count), s.Name, b.band.String())
		}

		quantiles := []struct {
			label string
			value float64
		}{
			{"0.5", s.Latency.P50.Seconds()},
			{"0.9", s.Latency.P90.Seconds()},
			{"0.95", s.Latency.P95.Seconds()},
			{"0.99", s.Latency.P99.Seconds()},
		}
		for _, q := range quantiles {
			ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, q.value, s.Name, q.label)
		}
	}

	ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.CounterValue, float64(snap.DataTransferred))
	ch <- prometheus.MustNewConstMetric(c.activeVUs, prometheus.GaugeValue, float64(snap.ActiveVUs))
	ch <- prometheus.MustNewConstMetric(c.errorRate, prometheus.GaugeValue, snap.ErrorRate)
}
