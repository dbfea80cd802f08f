package scraper

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "wardrive"

// Collector exports a Processor's counters as Prometheus metrics.
type Collector struct {
	counters *Counters
	window   func() int

	messages   *prometheus.Desc
	facts      *prometheus.Desc
	rejected   *prometheus.Desc
	deliveries *prometheus.Desc
	panics     *prometheus.Desc
	windowSize *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a Collector for p. Register it with a
// prometheus.Registerer to expose it.
func NewCollector(p *Processor) *Collector {
	return &Collector{
		counters: &p.counters,
		window:   p.window.Len,
		messages: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "messages_total"),
			"Observer messages handled, by outcome.",
			[]string{"outcome"}, nil),
		facts: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "facts_delivered_total"),
			"Facts delivered to the coverage service, by kind.",
			[]string{"kind"}, nil),
		rejected: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "locations_rejected_total"),
			"Repeater and sample locations filtered by the validator.",
			nil, nil),
		deliveries: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "delivery_errors_total"),
			"Failed deliveries to the coverage service.",
			nil, nil),
		panics: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "panics_total"),
			"Messages whose handling panicked and was recovered.",
			nil, nil),
		windowSize: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "dedup_window_entries"),
			"Hashes currently held by the dedup window.",
			nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.messages
	ch <- c.facts
	ch <- c.rejected
	ch <- c.deliveries
	ch <- c.panics
	ch <- c.windowSize
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.counters.Snapshot()

	counter := func(desc *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), labels...)
	}

	counter(c.messages, s.Received, "received")
	counter(c.messages, s.Duplicates, "duplicate")
	counter(c.messages, s.Malformed, "malformed")
	counter(c.messages, s.Unwatched, "unwatched")
	counter(c.facts, s.PathsSent, "path")
	counter(c.facts, s.RepeatersSent, "repeater")
	counter(c.facts, s.SamplesSent, "sample")
	counter(c.rejected, s.Rejected)
	counter(c.deliveries, s.DeliveryErrors)
	counter(c.panics, s.Panics)

	ch <- prometheus.MustNewConstMetric(c.windowSize, prometheus.GaugeValue, float64(c.window()))
}
