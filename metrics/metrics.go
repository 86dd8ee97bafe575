// Package metrics wraps prometheus client_golang behind a small
// Factory/Histogram/Counter surface so callers never import prometheus
// directly.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Histogram observes durations (or arbitrary float values) under a set of
// label values.
type Histogram interface {
	Observe(labelValue string, seconds float64)
}

// Counter increments a monotonic count under a set of label values.
type Counter interface {
	Inc(labelValue string)
}

// Factory builds named, registered metrics. The dispatcher uses one to
// build its per-method RPC duration histogram.
type Factory interface {
	NewHistogram(name, help string, labelName string, buckets []float64) Histogram
	NewCounter(name, help string, labelName string) Counter
}

type promFactory struct {
	registerer prometheus.Registerer
}

// NewPrometheusFactory builds a Factory backed by the given registerer
// (pass prometheus.DefaultRegisterer in production, a fresh
// prometheus.NewRegistry() in tests).
func NewPrometheusFactory(registerer prometheus.Registerer) Factory {
	return &promFactory{registerer: registerer}
}

func (f *promFactory) NewHistogram(name, help, labelName string, buckets []float64) Histogram {
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    help,
		Buckets: buckets,
	}, []string{labelName})
	f.registerer.MustRegister(vec)
	return &promHistogram{vec: vec}
}

func (f *promFactory) NewCounter(name, help, labelName string) Counter {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: help,
	}, []string{labelName})
	f.registerer.MustRegister(vec)
	return &promCounter{vec: vec}
}

type promHistogram struct {
	vec *prometheus.HistogramVec
}

func (h *promHistogram) Observe(labelValue string, seconds float64) {
	h.vec.WithLabelValues(labelValue).Observe(seconds)
}

type promCounter struct {
	vec *prometheus.CounterVec
}

func (c *promCounter) Inc(labelValue string) {
	c.vec.WithLabelValues(labelValue).Inc()
}

// DefaultDurationBuckets spans sub-millisecond to multi-second RPC
// latencies, a reasonable default for Electrum-style request/response
// timings.
func DefaultDurationBuckets() []float64 {
	return []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
}

// NewNop returns a Factory whose metrics are valid but never registered
// anywhere observable — for tests that don't care about metrics output.
func NewNop() Factory {
	return NewPrometheusFactory(prometheus.NewRegistry())
}
