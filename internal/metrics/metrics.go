// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics counts what a run or walk did, in Prometheus form.
//
// benchtrack is a batch tool, so metrics are not served. They are
// written once, at the end, in the text format read by the node
// exporter's textfile collector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"golang.org/x/perf/benchtrack/observation"
	"golang.org/x/perf/benchtrack/walker"
)

const namespace = "benchtrack"

// Metrics holds the collectors of one process.
type Metrics struct {
	reg *prometheus.Registry

	Attempts        *prometheus.CounterVec
	Durations       *prometheus.HistogramVec
	Skips           *prometheus.CounterVec
	ContextFailures prometheus.Counter
	Revisions       prometheus.Counter
}

// New returns Metrics registered in a new registry.
func New() *Metrics {
	m := &Metrics{reg: prometheus.NewRegistry()}
	m.Attempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Benchmark attempts by case and result.",
		},
		[]string{"case", "result"},
	)
	m.Durations = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_duration_seconds",
			Help:      "Duration of successful attempts.",
			// 1µs to about 17 minutes.
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 16),
		},
		[]string{"case"},
	)
	m.Skips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skips_total",
			Help:      "Cases skipped at a revision, by reason.",
		},
		[]string{"reason"},
	)
	m.ContextFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "context_failures_total",
		Help:      "Revisions whose execution context could not be established.",
	})
	m.Revisions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "revisions_total",
		Help:      "Revisions walked.",
	})
	m.reg.MustRegister(m.Attempts, m.Durations, m.Skips, m.ContextFailures, m.Revisions)
	return m
}

// Registry returns the registry holding m's collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// ObserveAttempt counts o.
func (m *Metrics) ObserveAttempt(o observation.Observation) {
	result := string(o.Failure)
	if o.OK() {
		result = "ok"
		m.Durations.WithLabelValues(o.Case).Observe(o.Duration.Seconds())
	}
	m.Attempts.WithLabelValues(o.Case, result).Inc()
}

// ObserveWalk counts the revisions, skips and context failures of res.
func (m *Metrics) ObserveWalk(res *walker.Result) {
	if res == nil {
		return
	}
	m.Revisions.Add(float64(len(res.Walked)))
	for _, s := range res.Skips {
		m.Skips.WithLabelValues(string(s.Reason)).Inc()
	}
	m.ContextFailures.Add(float64(len(res.ContextFailures)))
}

// Hook makes w report its attempts to m, in addition to any OnAttempt
// hook already set.
func (m *Metrics) Hook(w *walker.Walker) {
	prev := w.OnAttempt
	w.OnAttempt = func(o observation.Observation) {
		m.ObserveAttempt(o)
		if prev != nil {
			prev(o)
		}
	}
}

// WriteFile writes the metrics to path in the Prometheus text format.
func (m *Metrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.reg)
}
