// Package metrics holds the Prometheus collectors of the commit layer.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/asaldivar93/reactors-czlab/internal/telemetry"
)

const namespace = "reactorlog"

// OutcomeOK labels a successful commit.
const OutcomeOK = "ok"

// OutcomeCanceled labels a commit abandoned before storage.
const OutcomeCanceled = "canceled"

// Metrics groups the collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	commits            *prometheus.CounterVec
	commitDuration     *prometheus.HistogramVec
	experimentsCreated prometheus.Counter
	queueDepth         prometheus.Gauge
}

// New creates the collectors and registers them, with the Go and process
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commits_total",
				Help:      "Measurement commits by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		commitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "commit_duration_seconds",
				Help:      "Time from commit call to return, by kind.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"kind"},
		),
		experimentsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "experiments_created_total",
				Help:      "Experiment rows inserted by this process.",
			},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ingest_queue_depth",
				Help:      "Events waiting in the ingest queue.",
			},
		),
	}
	m.registry.MustRegister(
		m.commits,
		m.commitDuration,
		m.experimentsCreated,
		m.queueDepth,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveCommit records one commit of kind that took d and ended with err.
func (m *Metrics) ObserveCommit(kind string, d time.Duration, err error) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.commits.WithLabelValues(kind, Outcome(err)).Inc()
	m.commitDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ExperimentCreated counts one inserted experiment row.
func (m *Metrics) ExperimentCreated() {
	if m == nil {
		return
	}
	m.experimentsCreated.Inc()
}

// SetQueueDepth reports the current ingest queue length.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// Outcome maps a commit error to its label value: "ok", "canceled", or the
// lowercased error code.
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return OutcomeCanceled
	}
	var te *telemetry.Error
	if errors.As(err, &te) {
		return strings.ToLower(string(te.Code))
	}
	return "error"
}
