// Package metrics exposes Prometheus collectors for the pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	itemsTotal           *prometheus.CounterVec
	stageFailuresTotal   *prometheus.CounterVec
	externalCallDuration *prometheus.HistogramVec
	runsTotal            *prometheus.CounterVec
	activeWorkers        prometheus.Gauge

	once sync.Once
)

// Init registers the Prometheus collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		itemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reportwatch_items_total",
				Help: "Alert messages processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		stageFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reportwatch_stage_failures_total",
				Help: "Per-item stage failures, labeled by stage and error kind.",
			},
			[]string{"stage", "kind"},
		)

		externalCallDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reportwatch_external_call_duration_seconds",
				Help:    "Latency of external calls, labeled by call type.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"call"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reportwatch_runs_total",
				Help: "Pipeline invocations, labeled by final status.",
			},
			[]string{"status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "reportwatch_active_workers",
				Help: "Items currently inside the fan-out section.",
			},
		)
	})
}

// Handler returns an http.Handler serving the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveItem counts one item outcome (committed, duplicate, not-relevant,
// skipped, failed).
func ObserveItem(outcome string) {
	itemsTotal.WithLabelValues(outcome).Inc()
}

// ObserveStageFailure counts one stage failure.
func ObserveStageFailure(stage, kind string) {
	stageFailuresTotal.WithLabelValues(stage, kind).Inc()
}

// ObserveExternalCall records one external call latency.
func ObserveExternalCall(call string, duration time.Duration) {
	externalCallDuration.WithLabelValues(call).Observe(duration.Seconds())
}

// ObserveRun counts one pipeline invocation.
func ObserveRun(status string) {
	runsTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the fan-out gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the fan-out gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}
