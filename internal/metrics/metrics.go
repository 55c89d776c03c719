// Package metrics exposes Prometheus instrumentation for the risk engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	evaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskengine_evaluations_total",
			Help: "Total number of risk evaluations performed",
		},
		[]string{"operation", "outcome"},
	)

	evaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "riskengine_evaluation_duration_seconds",
			Help:    "Distribution of risk evaluation durations",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .2, .5, 1, 2},
		},
		[]string{"operation"},
	)

	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskengine_alerts_total",
			Help: "Total number of alerts emitted",
		},
		[]string{"kind", "severity"},
	)

	alertsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "riskengine_alerts_dropped_total",
			Help: "Alerts dropped because the buffer was full",
		},
	)

	monitoredSubjects = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "riskengine_monitored_subjects",
			Help: "Number of subjects currently monitored",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(evaluationsTotal)
	prometheus.MustRegister(evaluationDuration)
	prometheus.MustRegister(alertsTotal)
	prometheus.MustRegister(alertsDropped)
	prometheus.MustRegister(monitoredSubjects)
}

// Handler returns the Prometheus scrape endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordEvaluation records one engine operation with its outcome and duration
// in seconds.
func RecordEvaluation(operation, outcome string, seconds float64) {
	evaluationsTotal.WithLabelValues(operation, outcome).Inc()
	evaluationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordAlert records an emitted alert
func RecordAlert(kind, severity string) {
	alertsTotal.WithLabelValues(kind, severity).Inc()
}

// RecordDroppedAlert records an alert discarded on buffer overflow
func RecordDroppedAlert() {
	alertsDropped.Inc()
}

// SetMonitoredSubjects updates the subject gauge for a cadence tier
func SetMonitoredSubjects(tier string, count int) {
	monitoredSubjects.WithLabelValues(tier).Set(float64(count))
}
