package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors on a private
// registry. The orchestrator emits observations; retention and export
// are the scrape target's concern.
type Metrics struct {
	registry *prometheus.Registry

	JobsTotal     *prometheus.CounterVec
	GuessesTotal  *prometheus.CounterVec
	JobsCurrent   *prometheus.GaugeVec
	JobDuration   *prometheus.HistogramVec
	PhaseDuration *prometheus.HistogramVec
}

// New creates and registers all collectors
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hashbreaker_jobs_total",
			Help: "Total number of jobs processed",
		}, []string{"status"}),
		GuessesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hashbreaker_guesses_total",
			Help: "Total password guesses made",
		}, []string{"phase"}),
		JobsCurrent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hashbreaker_jobs_current",
			Help: "Current number of jobs by status",
		}, []string{"status"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hashbreaker_jobs_duration_seconds",
			Help:    "Job execution duration",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"status"}),
		PhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hashbreaker_phase_duration_seconds",
			Help:    "Phase execution duration",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		}, []string{"phase"}),
	}

	registry.MustRegister(
		m.JobsTotal,
		m.GuessesTotal,
		m.JobsCurrent,
		m.JobDuration,
		m.PhaseDuration,
	)

	return m
}

// Handler returns the Prometheus exposition handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
