package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	apiRequestsTotal      *prometheus.CounterVec
	apiLatencySeconds     *prometheus.HistogramVec
	apiErrorsTotal        *prometheus.CounterVec
	computationsTotal     *prometheus.CounterVec
	computationSeconds    *prometheus.HistogramVec
	computationFaultTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors for the metrics API and the calculators.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analytics_api_requests_total",
			Help: "Total number of metrics API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "analytics_api_latency_seconds",
			Help:    "Latency distribution for metrics API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analytics_api_errors_total",
			Help: "Total number of error responses returned by metrics endpoints.",
		}, []string{"method", "route", "status"})

		computationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analytics_computations_total",
			Help: "Metric computations by scope and outcome (ok, partial, failed, cached).",
		}, []string{"scope", "outcome"})

		computationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "analytics_computation_seconds",
			Help:    "Time spent computing metrics, cache hits excluded.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"scope"})

		computationFaultTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analytics_computation_faults_total",
			Help: "Recovered failures inside a single step, lesson or course computation.",
		}, []string{"scope"})

		prometheus.MustRegister(
			apiRequestsTotal, apiLatencySeconds, apiErrorsTotal,
			computationsTotal, computationSeconds, computationFaultTotal,
		)
	})
}

// APIRequests exposes the counter for metrics API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for metrics API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for metrics API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// Computations counts orchestrator calls.
func Computations() *prometheus.CounterVec {
	RegisterMetrics()
	return computationsTotal
}

// ComputationDuration observes how long a computation took.
func ComputationDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return computationSeconds
}

// ComputationFaults counts recovered calculator failures.
func ComputationFaults() *prometheus.CounterVec {
	RegisterMetrics()
	return computationFaultTotal
}
