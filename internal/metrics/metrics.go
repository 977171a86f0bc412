package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// RunsTotal counts finished solve runs by terminal status
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "solver_runs_total", Help: "Solve runs by terminal status."},
		[]string{"status"},
	)
	// RunsActive tracks runs currently being solved
	RunsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "solver_runs_active", Help: "Runs currently solving."},
	)
	// RunDuration records wall time of finished runs in seconds
	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "solver_run_duration_seconds", Help: "Solve run wall time in seconds.", Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300}},
		[]string{"status"},
	)
	// RunGenerations records how many generations a run got through
	RunGenerations = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "solver_run_generations", Help: "Generations per finished run.", Buckets: []float64{10, 100, 500, 1000, 5000, 10000, 50000}},
	)
)

// RegisterDefault registers collectors on the dedicated registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(RunsTotal)
		Registry.MustRegister(RunsActive)
		Registry.MustRegister(RunDuration)
		Registry.MustRegister(RunGenerations)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
