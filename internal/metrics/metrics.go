package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the engine and API
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

	// Solves counts finished solves by terminal solver status
	Solves = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cflp_solves_total", Help: "Facility location solves by solver status."},
		[]string{"status"},
	)
	// SolveDuration tracks wall-clock time spent inside the MIP backend
	SolveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "cflp_solve_duration_seconds", Help: "Solver wall-clock time in seconds.", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 600, 3600}},
	)
	// CostMatrixCache counts cache lookups: hit, miss (absent record), rebuild (unreadable record)
	CostMatrixCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cflp_cost_matrix_cache_total", Help: "Cost matrix cache lookups by result."},
		[]string{"result"},
	)
	// Degradations counts recovered failures (reprojection, skipped geometry, cache parse)
	Degradations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cflp_degradations_total", Help: "Recovered degraded computations by kind."},
		[]string{"kind"},
	)
	// PersistenceFailures counts non-fatal write failures by operation
	PersistenceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cflp_persistence_failures_total", Help: "Non-fatal persistence failures by operation."},
		[]string{"op"},
	)
	// WebhookDeliveries counts webhook outcomes: delivered, retry, failed, dropped
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cflp_webhook_deliveries_total", Help: "Solve event webhook deliveries by result."},
		[]string{"result"},
	)
	// OpenFacilities is the number of facilities opened by the last accepted solve
	OpenFacilities = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "cflp_open_facilities", Help: "Open facilities in the most recent accepted solution."},
	)
)

// Degradation kinds.
const (
	DegradeReprojection = "reprojection"
	DegradeGeometry     = "geometry"
	DegradeCacheRead    = "cache_read"
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(Solves)
		Registry.MustRegister(SolveDuration)
		Registry.MustRegister(CostMatrixCache)
		Registry.MustRegister(Degradations)
		Registry.MustRegister(PersistenceFailures)
		Registry.MustRegister(OpenFacilities)
		Registry.MustRegister(WebhookDeliveries)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
