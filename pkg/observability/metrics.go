package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Load metrics
	UnitsLoadedTotal  *prometheus.CounterVec
	UnitsFailedTotal  *prometheus.CounterVec
	LoadPassDuration  *prometheus.HistogramVec
	ModulesRejected   *prometheus.CounterVec
	InstallsTotal     *prometheus.CounterVec
	UninstallsTotal   *prometheus.CounterVec
	PersistFailures   prometheus.Counter
	ConfigCacheHits   prometheus.Counter
	ConfigCacheMisses prometheus.Counter

	// Registry state
	ModulesTotal prometheus.Gauge
	TypesTotal   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "noderegistry_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "noderegistry_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "noderegistry_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),
		UnitsLoadedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "noderegistry_units_loaded_total",
				Help: "Total number of units loaded successfully",
			},
			[]string{"kind"},
		),
		UnitsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "noderegistry_units_failed_total",
				Help: "Total number of units that failed to load",
			},
			[]string{"kind", "code"},
		),
		LoadPassDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "noderegistry_load_pass_duration_seconds",
				Help:    "Duration of a load pass in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"pass"},
		),
		ModulesRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "noderegistry_modules_rejected_total",
				Help: "Total number of modules excluded from a load pass",
			},
			[]string{"code"},
		),
		InstallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "noderegistry_installs_total",
				Help: "Total number of module installs",
			},
			[]string{"result"},
		),
		UninstallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "noderegistry_uninstalls_total",
				Help: "Total number of module uninstalls",
			},
			[]string{"result"},
		),
		PersistFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "noderegistry_persist_failures_total",
				Help: "Total number of failed writes of the module list",
			},
		),
		ConfigCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "noderegistry_config_cache_hits_total",
				Help: "Total number of rendered config cache hits",
			},
		),
		ConfigCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "noderegistry_config_cache_misses_total",
				Help: "Total number of rendered config cache misses",
			},
		),
		ModulesTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "noderegistry_modules",
				Help: "Number of modules in the registry",
			},
		),
		TypesTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "noderegistry_types",
				Help: "Number of registered types",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.UnitsLoadedTotal,
		m.UnitsFailedTotal,
		m.LoadPassDuration,
		m.ModulesRejected,
		m.InstallsTotal,
		m.UninstallsTotal,
		m.PersistFailures,
		m.ConfigCacheHits,
		m.ConfigCacheMisses,
		m.ModulesTotal,
		m.TypesTotal,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests matched by a mux route are labelled with the route template.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			path := routeLabel(r)
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, path).Observe(float64(rw.bytesWritten))
		})
	}
}

func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

// Handler serves the metrics of a registry
func Handler(registry prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
