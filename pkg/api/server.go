package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/noderegistry/pkg/httputil"
	"github.com/platinummonkey/noderegistry/pkg/observability"
)

// DefaultMaxBodyBytes bounds request bodies
const DefaultMaxBodyBytes = 1 << 20

// Options configures a Server
type Options struct {
	Registry     Registry
	Logger       *logrus.Logger
	Metrics      *observability.Metrics
	Gatherer     prometheus.Gatherer
	Health       *observability.HealthChecker
	MaxBodyBytes int64
}

// Server is the admin HTTP API over a registry
type Server struct {
	registry Registry
	router   *mux.Router
	handler  http.Handler
	log      *logrus.Logger
	metrics  *observability.Metrics
	gatherer prometheus.Gatherer
	health   *observability.HealthChecker
}

// NewServer creates the API server and its routes
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{
		registry: opts.Registry,
		// scoped module names arrive as one escaped segment
		router:   mux.NewRouter().UseEncodedPath(),
		log:      opts.Logger,
		metrics:  opts.Metrics,
		gatherer: opts.Gatherer,
		health:   opts.Health,
	}
	s.setupRoutes()

	s.handler = httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.log),
		httputil.RecoveryMiddleware(s.log),
		httputil.MaxBytesMiddleware(opts.MaxBodyBytes),
		httputil.ContentTypeMiddleware,
	)(s.router)

	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	if s.metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))
	}

	// Module routes
	s.router.HandleFunc("/nodes", s.listModules).Methods("GET")
	s.router.HandleFunc("/nodes", s.installModule).Methods("POST")
	s.router.HandleFunc("/nodes/{module}", s.getModule).Methods("GET")
	s.router.HandleFunc("/nodes/{module}", s.setModuleEnabled).Methods("PUT")
	s.router.HandleFunc("/nodes/{module}", s.uninstallModule).Methods("DELETE")

	// Unit routes
	s.router.HandleFunc("/nodes/{module}/{unit}", s.getUnit).Methods("GET")
	s.router.HandleFunc("/nodes/{module}/{unit}", s.setUnitEnabled).Methods("PUT")
	s.router.HandleFunc("/nodes/{module}/{unit}/config", s.getUnitConfig).Methods("GET")
	s.router.HandleFunc("/units", s.listUnits).Methods("GET")
	s.router.HandleFunc("/rejected", s.listRejected).Methods("GET")

	// Type routes
	s.router.HandleFunc("/types", s.listTypes).Methods("GET")
	s.router.HandleFunc("/types/{type}", s.getType).Methods("GET")

	// Catalogs and assets
	s.router.HandleFunc("/locales/{namespace:.+}", s.getCatalog).Methods("GET")
	s.router.HandleFunc("/icons", s.listIcons).Methods("GET")
	s.router.HandleFunc("/icons/{module}/{icon}", s.getIcon).Methods("GET")
	s.router.HandleFunc("/resources/{module}/{path:.+}", s.getResource).Methods("GET")
	s.router.HandleFunc("/examples/{module}", s.listExamples).Methods("GET")

	s.router.HandleFunc("/scan", s.rescan).Methods("POST")

	if s.health != nil {
		s.router.HandleFunc("/health", s.health.Readiness).Methods("GET")
		s.router.HandleFunc("/health/live", s.health.Liveness).Methods("GET")
		s.router.HandleFunc("/health/ready", s.health.Readiness).Methods("GET")
	}
	if s.gatherer != nil {
		s.router.Handle("/metrics", observability.Handler(s.gatherer)).Methods("GET")
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router exposes the router so callers can mount extra routes
func (s *Server) Router() *mux.Router {
	return s.router
}
