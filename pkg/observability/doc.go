// Package observability provides structured logging, Prometheus metrics, health checks, and
// OpenTelemetry tracing for the node registry.
//
// # Structured Logging
//
// Create logger:
//
//	logger, err := observability.NewLogger("info", "json", os.Stderr)
//	logger.WithField("module", "node-red-contrib-foo").Info("Module installed")
//
// # Prometheus Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.UnitsLoadedTotal.WithLabelValues("node").Inc()
//	metrics.LoadPassDuration.WithLabelValues("boot").Observe(0.42)
//
// # Health Checks
//
// Register named checks:
//
//	checker := observability.NewHealthChecker("1.0.0")
//	checker.Register("storage", storageCheck, true)
//	status := checker.Check(ctx)
//
// # Tracing
//
// Spans go through the global otel provider:
//
//	ctx, span := observability.StartSpan(ctx, "registry.install", attribute.String("module", name))
//	defer span.End()
package observability
