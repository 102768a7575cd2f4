// Package api provides the admin HTTP API of the node registry.
//
// # Overview
//
// The API exposes the registry's query surface and its mutations over
// gorilla/mux routes:
//
//   - GET    /nodes                        module list, or all configs for Accept: text/html
//   - POST   /nodes                        install {"module", "version", "path"}
//   - GET    /nodes/{module}               one module
//   - PUT    /nodes/{module}               {"enabled": bool} for every unit
//   - DELETE /nodes/{module}               uninstall
//   - GET    /nodes/{module}/{unit}        one unit
//   - PUT    /nodes/{module}/{unit}        {"enabled": bool}
//   - GET    /nodes/{module}/{unit}/config rendered config and help
//   - GET    /units?state=&kind=&module=   filtered unit list
//   - GET    /rejected                     modules excluded by the last load pass
//   - GET    /types, /types/{type}         live type bindings
//   - GET    /locales/{namespace}          message catalog
//   - GET    /icons, /icons/{module}/{icon}
//   - GET    /resources/{module}/{path}
//   - GET    /examples/{module}
//   - POST   /scan                         load modules that appeared on disk
//
// Scoped module names are passed as one escaped segment, e.g.
// /nodes/@acme%2Fwidgets. The language of configs and catalogs comes from
// ?lang= or Accept-Language.
//
// # Errors
//
// Errors are JSON objects {"error": code, "message": text}. The code is the
// registry's error code (module_not_found, type_in_use, ...); the status
// follows it: 404 for unknown modules and units, 409 for conflicts, 403 for
// the host module, 422 for version mismatches.
//
// # Usage
//
//	server := api.NewServer(api.Options{
//		Registry: reg,
//		Logger:   log,
//		Metrics:  metrics,
//		Gatherer: prometheus.DefaultGatherer,
//		Health:   checker,
//	})
//	http.ListenAndServe(":1880", server)
package api
