// Package httputil provides the request parsing, response writing and
// middleware shared by the admin API.
//
// # Responses
//
//	httputil.WriteSuccess(w, modules)
//	httputil.WriteHTML(w, http.StatusOK, configs)
//	httputil.WriteCodedError(w, http.StatusConflict, "type_in_use", err)
//
// # Requests
//
// Module names can be scoped ("@scope/name"). Routers are built with
// UseEncodedPath and ParsePathString unescapes the segment:
//
//	name, ok := httputil.ParsePathStringOrError(w, r, "module")
//	lang := httputil.RequestLanguage(r) // ?lang= or Accept-Language
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(log),
//		httputil.RecoveryMiddleware(log),
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
package httputil
