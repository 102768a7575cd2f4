package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.UnitsLoadedTotal.WithLabelValues("node").Inc()
	m.UnitsFailedTotal.WithLabelValues("node", "load_failed").Inc()
	m.ModulesTotal.Set(3)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.UnitsLoadedTotal.WithLabelValues("node")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.ModulesTotal))

	assert.Panics(t, func() { NewMetrics(reg) }, "duplicate registration must panic")
}

func TestHTTPMetricsMiddleware_RouteTemplate(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	r := mux.NewRouter()
	r.Use(HTTPMetricsMiddleware(m))
	r.HandleFunc("/modules/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("missing"))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/modules/foo", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/modules/{name}", "404"))
	assert.Equal(t, float64(1), got)
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.TypesTotal.Set(7)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "noderegistry_types 7"))
}
