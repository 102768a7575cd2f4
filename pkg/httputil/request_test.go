package httputil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
)

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		expectError bool
	}{
		{
			name:        "valid JSON",
			body:        `{"module": "node-red-contrib-foo"}`,
			expectError: false,
		},
		{
			name:        "invalid JSON",
			body:        `{invalid}`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/nodes", bytes.NewBufferString(tt.body))
			var dest map[string]string

			err := ParseJSON(req, &dest)

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, "node-red-contrib-foo", dest["module"])
			}
		})
	}
}

func TestParseJSONOrError(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/nodes", bytes.NewBufferString(`{`))
	var dest map[string]string

	ok := ParseJSONOrError(w, req, &dest)

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid JSON")
}

func TestParsePathString_ScopedName(t *testing.T) {
	var got string
	var gotErr error

	router := mux.NewRouter().UseEncodedPath()
	router.HandleFunc("/nodes/{module}", func(w http.ResponseWriter, r *http.Request) {
		got, gotErr = ParsePathString(r, "module")
	})

	req := httptest.NewRequest("GET", "/nodes/@acme%2Fnode-red-widgets", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	assert.NoError(t, gotErr)
	assert.Equal(t, "@acme/node-red-widgets", got)
}

func TestParsePathStringOrError_Missing(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/nodes", nil)

	_, ok := ParsePathStringOrError(w, req, "module")

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParseQueryBool(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		want        bool
		expectError bool
	}{
		{name: "default", query: "", want: true},
		{name: "false", query: "?enabled=false", want: false},
		{name: "invalid", query: "?enabled=maybe", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/nodes"+tt.query, nil)
			got, err := ParseQueryBool(req, "enabled", true)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequestLanguage(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		accept string
		want   string
	}{
		{name: "query wins", query: "?lang=de", accept: "fr", want: "de"},
		{name: "accept header", accept: "fr-CH, fr;q=0.9, en;q=0.8", want: "fr-CH"},
		{name: "weights", accept: "en;q=0.5, ja", want: "ja"},
		{name: "nothing", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/nodes"+tt.query, nil)
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			assert.Equal(t, tt.want, RequestLanguage(req))
		})
	}
}

func TestParseQueryString(t *testing.T) {
	req := httptest.NewRequest("GET", "/units?state=error", nil)
	assert.Equal(t, "error", ParseQueryString(req, "state", "all"))
	assert.Equal(t, "node", ParseQueryString(req, "kind", "node"))
}
