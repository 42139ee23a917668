package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_ServesOwnRegistry(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.IndexGeneration.Set(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "index_generation 3")
}

func TestServer_Routes(t *testing.T) {
	m := New(prometheus.NewRegistry())
	live := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := NewServer(0, m.Handler(), map[string]http.Handler{"GET /health/live": live}).Handler()

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}
	assert.Equal(t, http.StatusOK, get("/metrics").Code)
	assert.Equal(t, http.StatusNoContent, get("/health/live").Code)
	assert.Contains(t, get("/").Body.String(), "/metrics")
	assert.Equal(t, http.StatusNotFound, get("/api/v1/search").Code)
}
