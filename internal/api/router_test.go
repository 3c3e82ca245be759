package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/URBREATH/geoserver-publisher/internal/api"
	"github.com/URBREATH/geoserver-publisher/internal/config"
)

type fakeStore struct {
	pingErr error
}

func (f *fakeStore) ListPending(context.Context) ([]string, error) { return nil, nil }
func (f *fakeStore) Get(context.Context, string) ([]byte, error)   { return nil, nil }
func (f *fakeStore) PutJSON(context.Context, string, any) error    { return nil }
func (f *fakeStore) Rename(context.Context, string, string) error  { return nil }
func (f *fakeStore) Delete(context.Context, string) error          { return nil }
func (f *fakeStore) Ping(context.Context) error                    { return f.pingErr }

type fakeStats struct{}

func (fakeStats) GetStats() map[string]any {
	return map[string]any{"cycles": int64(7)}
}

func newTestRouter(pingErr error) http.Handler {
	cfg := &config.Config{}
	cfg.Storage.Bucket = "geodata"
	r := api.NewRouter(&fakeStore{pingErr: pingErr}, fakeStats{}, cfg)
	return r.SetupRoutes()
}

func TestHealthCheck_Healthy(t *testing.T) {
	router := newTestRouter(nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])

	storageInfo, ok := body["storage"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, storageInfo["connected"])
	assert.Equal(t, "geodata", storageInfo["bucket"])
}

func TestHealthCheck_DegradedWhenStorageDown(t *testing.T) {
	router := newTestRouter(errors.New("connection refused"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
}

func TestStatsEndpoint(t *testing.T) {
	router := newTestRouter(nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", http.NoBody)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(7), body["cycles"])
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
