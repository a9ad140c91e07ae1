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

	"github.com/jgchk/blog-sub001/internal/api"
	"github.com/jgchk/blog-sub001/internal/versions"
)

func serve(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()

	req, err := http.NewRequest(method, target, nil)
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	rr := serve(t, api.NewServer(), http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var response map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
}

func TestReadinessEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		check          api.ReadinessCheck
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "no check configured",
			expectedStatus: http.StatusOK,
			expectedBody:   "ready",
		},
		{
			name:           "storage reachable",
			check:          func(context.Context) error { return nil },
			expectedStatus: http.StatusOK,
			expectedBody:   "ready",
		},
		{
			name:           "storage unreachable",
			check:          func(context.Context) error { return errors.New("bucket not found") },
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   "bucket not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := api.NewServer(api.WithReadinessCheck(tt.check))
			rr := serve(t, server, http.MethodGet, "/readiness")

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.expectedBody)
		})
	}
}

func TestVersionEndpoint(t *testing.T) {
	t.Parallel()

	rr := serve(t, api.NewServer(), http.MethodGet, "/version")
	require.Equal(t, http.StatusOK, rr.Code)

	var response api.VersionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Equal(t, versions.Version, response.Version)
	assert.NotEmpty(t, response.GoVersion)
	assert.NotEmpty(t, response.Platform)
}

func TestMountedHandlers(t *testing.T) {
	t.Parallel()

	named := func(name string) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(name))
		})
	}

	tests := []struct {
		name       string
		opts       []api.ServerOption
		method     string
		target     string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "webhook",
			opts:       []api.ServerOption{api.WithWebhook(named("webhook"))},
			method:     http.MethodPost,
			target:     "/webhook",
			wantStatus: http.StatusOK,
			wantBody:   "webhook",
		},
		{
			name:       "admin",
			opts:       []api.ServerOption{api.WithAdmin(named("admin"))},
			method:     http.MethodGet,
			target:     "/admin/status",
			wantStatus: http.StatusOK,
			wantBody:   "admin",
		},
		{
			name:       "metrics",
			opts:       []api.ServerOption{api.WithMetricsHandler(named("metrics"))},
			method:     http.MethodGet,
			target:     "/metrics",
			wantStatus: http.StatusOK,
			wantBody:   "metrics",
		},
		{
			name:       "admin not configured",
			method:     http.MethodGet,
			target:     "/admin/status",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "metrics not configured",
			method:     http.MethodGet,
			target:     "/metrics",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rr := serve(t, api.NewServer(tt.opts...), tt.method, tt.target)
			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rr.Body.String())
			}
		})
	}
}

func TestMiddlewaresApplied(t *testing.T) {
	t.Parallel()

	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Test", "applied")
			next.ServeHTTP(w, r)
		})
	}

	server := api.NewServer(api.WithMiddlewares(mw, api.LoggingMiddleware))
	rr := serve(t, server, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "applied", rr.Header().Get("X-Test"))
}
