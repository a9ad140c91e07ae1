package common

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requestWithParam builds a request whose chi route context holds one raw parameter value
func requestWithParam(name, raw string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(name, raw)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestPathParam(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       string
		wantValue string
		wantErr   string
	}{
		{name: "sync id", raw: "sync-1710000000000-a1b2c3", wantValue: "sync-1710000000000-a1b2c3"},
		{name: "retry id", raw: "retry-1709251200000", wantValue: "retry-1709251200000"},
		{name: "dots and underscores", raw: "sync.abc_v1", wantValue: "sync.abc_v1"},
		{name: "encoded slash is decoded", raw: "a%2Fb", wantValue: "a/b"},
		{name: "missing", raw: "", wantErr: "id cannot be empty"},
		{name: "encoded space only", raw: "%20", wantErr: "id cannot be empty"},
		{name: "inner space", raw: "sync%201", wantErr: "id cannot contain whitespace"},
		{name: "tab", raw: "sync%091", wantErr: "id cannot contain whitespace"},
		{name: "control character", raw: "sync%001", wantErr: "id cannot contain whitespace"},
		{name: "bad escape", raw: "sync%zz", wantErr: "invalid URL encoding in id"},
		{name: "too long", raw: strings.Repeat("a", MaxPathParamLength+1), wantErr: "id cannot exceed 128 characters"},
		{name: "longest accepted", raw: strings.Repeat("a", MaxPathParamLength), wantValue: strings.Repeat("a", MaxPathParamLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			value, err := PathParam(requestWithParam("id", tt.raw), "id")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantValue, value)
		})
	}
}

func TestPathParam_ThroughRouter(t *testing.T) {
	t.Parallel()

	var got string
	r := chi.NewRouter()
	r.Get("/status/{id}", func(w http.ResponseWriter, r *http.Request) {
		value, err := PathParam(r, "id")
		if err != nil {
			WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		got = value
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status/sync-42", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "sync-42", got)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status/sync%2042", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"id cannot contain whitespace"}`, rr.Body.String())
}
