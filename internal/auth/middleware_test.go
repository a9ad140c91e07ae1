package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestNewTokenMiddleware_EmptyToken(t *testing.T) {
	t.Parallel()

	_, err := newTokenMiddleware("", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not be empty")
}

func TestTokenMiddleware_Middleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
		wantCalled bool
		wantCode   string
	}{
		{
			name:       "missing authorization header",
			wantStatus: http.StatusUnauthorized,
			wantCode:   errorCodeInvalidRequest,
		},
		{
			name:       "basic auth",
			authHeader: "Basic xyz",
			wantStatus: http.StatusUnauthorized,
			wantCode:   errorCodeInvalidRequest,
		},
		{
			name:       "empty bearer token",
			authHeader: "Bearer ",
			wantStatus: http.StatusUnauthorized,
			wantCode:   errorCodeInvalidRequest,
		},
		{
			name:       "valid token",
			authHeader: "Bearer s3cret-token",
			wantStatus: http.StatusOK,
			wantCalled: true,
		},
		{
			name:       "lowercase scheme",
			authHeader: "bearer s3cret-token",
			wantStatus: http.StatusOK,
			wantCalled: true,
		},
		{
			name:       "wrong token",
			authHeader: "Bearer other-token",
			wantStatus: http.StatusUnauthorized,
			wantCode:   errorCodeInvalidToken,
		},
		{
			name:       "token prefix",
			authHeader: "Bearer s3cret",
			wantStatus: http.StatusUnauthorized,
			wantCode:   errorCodeInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m, err := newTokenMiddleware("s3cret-token", "")
			require.NoError(t, err)

			called := false
			wrapped := m.Middleware(okHandler(&called))

			req := httptest.NewRequest(http.MethodPost, "/admin/sync", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()
			wrapped.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantCalled, called)
			if tt.wantCode != "" {
				assert.Contains(t, rr.Header().Get("WWW-Authenticate"), `error="`+tt.wantCode+`"`)
				assert.Contains(t, rr.Body.String(), `"error"`)
			}
		})
	}
}

func TestWrapWithPublicPaths(t *testing.T) {
	t.Parallel()

	m, err := newTokenMiddleware("s3cret-token", "")
	require.NoError(t, err)
	wrap := WrapWithPublicPaths(m.Middleware, DefaultPublicPaths)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{path: "/admin/health", wantStatus: http.StatusOK},
		{path: "/webhook", wantStatus: http.StatusOK},
		{path: "/admin/status", wantStatus: http.StatusUnauthorized},
		{path: "/admin/health/../status", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()

			called := false
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.URL.Path = tt.path
			wrap(okHandler(&called)).ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantStatus == http.StatusOK, called)
		})
	}
}

func TestSanitizeHeaderValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"clean value", "blog-admin", "blog-admin"},
		{"removes newline", "realm\ninjected: evil", "realminjected: evil"},
		{"removes carriage return", "realm\rinjected", "realminjected"},
		{"removes CRLF", "realm\r\nX-Injected: evil", "realmX-Injected: evil"},
		{"escapes quotes", `realm"with"quotes`, `realm\"with\"quotes`},
		{"handles multiple issues", "bad\r\n\"value\"", `bad\"value\"`},
		{"empty string", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, sanitizeHeaderValue(tt.input))
		})
	}
}

func TestTokenMiddleware_WWWAuthenticate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		realm       string
		wantContain string
	}{
		{name: "custom realm", realm: "test-realm", wantContain: `realm="test-realm"`},
		{name: "default realm", realm: "", wantContain: `realm="blog-admin"`},
		{
			name:        "sanitizes realm with injection attempt",
			realm:       "evil\r\nX-Injected: header",
			wantContain: `realm="evilX-Injected: header"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m, err := newTokenMiddleware("s3cret-token", tt.realm)
			require.NoError(t, err)

			called := false
			req := httptest.NewRequest(http.MethodGet, "/admin/status", nil)
			req.Header.Set("Authorization", "Bearer wrong")
			rr := httptest.NewRecorder()
			m.Middleware(okHandler(&called)).ServeHTTP(rr, req)

			assert.Contains(t, rr.Header().Get("WWW-Authenticate"), tt.wantContain)
			assert.NotContains(t, rr.Header().Get("WWW-Authenticate"), "\n")
		})
	}
}
