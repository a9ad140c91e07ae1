// Package auth provides authentication middleware for the publisher's admin API.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jgchk/blog-sub001/internal/api/common"
	"github.com/jgchk/blog-sub001/internal/logger"
)

// RFC 6750 Section 3 error codes
const (
	// errorCodeInvalidRequest indicates the request is missing a required parameter,
	// includes an unsupported parameter or parameter value, or is otherwise malformed.
	errorCodeInvalidRequest = "invalid_request"

	// errorCodeInvalidToken indicates the access token provided is expired, revoked,
	// malformed, or invalid for other reasons.
	errorCodeInvalidToken = "invalid_token"
)

// defaultRealm is the default protection space identifier
const defaultRealm = "blog-admin"

var (
	errMissingHeader = errors.New("authorization header is missing")
	errNotBearer     = errors.New("authorization header is not a bearer token")
	errEmptyToken    = errors.New("bearer token is empty")
)

// tokenMiddleware accepts requests carrying the configured static bearer token
type tokenMiddleware struct {
	// digest of the expected token, so comparisons are constant time regardless of length
	digest [sha256.Size]byte
	realm  string
}

func newTokenMiddleware(token, realm string) (*tokenMiddleware, error) {
	if token == "" {
		return nil, errors.New("admin token must not be empty")
	}
	if realm == "" {
		realm = defaultRealm
	}
	return &tokenMiddleware{
		digest: sha256.Sum256([]byte(token)),
		realm:  realm,
	}, nil
}

// Middleware returns an HTTP middleware function that performs authentication.
func (m *tokenMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r)
		if err != nil {
			logger.Warnw("Token extraction failed",
				"error", err,
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path)
			m.writeError(w, errorCodeInvalidRequest, "missing or malformed authorization header")
			return
		}

		got := sha256.Sum256([]byte(token))
		if subtle.ConstantTimeCompare(got[:], m.digest[:]) != 1 {
			logger.Warnw("Token validation failed",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path)
			m.writeError(w, errorCodeInvalidToken, "token validation failed")
			return
		}

		logger.Debugw("Authentication successful", "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// extractBearerToken returns the token of an "Authorization: Bearer <token>" header
func extractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errMissingHeader
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errNotBearer
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errEmptyToken
	}
	return token, nil
}

// sanitizeHeaderValue removes characters that could enable header injection attacks.
// This includes newlines, carriage returns, and unescaped quotes.
func sanitizeHeaderValue(s string) string {
	if !strings.ContainsAny(s, "\r\n\"") {
		return s
	}
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	// Escape quotes for use in quoted-string (RFC 7230)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

// writeError writes a 401 JSON error response with an RFC 6750 compliant WWW-Authenticate header.
func (m *tokenMiddleware) writeError(w http.ResponseWriter, errCode, description string) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm="%s", error="%s", error_description="%s"`,
		sanitizeHeaderValue(m.realm), errCode, sanitizeHeaderValue(description)))
	common.WriteErrorResponse(w, description, http.StatusUnauthorized)
}

// WrapWithPublicPaths wraps an auth middleware to bypass authentication for public paths.
// Requests to public paths are passed directly to the next handler without authentication,
// while all other requests go through the provided auth middleware.
func WrapWithPublicPaths(
	authMw func(http.Handler) http.Handler,
	publicPaths []string,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		// Pre-wrap the handler once during initialization, not per-request
		authWrappedNext := authMw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsPublicPath(r.URL.Path, publicPaths) {
				next.ServeHTTP(w, r)
				return
			}
			authWrappedNext.ServeHTTP(w, r)
		})
	}
}
