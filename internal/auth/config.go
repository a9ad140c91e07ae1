package auth

import (
	"path"
	"strings"
)

// DefaultPublicPaths are reachable without a token. The webhook is
// authenticated by its own signature; only the admin surface needs a token.
var DefaultPublicPaths = []string{
	"/health",
	"/readiness",
	"/version",
	"/metrics",
	"/webhook",
	"/admin/health",
}

// IsPublicPath checks if a path should bypass authentication.
// It performs secure path matching by:
// 1. Rejecting paths with encoded path separators to prevent double-encoding attacks
// 2. Normalizing the path to prevent traversal attacks (e.g., /health/../admin/retry)
// 3. Using segment-aware matching so /health matches /health and /health/check but NOT /healthcheck
func IsPublicPath(requestPath string, publicPaths []string) bool {
	// %2f = /, %2e = .
	lowerPath := strings.ToLower(requestPath)
	if strings.Contains(lowerPath, "%2f") || strings.Contains(lowerPath, "%2e") {
		return false
	}

	cleanPath := normalize(requestPath)
	for _, publicPath := range publicPaths {
		cleanPublicPath := normalize(publicPath)

		// Root path "/" makes everything public
		if cleanPublicPath == "/" || cleanPath == cleanPublicPath {
			return true
		}
		if strings.HasPrefix(cleanPath, cleanPublicPath+"/") {
			return true
		}
	}
	return false
}

// normalize cleans p and anchors it at the root
func normalize(p string) string {
	clean := path.Clean(p)
	if !strings.HasPrefix(clean, "/") {
		clean = "/" + clean
	}
	return clean
}
