package common

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"
)

// MaxPathParamLength bounds identifiers taken from the URL path
const MaxPathParamLength = 128

// PathParam returns the decoded chi URL parameter name. The value must be
// non-empty, at most MaxPathParamLength bytes and free of whitespace and
// control characters.
func PathParam(r *http.Request, name string) (string, error) {
	decoded, err := url.PathUnescape(chi.URLParam(r, name))
	if err != nil {
		return "", fmt.Errorf("invalid URL encoding in %s", name)
	}

	if strings.TrimSpace(decoded) == "" {
		return "", fmt.Errorf("%s cannot be empty", name)
	}
	if len(decoded) > MaxPathParamLength {
		return "", fmt.Errorf("%s cannot exceed %d characters", name, MaxPathParamLength)
	}
	if strings.ContainsFunc(decoded, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) {
		return "", fmt.Errorf("%s cannot contain whitespace", name)
	}

	return decoded, nil
}
