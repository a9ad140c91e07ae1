package auth

import (
	"fmt"
	"net/http"

	"github.com/jgchk/blog-sub001/internal/config"
	"github.com/jgchk/blog-sub001/internal/logger"
)

// NewAuthMiddleware creates authentication middleware based on config.
// A nil config leaves the API open.
func NewAuthMiddleware(cfg *config.AuthConfig) (func(http.Handler) http.Handler, error) {
	switch mode := cfg.GetMode(); mode {
	case config.AuthModeAnonymous:
		logger.Infof("auth: anonymous mode")
		return anonymousMiddleware, nil
	case config.AuthModeToken:
		token, err := cfg.GetToken()
		if err != nil {
			return nil, fmt.Errorf("failed to read admin token: %w", err)
		}
		m, err := newTokenMiddleware(token, cfg.Realm)
		if err != nil {
			return nil, err
		}
		logger.Infof("auth: token mode")
		return m.Middleware, nil
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", mode)
	}
}

// anonymousMiddleware is a no-op middleware that passes requests through without authentication.
func anonymousMiddleware(next http.Handler) http.Handler {
	return next
}
