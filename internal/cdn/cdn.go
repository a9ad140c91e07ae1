// Package cdn invalidates cached copies of published paths.
package cdn

import "context"

//go:generate mockgen -destination=mocks/mock_cdn.go -package=mocks -source=cdn.go Invalidator

// Invalidator requests invalidation of URL paths. Paths may end in "*".
type Invalidator interface {
	Invalidate(ctx context.Context, paths []string) (string, error)
}

// NoopInvalidator is used when no CDN sits in front of the store
type NoopInvalidator struct{}

// Invalidate implements Invalidator
func (NoopInvalidator) Invalidate(context.Context, []string) (string, error) {
	return "", nil
}
