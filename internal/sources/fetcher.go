package sources

import (
	"context"

	"github.com/jgchk/blog-sub001/internal/content"
)

//go:generate mockgen -destination=mocks/mock_fetcher.go -package=mocks -source=fetcher.go ContentFetcher

// ContentFetcher reads content files from the source of truth. Paths are
// repository relative with forward slashes.
type ContentFetcher interface {
	// FetchChanged returns the files at paths as of ref. A path missing at ref is an error.
	FetchChanged(ctx context.Context, ref string, paths []string) ([]content.File, error)

	// FetchAll returns every file below the content root as of ref
	FetchAll(ctx context.Context, ref string) ([]content.File, error)
}
