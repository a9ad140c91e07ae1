package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/jgchk/blog-sub001/internal/logger"
	pkgsync "github.com/jgchk/blog-sub001/internal/sync"
)

// performSync runs one queued request and logs its outcome. Failures are
// recorded by the runner in the tracker; nothing is returned to the caller
// that enqueued the request.
func (c *defaultCoordinator) performSync(ctx context.Context, req pkgsync.Request) {
	logger.Infof("Sync '%s': starting %s sync of '%s' (%d queued)",
		req.SyncID, req.Kind, req.RepositoryRef, len(c.queue))
	start := time.Now()

	result, err := c.runner.Sync(ctx, req)
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, pkgsync.ErrSyncInProgress):
		logger.Warnf("Sync '%s': another sync is running outside the coordinator", req.SyncID)
	case err != nil:
		logger.Errorf("Sync '%s': failed after %s: %v", req.SyncID, elapsed, err)
	case result == nil:
		logger.Errorf("Sync '%s': runner returned no result", req.SyncID)
	case !result.Success:
		logger.Warnf("Sync '%s': completed in %s with %d failed articles (%d rendered, %d deleted)",
			req.SyncID, elapsed, len(result.ArticlesFailed), len(result.ArticlesRendered), len(result.ArticlesDeleted))
	default:
		logger.Infof("Sync '%s': completed in %s (%d rendered, %d deleted, %d tag pages)",
			req.SyncID, elapsed, len(result.ArticlesRendered), len(result.ArticlesDeleted), result.TagPagesGenerated)
	}
}
