package sources

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jgchk/blog-sub001/internal/content"
	"github.com/jgchk/blog-sub001/internal/git"
	"github.com/jgchk/blog-sub001/internal/logger"
)

// GitFetcher reads content from a remote git repository. The most recent
// clone is kept in memory and reused while requests name the same commit.
type GitFetcher struct {
	client      git.Client
	clone       git.CloneConfig
	contentRoot string

	mu        sync.Mutex
	cached    *git.RepositoryInfo
	cachedRef string
}

// NewGitFetcher creates a fetcher for the repository described by clone
func NewGitFetcher(client git.Client, clone git.CloneConfig, contentRoot string) *GitFetcher {
	return &GitFetcher{
		client:      client,
		clone:       clone,
		contentRoot: content.CleanRoot(contentRoot),
	}
}

// FetchChanged implements ContentFetcher
func (f *GitFetcher) FetchChanged(ctx context.Context, ref string, paths []string) ([]content.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	repoInfo, err := f.snapshot(ctx, ref)
	if err != nil {
		return nil, err
	}

	files := make([]content.File, 0, len(paths))
	for _, p := range paths {
		data, err := f.client.GetFileContent(repoInfo, p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s at %s: %w", p, repoInfo.CommitHash, err)
		}
		files = append(files, content.File{Path: p, Content: data})
	}
	return files, nil
}

// FetchAll implements ContentFetcher
func (f *GitFetcher) FetchAll(ctx context.Context, ref string) ([]content.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	repoInfo, err := f.snapshot(ctx, ref)
	if err != nil {
		return nil, err
	}

	paths, err := f.client.ListFiles(repoInfo, f.contentRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", f.contentRoot, err)
	}

	files := make([]content.File, 0, len(paths))
	for _, p := range paths {
		data, err := f.client.GetFileContent(repoInfo, p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		files = append(files, content.File{Path: p, Content: data})
	}

	logger.Infow("Fetched content tree",
		"commit", repoInfo.CommitHash.String(),
		"root", f.contentRoot,
		"files", len(files))
	return files, nil
}

// Close releases the cached clone
func (f *GitFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.release(context.Background())
	return nil
}

// snapshot returns a clone pinned to ref, reusing the cached one when the
// commit matches. An empty ref always clones the branch head. Caller holds mu.
func (f *GitFetcher) snapshot(ctx context.Context, ref string) (*git.RepositoryInfo, error) {
	if ref != "" && f.cached != nil && f.cachedRef == ref {
		return f.cached, nil
	}

	cloneConfig := f.clone
	cloneConfig.Commit = ref

	startTime := time.Now()
	logger.Infow("Starting git clone",
		"repository", cloneConfig.URL,
		"branch", cloneConfig.Branch,
		"commit", cloneConfig.Commit)

	repoInfo, err := f.client.Clone(ctx, &cloneConfig)
	if err != nil {
		logger.Errorw("Git clone failed",
			"error", err,
			"repository", cloneConfig.URL,
			"duration", time.Since(startTime).String())
		return nil, fmt.Errorf("failed to clone repository: %w", err)
	}

	logger.Infow("Git clone completed",
		"repository", cloneConfig.URL,
		"duration", time.Since(startTime).String(),
		"branch", repoInfo.Branch,
		"commit_sha", repoInfo.CommitHash.String())

	f.release(ctx)
	f.cached = repoInfo
	f.cachedRef = repoInfo.CommitHash.String()
	if ref != "" {
		f.cachedRef = ref
	}
	return repoInfo, nil
}

// release drops the cached clone. Caller holds mu.
func (f *GitFetcher) release(ctx context.Context) {
	if f.cached == nil {
		return
	}
	if err := f.client.Cleanup(ctx, f.cached); err != nil {
		logger.Warnf("Failed to cleanup repository: %v", err)
	}
	f.cached = nil
	f.cachedRef = ""
}
