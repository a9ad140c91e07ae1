// Package git reads blog content out of a git repository held in memory.
package git

import (
	"context"
	"errors"
	"fmt"
	"path"
	"runtime"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/jgchk/blog-sub001/internal/logger"
)

const (
	maxCloneFiles = 10 * 1000
	maxCloneBytes = 200 * 1024 * 1024
)

// ErrFileNotFound is returned when a path is absent from the pinned commit
var ErrFileNotFound = errors.New("file not found in commit")

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks -source=client.go Client

// Client defines the interface for Git operations
type Client interface {
	// Clone clones a repository and pins it to the requested commit, or the branch head
	Clone(ctx context.Context, config *CloneConfig) (*RepositoryInfo, error)

	// GetFileContent retrieves the content of a file at the pinned commit
	GetFileContent(repoInfo *RepositoryInfo, path string) ([]byte, error)

	// ListFiles returns every file path below dir at the pinned commit
	ListFiles(repoInfo *RepositoryInfo, dir string) ([]string, error)

	// Cleanup releases the in-memory repository
	Cleanup(ctx context.Context, repoInfo *RepositoryInfo) error
}

// defaultGitClient implements Client using go-git
type defaultGitClient struct{}

// NewDefaultGitClient creates a new defaultGitClient
func NewDefaultGitClient() Client {
	return &defaultGitClient{}
}

// Clone performs a bare, in-memory clone. Files are read straight from the
// commit tree so no worktree is checked out.
func (*defaultGitClient) Clone(ctx context.Context, config *CloneConfig) (*RepositoryInfo, error) {
	if config == nil || config.URL == "" {
		return nil, fmt.Errorf("repository URL cannot be empty")
	}

	cloneOptions := &git.CloneOptions{
		URL:        config.URL,
		NoCheckout: true,
		Tags:       git.NoTags,
	}

	if config.Auth != nil && config.Auth.Username != "" {
		cloneOptions.Auth = &githttp.BasicAuth{
			Username: config.Auth.Username,
			Password: config.Auth.Password,
		}
		logger.Debugw("Using Git HTTP Basic authentication", "username", config.Auth.Username)
	}

	if config.Branch != "" {
		cloneOptions.ReferenceName = plumbing.NewBranchReferenceName(config.Branch)
		cloneOptions.SingleBranch = true
	}
	// A pinned commit may be behind the branch head, so only shallow-clone heads
	if config.Commit == "" {
		cloneOptions.Depth = 1
	}

	storerFs := NewLimitedFs(memfs.New(), maxCloneFiles, maxCloneBytes)
	storerCache := cache.NewObjectLRUDefault()
	storer := filesystem.NewStorage(storerFs, storerCache)

	repo, err := git.CloneContext(ctx, storer, nil, cloneOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to clone repository: %w", err)
	}

	repoInfo, err := NewRepositoryInfo(repo, config.Commit)
	if err != nil {
		return nil, err
	}
	repoInfo.RemoteURL = config.URL
	repoInfo.storerFilesystem = storerFs
	repoInfo.objectCache = storerCache
	if repoInfo.Branch == "" {
		repoInfo.Branch = config.Branch
	}

	return repoInfo, nil
}

// NewRepositoryInfo pins repo to commit, or to HEAD when commit is empty
func NewRepositoryInfo(repo *git.Repository, commit string) (*RepositoryInfo, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is nil")
	}

	info := &RepositoryInfo{Repository: repo}

	if commit == "" {
		ref, err := repo.Head()
		if err != nil {
			return nil, fmt.Errorf("failed to get HEAD reference: %w", err)
		}
		if ref.Name().IsBranch() {
			info.Branch = ref.Name().Short()
		}
		info.CommitHash = ref.Hash()
		return info, nil
	}

	hash, err := repo.ResolveRevision(plumbing.Revision(commit))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve commit %s: %w", commit, err)
	}
	info.CommitHash = *hash
	return info, nil
}

func commitTree(repoInfo *RepositoryInfo) (*object.Tree, error) {
	if repoInfo == nil || repoInfo.Repository == nil {
		return nil, fmt.Errorf("repository is nil")
	}

	commit, err := repoInfo.Repository.CommitObject(repoInfo.CommitHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit object: %w", err)
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}
	return tree, nil
}

// GetFileContent retrieves the content of a file at the pinned commit
func (*defaultGitClient) GetFileContent(repoInfo *RepositoryInfo, filePath string) ([]byte, error) {
	tree, err := commitTree(repoInfo)
	if err != nil {
		return nil, err
	}

	file, err := tree.File(strings.TrimPrefix(path.Clean("/"+filePath), "/"))
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, fmt.Errorf("%s: %w", filePath, ErrFileNotFound)
		}
		return nil, fmt.Errorf("failed to get file %s: %w", filePath, err)
	}

	content, err := file.Contents()
	if err != nil {
		return nil, fmt.Errorf("failed to read file contents: %w", err)
	}

	return []byte(content), nil
}

// ListFiles returns every file path below dir at the pinned commit, sorted.
// An empty dir lists the whole tree.
func (*defaultGitClient) ListFiles(repoInfo *RepositoryInfo, dir string) ([]string, error) {
	tree, err := commitTree(repoInfo)
	if err != nil {
		return nil, err
	}

	prefix := strings.Trim(path.Clean("/"+dir), "/")
	if prefix != "" {
		prefix += "/"
	}

	var paths []string
	err = tree.Files().ForEach(func(f *object.File) error {
		if strings.HasPrefix(f.Name, prefix) {
			paths = append(paths, f.Name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk tree: %w", err)
	}

	sort.Strings(paths)
	return paths, nil
}

// Cleanup releases the in-memory repository
func (*defaultGitClient) Cleanup(_ context.Context, repoInfo *RepositoryInfo) error {
	if repoInfo == nil || repoInfo.Repository == nil {
		return fmt.Errorf("repository is nil")
	}

	if repoInfo.objectCache != nil {
		logger.Debug("Clearing object cache")
		repoInfo.objectCache.Clear()
	}

	if repoInfo.storerFilesystem != nil {
		logger.Debug("Clearing storer filesystem")
		_ = util.RemoveAll(repoInfo.storerFilesystem, "/")
	}

	repoInfo.objectCache = nil
	repoInfo.storerFilesystem = nil
	repoInfo.Repository = nil

	runtime.GC()
	return nil
}
