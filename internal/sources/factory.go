package sources

import (
	"fmt"

	"github.com/jgchk/blog-sub001/internal/config"
	"github.com/jgchk/blog-sub001/internal/git"
)

// NewFetcher creates the content fetcher for the configured repository type
func NewFetcher(cfg *config.RepositoryConfig) (ContentFetcher, error) {
	switch cfg.GetType() {
	case config.RepositoryTypeGit:
		clone := git.CloneConfig{
			URL:    cfg.URL,
			Branch: cfg.GetBranch(),
		}
		if cfg.Auth != nil {
			password, err := cfg.Auth.GetPassword()
			if err != nil {
				return nil, err
			}
			clone.Auth = &git.AuthConfig{Username: cfg.Auth.Username, Password: password}
		}
		return NewGitFetcher(git.NewDefaultGitClient(), clone, cfg.GetContentRoot()), nil
	case config.RepositoryTypeFilesystem:
		return NewFilesystemFetcher(cfg.Path, cfg.GetContentRoot()), nil
	default:
		return nil, fmt.Errorf("unsupported repository type: %s", cfg.Type)
	}
}
