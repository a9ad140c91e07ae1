package git

import (
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
)

// CloneConfig describes what to clone
type CloneConfig struct {
	// URL is the repository URL
	URL string

	// Branch is the branch to clone; the remote HEAD when empty
	Branch string

	// Commit pins the snapshot to a specific commit on Branch
	Commit string

	// Auth enables HTTP basic authentication when set
	Auth *AuthConfig
}

// AuthConfig holds HTTP basic credentials
type AuthConfig struct {
	Username string
	Password string
}

// RepositoryInfo is a cloned repository pinned to one commit
type RepositoryInfo struct {
	Repository *git.Repository
	RemoteURL  string
	Branch     string

	// CommitHash is the commit every read is served from
	CommitHash plumbing.Hash

	storerFilesystem billy.Filesystem
	objectCache      cache.Object
}
