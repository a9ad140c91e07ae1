// Package gittest builds in-memory git repositories for tests.
package gittest

import (
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/require"
)

// Repo is an in-memory repository with a worktree
type Repo struct {
	Repository *git.Repository
	fs         billy.Filesystem
	commits    int
}

// New initializes an empty repository
func New(t *testing.T) *Repo {
	t.Helper()

	fs := memfs.New()
	repo, err := git.Init(memory.NewStorage(), fs)
	require.NoError(t, err)

	return &Repo{Repository: repo, fs: fs}
}

// Commit writes files, removes the given paths and commits the result
func (r *Repo) Commit(t *testing.T, files map[string]string, removed ...string) plumbing.Hash {
	t.Helper()

	wt, err := r.Repository.Worktree()
	require.NoError(t, err)

	for name, body := range files {
		require.NoError(t, util.WriteFile(r.fs, name, []byte(body), 0644))
		_, err := wt.Add(name)
		require.NoError(t, err)
	}
	for _, name := range removed {
		_, err := wt.Remove(name)
		require.NoError(t, err)
	}

	r.commits++
	hash, err := wt.Commit("commit", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "Test Author",
			Email: "author@example.com",
			When:  time.Date(2024, 1, 1, 0, r.commits, 0, 0, time.UTC),
		},
	})
	require.NoError(t, err)
	return hash
}
