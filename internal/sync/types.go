package sync

import (
	"slices"

	"github.com/jgchk/blog-sub001/internal/content"
)

// Kind selects how much of the repository a sync processes
type Kind string

const (
	// KindIncremental processes the files named by the request's change set
	KindIncremental Kind = "incremental"

	// KindFull reprocesses every post and removes published posts that no longer exist
	KindFull Kind = "full"
)

// ChangeSet lists repository paths touched by a push
type ChangeSet struct {
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Removed  []string `json:"removed"`
}

// Empty reports whether the change set names no paths
func (c *ChangeSet) Empty() bool {
	return c == nil || len(c.Added)+len(c.Modified)+len(c.Removed) == 0
}

// Filter returns the subset of paths below the content root. A path that is
// both removed and added or modified is treated as present.
func (c *ChangeSet) Filter(root string) (changed, removed []string) {
	if c == nil {
		return nil, nil
	}

	seen := make(map[string]bool)
	for _, p := range slices.Concat(c.Added, c.Modified) {
		if content.IsUnderRoot(root, p) && !seen[p] {
			seen[p] = true
			changed = append(changed, p)
		}
	}
	for _, p := range c.Removed {
		if content.IsUnderRoot(root, p) && !seen[p] {
			seen[p] = true
			removed = append(removed, p)
		}
	}
	return changed, removed
}

// Request asks the orchestrator to publish a repository state
type Request struct {
	Kind Kind `json:"kind"`

	// RepositoryRef is the commit, branch or tag the content is read at
	RepositoryRef string `json:"repositoryRef"`

	// Changes is required for incremental syncs and ignored for full syncs
	Changes *ChangeSet `json:"changes,omitempty"`

	// CommitID is recorded against the sync; it defaults to RepositoryRef
	CommitID string `json:"commitId,omitempty"`

	// Force renders every article even on an incremental sync
	Force bool `json:"force,omitempty"`

	// SyncID is assigned by the orchestrator when empty
	SyncID string `json:"syncId,omitempty"`
}

// Commit returns the hash the sync is keyed by
func (r Request) Commit() string {
	if r.CommitID != "" {
		return r.CommitID
	}
	return r.RepositoryRef
}

// ArticleFailure is one article that was not published by a sync
type ArticleFailure struct {
	Slug  string `json:"slug"`
	Error string `json:"error"`
}

// Result is the outcome of one sync. It is not modified once returned.
type Result struct {
	SyncID            string           `json:"syncId"`
	Success           bool             `json:"success"`
	ArticlesRendered  []string         `json:"articlesRendered"`
	ArticlesFailed    []ArticleFailure `json:"articlesFailed"`
	ArticlesDeleted   []string         `json:"articlesDeleted"`
	TagPagesGenerated int              `json:"tagPagesGenerated"`
	CacheInvalidated  bool             `json:"cacheInvalidated"`
	DurationMs        int64            `json:"durationMs"`
}

// Phase is a state of the publish pipeline
type Phase string

const (
	// PhaseInit is the state before a sync registers with the tracker
	PhaseInit Phase = "INIT"
	// PhaseReading fetches and parses content
	PhaseReading Phase = "READING"
	// PhaseRendering renders affected articles
	PhaseRendering Phase = "RENDERING"
	// PhaseUploading writes pages and assets and applies deletions
	PhaseUploading Phase = "UPLOADING"
	// PhaseInvalidating purges the CDN
	PhaseInvalidating Phase = "INVALIDATING"
	// PhaseComplete is the terminal state of a sync that ran every stage
	PhaseComplete Phase = "COMPLETE"
	// PhaseFailed is the terminal state of a sync stopped by an infrastructure error
	PhaseFailed Phase = "FAILED"
)

// Terminal reports whether no further transition follows
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseFailed
}
