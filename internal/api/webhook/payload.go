package webhook

import (
	"slices"
	"strings"

	pkgsync "github.com/jgchk/blog-sub001/internal/sync"
)

const branchRefPrefix = "refs/heads/"

// PushEvent is the subset of a push event payload the publisher reads
type PushEvent struct {
	Ref        string       `json:"ref"`
	After      string       `json:"after"`
	Commits    []PushCommit `json:"commits"`
	Repository Repository   `json:"repository"`
}

// PushCommit lists the paths one commit touched
type PushCommit struct {
	ID       string   `json:"id"`
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Removed  []string `json:"removed"`
}

// Repository identifies the pushed repository
type Repository struct {
	FullName string `json:"full_name"`
}

// Branch returns the pushed branch name, or "" when the ref is not a branch
func (e *PushEvent) Branch() string {
	if !strings.HasPrefix(e.Ref, branchRefPrefix) {
		return ""
	}
	return strings.TrimPrefix(e.Ref, branchRefPrefix)
}

// HeadCommit returns the commit the push moved the branch to
func (e *PushEvent) HeadCommit() string {
	if e.After != "" {
		return e.After
	}
	if n := len(e.Commits); n > 0 {
		return e.Commits[n-1].ID
	}
	return ""
}

// ChangeSet folds the commits, oldest first, into the net set of touched
// paths. A path added after being removed counts as added and the reverse
// as removed; a path added and modified within the push counts as added.
func (e *PushEvent) ChangeSet() *pkgsync.ChangeSet {
	const (
		added = iota + 1
		modified
		removed
	)

	state := make(map[string]int)
	for _, c := range e.Commits {
		for _, p := range c.Added {
			state[p] = added
		}
		for _, p := range c.Modified {
			if state[p] != added {
				state[p] = modified
			}
		}
		for _, p := range c.Removed {
			state[p] = removed
		}
	}

	cs := &pkgsync.ChangeSet{
		Added:    []string{},
		Modified: []string{},
		Removed:  []string{},
	}
	for p, s := range state {
		switch s {
		case added:
			cs.Added = append(cs.Added, p)
		case modified:
			cs.Modified = append(cs.Modified, p)
		case removed:
			cs.Removed = append(cs.Removed, p)
		}
	}
	slices.Sort(cs.Added)
	slices.Sort(cs.Modified)
	slices.Sort(cs.Removed)
	return cs
}
