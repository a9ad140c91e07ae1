package status

import "time"

// State is the lifecycle state of a tracked sync operation
type State string

const (
	// StatePending means the sync was accepted but has not started
	StatePending State = "pending"

	// StateInProgress means the sync is currently running
	StateInProgress State = "in_progress"

	// StateCompleted means every article was published
	StateCompleted State = "completed"

	// StateFailed means at least one article failed or the run aborted
	StateFailed State = "failed"
)

// Final reports whether the state can no longer change
func (s State) Final() bool {
	return s == StateCompleted || s == StateFailed
}

// ErrorKind classifies a recorded sync error
type ErrorKind string

const (
	// ErrorKindParse is a per-article front matter or validation failure
	ErrorKindParse ErrorKind = "parse"

	// ErrorKindRender is a per-article rendering failure
	ErrorKindRender ErrorKind = "render"

	// ErrorKindStorage is a failed write or delete against the publish store
	ErrorKindStorage ErrorKind = "storage"

	// ErrorKindFetch is a failure to read content from the repository
	ErrorKindFetch ErrorKind = "fetch"

	// ErrorKindInvalidation is a failed CDN invalidation
	ErrorKindInvalidation ErrorKind = "invalidation"

	// ErrorKindUnknown is anything else, including infrastructure failures
	ErrorKindUnknown ErrorKind = "unknown"
)

// SyncError is one error recorded against a sync
type SyncError struct {
	// ArticleSlug is empty for errors that are not tied to an article
	ArticleSlug string    `json:"articleSlug,omitempty"`
	Kind        ErrorKind `json:"kind"`
	Message     string    `json:"message"`
	Stack       string    `json:"stack,omitempty"`
}

// SyncStatus is the tracked record of one sync operation
type SyncStatus struct {
	SyncID     string `json:"syncId"`
	CommitHash string `json:"commitHash"`
	State      State  `json:"state"`

	// Message carries a short human readable summary of the outcome
	Message string `json:"message,omitempty"`

	ArticlesProcessed int         `json:"articlesProcessed"`
	ArticlesFailed    int         `json:"articlesFailed"`
	Errors            []SyncError `json:"errors"`

	// ConsecutiveFailures is the tracker's failure count when the sync started
	ConsecutiveFailures int `json:"consecutiveFailures"`

	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt"`
}

// Clone returns a deep copy of the status
func (s *SyncStatus) Clone() *SyncStatus {
	if s == nil {
		return nil
	}
	c := *s
	c.Errors = append([]SyncError{}, s.Errors...)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Snapshot is the persisted form of the tracker
type Snapshot struct {
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	Syncs               []*SyncStatus `json:"syncs"`
}
