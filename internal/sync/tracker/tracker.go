// Package tracker keeps the history of sync operations and the consecutive
// failure counter used for alerting.
package tracker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jgchk/blog-sub001/internal/logger"
	"github.com/jgchk/blog-sub001/internal/status"
)

// AlertThreshold is the number of back-to-back failed syncs that raises an alert
const AlertThreshold = 3

// InterruptedMessage is recorded on syncs found unfinished when the tracker is loaded
const InterruptedMessage = "interrupted"

// Option configures a Tracker
type Option func(*Tracker)

// WithPersistence saves a snapshot after every mutation
func WithPersistence(p status.Persistence) Option {
	return func(t *Tracker) {
		t.persistence = p
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// Tracker is an append-only registry of sync operations. All returned statuses
// are copies; callers cannot mutate tracked state.
type Tracker struct {
	mu                  sync.RWMutex
	syncs               map[string]*status.SyncStatus
	order               []string
	consecutiveFailures int

	persistence status.Persistence
	now         func() time.Time
}

// New creates an empty tracker
func New(opts ...Option) *Tracker {
	t := &Tracker{
		syncs: make(map[string]*status.SyncStatus),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Load restores the tracker from its persistence. Syncs left pending or in
// progress by a previous process are finalized as failed.
func (t *Tracker) Load(ctx context.Context) error {
	if t.persistence == nil {
		return nil
	}

	snapshot, err := t.persistence.Load(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.syncs = make(map[string]*status.SyncStatus, len(snapshot.Syncs))
	t.order = t.order[:0]
	t.consecutiveFailures = snapshot.ConsecutiveFailures

	recovered := 0
	for _, s := range snapshot.Syncs {
		if s == nil || s.SyncID == "" {
			continue
		}
		if _, dup := t.syncs[s.SyncID]; dup {
			continue
		}
		if !s.State.Final() {
			logger.Warnf("Sync '%s': previous run was interrupted (state=%s), marking as failed", s.SyncID, s.State)
			t.finalize(s, status.StateFailed)
			s.Message = InterruptedMessage
			s.Errors = append(s.Errors, status.SyncError{
				Kind:    status.ErrorKindUnknown,
				Message: "sync was interrupted before it finished",
			})
			recovered++
		}
		t.syncs[s.SyncID] = s
		t.order = append(t.order, s.SyncID)
	}

	logger.Infof("Loaded %d sync statuses (%d interrupted, %d consecutive failures)",
		len(t.order), recovered, t.consecutiveFailures)

	if recovered > 0 {
		t.persist(ctx)
	}
	return nil
}

// QueueSync records a sync that was accepted but has not started yet
func (t *Tracker) QueueSync(ctx context.Context, syncID, commitHash string) *status.SyncStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.syncs[syncID]; ok {
		return existing.Clone()
	}

	s := &status.SyncStatus{
		SyncID:              syncID,
		CommitHash:          commitHash,
		State:               status.StatePending,
		Errors:              []status.SyncError{},
		ConsecutiveFailures: t.consecutiveFailures,
		StartedAt:           t.now(),
	}
	t.insert(s)
	t.persist(ctx)
	return s.Clone()
}

// StartSync marks a sync as in progress, creating it if needed. The current
// consecutive failure count is stamped onto the status. A sync that already
// started is returned unchanged.
func (t *Tracker) StartSync(ctx context.Context, syncID, commitHash string) *status.SyncStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.syncs[syncID]
	switch {
	case !ok:
		s = &status.SyncStatus{
			SyncID: syncID,
			Errors: []status.SyncError{},
		}
		t.insert(s)
	case s.State != status.StatePending:
		return s.Clone()
	}

	if commitHash != "" {
		s.CommitHash = commitHash
	}
	s.State = status.StateInProgress
	s.ConsecutiveFailures = t.consecutiveFailures
	s.StartedAt = t.now()
	t.persist(ctx)
	return s.Clone()
}

// CompleteSync finalizes a sync as completed when failed is zero and as failed
// otherwise. Returns false if the sync is unknown.
func (t *Tracker) CompleteSync(
	ctx context.Context,
	syncID string,
	processed, failed int,
	errs []status.SyncError,
) (*status.SyncStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.syncs[syncID]
	if !ok {
		return nil, false
	}
	if s.State.Final() {
		logger.Warnf("Sync '%s' already finalized as %s, ignoring completion", syncID, s.State)
		return s.Clone(), true
	}

	s.ArticlesProcessed = processed
	s.ArticlesFailed = failed
	s.Errors = append(s.Errors, errs...)

	if failed == 0 {
		t.finalize(s, status.StateCompleted)
	} else {
		t.finalize(s, status.StateFailed)
	}
	t.persist(ctx)
	return s.Clone(), true
}

// FailSync finalizes a sync as failed because of an infrastructure error.
// Returns false if the sync is unknown.
func (t *Tracker) FailSync(ctx context.Context, syncID string, cause status.SyncError) (*status.SyncStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.syncs[syncID]
	if !ok {
		return nil, false
	}
	if s.State.Final() {
		logger.Warnf("Sync '%s' already finalized as %s, ignoring failure", syncID, s.State)
		return s.Clone(), true
	}

	s.Errors = append(s.Errors, cause)
	s.Message = cause.Message
	t.finalize(s, status.StateFailed)
	t.persist(ctx)
	return s.Clone(), true
}

// finalize sets the terminal state and updates the failure counter. Caller holds mu.
func (t *Tracker) finalize(s *status.SyncStatus, state status.State) {
	completedAt := t.now()
	s.State = state
	s.CompletedAt = &completedAt

	if state == status.StateCompleted {
		t.consecutiveFailures = 0
	} else {
		t.consecutiveFailures++
	}
}

// ShouldAlert reports whether the consecutive failure count reached AlertThreshold
func (t *Tracker) ShouldAlert() bool {
	return t.ConsecutiveFailures() >= AlertThreshold
}

// ConsecutiveFailures returns the number of back-to-back failed syncs
func (t *Tracker) ConsecutiveFailures() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.consecutiveFailures
}

// ResetFailures clears the consecutive failure counter
func (t *Tracker) ResetFailures(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.consecutiveFailures = 0
	t.persist(ctx)
}

// GetSync returns the status with the given ID
func (t *Tracker) GetSync(syncID string) (*status.SyncStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.syncs[syncID]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// RecentSyncs returns up to limit statuses, newest StartedAt first.
// A limit of zero or less returns every status.
func (t *Tracker) RecentSyncs(limit int) []*status.SyncStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]*status.SyncStatus, 0, len(t.order))
	for i := len(t.order) - 1; i >= 0; i-- {
		result = append(result, t.syncs[t.order[i]].Clone())
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// LastSync returns the most recently finalized status
func (t *Tracker) LastSync() (*status.SyncStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var last *status.SyncStatus
	for _, id := range t.order {
		s := t.syncs[id]
		if s.CompletedAt == nil {
			continue
		}
		if last == nil || !s.CompletedAt.Before(*last.CompletedAt) {
			last = s
		}
	}
	if last == nil {
		return nil, false
	}
	return last.Clone(), true
}

// Total returns the number of tracked syncs
func (t *Tracker) Total() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

// insert adds a new status. Caller holds mu.
func (t *Tracker) insert(s *status.SyncStatus) {
	t.syncs[s.SyncID] = s
	t.order = append(t.order, s.SyncID)
}

// persist saves a snapshot. Caller holds mu. Failures are logged; the
// in-memory state stays authoritative.
func (t *Tracker) persist(ctx context.Context) {
	if t.persistence == nil {
		return
	}

	snapshot := &status.Snapshot{
		ConsecutiveFailures: t.consecutiveFailures,
		Syncs:               make([]*status.SyncStatus, 0, len(t.order)),
	}
	for _, id := range t.order {
		snapshot.Syncs = append(snapshot.Syncs, t.syncs[id].Clone())
	}

	if err := t.persistence.Save(ctx, snapshot); err != nil {
		logger.Warnf("Failed to persist sync statuses: %v", err)
	}
}
