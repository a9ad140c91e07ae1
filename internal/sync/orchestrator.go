package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/jgchk/blog-sub001/internal/cdn"
	"github.com/jgchk/blog-sub001/internal/content"
	"github.com/jgchk/blog-sub001/internal/logger"
	"github.com/jgchk/blog-sub001/internal/notify"
	"github.com/jgchk/blog-sub001/internal/otel"
	"github.com/jgchk/blog-sub001/internal/retry"
	"github.com/jgchk/blog-sub001/internal/sources"
	"github.com/jgchk/blog-sub001/internal/status"
	"github.com/jgchk/blog-sub001/internal/storage"
	"github.com/jgchk/blog-sub001/internal/sync/tracker"
	"github.com/jgchk/blog-sub001/internal/telemetry"
)

// DefaultWorkers is the number of articles processed concurrently within a sync
const DefaultWorkers = 4

//go:generate mockgen -destination=mocks/mock_orchestrator.go -package=mocks -source=orchestrator.go Parser,Renderer

// Parser turns a post file into an article
type Parser interface {
	Parse(file content.File) (content.Article, error)
}

// Renderer produces the published HTML pages
type Renderer interface {
	RenderArticle(article content.Article, links []content.CrossLink) ([]byte, error)
	RenderTagPage(tag content.TagWithStats, articles []content.Article) ([]byte, error)
}

// Dependencies are the collaborators of an Orchestrator. Fetcher, Parser,
// Renderer and Storage are required; everything else has a default.
type Dependencies struct {
	Fetcher  sources.ContentFetcher
	Parser   Parser
	Renderer Renderer
	Storage  storage.Storage

	// Notifier defaults to logging notifications
	Notifier notify.Notifier
	// Invalidator defaults to no CDN
	Invalidator cdn.Invalidator
	// Tracker defaults to an in-memory tracker
	Tracker *tracker.Tracker
	// Retry defaults to retry.DefaultOptions
	Retry *retry.Handler

	// ContentRoot is the repository directory holding the posts
	ContentRoot string
	// Workers bounds per-article parallelism, DefaultWorkers when zero
	Workers int

	Metrics *telemetry.SyncMetrics
	Tracer  trace.Tracer
}

// Orchestrator runs the publish pipeline. At most one sync runs at a time;
// callers serialize requests and receive ErrSyncInProgress otherwise.
type Orchestrator struct {
	fetcher     sources.ContentFetcher
	parser      Parser
	renderer    Renderer
	storage     storage.Storage
	notifier    notify.Notifier
	invalidator cdn.Invalidator
	tracker     *tracker.Tracker
	retry       *retry.Handler
	contentRoot string
	workers     int
	metrics     *telemetry.SyncMetrics
	tracer      trace.Tracer

	running atomic.Bool
	phase   atomic.Value
	cancel  atomic.Pointer[context.CancelFunc]
}

// New creates an orchestrator from its dependencies
func New(deps Dependencies) (*Orchestrator, error) {
	var errs []error
	if deps.Fetcher == nil {
		errs = append(errs, errors.New("fetcher is required"))
	}
	if deps.Parser == nil {
		errs = append(errs, errors.New("parser is required"))
	}
	if deps.Renderer == nil {
		errs = append(errs, errors.New("renderer is required"))
	}
	if deps.Storage == nil {
		errs = append(errs, errors.New("storage is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid orchestrator dependencies: %w", err)
	}

	o := &Orchestrator{
		fetcher:     deps.Fetcher,
		parser:      deps.Parser,
		renderer:    deps.Renderer,
		storage:     deps.Storage,
		notifier:    deps.Notifier,
		invalidator: deps.Invalidator,
		tracker:     deps.Tracker,
		retry:       deps.Retry,
		contentRoot: content.CleanRoot(deps.ContentRoot),
		workers:     deps.Workers,
		metrics:     deps.Metrics,
		tracer:      deps.Tracer,
	}
	if o.notifier == nil {
		o.notifier = notify.NewLogNotifier()
	}
	if o.invalidator == nil {
		o.invalidator = cdn.NoopInvalidator{}
	}
	if o.tracker == nil {
		o.tracker = tracker.New()
	}
	if o.retry == nil {
		o.retry = retry.New(retry.DefaultOptions())
	}
	if o.workers <= 0 {
		o.workers = DefaultWorkers
	}
	o.phase.Store(PhaseInit)
	return o, nil
}

// NewSyncID returns a fresh sync identifier
func NewSyncID() string {
	return "sync-" + uuid.NewString()
}

// NewRetryID returns the identifier of a sync retrying an earlier one
func NewRetryID(now time.Time) string {
	return "retry-" + strconv.FormatInt(now.UnixMilli(), 10)
}

// Tracker returns the tracker syncs are recorded in
func (o *Orchestrator) Tracker() *tracker.Tracker {
	return o.tracker
}

// Phase returns the state of the current sync, or of the last one when idle
func (o *Orchestrator) Phase() Phase {
	p, _ := o.phase.Load().(Phase)
	return p
}

// IsSyncInProgress reports whether a sync is running
func (o *Orchestrator) IsSyncInProgress() bool {
	return o.running.Load()
}

// Abort cancels the running sync. Retries stop before their next attempt; an
// attempt already running is not interrupted. Returns false when idle.
func (o *Orchestrator) Abort() bool {
	cancel := o.cancel.Load()
	if cancel == nil {
		return false
	}
	(*cancel)()
	return true
}

func (o *Orchestrator) setPhase(syncID string, p Phase) {
	prev := o.Phase()
	o.phase.Store(p)
	logger.Debugf("Sync '%s': %s -> %s", syncID, prev, p)
}

// Sync runs one publish. The returned Result is always non-nil. A run stopped
// by an infrastructure error returns the error alongside an unsuccessful
// Result; article level failures are reported in the Result only.
func (o *Orchestrator) Sync(ctx context.Context, req Request) (*Result, error) {
	if req.SyncID == "" {
		req.SyncID = NewSyncID()
	}
	if req.Kind == "" {
		req.Kind = KindIncremental
	}

	if !o.running.CompareAndSwap(false, true) {
		o.rejectBusy(ctx, req)
		return newRun(o, req).result(false), ErrSyncInProgress
	}
	defer o.running.Store(false)

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel.Store(&cancel)
	defer func() {
		o.cancel.Store(nil)
		cancel()
	}()

	runCtx, span := otel.StartSpan(runCtx, o.tracer, "sync.Sync",
		trace.WithAttributes(
			otel.AttrSyncID.String(req.SyncID),
			otel.AttrSyncKind.String(string(req.Kind)),
			otel.AttrCommit.String(req.Commit()),
		))
	defer span.End()

	r := newRun(o, req)
	result, err := r.execute(runCtx)
	span.SetAttributes(
		otel.AttrArticlesRendered.Int(len(result.ArticlesRendered)),
		otel.AttrArticlesFailed.Int(len(result.ArticlesFailed)),
		otel.AttrArticlesDeleted.Int(len(result.ArticlesDeleted)),
	)
	otel.RecordError(span, err)

	metricsCtx := context.WithoutCancel(runCtx)
	o.metrics.RecordSyncDuration(metricsCtx, string(req.Kind), time.Since(r.started), result.Success)
	o.metrics.RecordArticles(metricsCtx, telemetry.OutcomeRendered, len(result.ArticlesRendered))
	o.metrics.RecordArticles(metricsCtx, telemetry.OutcomeFailed, len(result.ArticlesFailed))
	o.metrics.RecordArticles(metricsCtx, telemetry.OutcomeDeleted, len(result.ArticlesDeleted))

	return result, err
}

// rejectBusy finalizes a pre-registered sync that could not take the lock
func (o *Orchestrator) rejectBusy(ctx context.Context, req Request) {
	logger.Warnf("Sync '%s' rejected: %v", req.SyncID, ErrSyncInProgress)

	cause := statusError(&Error{Kind: ErrorKindInternal, Err: ErrSyncInProgress})
	if _, ok := o.tracker.FailSync(ctx, req.SyncID, cause); !ok {
		return
	}
	o.send(ctx, notify.Notification{
		Subject:  fmt.Sprintf("Blog sync %s rejected", req.SyncID),
		Body:     fmt.Sprintf("Sync %s for commit %s was not started: %v", req.SyncID, req.Commit(), ErrSyncInProgress),
		Severity: notify.SeverityError,
		Metadata: map[string]string{"syncId": req.SyncID, "commit": req.Commit()},
	})
}

// send delivers a notification; failures are logged and dropped
func (o *Orchestrator) send(ctx context.Context, n notify.Notification) {
	if err := o.notifier.Send(ctx, n); err != nil {
		logger.Warnf("Failed to send notification '%s': %v", n.Subject,
			&Error{Kind: ErrorKindNotification, Err: err})
	}
}

// parallel calls fn for every index in [0, n) on at most o.workers goroutines
func (o *Orchestrator) parallel(n int, fn func(i int)) {
	var g errgroup.Group
	g.SetLimit(o.workers)
	for i := range n {
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}

// failedStatus reports whether the tracked sync ended failed
func failedStatus(s *status.SyncStatus) bool {
	return s != nil && s.State == status.StateFailed
}
