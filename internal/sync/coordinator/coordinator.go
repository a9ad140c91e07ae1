package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jgchk/blog-sub001/internal/logger"
	"github.com/jgchk/blog-sub001/internal/status"
	pkgsync "github.com/jgchk/blog-sub001/internal/sync"
	"github.com/jgchk/blog-sub001/internal/sync/tracker"
	"github.com/jgchk/blog-sub001/internal/telemetry"
)

// DefaultQueueSize is the number of syncs that may wait behind the running one
const DefaultQueueSize = 16

// ErrQueueFull is returned by Enqueue when no more syncs can wait
var ErrQueueFull = errors.New("sync queue is full")

//go:generate mockgen -destination=mocks/mock_runner.go -package=mocks -source=coordinator.go Runner

// Runner executes one sync. *pkgsync.Orchestrator implements it.
type Runner interface {
	Sync(ctx context.Context, req pkgsync.Request) (*pkgsync.Result, error)
}

// Coordinator serializes sync requests in front of a Runner and schedules
// periodic full rebuilds
type Coordinator interface {
	// Start runs queued syncs one at a time.
	// Blocks until the context is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop cancels the running sync, fails the queued ones and waits for Start to return
	Stop() error

	// Enqueue accepts a request and returns its sync ID without waiting for the sync
	Enqueue(ctx context.Context, req pkgsync.Request) (string, error)

	// Pending returns the number of syncs waiting to run
	Pending() int
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	runner  Runner
	tracker *tracker.Tracker
	queue   chan pkgsync.Request

	// Scheduled full syncs, disabled when interval is zero
	interval    time.Duration
	scheduleRef string

	// Lifecycle management
	mu         sync.Mutex
	cancelFunc context.CancelFunc
	done       chan struct{}

	syncMetrics *telemetry.SyncMetrics
}

// New creates a new coordinator. Queued syncs are registered with the tracker.
func New(runner Runner, t *tracker.Tracker, opts ...Option) Coordinator {
	cfg := options{queueSize: DefaultQueueSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.queueSize <= 0 {
		cfg.queueSize = DefaultQueueSize
	}

	return &defaultCoordinator{
		runner:      runner,
		tracker:     t,
		queue:       make(chan pkgsync.Request, cfg.queueSize),
		interval:    cfg.interval,
		scheduleRef: cfg.scheduleRef,
		done:        make(chan struct{}),
		syncMetrics: cfg.syncMetrics,
	}
}

// Start begins processing queued syncs
func (c *defaultCoordinator) Start(ctx context.Context) error {
	coordCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.cancelFunc != nil {
		c.mu.Unlock()
		cancel()
		return errors.New("coordinator already started")
	}
	c.cancelFunc = cancel
	c.mu.Unlock()

	logger.Infof("Starting sync coordinator (queue size %d, schedule %s)", cap(c.queue), c.scheduleDescription())
	defer func() {
		c.drain(context.WithoutCancel(ctx))
		close(c.done)
		logger.Info("Sync coordinator shutting down")
	}()

	// A nil channel never fires, so the loop only drains the queue without a schedule
	var tick <-chan time.Time
	var timer *time.Timer
	if c.interval > 0 {
		// Initial rebuild so the published site matches the repository at startup
		c.enqueueScheduled(coordCtx)

		timer = time.NewTimer(nextInterval(c.interval))
		defer timer.Stop()
		tick = timer.C
	}

	for {
		select {
		case <-coordCtx.Done():
			logger.Info("Sync coordinator stopping")
			return nil
		case req := <-c.queue:
			c.performSync(coordCtx, req)
		case <-tick:
			if len(c.queue) == 0 {
				c.enqueueScheduled(coordCtx)
			}
			timer.Reset(nextInterval(c.interval))
		}
	}
}

// Stop gracefully stops the coordinator
func (c *defaultCoordinator) Stop() error {
	c.mu.Lock()
	cancel := c.cancelFunc
	c.mu.Unlock()

	if cancel != nil {
		logger.Info("Stopping sync coordinator")
		cancel()
		<-c.done
	}
	return nil
}

// Enqueue adds a request to the queue. Missing sync IDs and kinds are filled in.
func (c *defaultCoordinator) Enqueue(ctx context.Context, req pkgsync.Request) (string, error) {
	if req.SyncID == "" {
		req.SyncID = pkgsync.NewSyncID()
	}
	if req.Kind == "" {
		req.Kind = pkgsync.KindIncremental
	}

	select {
	case c.queue <- req:
	default:
		c.syncMetrics.RecordQueued(ctx, string(req.Kind), false)
		logger.Warnf("Sync '%s' rejected: %v (%d waiting)", req.SyncID, ErrQueueFull, len(c.queue))
		return "", ErrQueueFull
	}

	// The worker may already have started the sync; QueueSync leaves it untouched then
	c.tracker.QueueSync(ctx, req.SyncID, req.Commit())
	c.syncMetrics.RecordQueued(ctx, string(req.Kind), true)
	logger.Infof("Sync '%s': queued %s sync of '%s'", req.SyncID, req.Kind, req.RepositoryRef)
	return req.SyncID, nil
}

// Pending returns the number of queued syncs
func (c *defaultCoordinator) Pending() int {
	return len(c.queue)
}

// enqueueScheduled queues a full rebuild of the scheduled ref
func (c *defaultCoordinator) enqueueScheduled(ctx context.Context) {
	id, err := c.Enqueue(ctx, pkgsync.Request{
		Kind:          pkgsync.KindFull,
		RepositoryRef: c.scheduleRef,
	})
	if err != nil {
		logger.Warnf("Scheduled full sync skipped: %v", err)
		return
	}
	logger.Debugf("Sync '%s': scheduled full sync queued", id)
}

// drain fails every sync still waiting when the coordinator stops
func (c *defaultCoordinator) drain(ctx context.Context) {
	for {
		select {
		case req := <-c.queue:
			cause := status.SyncError{
				Kind:    status.ErrorKindUnknown,
				Message: "coordinator stopped before the sync started",
			}
			if _, ok := c.tracker.FailSync(ctx, req.SyncID, cause); ok {
				logger.Warnf("Sync '%s': %s", req.SyncID, cause.Message)
			}
		default:
			return
		}
	}
}

func (c *defaultCoordinator) scheduleDescription() string {
	if c.interval <= 0 {
		return "disabled"
	}
	return fmt.Sprintf("full sync of '%s' every %s", c.scheduleRef, c.interval)
}
