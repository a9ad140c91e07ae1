// Package admin provides the operator API for inspecting and driving syncs.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jgchk/blog-sub001/internal/api/common"
	"github.com/jgchk/blog-sub001/internal/logger"
	"github.com/jgchk/blog-sub001/internal/status"
	pkgsync "github.com/jgchk/blog-sub001/internal/sync"
	"github.com/jgchk/blog-sub001/internal/sync/coordinator"
	"github.com/jgchk/blog-sub001/internal/sync/tracker"
)

const (
	// DefaultStatusLimit is the number of syncs listed when no limit is given
	DefaultStatusLimit = 10
	// MaxStatusLimit caps the limit query parameter
	MaxStatusLimit = 50

	maxRequestBytes = 4 << 10
)

//go:generate mockgen -destination=mocks/mock_admin.go -package=mocks -source=routes.go Queue,Pipeline

// Queue accepts sync requests
type Queue interface {
	Enqueue(ctx context.Context, req pkgsync.Request) (string, error)
	Pending() int
}

// Pipeline exposes the state of the running sync
type Pipeline interface {
	IsSyncInProgress() bool
	Phase() pkgsync.Phase
	Abort() bool
}

// Option configures the admin routes
type Option func(*Routes)

// WithDefaultRef sets the ref synced by POST /sync when the body names none
func WithDefaultRef(ref string) Option {
	return func(r *Routes) {
		if ref != "" {
			r.defaultRef = ref
		}
	}
}

// WithClock overrides the clock used for retry identifiers
func WithClock(now func() time.Time) Option {
	return func(r *Routes) {
		r.now = now
	}
}

// Routes serves the admin API
type Routes struct {
	queue      Queue
	pipeline   Pipeline
	tracker    *tracker.Tracker
	defaultRef string
	now        func() time.Time
}

// NewRoutes creates the admin routes
func NewRoutes(queue Queue, pipeline Pipeline, tr *tracker.Tracker, opts ...Option) (*Routes, error) {
	if queue == nil {
		return nil, errors.New("queue is required")
	}
	if pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if tr == nil {
		return nil, errors.New("tracker is required")
	}

	r := &Routes{
		queue:      queue,
		pipeline:   pipeline,
		tracker:    tr,
		defaultRef: "main",
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Router creates the admin router
func Router(queue Queue, pipeline Pipeline, tr *tracker.Tracker, opts ...Option) (http.Handler, error) {
	routes, err := NewRoutes(queue, pipeline, tr, opts...)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Get("/health", routes.health)
	r.Get("/status", routes.listStatus)
	r.Get("/status/{id}", routes.getStatus)
	r.Post("/retry", routes.missingID)
	r.Post("/retry/", routes.missingID)
	r.Post("/retry/{id}", routes.retry)
	r.Post("/sync", routes.rebuild)
	r.Post("/abort", routes.abort)

	return r, nil
}

// listStatus handles GET /status
func (rr *Routes) listStatus(w http.ResponseWriter, r *http.Request) {
	limit := DefaultStatusLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			common.WriteErrorResponse(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, MaxStatusLimit)
	}

	common.WriteJSONResponse(w, StatusListResponse{
		Items: rr.tracker.RecentSyncs(limit),
		Total: rr.tracker.Total(),
	}, http.StatusOK)
}

// getStatus handles GET /status/{id}
func (rr *Routes) getStatus(w http.ResponseWriter, r *http.Request) {
	id, err := common.PathParam(r, "id")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	s, ok := rr.tracker.GetSync(id)
	if !ok {
		common.WriteErrorResponse(w, "Sync operation not found", http.StatusNotFound)
		return
	}
	common.WriteJSONResponse(w, s, http.StatusOK)
}

func (*Routes) missingID(w http.ResponseWriter, _ *http.Request) {
	common.WriteErrorResponse(w, "sync id is required", http.StatusBadRequest)
}

// retry handles POST /retry/{id}. A failed sync is retried as a fresh full
// sync of its commit.
func (rr *Routes) retry(w http.ResponseWriter, r *http.Request) {
	id, err := common.PathParam(r, "id")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	s, ok := rr.tracker.GetSync(id)
	if !ok {
		common.WriteErrorResponse(w, "Sync operation not found", http.StatusNotFound)
		return
	}
	if s.State != status.StateFailed {
		common.WriteErrorResponse(w,
			fmt.Sprintf("Only failed syncs can be retried; sync is %s", s.State), http.StatusConflict)
		return
	}

	ref := s.CommitHash
	if ref == "" {
		ref = rr.defaultRef
	}
	req := pkgsync.Request{
		SyncID:        pkgsync.NewRetryID(rr.now()),
		Kind:          pkgsync.KindFull,
		RepositoryRef: ref,
		CommitID:      s.CommitHash,
	}
	logger.Infof("Retrying failed sync '%s' as '%s'", id, req.SyncID)
	rr.enqueue(w, r, req)
}

// rebuild handles POST /sync
func (rr *Routes) rebuild(w http.ResponseWriter, r *http.Request) {
	var body SyncRequest
	if r.Body != nil {
		err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&body)
		if err != nil && !errors.Is(err, io.EOF) {
			common.WriteErrorResponse(w, "invalid JSON payload", http.StatusBadRequest)
			return
		}
	}

	ref := body.Ref
	if ref == "" {
		ref = rr.defaultRef
	}
	logger.Infof("Manual full sync of '%s' requested", ref)
	rr.enqueue(w, r, pkgsync.Request{Kind: pkgsync.KindFull, RepositoryRef: ref})
}

func (rr *Routes) enqueue(w http.ResponseWriter, r *http.Request, req pkgsync.Request) {
	id, err := rr.queue.Enqueue(r.Context(), req)
	switch {
	case errors.Is(err, coordinator.ErrQueueFull):
		common.WriteErrorResponse(w, "sync queue is full", http.StatusServiceUnavailable)
	case err != nil:
		logger.Errorf("Failed to queue sync: %v", err)
		common.WriteErrorResponse(w, "failed to queue sync", http.StatusInternalServerError)
	default:
		common.WriteJSONResponse(w, AcceptedResponse{Status: StatusAccepted, SyncID: id}, http.StatusAccepted)
	}
}

// abort handles POST /abort
func (rr *Routes) abort(w http.ResponseWriter, _ *http.Request) {
	phase := rr.pipeline.Phase()
	if !rr.pipeline.Abort() {
		common.WriteErrorResponse(w, "no sync is running", http.StatusConflict)
		return
	}
	logger.Warnf("Running sync aborted by operator in phase %s", phase)
	common.WriteJSONResponse(w, AbortResponse{Status: StatusAborting, Phase: string(phase)}, http.StatusAccepted)
}

// health handles GET /health
func (rr *Routes) health(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:              HealthHealthy,
		ConsecutiveFailures: rr.tracker.ConsecutiveFailures(),
		Components:          make(map[string]ComponentHealth, 3),
	}
	if rr.tracker.ShouldAlert() {
		resp.Status = HealthDegraded
	}

	pipeline := ComponentHealth{Status: "idle", Detail: string(rr.pipeline.Phase())}
	if rr.pipeline.IsSyncInProgress() {
		pipeline.Status = "syncing"
	}
	resp.Components["pipeline"] = pipeline
	resp.Components["queue"] = ComponentHealth{
		Status: "ok",
		Detail: fmt.Sprintf("%d pending", rr.queue.Pending()),
	}

	last := ComponentHealth{Status: "none"}
	if s, ok := rr.tracker.LastSync(); ok {
		last = ComponentHealth{Status: string(s.State), Detail: s.SyncID}
		resp.LastSyncAt = s.CompletedAt
	}
	resp.Components["lastSync"] = last

	common.WriteJSONResponse(w, resp, http.StatusOK)
}
