// Package webhook accepts repository push notifications and queues the
// incremental syncs they call for.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/jgchk/blog-sub001/internal/api/common"
	"github.com/jgchk/blog-sub001/internal/content"
	"github.com/jgchk/blog-sub001/internal/logger"
	"github.com/jgchk/blog-sub001/internal/otel"
	pkgsync "github.com/jgchk/blog-sub001/internal/sync"
	"github.com/jgchk/blog-sub001/internal/sync/coordinator"
)

const (
	// EventHeader names the event type of a delivery
	EventHeader = "X-GitHub-Event"

	// DefaultBranch is the branch whose pushes are published when none is configured
	DefaultBranch = "main"

	// DefaultMaxBodyBytes matches the largest payload the sender delivers
	DefaultMaxBodyBytes = 25 << 20

	eventPush = "push"
)

// Response statuses
const (
	StatusAccepted = "accepted"
	StatusIgnored  = "ignored"
)

//go:generate mockgen -destination=mocks/mock_queue.go -package=mocks -source=handler.go Queue

// Queue accepts sync requests without waiting for them to run
type Queue interface {
	Enqueue(ctx context.Context, req pkgsync.Request) (string, error)
}

// Config configures the webhook endpoint
type Config struct {
	// Secret is the shared HMAC key; required
	Secret []byte
	// Branch is the published branch, DefaultBranch when empty
	Branch string
	// ContentRoot is the repository directory holding the posts
	ContentRoot string
	// MaxBodyBytes bounds the payload size, DefaultMaxBodyBytes when zero
	MaxBodyBytes int64
}

// AcceptedResponse answers a push that queued a sync
type AcceptedResponse struct {
	SyncID string `json:"syncId"`
	Status string `json:"status"`
}

// IgnoredResponse answers a delivery that needs no sync
type IgnoredResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Routes handles webhook deliveries
type Routes struct {
	queue   Queue
	secret  []byte
	branch  string
	root    string
	maxBody int64
}

// NewRoutes creates the webhook routes
func NewRoutes(queue Queue, cfg Config) (*Routes, error) {
	if queue == nil {
		return nil, errors.New("queue is required")
	}
	if len(cfg.Secret) == 0 {
		return nil, errors.New("webhook secret is required")
	}

	routes := &Routes{
		queue:   queue,
		secret:  cfg.Secret,
		branch:  cfg.Branch,
		root:    content.CleanRoot(cfg.ContentRoot),
		maxBody: cfg.MaxBodyBytes,
	}
	if routes.branch == "" {
		routes.branch = DefaultBranch
	}
	if routes.maxBody <= 0 {
		routes.maxBody = DefaultMaxBodyBytes
	}
	return routes, nil
}

// Router creates the webhook router
func Router(queue Queue, cfg Config) (http.Handler, error) {
	routes, err := NewRoutes(queue, cfg)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Post("/", routes.handleDelivery)
	return r, nil
}

// handleDelivery verifies a delivery and queues an incremental sync for pushes
// to the published branch that touch the content root. Accepted pushes are
// answered before the sync runs; its outcome is reported by the admin API.
func (rt *Routes) handleDelivery(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, rt.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			common.WriteErrorResponse(w, "payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		rt.reject(w, http.StatusBadRequest, pkgsync.ErrorKindPayloadInvalid,
			fmt.Errorf("failed to read body: %w", err), "failed to read request body")
		return
	}

	if err := VerifySignature(rt.secret, body, r.Header.Get(SignatureHeader)); err != nil {
		rt.reject(w, http.StatusUnauthorized, pkgsync.ErrorKindSignatureInvalid, err, "invalid signature")
		return
	}

	if len(body) == 0 {
		rt.reject(w, http.StatusBadRequest, pkgsync.ErrorKindPayloadInvalid,
			errors.New("empty body"), "request body is required")
		return
	}

	event := r.Header.Get(EventHeader)
	trace.SpanFromContext(r.Context()).SetAttributes(otel.AttrWebhookEvent.String(event))
	if event != eventPush {
		logger.Debugf("Webhook: ignoring '%s' event", event)
		common.WriteJSONResponse(w, IgnoredResponse{Status: StatusIgnored, Reason: "event"}, http.StatusOK)
		return
	}

	var push PushEvent
	if err := json.Unmarshal(body, &push); err != nil {
		rt.reject(w, http.StatusBadRequest, pkgsync.ErrorKindPayloadInvalid,
			fmt.Errorf("failed to decode push event: %w", err), "invalid JSON payload")
		return
	}

	if push.Branch() != rt.branch {
		logger.Debugf("Webhook: ignoring push to '%s' of %s", push.Ref, push.Repository.FullName)
		common.WriteJSONResponse(w, IgnoredResponse{Status: StatusIgnored, Reason: "branch"}, http.StatusOK)
		return
	}

	changes := push.ChangeSet()
	changed, removed := changes.Filter(rt.root)
	if len(changed)+len(removed) == 0 {
		logger.Debugf("Webhook: push %s touches nothing under '%s'", push.HeadCommit(), rt.root)
		common.WriteJSONResponse(w, IgnoredResponse{Status: StatusIgnored, Reason: "no content changes"}, http.StatusOK)
		return
	}

	ref := push.HeadCommit()
	if ref == "" {
		ref = rt.branch
	}
	syncID, err := rt.queue.Enqueue(r.Context(), pkgsync.Request{
		Kind:          pkgsync.KindIncremental,
		RepositoryRef: ref,
		CommitID:      push.HeadCommit(),
		Changes:       changes,
	})
	if err != nil {
		if errors.Is(err, coordinator.ErrQueueFull) {
			common.WriteErrorResponse(w, coordinator.ErrQueueFull.Error(), http.StatusServiceUnavailable)
			return
		}
		logger.Errorf("Webhook: failed to queue sync for %s: %v", ref, err)
		common.WriteErrorResponse(w, "failed to queue sync", http.StatusInternalServerError)
		return
	}

	logger.Infof("Webhook: push %s of %s queued as sync '%s' (%d changed, %d removed)",
		ref, push.Repository.FullName, syncID, len(changed), len(removed))
	common.WriteJSONResponse(w, AcceptedResponse{SyncID: syncID, Status: StatusAccepted}, http.StatusOK)
}

// reject logs a refused delivery and writes the error response
func (*Routes) reject(w http.ResponseWriter, statusCode int, kind pkgsync.ErrorKind, err error, message string) {
	logger.Warnf("Webhook: rejected delivery: %v", &pkgsync.Error{Kind: kind, Err: err})
	common.WriteErrorResponse(w, message, statusCode)
}
