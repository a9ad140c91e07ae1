package admin

import (
	"time"

	"github.com/jgchk/blog-sub001/internal/status"
)

const (
	// HealthHealthy is reported while syncs succeed
	HealthHealthy = "healthy"
	// HealthDegraded is reported once consecutive failures reach the alert threshold
	HealthDegraded = "degraded"

	// StatusAccepted is the status of a queued retry or rebuild
	StatusAccepted = "accepted"
	// StatusAborting is the status of an abort request for a running sync
	StatusAborting = "aborting"
)

// StatusListResponse is the body of GET /status
type StatusListResponse struct {
	Items []*status.SyncStatus `json:"items"`
	Total int                  `json:"total"`
}

// AcceptedResponse is the body of an accepted retry or rebuild
type AcceptedResponse struct {
	Status string `json:"status"`
	SyncID string `json:"syncId"`
}

// AbortResponse is the body of an accepted abort
type AbortResponse struct {
	Status string `json:"status"`
	Phase  string `json:"phase"`
}

// SyncRequest is the optional body of POST /sync
type SyncRequest struct {
	Ref string `json:"ref,omitempty"`
}

// ComponentHealth describes one part of the publisher
type ComponentHealth struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status              string                     `json:"status"`
	ConsecutiveFailures int                        `json:"consecutiveFailures"`
	LastSyncAt          *time.Time                 `json:"lastSyncAt"`
	Components          map[string]ComponentHealth `json:"components"`
}
