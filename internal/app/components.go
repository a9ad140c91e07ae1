package app

import (
	"github.com/jgchk/blog-sub001/internal/storage"
	pkgsync "github.com/jgchk/blog-sub001/internal/sync"
	"github.com/jgchk/blog-sub001/internal/sync/coordinator"
	"github.com/jgchk/blog-sub001/internal/sync/tracker"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// SyncCoordinator queues syncs and runs them one at a time
	SyncCoordinator coordinator.Coordinator

	// Orchestrator runs the publish pipeline
	Orchestrator *pkgsync.Orchestrator

	// Tracker records the status of every sync
	Tracker *tracker.Tracker

	// Storage holds the published site
	Storage storage.Storage
}
