// Package sync publishes the blog's posts from the content repository to the
// publish store.
//
// # Core Types
//
//   - Orchestrator: runs the publish pipeline for one destination
//   - Request: an incremental (change set) or full sync of a repository ref
//   - Result: the immutable outcome of one run
//   - Error: a classified failure; per-article errors carry the article slug
//
// # Pipeline
//
// A run moves through the phases
//
//	INIT -> READING -> RENDERING -> UPLOADING -> INVALIDATING -> COMPLETE
//
// and ends in FAILED instead when an infrastructure error stops it:
//
//   - READING fetches the changed files one by one and the whole content tree,
//     parses every post and rebuilds the tag index and cross-links from the
//     complete article set
//   - RENDERING renders the affected articles on a bounded worker pool and
//     queues their colocated assets
//   - UPLOADING writes pages and assets, removes deleted and drafted posts and
//     regenerates every tag page together with tags/index.json
//   - INVALIDATING purges the CDN paths of everything that changed
//
// Each fetch, render, write and delete runs through the retry handler. A
// failure that outlives its retries fails only the article it belongs to; the
// remaining stages still run for every other article.
//
// # Concurrency
//
// An Orchestrator runs one sync at a time and rejects overlapping calls with
// ErrSyncInProgress. Requests are serialized by the coordinator subpackage,
// which queues webhook, retry and scheduled syncs in front of the orchestrator.
//
// Cancelling the context passed to Sync, or calling Abort, stops a run between
// retry attempts and finalizes it as failed.
package sync
