// Package coordinator queues sync requests in front of the publish pipeline.
//
// The orchestrator in the parent package runs a single sync at a time and
// rejects overlapping calls. The coordinator is the caller that makes this
// safe: webhook pushes, admin retries, manual rebuilds and scheduled syncs are
// all enqueued here and executed in arrival order by one worker goroutine.
//
// # Queue
//
// Enqueue never blocks. It assigns the sync ID, registers the sync as pending
// with the tracker and returns the ID immediately, so an HTTP handler can
// answer before the sync runs. When the queue is full Enqueue returns
// ErrQueueFull and nothing is recorded.
//
// # Schedule
//
// With WithSchedule the coordinator queues a full sync at startup and then on
// a jittered interval, skipping the tick while other syncs are waiting.
//
// # Usage Example
//
//	coord := coordinator.New(orchestrator, orchestrator.Tracker(),
//	    coordinator.WithSchedule(time.Hour, "main"),
//	)
//	go func() {
//	    if err := coord.Start(ctx); err != nil {
//	        logger.Errorf("coordinator failed: %v", err)
//	    }
//	}()
//	defer coord.Stop()
//
//	syncID, err := coord.Enqueue(ctx, sync.Request{RepositoryRef: "main", Changes: changes})
//
// # Shutdown
//
// Stop cancels the context of the running sync, which the orchestrator
// finalizes as failed between retry attempts, then fails every sync still in
// the queue and waits for Start to return.
package coordinator
