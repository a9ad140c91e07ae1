package coordinator

import (
	"math/rand/v2"
	"time"

	"github.com/jgchk/blog-sub001/internal/telemetry"
)

// maxJitter caps the random offset applied to the schedule interval
const maxJitter = 30 * time.Second

type options struct {
	queueSize   int
	interval    time.Duration
	scheduleRef string
	syncMetrics *telemetry.SyncMetrics
}

// Option is a function that configures the coordinator
type Option func(*options)

// WithQueueSize sets how many syncs may wait behind the running one
func WithQueueSize(size int) Option {
	return func(o *options) {
		o.queueSize = size
	}
}

// WithSchedule enables a full sync of ref at startup and then every interval.
// A scheduled sync is skipped while other syncs are queued.
func WithSchedule(interval time.Duration, ref string) Option {
	return func(o *options) {
		o.interval = interval
		o.scheduleRef = ref
	}
}

// WithSyncMetrics sets the sync metrics for the coordinator
func WithSyncMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(o *options) {
		o.syncMetrics = metrics
	}
}

// nextInterval returns interval with a random jitter of up to a quarter of the
// interval, capped at maxJitter, in either direction
func nextInterval(interval time.Duration) time.Duration {
	jitter := min(interval/4, maxJitter)
	if jitter <= 0 {
		return interval
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for schedule jitter
	offset := time.Duration(rand.Int64N(int64(2*jitter))) - jitter
	return interval + offset
}
