package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the name used for the sync metrics meter
	SyncMetricsMeterName = "github.com/jgchk/blog-sub001/sync"
)

// Article outcomes recorded by RecordArticles
const (
	OutcomeRendered = "rendered"
	OutcomeFailed   = "failed"
	OutcomeDeleted  = "deleted"
)

// SyncMetrics holds the OpenTelemetry instruments for sync operation metrics
type SyncMetrics struct {
	syncDuration  metric.Float64Histogram
	articles      metric.Int64Counter
	queued        metric.Int64Counter
	articlesTotal metric.Int64Gauge
	tagsTotal     metric.Int64Gauge
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	syncDuration, err := meter.Float64Histogram(
		"blog_publisher_sync_duration_seconds",
		metric.WithDescription("Duration of sync operations in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	articles, err := meter.Int64Counter(
		"blog_publisher_articles",
		metric.WithDescription("Articles processed by syncs, by outcome"),
		metric.WithUnit("{article}"),
	)
	if err != nil {
		return nil, err
	}

	queued, err := meter.Int64Counter(
		"blog_publisher_sync_requests",
		metric.WithDescription("Sync requests offered to the queue"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	articlesTotal, err := meter.Int64Gauge(
		"blog_publisher_published_articles",
		metric.WithDescription("Number of published articles after the last completed sync"),
		metric.WithUnit("{article}"),
	)
	if err != nil {
		return nil, err
	}

	tagsTotal, err := meter.Int64Gauge(
		"blog_publisher_tags",
		metric.WithDescription("Number of tags after the last completed sync"),
		metric.WithUnit("{tag}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		syncDuration:  syncDuration,
		articles:      articles,
		queued:        queued,
		articlesTotal: articlesTotal,
		tagsTotal:     tagsTotal,
	}, nil
}

// RecordSyncDuration records the duration of a sync operation
func (m *SyncMetrics) RecordSyncDuration(ctx context.Context, kind string, duration time.Duration, success bool) {
	if m == nil || m.syncDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("kind", kind),
		attribute.Bool("success", success),
	}

	m.syncDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordArticles adds count articles with the given outcome. Zero counts are skipped.
func (m *SyncMetrics) RecordArticles(ctx context.Context, outcome string, count int) {
	if m == nil || m.articles == nil || count <= 0 {
		return
	}

	m.articles.Add(ctx, int64(count), metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordQueued counts a sync request that was accepted into or rejected by the queue
func (m *SyncMetrics) RecordQueued(ctx context.Context, kind string, accepted bool) {
	if m == nil || m.queued == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("kind", kind),
		attribute.Bool("accepted", accepted),
	}

	m.queued.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordContent records the size of the published site
func (m *SyncMetrics) RecordContent(ctx context.Context, articles, tags int) {
	if m == nil || m.articlesTotal == nil || m.tagsTotal == nil {
		return
	}

	m.articlesTotal.Record(ctx, int64(articles))
	m.tagsTotal.Record(ctx, int64(tags))
}
