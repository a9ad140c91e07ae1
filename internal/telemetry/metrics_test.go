package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// collectSyncMetrics returns the instruments recorded under the sync meter, keyed by name
func collectSyncMetrics(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := make(map[string]metricdata.Metrics)
	for _, scope := range rm.ScopeMetrics {
		if scope.Scope.Name != SyncMetricsMeterName {
			continue
		}
		for _, m := range scope.Metrics {
			found[m.Name] = m
		}
	}
	return found
}

func newTestSyncMetrics(t *testing.T) (*SyncMetrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	metrics, err := NewSyncMetrics(mp)
	require.NoError(t, err)
	require.NotNil(t, metrics)
	return metrics, reader
}

func TestNewSyncMetrics(t *testing.T) {
	t.Parallel()

	t.Run("returns nil when provider is nil", func(t *testing.T) {
		t.Parallel()

		metrics, err := NewSyncMetrics(nil)
		require.NoError(t, err)
		assert.Nil(t, metrics)
	})

	t.Run("creates metrics with SDK provider", func(t *testing.T) {
		t.Parallel()

		metrics, _ := newTestSyncMetrics(t)
		assert.NotNil(t, metrics.syncDuration)
		assert.NotNil(t, metrics.articles)
		assert.NotNil(t, metrics.queued)
		assert.NotNil(t, metrics.articlesTotal)
		assert.NotNil(t, metrics.tagsTotal)
	})
}

func TestSyncMetrics_NilSafety(t *testing.T) {
	t.Parallel()

	var metrics *SyncMetrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		metrics.RecordSyncDuration(ctx, "full", 5*time.Second, true)
		metrics.RecordArticles(ctx, OutcomeRendered, 3)
		metrics.RecordQueued(ctx, "incremental", true)
		metrics.RecordContent(ctx, 10, 4)
	})
}

func TestSyncMetrics_RecordSyncDuration(t *testing.T) {
	t.Parallel()

	metrics, reader := newTestSyncMetrics(t)

	metrics.RecordSyncDuration(context.Background(), "incremental", 1500*time.Millisecond, true)

	found := collectSyncMetrics(t, reader)
	m, ok := found["blog_publisher_sync_duration_seconds"]
	require.True(t, ok, "expected the duration histogram")

	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "expected histogram data type")
	require.Len(t, hist.DataPoints, 1)
	assert.InDelta(t, 1.5, hist.DataPoints[0].Sum, 0.001)

	kind, ok := hist.DataPoints[0].Attributes.Value(attribute.Key("kind"))
	require.True(t, ok)
	assert.Equal(t, "incremental", kind.AsString())
}

func TestSyncMetrics_RecordArticles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		record   map[string][]int
		expected map[string]int64
	}{
		{
			name:     "sums counts per outcome",
			record:   map[string][]int{OutcomeRendered: {2, 3}, OutcomeFailed: {1}},
			expected: map[string]int64{OutcomeRendered: 5, OutcomeFailed: 1},
		},
		{
			name:     "skips zero counts",
			record:   map[string][]int{OutcomeDeleted: {0}, OutcomeRendered: {1}},
			expected: map[string]int64{OutcomeRendered: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			metrics, reader := newTestSyncMetrics(t)
			for outcome, counts := range tt.record {
				for _, n := range counts {
					metrics.RecordArticles(context.Background(), outcome, n)
				}
			}

			found := collectSyncMetrics(t, reader)
			m, ok := found["blog_publisher_articles"]
			require.True(t, ok)

			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "expected counter data type")

			got := make(map[string]int64)
			for _, dp := range sum.DataPoints {
				outcome, _ := dp.Attributes.Value(attribute.Key("outcome"))
				got[outcome.AsString()] = dp.Value
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestSyncMetrics_RecordQueued(t *testing.T) {
	t.Parallel()

	metrics, reader := newTestSyncMetrics(t)
	ctx := context.Background()

	metrics.RecordQueued(ctx, "incremental", true)
	metrics.RecordQueued(ctx, "incremental", true)
	metrics.RecordQueued(ctx, "full", false)

	found := collectSyncMetrics(t, reader)
	sum, ok := found["blog_publisher_sync_requests"].Data.(metricdata.Sum[int64])
	require.True(t, ok)

	var accepted, rejected int64
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key("accepted"))
		if v.AsBool() {
			accepted += dp.Value
		} else {
			rejected += dp.Value
		}
	}
	assert.Equal(t, int64(2), accepted)
	assert.Equal(t, int64(1), rejected)
}

func TestSyncMetrics_RecordContent(t *testing.T) {
	t.Parallel()

	metrics, reader := newTestSyncMetrics(t)
	ctx := context.Background()

	metrics.RecordContent(ctx, 12, 5)
	metrics.RecordContent(ctx, 11, 5)

	found := collectSyncMetrics(t, reader)

	articles, ok := found["blog_publisher_published_articles"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, articles.DataPoints, 1)
	assert.Equal(t, int64(11), articles.DataPoints[0].Value)

	tags, ok := found["blog_publisher_tags"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, tags.DataPoints, 1)
	assert.Equal(t, int64(5), tags.DataPoints[0].Value)
}
