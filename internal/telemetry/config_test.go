package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func float64Ptr(f float64) *float64 {
	return &f
}

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		cfg          *Config
		wantName     string
		wantVersion  string
		wantEndpoint string
		wantSampling float64
		wantExporter string
	}{
		{
			name:         "nil config",
			wantName:     DefaultServiceName,
			wantVersion:  DefaultServiceVersion,
			wantEndpoint: DefaultEndpoint,
			wantSampling: DefaultSampling,
			wantExporter: ExporterPrometheus,
		},
		{
			name:         "empty config",
			cfg:          &Config{Tracing: &TracingConfig{}, Metrics: &MetricsConfig{}},
			wantName:     DefaultServiceName,
			wantVersion:  DefaultServiceVersion,
			wantEndpoint: DefaultEndpoint,
			wantSampling: DefaultSampling,
			wantExporter: ExporterPrometheus,
		},
		{
			name: "explicit values",
			cfg: &Config{
				ServiceName:    "blog-staging",
				ServiceVersion: "1.4.0",
				Endpoint:       "otel-collector:4318",
				Tracing:        &TracingConfig{Sampling: float64Ptr(0)},
				Metrics:        &MetricsConfig{Exporter: ExporterOTLP},
			},
			wantName:     "blog-staging",
			wantVersion:  "1.4.0",
			wantEndpoint: "otel-collector:4318",
			wantSampling: 0,
			wantExporter: ExporterOTLP,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var tracing *TracingConfig
			var metrics *MetricsConfig
			if tt.cfg != nil {
				tracing, metrics = tt.cfg.Tracing, tt.cfg.Metrics
			}

			assert.Equal(t, tt.wantName, tt.cfg.GetServiceName())
			assert.Equal(t, tt.wantVersion, tt.cfg.GetServiceVersion())
			assert.Equal(t, tt.wantEndpoint, tt.cfg.GetEndpoint())
			assert.InDelta(t, tt.wantSampling, tracing.GetSampling(), 1e-9)
			assert.Equal(t, tt.wantExporter, metrics.GetExporter())
		})
	}
}

func TestConfig_Signals(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		cfg         *Config
		wantTracing bool
		wantMetrics bool
		wantScraped bool
	}{
		{name: "nil"},
		{
			name: "globally disabled",
			cfg: &Config{
				Tracing: &TracingConfig{Enabled: true},
				Metrics: &MetricsConfig{Enabled: true},
			},
		},
		{name: "enabled without signals", cfg: &Config{Enabled: true}},
		{
			name:        "tracing only",
			cfg:         &Config{Enabled: true, Tracing: &TracingConfig{Enabled: true}},
			wantTracing: true,
		},
		{
			name:        "prometheus metrics",
			cfg:         &Config{Enabled: true, Metrics: &MetricsConfig{Enabled: true}},
			wantMetrics: true,
			wantScraped: true,
		},
		{
			name:        "otlp metrics",
			cfg:         &Config{Enabled: true, Metrics: &MetricsConfig{Enabled: true, Exporter: ExporterOTLP}},
			wantMetrics: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.wantTracing, tt.cfg.tracingEnabled())
			assert.Equal(t, tt.wantMetrics, tt.cfg.metricsEnabled())
			assert.Equal(t, tt.wantScraped, tt.cfg.scraped())
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfg      *Config
		wantErrs []string
	}{
		{name: "nil"},
		{
			name: "disabled config is not inspected",
			cfg:  &Config{Tracing: &TracingConfig{Enabled: true, Sampling: float64Ptr(3)}},
		},
		{
			name: "disabled tracing is not inspected",
			cfg:  &Config{Enabled: true, Tracing: &TracingConfig{Sampling: float64Ptr(-1)}},
		},
		{
			name: "valid",
			cfg: &Config{
				Enabled: true,
				Tracing: &TracingConfig{Enabled: true, Sampling: float64Ptr(1)},
				Metrics: &MetricsConfig{Enabled: true, Exporter: ExporterOTLP},
			},
		},
		{
			name:     "sampling above one",
			cfg:      &Config{Enabled: true, Tracing: &TracingConfig{Enabled: true, Sampling: float64Ptr(1.5)}},
			wantErrs: []string{"tracing: sampling must be between 0.0 and 1.0, got 1.5"},
		},
		{
			name:     "unknown exporter",
			cfg:      &Config{Enabled: true, Metrics: &MetricsConfig{Enabled: true, Exporter: "statsd"}},
			wantErrs: []string{`metrics: exporter must be "otlp" or "prometheus", got "statsd"`},
		},
		{
			name: "both invalid",
			cfg: &Config{
				Enabled: true,
				Tracing: &TracingConfig{Enabled: true, Sampling: float64Ptr(-0.1)},
				Metrics: &MetricsConfig{Enabled: true, Exporter: "statsd"},
			},
			wantErrs: []string{"tracing: sampling", "metrics: exporter"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.cfg.Validate()
			if len(tt.wantErrs) == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErrs {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}
