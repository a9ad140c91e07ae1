// Package telemetry wires OpenTelemetry into the publisher: spans for HTTP
// requests and syncs, and metrics exported over OTLP or scraped by Prometheus.
package telemetry

import (
	"errors"
	"fmt"
	"slices"
)

// Defaults applied when the corresponding Config field is empty
const (
	DefaultServiceName    = "blog-publisher"
	DefaultServiceVersion = "unknown"
	DefaultEndpoint       = "localhost:4318"
	DefaultSampling       = 0.05
)

// Metrics exporters
const (
	ExporterOTLP       = "otlp"
	ExporterPrometheus = "prometheus"
)

var exporters = []string{ExporterOTLP, ExporterPrometheus}

// Config is the telemetry section of the publisher configuration.
// A nil or disabled Config yields no-op providers.
type Config struct {
	Enabled        bool   `yaml:"enabled"`
	ServiceName    string `yaml:"serviceName,omitempty"`
	ServiceVersion string `yaml:"serviceVersion,omitempty"`

	// Endpoint is the OTLP/HTTP collector as host:port
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure sends OTLP data over plain HTTP
	Insecure bool `yaml:"insecure,omitempty"`

	Tracing *TracingConfig `yaml:"tracing,omitempty"`
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig controls span export
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Sampling is the ratio of traces kept, between 0 and 1
	Sampling *float64 `yaml:"sampling,omitempty"`
}

// MetricsConfig controls metric export
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Exporter is "prometheus" (default, served on /metrics) or "otlp"
	Exporter string `yaml:"exporter,omitempty"`
}

// GetServiceName returns the service name reported on every resource
func (c *Config) GetServiceName() string {
	if c == nil || c.ServiceName == "" {
		return DefaultServiceName
	}
	return c.ServiceName
}

// GetServiceVersion returns the service version reported on every resource
func (c *Config) GetServiceVersion() string {
	if c == nil || c.ServiceVersion == "" {
		return DefaultServiceVersion
	}
	return c.ServiceVersion
}

// GetEndpoint returns the OTLP endpoint
func (c *Config) GetEndpoint() string {
	if c == nil || c.Endpoint == "" {
		return DefaultEndpoint
	}
	return c.Endpoint
}

func (c *Config) tracingEnabled() bool {
	return c != nil && c.Enabled && c.Tracing != nil && c.Tracing.Enabled
}

func (c *Config) metricsEnabled() bool {
	return c != nil && c.Enabled && c.Metrics != nil && c.Metrics.Enabled
}

// scraped reports whether metrics are served for Prometheus to scrape
func (c *Config) scraped() bool {
	return c.metricsEnabled() && c.Metrics.GetExporter() == ExporterPrometheus
}

// GetSampling returns the sampling ratio
func (c *TracingConfig) GetSampling() float64 {
	if c == nil || c.Sampling == nil {
		return DefaultSampling
	}
	return *c.Sampling
}

// GetExporter returns the metrics exporter
func (c *MetricsConfig) GetExporter() string {
	if c == nil || c.Exporter == "" {
		return ExporterPrometheus
	}
	return c.Exporter
}

// Validate checks the enabled parts of the configuration
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	var errs []error
	if c.Tracing != nil && c.Tracing.Enabled {
		if s := c.Tracing.GetSampling(); s < 0 || s > 1 {
			errs = append(errs, fmt.Errorf("tracing: sampling must be between 0.0 and 1.0, got %g", s))
		}
	}
	if c.Metrics != nil && c.Metrics.Enabled && !slices.Contains(exporters, c.Metrics.GetExporter()) {
		errs = append(errs, fmt.Errorf("metrics: exporter must be %q or %q, got %q",
			ExporterOTLP, ExporterPrometheus, c.Metrics.Exporter))
	}
	return errors.Join(errs...)
}
