package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhive-update-agent/internal/versions"
)

func TestConfig_Getters(t *testing.T) {
	t.Parallel()

	empty := &Config{}
	assert.Equal(t, DefaultServiceName, empty.GetServiceName())
	assert.Equal(t, versions.Version, empty.GetServiceVersion())
	assert.Equal(t, DefaultEndpoint, empty.GetEndpoint())

	set := &Config{ServiceName: "agent", ServiceVersion: "1.2.3", Endpoint: "otel:4318"}
	assert.Equal(t, "agent", set.GetServiceName())
	assert.Equal(t, "1.2.3", set.GetServiceVersion())
	assert.Equal(t, "otel:4318", set.GetEndpoint())

	assert.Equal(t, DefaultSampling, (&TracingConfig{}).GetSampling())
	assert.Equal(t, 0.5, (&TracingConfig{Sampling: 0.5}).GetSampling())

	var nilMetrics *MetricsConfig
	assert.Equal(t, MetricsExporterOTLP, nilMetrics.GetExporter())
	assert.Equal(t, MetricsExporterPrometheus, (&MetricsConfig{Exporter: "prometheus"}).GetExporter())
}

func TestConfig_UsesPrometheus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		config   *Config
		expected bool
	}{
		{name: "nil config", config: nil, expected: false},
		{name: "telemetry disabled", config: &Config{Metrics: &MetricsConfig{Enabled: true, Exporter: "prometheus"}}, expected: false},
		{name: "metrics disabled", config: &Config{Enabled: true, Metrics: &MetricsConfig{Exporter: "prometheus"}}, expected: false},
		{name: "otlp exporter", config: &Config{Enabled: true, Metrics: &MetricsConfig{Enabled: true}}, expected: false},
		{name: "prometheus exporter", config: &Config{Enabled: true, Metrics: &MetricsConfig{Enabled: true, Exporter: "prometheus"}}, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.config.UsesPrometheus())
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  *Config
		wantErr string
	}{
		{name: "nil config is valid", config: nil},
		{name: "disabled config skips validation", config: &Config{Tracing: &TracingConfig{Enabled: true, Sampling: 5}}},
		{
			name:   "valid sampling",
			config: &Config{Enabled: true, Tracing: &TracingConfig{Enabled: true, Sampling: 1}},
		},
		{
			name:    "sampling above one",
			config:  &Config{Enabled: true, Tracing: &TracingConfig{Enabled: true, Sampling: 1.5}},
			wantErr: "sampling must be between 0.0 and 1.0",
		},
		{
			name:    "negative sampling",
			config:  &Config{Enabled: true, Tracing: &TracingConfig{Enabled: true, Sampling: -0.1}},
			wantErr: "sampling must be between 0.0 and 1.0",
		},
		{
			name:    "unknown exporter",
			config:  &Config{Enabled: true, Metrics: &MetricsConfig{Enabled: true, Exporter: "statsd"}},
			wantErr: "exporter must be otlp or prometheus",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.config.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
