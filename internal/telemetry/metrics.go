package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the name used for the sync metrics meter
	SyncMetricsMeterName = "github.com/stacklok/toolhive-update-agent/sync"

	// SyncTracerName is the name used for the sync tracer
	SyncTracerName = "github.com/stacklok/toolhive-update-agent/sync"
)

// SyncMetrics holds the OpenTelemetry instruments for sync coordination metrics
type SyncMetrics struct {
	syncDuration  metric.Float64Histogram
	triggersTotal metric.Int64Counter
	delayGate     metric.Int64Counter
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	syncDuration, err := meter.Float64Histogram(
		"thv_upd_agent_sync_duration_seconds",
		metric.WithDescription("Duration of synchronize calls in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	triggersTotal, err := meter.Int64Counter(
		"thv_upd_agent_sync_triggers_total",
		metric.WithDescription("Number of sync triggers observed, by source"),
		metric.WithUnit("{trigger}"),
	)
	if err != nil {
		return nil, err
	}

	delayGate, err := meter.Int64Counter(
		"thv_upd_agent_initial_delay_total",
		metric.WithDescription("Initial delay gate resolutions, by outcome"),
		metric.WithUnit("{resolution}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		syncDuration:  syncDuration,
		triggersTotal: triggersTotal,
		delayGate:     delayGate,
	}, nil
}

// RecordSyncDuration records the duration and outcome of one synchronize call
func (m *SyncMetrics) RecordSyncDuration(ctx context.Context, trigger string, duration time.Duration, success bool) {
	if m == nil || m.syncDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("trigger", trigger),
		attribute.Bool("success", success),
	}

	m.syncDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordTrigger counts a fired trigger source
func (m *SyncMetrics) RecordTrigger(ctx context.Context, trigger string) {
	if m == nil || m.triggersTotal == nil {
		return
	}
	m.triggersTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
}

// RecordDelayGate counts how the initial delay gate resolved
func (m *SyncMetrics) RecordDelayGate(ctx context.Context, outcome string) {
	if m == nil || m.delayGate == nil {
		return
	}
	m.delayGate.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
