// Package otel provides OpenTelemetry span helpers for the update agent.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by sync and API spans.
const (
	AttrTrigger      = attribute.Key("sync.trigger")
	AttrAttempt      = attribute.Key("sync.attempt")
	AttrSyncStatus   = attribute.Key("sync.status")
	AttrRequestName  = attribute.Key("request.name")
	AttrDelayOutcome = attribute.Key("delay.outcome")
	AttrPackageLabel = attribute.Key("package.label")
)

// StartSpan starts a new span if the tracer is non-nil, otherwise returns the span
// already carried by ctx (a no-op span when there is none).
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records err on span and marks the span as failed.
// The status description stays generic; update server URLs and keys only appear in the event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
