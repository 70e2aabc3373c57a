package replicator

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/apistol78/traktor-sub009/pkg/peers"
)

// Default tracer name for replicator spans.
const defaultTracerName = "github.com/apistol78/traktor-sub009/pkg/replicator"

func defaultTracer() trace.Tracer {
	return otel.Tracer(defaultTracerName)
}

func (r *Replicator) startUpdateSpan(dt float64) (context.Context, trace.Span) {
	return r.tracer.Start(context.Background(), "replicator.update",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Float64("replicator.time", r.time),
			attribute.Float64("replicator.dt", dt),
			attribute.Int("replicator.peers", len(r.peers)),
		),
	)
}

func (r *Replicator) endUpdateSpan(span trace.Span, err error) {
	span.SetAttributes(
		attribute.Int("replicator.established", r.establishedCount()),
		attribute.Float64("replicator.time_after", r.time),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// traceDisconnect records a forced disconnect as a short child span.
func (r *Replicator) traceDisconnect(ctx context.Context, h peers.Handle, reason error) {
	_, span := r.tracer.Start(ctx, "replicator.disconnect",
		trace.WithAttributes(
			attribute.String("replicator.peer", h.String()),
			attribute.String("replicator.reason", reason.Error()),
		),
	)
	span.SetStatus(codes.Error, reason.Error())
	span.End()
}
