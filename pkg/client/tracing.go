package client

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// startRequestSpan opens a client span covering one request round trip.
func startRequestSpan(ctx context.Context, tracer trace.Tracer, route string) trace.Span {
	_, span := tracer.Start(ctx, "pomelo.request "+route,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("pomelo.route", route),
		),
	)
	return span
}

func newTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// endSpan finishes span, recording err when set.
func endSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
