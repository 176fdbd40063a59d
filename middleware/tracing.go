package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/draftgate/draftgate/request"
)

// tracerName is the instrumentation scope name for draftgate tracing.
const tracerName = "github.com/draftgate/draftgate"

// Tracing returns middleware that wraps run execution in an OpenTelemetry
// span. If no TracerProvider is configured globally, the default noop
// tracer is used and this middleware becomes a pass-through with zero
// overhead.
//
// Span attributes include: draftgate.request.id, draftgate.queue, and
// draftgate.target.domain. On error, the span status is set to codes.Error
// with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, r *request.Request, next Handler) error {
		attrs := []attribute.KeyValue{
			attribute.String("draftgate.request.id", r.ID.String()),
			attribute.String("draftgate.queue", r.Queue),
		}
		if r.Brief != nil {
			attrs = append(attrs, attribute.String("draftgate.publisher.domain", r.Brief.Publisher.Domain))
		}

		ctx, span := tracer.Start(ctx, "draftgate.run.execute",
			trace.WithAttributes(attrs...),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
