// Package tracing wires OpenTelemetry distributed tracing around the
// proxy pipeline, gated by OTEL_ENABLED. The distillation source's
// trace_operation decorator wraps the gateway's proxy call in a span
// named "gateway.proxy", recording success/failure as span attributes;
// ProxySpan below is the Go equivalent.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Setup initializes the global tracer provider with an OTLP gRPC exporter.
// Returns a shutdown function to call on application exit.
func Setup(ctx context.Context, endpoint string) (func(context.Context) error, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("apibridge")),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// ProxySpan starts the "gateway.proxy" span for one inbound request and
// returns the derived context plus a finish function. finish(err) marks
// the span's success attribute and, on error, records the error message —
// matching trace_operation's success/error bookkeeping.
func ProxySpan(ctx context.Context, connector string) (context.Context, func(err error)) {
	ctx, span := otel.Tracer("apibridge").Start(ctx, "gateway.proxy",
		trace.WithAttributes(attribute.String("connector", connector)))

	return ctx, func(err error) {
		span.SetAttributes(attribute.Bool("success", err == nil))
		if err != nil {
			span.SetAttributes(attribute.String("error", err.Error()))
		}
		span.End()
	}
}
