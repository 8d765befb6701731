package mysequel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	instrumentationName    = "github.com/ChiperSoft/mysequel"
	instrumentationVersion = "v0.1.0"
)

// EnableTelemetry enables or disables OpenTelemetry tracing for this handle.
func (h *Handle) EnableTelemetry(enabled bool) {
	if h == nil {
		return
	}
	h.updateInstr(func(in *instrumentation) { in.telemetryEnabled = enabled })
}

// startSpan starts a span named mysequel.<operation>. The global tracer
// provider is looked up on every call so providers installed after Open are
// honored. With telemetry disabled it returns ctx and a no-op span, never the
// caller's span.
func (h *Handle) startSpan(ctx context.Context, operation, query string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if !h.instr().telemetryEnabled {
		return ctx, noop.Span{}
	}

	tracer := otel.Tracer(instrumentationName, trace.WithInstrumentationVersion(instrumentationVersion))
	ctx, span := tracer.Start(ctx, "mysequel."+operation)
	span.SetAttributes(
		attribute.String("db.operation", operation),
	)
	if query != "" {
		span.SetAttributes(attribute.String("db.statement", query))
	}
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// finishSpan ends a span started by startSpan, whatever the telemetry
// setting is by now.
func (h *Handle) finishSpan(span trace.Span, err error) {
	if !span.IsRecording() {
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
