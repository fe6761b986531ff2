package observe

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Outcome describes how a traced call finished.
type Outcome struct {
	// SuccessAttribute is the boolean attribute key that records success.
	// Empty disables the attribute.
	SuccessAttribute string

	// Ran reports whether the wrapped function was invoked. The success
	// attribute is only set when it was.
	Ran bool

	// Err is the error the call ended with, if any.
	Err error
}

// Tracer owns the span lifecycle shared by Wrap and WrapAsync.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: StartSpan returns a context carrying the new span as current.
// - Errors: EndSpan must be best-effort, must not panic and must always end the span.
type Tracer interface {
	// StartSpan starts a new span as a child of the span in ctx.
	StartSpan(ctx context.Context, name string, kind trace.SpanKind) (context.Context, trace.Span)

	// EndSpan records the outcome and ends the span.
	EndSpan(span trace.Span, outcome Outcome)
}

// tracerImpl is the concrete implementation of Tracer.
type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer over the given OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

// StartSpan starts a new span.
func (t *tracerImpl) StartSpan(ctx context.Context, name string, kind trace.SpanKind) (context.Context, trace.Span) {
	if kind == trace.SpanKindUnspecified {
		kind = trace.SpanKindInternal
	}
	return t.tracer.Start(ctx, name, trace.WithSpanKind(kind))
}

// EndSpan sets the success flag and status, records errors and ends the span.
func (t *tracerImpl) EndSpan(span trace.Span, outcome Outcome) {
	defer span.End()

	if outcome.Ran && outcome.SuccessAttribute != "" {
		span.SetAttributes(attribute.Bool(outcome.SuccessAttribute, outcome.Err == nil))
	}

	if outcome.Err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}

	var pe *PanicError
	if errors.As(outcome.Err, &pe) {
		span.RecordError(outcome.Err, trace.WithAttributes(
			attribute.String("exception.stacktrace", string(pe.Stack)),
		))
	} else {
		span.RecordError(outcome.Err, trace.WithStackTrace(true))
	}
	span.SetStatus(codes.Error, outcome.Err.Error())
}

// noopTracer is a tracer that does nothing.
type noopTracer struct {
	noop trace.Tracer
}

// newNoopTracer creates a no-op tracer.
func newNoopTracer() Tracer {
	return &noopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

func (t *noopTracer) StartSpan(ctx context.Context, name string, _ trace.SpanKind) (context.Context, trace.Span) {
	return t.noop.Start(ctx, name)
}

func (t *noopTracer) EndSpan(span trace.Span, _ Outcome) {
	span.End()
}
