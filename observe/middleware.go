package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Func is a blocking call that can be traced with Wrap.
type Func[A, R any] func(ctx context.Context, args A) (R, error)

// AsyncFunc is a call whose result is delivered through a Future.
type AsyncFunc[A, R any] func(ctx context.Context, args A) *Future[R]

// SpanSpec describes the span opened around each invocation of a wrapped call.
type SpanSpec[A any] struct {
	// Name is the span name. Required.
	Name string

	// SuccessAttribute is set to true or false once the call finishes.
	// Empty disables the attribute.
	SuccessAttribute string

	// Attributes derives span attributes from the call arguments.
	Attributes AttributeFunc[A]

	// Kind defaults to trace.SpanKindInternal.
	Kind trace.SpanKind
}

// Middleware wraps calls with tracing, metrics, and logging.
//
// Contract:
//   - Concurrency: wrapped functions are safe for concurrent use.
//   - Context: the span is current in the context handed to the wrapped function.
//   - Errors: errors from the wrapped function are recorded and returned unchanged.
//   - Panics: recorded on the span, then re-raised with the original value.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a new Middleware with the given observability components.
// Nil components are replaced with no-op implementations.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = newNoopTracer()
	}
	if metrics == nil {
		metrics = &noopMetrics{}
	}
	if logger == nil {
		logger = &noopLogger{}
	}
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// NoopMiddleware returns a Middleware that traces nothing.
func NoopMiddleware() *Middleware {
	return NewMiddleware(nil, nil, nil)
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// Logger returns the logger used for call logging.
func (m *Middleware) Logger() Logger {
	return m.logger
}

// Wrap returns fn instrumented with a span per invocation.
//
// Attributes are extracted from args and set before fn runs. If extraction
// fails fn is not called and the extraction error is returned. Wrap panics
// if spec.Name is empty.
func Wrap[A, R any](m *Middleware, spec SpanSpec[A], fn Func[A, R]) Func[A, R] {
	mustValidate(spec)
	if m == nil {
		m = NoopMiddleware()
	}

	return func(ctx context.Context, args A) (result R, err error) {
		ctx, c := m.begin(ctx, spec.Name, spec.Kind, spec.SuccessAttribute)
		defer func() {
			if r := recover(); r != nil {
				c.end(ctx, newPanicError(r))
				panic(r)
			}
			c.end(ctx, err)
		}()

		kvs, err := extract(spec.Attributes, args)
		if err != nil {
			return result, err
		}
		c.tag(kvs)

		c.ran = true
		return fn(ctx, args)
	}
}

// WrapAsync returns fn instrumented with a span per invocation. The span
// stays open until the Future produced by fn resolves.
//
// Cancelling the returned Future cancels the context handed to fn; the
// resulting error is recorded on the span like any other failure. Panics in
// fn are recorded and re-raised by Await.
func WrapAsync[A, R any](m *Middleware, spec SpanSpec[A], fn AsyncFunc[A, R]) AsyncFunc[A, R] {
	mustValidate(spec)
	if m == nil {
		m = NoopMiddleware()
	}

	return func(ctx context.Context, args A) *Future[R] {
		ctx, c := m.begin(ctx, spec.Name, spec.Kind, spec.SuccessAttribute)
		ctx, cancel := context.WithCancel(ctx)
		out := newFuture[R](cancel)

		inner := startAsync(ctx, c, out, func() (*Future[R], error) {
			kvs, err := extract(spec.Attributes, args)
			if err != nil {
				return nil, err
			}
			c.tag(kvs)

			c.ran = true
			return fn(ctx, args), nil
		})
		if inner == nil {
			return out
		}

		go func() {
			defer cancel()
			value, err, pe := inner.outcome()
			if pe != nil {
				c.end(ctx, pe)
				out.fail(pe)
				return
			}
			c.end(ctx, err)
			out.resolve(value, err)
		}()

		return out
	}
}

// startAsync runs the synchronous part of an async call. It returns nil when
// the call already finished, in which case out has been resolved.
func startAsync[R any](ctx context.Context, c *call, out *Future[R], start func() (*Future[R], error)) (inner *Future[R]) {
	defer func() {
		if r := recover(); r != nil {
			pe := newPanicError(r)
			c.end(ctx, pe)
			out.fail(pe)
			out.cancel()
			inner = nil
		}
	}()

	inner, err := start()
	if err == nil && inner == nil {
		err = ErrNilFuture
	}
	if err != nil {
		var zero R
		c.end(ctx, err)
		out.resolve(zero, err)
		out.cancel()
		return nil
	}
	return inner
}

func mustValidate[A any](spec SpanSpec[A]) {
	if spec.Name == "" {
		panic(ErrMissingSpanName)
	}
}

func extract[A any](fn AttributeFunc[A], args A) ([]attribute.KeyValue, error) {
	if fn == nil {
		return nil, nil
	}
	attrs, err := fn(args)
	if err != nil {
		return nil, err
	}
	return attrs.KeyValues()
}

// call is the state of one traced invocation.
type call struct {
	m       *Middleware
	name    string
	success string
	span    trace.Span
	start   time.Time
	ran     bool
}

func (m *Middleware) begin(ctx context.Context, name string, kind trace.SpanKind, success string) (context.Context, *call) {
	ctx, span := m.tracer.StartSpan(ctx, name, kind)
	return ctx, &call{
		m:       m,
		name:    name,
		success: success,
		span:    span,
		start:   time.Now(),
	}
}

func (c *call) tag(kvs []attribute.KeyValue) {
	if len(kvs) > 0 {
		c.span.SetAttributes(kvs...)
	}
}

// end closes the span, then records metrics and a log line.
func (c *call) end(ctx context.Context, err error) {
	duration := time.Since(c.start)

	c.m.tracer.EndSpan(c.span, Outcome{
		SuccessAttribute: c.success,
		Ran:              c.ran,
		Err:              err,
	})

	c.m.metrics.RecordCall(ctx, c.name, duration, err)

	fields := []Field{
		{Key: "span", Value: c.name},
		{Key: "duration_ms", Value: float64(duration.Microseconds()) / 1000},
	}
	if err != nil {
		fields = append(fields, Field{Key: "error", Value: err.Error()})
		c.m.logger.Error(ctx, "call failed", fields...)
		return
	}
	c.m.logger.Debug(ctx, "call completed", fields...)
}
