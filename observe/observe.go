package observe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/josephpugh/weather-mcp/observe/exporters"
)

// Config holds all configuration for the Observer.
type Config struct {
	ServiceName string
	Namespace   string
	Version     string
	Tracing     TracingConfig
	Metrics     MetricsConfig
	Logging     LoggingConfig
}

// TracingConfig configures the tracing subsystem.
type TracingConfig struct {
	Enabled bool

	// Endpoint is the OTLP collector URL. Empty selects the console exporter.
	Endpoint  string
	Protocol  exporters.Protocol
	Insecure  bool
	SamplePct float64 // 0.0-1.0

	// Console receives console exporter output. Nil means stdout.
	Console io.Writer
}

// MetricsConfig configures the metrics subsystem.
type MetricsConfig struct {
	Enabled  bool
	Exporter string // otlp|prometheus|stdout|none

	// Registerer receives the prometheus collector. Nil uses the default registerer.
	Registerer promclient.Registerer
}

// LoggingConfig configures the logging subsystem.
type LoggingConfig struct {
	Enabled bool
	Level   string // debug|info|warn|error

	// Writer receives log output. Nil means stdout.
	Writer io.Writer
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return ErrMissingServiceName
	}

	if c.Tracing.Enabled {
		if !c.Tracing.Protocol.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidProtocol, c.Tracing.Protocol)
		}
		if c.Tracing.SamplePct < MinSamplePct || c.Tracing.SamplePct > MaxSamplePct {
			return fmt.Errorf("%w: got %f", ErrInvalidSamplePct, c.Tracing.SamplePct)
		}
	}

	if c.Metrics.Enabled && !slices.Contains(ValidMetricsExporters, c.Metrics.Exporter) {
		return fmt.Errorf("%w: %q", ErrInvalidMetricsExporter, c.Metrics.Exporter)
	}

	if c.Logging.Enabled && !slices.Contains(ValidLogLevels, c.Logging.Level) {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}

	return nil
}

// Observer provides access to telemetry primitives.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: Shutdown must honor cancellation/deadlines.
// - Errors: Shutdown is idempotent; it flushes buffered spans and returns the joined errors.
type Observer interface {
	// Tracer returns the tracer used for application spans.
	Tracer() trace.Tracer

	// TracerProvider returns the provider behind Tracer.
	TracerProvider() trace.TracerProvider

	// Meter returns the configured meter.
	Meter() metric.Meter

	// Logger returns the configured logger.
	Logger() Logger

	// Target reports the selected span exporter. It is the zero Target
	// when tracing is disabled.
	Target() exporters.Target

	// Shutdown flushes and shuts down all telemetry providers.
	Shutdown(ctx context.Context) error
}

// observer is the concrete implementation of Observer.
type observer struct {
	tracer         trace.Tracer
	meter          metric.Meter
	logger         Logger
	target         exporters.Target
	tracerProvider trace.TracerProvider
	sdkTracer      *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewObserver creates a new Observer with the given configuration and
// installs its tracer provider and propagator process-wide.
func NewObserver(ctx context.Context, cfg Config) (Observer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	obs := &observer{}

	if cfg.Logging.Enabled {
		w := cfg.Logging.Writer
		if w == nil {
			obs.logger = NewLogger(cfg.Logging.Level)
		} else {
			obs.logger = NewLoggerWithWriter(cfg.Logging.Level, w)
		}
	} else {
		obs.logger = &noopLogger{}
	}

	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		obs.logger.Named("otel").Warn(context.Background(), "telemetry export failed",
			Field{Key: "error", Value: err.Error()})
	}))

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if cfg.Tracing.Enabled {
		if err := obs.setupTracing(ctx, cfg, res); err != nil {
			return nil, fmt.Errorf("failed to setup tracing: %w", err)
		}
	} else {
		obs.tracerProvider = tracenoop.NewTracerProvider()
		obs.tracer = obs.tracerProvider.Tracer(cfg.ServiceName)
	}

	if cfg.Metrics.Enabled {
		if err := obs.setupMetrics(ctx, cfg, res); err != nil {
			_ = obs.Shutdown(ctx)
			return nil, fmt.Errorf("failed to setup metrics: %w", err)
		}
	} else {
		obs.meter = noop.NewMeterProvider().Meter("noop")
	}

	return obs, nil
}

func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
	if cfg.Namespace != "" {
		attrs = append(attrs, semconv.ServiceNamespace(cfg.Namespace))
	}
	if cfg.Version != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.Version))
	}
	return resource.New(ctx, resource.WithAttributes(attrs...))
}

// Sampler returns a parent-based sampler for the given ratio.
func Sampler(pct float64) sdktrace.Sampler {
	switch {
	case pct >= MaxSamplePct:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case pct <= MinSamplePct:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(pct))
	}
}

// NewTracerProvider builds a provider that sends every sampled span
// through a single batching processor to exporter.
func NewTracerProvider(res *resource.Resource, exporter sdktrace.SpanExporter, sampler sdktrace.Sampler) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exporter),
	)
}

func (o *observer) setupTracing(ctx context.Context, cfg Config, res *resource.Resource) error {
	o.target = exporters.Select(exporters.TraceOptions{
		Endpoint: cfg.Tracing.Endpoint,
		Protocol: cfg.Tracing.Protocol,
		Insecure: cfg.Tracing.Insecure,
	})

	exporter, err := exporters.NewSpanExporter(ctx, o.target, cfg.Tracing.Console)
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := NewTracerProvider(res, exporter, Sampler(cfg.Tracing.SamplePct))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	o.sdkTracer = tp
	o.tracerProvider = tp
	o.tracer = tp.Tracer(cfg.ServiceName)

	o.logger.Info(ctx, "tracing configured", Field{Key: "exporter", Value: o.target.String()})
	return nil
}

func (o *observer) setupMetrics(ctx context.Context, cfg Config, res *resource.Resource) error {
	reader, err := exporters.NewMetricsReader(ctx, exporters.MetricsOptions{
		Exporter:   cfg.Metrics.Exporter,
		Endpoint:   cfg.Tracing.Endpoint,
		Insecure:   cfg.Tracing.Insecure,
		Registerer: cfg.Metrics.Registerer,
	})
	if err != nil {
		return fmt.Errorf("failed to create metrics reader: %w", err)
	}

	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
	}
	if reader != nil {
		opts = append(opts, sdkmetric.WithReader(reader))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)

	o.meterProvider = mp
	o.meter = mp.Meter(cfg.ServiceName)
	return nil
}

func (o *observer) Tracer() trace.Tracer {
	return o.tracer
}

func (o *observer) TracerProvider() trace.TracerProvider {
	return o.tracerProvider
}

func (o *observer) Meter() metric.Meter {
	return o.meter
}

func (o *observer) Logger() Logger {
	return o.logger
}

func (o *observer) Target() exporters.Target {
	return o.target
}

func (o *observer) Shutdown(ctx context.Context) error {
	o.shutdownOnce.Do(func() {
		var errs []error

		if o.sdkTracer != nil {
			if err := o.sdkTracer.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
			}
		}

		if o.meterProvider != nil {
			if err := o.meterProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("meter shutdown: %w", err))
			}
		}

		o.shutdownErr = errors.Join(errs...)
	})
	return o.shutdownErr
}
