// Package exporters selects and builds the OpenTelemetry exporters used by
// the observer.
package exporters

import (
	"context"
	"fmt"
	"io"
	"os"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Kind identifies the family of span exporter.
type Kind string

const (
	// KindOTLP ships spans to a remote collector.
	KindOTLP Kind = "otlp"
	// KindConsole prints spans locally.
	KindConsole Kind = "console"
)

// Protocol is the OTLP transport.
type Protocol string

const (
	ProtocolHTTP Protocol = "http/protobuf"
	ProtocolGRPC Protocol = "grpc"
)

// Valid reports whether p is a supported protocol. Empty means ProtocolHTTP.
func (p Protocol) Valid() bool {
	switch p {
	case "", ProtocolHTTP, ProtocolGRPC:
		return true
	}
	return false
}

// TraceOptions is the exporter-relevant slice of the tracing configuration.
type TraceOptions struct {
	// Endpoint is the collector URL. Empty selects the console exporter.
	Endpoint string
	Protocol Protocol
	Insecure bool
}

// Target is the outcome of exporter selection.
type Target struct {
	Kind     Kind
	Endpoint string
	Protocol Protocol
	Insecure bool
}

// String renders the target for logs.
func (t Target) String() string {
	if t.Kind != KindOTLP {
		return string(t.Kind)
	}
	return fmt.Sprintf("%s(%s %s insecure=%t)", t.Kind, t.Protocol, t.Endpoint, t.Insecure)
}

// Select decides which span exporter to use. A configured endpoint selects
// OTLP, otherwise the console exporter. Select never fails.
func Select(opts TraceOptions) Target {
	if opts.Endpoint == "" {
		return Target{Kind: KindConsole}
	}
	protocol := opts.Protocol
	if protocol == "" {
		protocol = ProtocolHTTP
	}
	return Target{
		Kind:     KindOTLP,
		Endpoint: opts.Endpoint,
		Protocol: protocol,
		Insecure: opts.Insecure,
	}
}

// NewSpanExporter builds the exporter for target. Console output goes to w,
// or stdout when w is nil. OTLP exporters connect lazily, so an unreachable
// collector is not an error here.
func NewSpanExporter(ctx context.Context, target Target, w io.Writer) (sdktrace.SpanExporter, error) {
	switch target.Kind {
	case KindConsole:
		if w == nil {
			w = os.Stdout
		}
		return stdouttrace.New(stdouttrace.WithWriter(w))

	case KindOTLP:
		switch target.Protocol {
		case ProtocolGRPC:
			opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpointURL(target.Endpoint)}
			if target.Insecure {
				opts = append(opts, otlptracegrpc.WithInsecure())
			}
			return otlptracegrpc.New(ctx, opts...)
		case ProtocolHTTP, "":
			opts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(target.Endpoint)}
			if target.Insecure {
				opts = append(opts, otlptracehttp.WithInsecure())
			}
			return otlptracehttp.New(ctx, opts...)
		default:
			return nil, fmt.Errorf("unknown otlp protocol: %q", target.Protocol)
		}

	default:
		return nil, fmt.Errorf("unknown exporter: %q", target.Kind)
	}
}

// MetricsOptions configures the metrics reader.
type MetricsOptions struct {
	// Exporter is one of prometheus, otlp, stdout, none.
	Exporter string

	// Endpoint and Insecure apply to the otlp exporter.
	Endpoint string
	Insecure bool

	// Registerer receives the prometheus collector. Nil uses the default registerer.
	Registerer promclient.Registerer

	// Writer receives stdout output. Nil uses stdout.
	Writer io.Writer
}

// NewMetricsReader creates a metrics reader. It returns nil, nil for "none".
func NewMetricsReader(ctx context.Context, opts MetricsOptions) (sdkmetric.Reader, error) {
	switch opts.Exporter {
	case "stdout":
		w := opts.Writer
		if w == nil {
			w = os.Stdout
		}
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout metrics exporter: %w", err)
		}
		return sdkmetric.NewPeriodicReader(exp), nil

	case "otlp":
		if opts.Endpoint == "" {
			return nil, fmt.Errorf("OTLP metrics endpoint not configured: set OTEL_EXPORTER_OTLP_ENDPOINT")
		}
		mopts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpointURL(opts.Endpoint)}
		if opts.Insecure {
			mopts = append(mopts, otlpmetricgrpc.WithInsecure())
		}
		exp, err := otlpmetricgrpc.New(ctx, mopts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
		}
		return sdkmetric.NewPeriodicReader(exp), nil

	case "prometheus":
		var popts []prometheus.Option
		if opts.Registerer != nil {
			popts = append(popts, prometheus.WithRegisterer(opts.Registerer))
		}
		exp, err := prometheus.New(popts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
		}
		return exp, nil

	case "none", "":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown metrics exporter: %q", opts.Exporter)
	}
}
