// Package server wires the HTTP surface: REST lookups, health probes,
// Prometheus metrics, and the MCP endpoint, all behind one echo instance.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel/trace"

	"github.com/josephpugh/weather-mcp/auth"
	"github.com/josephpugh/weather-mcp/health"
	"github.com/josephpugh/weather-mcp/observe"
	"github.com/josephpugh/weather-mcp/weather"
)

// MetricsPath serves Prometheus metrics when a Gatherer is configured.
const MetricsPath = "/metrics"

// Config configures the HTTP server.
type Config struct {
	Address         string
	ShutdownTimeout time.Duration

	// ServiceName names the otelecho server spans.
	ServiceName string

	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider

	// Gatherer backs MetricsPath. Nil disables the route.
	Gatherer prometheus.Gatherer

	// Authenticator protects the lookup and MCP routes. Nil leaves them open.
	Authenticator auth.Authenticator

	// MCPPath and MCP mount the MCP transport. Nil MCP disables it.
	MCPPath string
	MCP     http.Handler
}

// Server is the weather HTTP server.
type Server struct {
	cfg  Config
	e    *echo.Echo
	http *http.Server
	svc  *weather.Service
	log  observe.Logger
}

// New builds the echo instance and registers every route.
func New(cfg Config, svc *weather.Service, agg *health.Aggregator, log observe.Logger) *Server {
	if log == nil {
		log = observe.NoopLogger()
	}
	if agg == nil {
		agg = health.NewAggregator(health.AggregatorConfig{})
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		cfg: cfg,
		e:   echo.New(),
		svc: svc,
		log: log.Named("http"),
	}
	s.http = &http.Server{
		Addr:              cfg.Address,
		ReadHeaderTimeout: 10 * time.Second,
	}

	e := s.e
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler(s.log)

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(
		middleware.RequestID(),
		middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
			Skipper:      isProbe,
			LogURI:       true,
			LogStatus:    true,
			LogLatency:   true,
			LogError:     true,
			LogMethod:    true,
			LogRequestID: true,
			LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
				fields := []observe.Field{
					{Key: "method", Value: v.Method},
					{Key: "uri", Value: v.URI},
					{Key: "status", Value: v.Status},
					{Key: "latency", Value: v.Latency},
					{Key: "request_id", Value: v.RequestID},
				}
				ctx := c.Request().Context()
				if v.Error != nil {
					s.log.Error(ctx, "request failed", append(fields, observe.Field{Key: "error", Value: v.Error})...)
				} else {
					s.log.Info(ctx, "request", fields...)
				}
				return nil
			},
		}),
		middleware.RecoverWithConfig(middleware.RecoverConfig{
			LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
				s.log.Error(c.Request().Context(), "panic recovered",
					observe.Field{Key: "error", Value: err},
					observe.Field{Key: "stack", Value: string(stack)},
				)
				return err
			},
		}),
	)

	otelOpts := []otelecho.Option{otelecho.WithSkipper(isProbe)}
	if cfg.TracerProvider != nil {
		otelOpts = append(otelOpts, otelecho.WithTracerProvider(cfg.TracerProvider))
	}
	e.Use(otelecho.Middleware(cfg.ServiceName, otelOpts...))

	health.Register(e, agg)
	if cfg.Gatherer != nil {
		e.GET(MetricsPath, echo.WrapHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	var protected []echo.MiddlewareFunc
	if cfg.Authenticator != nil {
		protected = append(protected, auth.Middleware(cfg.Authenticator, auth.MiddlewareConfig{
			OnError: func(c echo.Context, err error) {
				s.log.Warn(c.Request().Context(), "authentication failed",
					observe.Field{Key: "path", Value: c.Path()},
					observe.Field{Key: "error", Value: err},
				)
			},
		}))
	}

	e.POST("/get_weather", s.getWeather, protected...)
	e.POST("/get_weather/batch", s.getWeatherBatch, protected...)
	if cfg.MCP != nil {
		e.Match([]string{http.MethodGet, http.MethodPost, http.MethodDelete}, cfg.MCPPath, echo.WrapHandler(cfg.MCP), protected...)
	}
	return s
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.e
}

// Run serves until ctx is done, then shuts down gracefully within the
// configured timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info(ctx, "starting HTTP server", observe.Field{Key: "address", Value: s.cfg.Address})
		errCh <- s.e.StartServer(s.http)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info(ctx, "shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.e.Shutdown(shutdownCtx)
}

func isProbe(c echo.Context) bool {
	switch c.Request().URL.Path {
	case "/healthz", "/readyz", "/health", MetricsPath:
		return true
	}
	return false
}
