// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/josephpugh/weather-mcp/auth"
	"github.com/josephpugh/weather-mcp/cache"
	"github.com/josephpugh/weather-mcp/observe"
	"github.com/josephpugh/weather-mcp/observe/exporters"
	"github.com/josephpugh/weather-mcp/weather"
)

// ErrInvalid marks a configuration value outside its allowed range.
var ErrInvalid = errors.New("config: invalid value")

// Config holds all application configuration.
type Config struct {
	ServerAddress   string        `env:"SERVER_ADDRESS" envDefault:"0.0.0.0:8000"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	Otel    OtelConfig
	Weather WeatherConfig
	Auth    AuthConfig
}

// OtelConfig holds OpenTelemetry settings. An empty endpoint selects the
// console span exporter.
type OtelConfig struct {
	Endpoint         string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Protocol         string  `env:"OTEL_EXPORTER_OTLP_PROTOCOL" envDefault:"http/protobuf"`
	Insecure         bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	ServiceName      string  `env:"OTEL_SERVICE_NAME" envDefault:"weather-service"`
	ServiceNamespace string  `env:"OTEL_SERVICE_NAMESPACE" envDefault:"mcp"`
	TracesEnabled    bool    `env:"OTEL_TRACES_ENABLED" envDefault:"true"`
	SamplingRate     float64 `env:"OTEL_SAMPLING_RATE" envDefault:"1.0"`
	MetricsExporter  string  `env:"OTEL_METRICS_EXPORTER" envDefault:"prometheus"`
}

// WeatherConfig holds upstream API settings.
type WeatherConfig struct {
	BaseURL       string        `env:"WEATHER_API_BASE_URL" envDefault:"https://api.weatherapi.com"`
	APIKey        string        `env:"WEATHER_API_KEY"`
	Timeout       time.Duration `env:"WEATHER_TIMEOUT" envDefault:"10s"`
	MaxAttempts   int           `env:"WEATHER_MAX_ATTEMPTS" envDefault:"3"`
	RateLimit     float64       `env:"WEATHER_RATE_LIMIT" envDefault:"10"`
	RateBurst     int           `env:"WEATHER_RATE_BURST" envDefault:"5"`
	MaxConcurrent int           `env:"WEATHER_MAX_CONCURRENT" envDefault:"16"`
	CacheTTL      time.Duration `env:"WEATHER_CACHE_TTL" envDefault:"5m"`
}

// AuthConfig enables optional API-key and JWT protection.
type AuthConfig struct {
	APIKeys   []string `env:"AUTH_API_KEYS" envSeparator:","`
	JWTSecret string   `env:"AUTH_JWT_SECRET"`
	JWTIssuer string   `env:"AUTH_JWT_ISSUER"`
}

// Load reads .env files (missing files are skipped), then parses the
// process environment. Variables already set win over .env values.
func Load(dotenv ...string) (*Config, error) {
	for _, f := range dotenv {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return parse(env.Options{})
}

// FromMap parses configuration from vars instead of the process environment.
func FromMap(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	obs := c.Observe("", nil, nil)
	if err := obs.Validate(); err != nil {
		return err
	}

	w := c.Weather
	switch {
	case c.ShutdownTimeout <= 0:
		return fmt.Errorf("%w: SHUTDOWN_TIMEOUT must be positive", ErrInvalid)
	case w.Timeout <= 0:
		return fmt.Errorf("%w: WEATHER_TIMEOUT must be positive", ErrInvalid)
	case w.MaxAttempts < 1:
		return fmt.Errorf("%w: WEATHER_MAX_ATTEMPTS must be at least 1", ErrInvalid)
	case w.RateLimit <= 0 || w.RateBurst < 1:
		return fmt.Errorf("%w: WEATHER_RATE_LIMIT and WEATHER_RATE_BURST must be positive", ErrInvalid)
	case w.MaxConcurrent < 1:
		return fmt.Errorf("%w: WEATHER_MAX_CONCURRENT must be at least 1", ErrInvalid)
	case w.CacheTTL < 0:
		return fmt.Errorf("%w: WEATHER_CACHE_TTL must not be negative", ErrInvalid)
	}
	return nil
}

// Observe builds the telemetry configuration. Console and logs default to
// stdout when nil.
func (c *Config) Observe(version string, console, logs io.Writer) observe.Config {
	metricsExporter := c.Otel.MetricsExporter
	return observe.Config{
		ServiceName: c.Otel.ServiceName,
		Namespace:   c.Otel.ServiceNamespace,
		Version:     version,
		Tracing: observe.TracingConfig{
			Enabled:   c.Otel.TracesEnabled,
			Endpoint:  c.Otel.Endpoint,
			Protocol:  exporters.Protocol(c.Otel.Protocol),
			Insecure:  c.Otel.Insecure,
			SamplePct: c.Otel.SamplingRate,
			Console:   console,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  metricsExporter != "none",
			Exporter: metricsExporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   c.LogLevel,
			Writer:  logs,
		},
	}
}

// Resilience sizes the upstream guard.
func (c *Config) Resilience() weather.ResilienceConfig {
	return weather.ResilienceConfig{
		MaxAttempts:   c.Weather.MaxAttempts,
		Timeout:       c.Weather.Timeout,
		RateLimit:     c.Weather.RateLimit,
		RateBurst:     c.Weather.RateBurst,
		MaxConcurrent: c.Weather.MaxConcurrent,
	}
}

// CachePolicy returns the report cache policy. A zero TTL disables caching.
func (c *Config) CachePolicy() cache.Policy {
	if c.Weather.CacheTTL == 0 {
		return cache.NoCachePolicy()
	}
	p := cache.DefaultPolicy()
	p.DefaultTTL = c.Weather.CacheTTL
	if p.MaxTTL < p.DefaultTTL {
		p.MaxTTL = p.DefaultTTL
	}
	return p
}

// AuthSettings converts to the auth package configuration.
func (c *Config) AuthSettings() auth.Config {
	keys := make([]string, 0, len(c.Auth.APIKeys))
	for _, k := range c.Auth.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return auth.Config{APIKeys: keys, JWTSecret: c.Auth.JWTSecret, JWTIssuer: c.Auth.JWTIssuer}
}
