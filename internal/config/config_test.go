package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josephpugh/weather-mcp/observe"
	"github.com/josephpugh/weather-mcp/observe/exporters"
)

func TestFromMap_Defaults(t *testing.T) {
	cfg, err := FromMap(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8000", cfg.ServerAddress)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)

	assert.Empty(t, cfg.Otel.Endpoint)
	assert.Equal(t, "http/protobuf", cfg.Otel.Protocol)
	assert.True(t, cfg.Otel.Insecure)
	assert.Equal(t, "weather-service", cfg.Otel.ServiceName)
	assert.Equal(t, "mcp", cfg.Otel.ServiceNamespace)
	assert.True(t, cfg.Otel.TracesEnabled)
	assert.Equal(t, 1.0, cfg.Otel.SamplingRate)
	assert.Equal(t, "prometheus", cfg.Otel.MetricsExporter)

	assert.Equal(t, "https://api.weatherapi.com", cfg.Weather.BaseURL)
	assert.Equal(t, 3, cfg.Weather.MaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Weather.CacheTTL)
	assert.False(t, cfg.AuthSettings().Enabled())
}

func TestFromMap_Overrides(t *testing.T) {
	cfg, err := FromMap(map[string]string{
		"SERVER_ADDRESS":              ":9000",
		"LOG_LEVEL":                   "WARNING",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "http://collector:4317",
		"OTEL_EXPORTER_OTLP_PROTOCOL": "grpc",
		"OTEL_EXPORTER_OTLP_INSECURE": "false",
		"OTEL_SAMPLING_RATE":          "0.25",
		"OTEL_METRICS_EXPORTER":       "none",
		"WEATHER_API_KEY":             "secretref:env:UPSTREAM_KEY",
		"WEATHER_CACHE_TTL":           "0s",
		"AUTH_API_KEYS":               "alpha, beta,,",
		"AUTH_JWT_SECRET":             "s3cret",
	})
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ServerAddress)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "secretref:env:UPSTREAM_KEY", cfg.Weather.APIKey)
	assert.False(t, cfg.CachePolicy().ShouldCache())

	a := cfg.AuthSettings()
	assert.Equal(t, []string{"alpha", "beta"}, a.APIKeys)
	assert.Equal(t, "s3cret", a.JWTSecret)

	obs := cfg.Observe("1.2.3", nil, nil)
	assert.Equal(t, "1.2.3", obs.Version)
	assert.Equal(t, exporters.ProtocolGRPC, obs.Tracing.Protocol)
	assert.False(t, obs.Tracing.Insecure)
	assert.Equal(t, 0.25, obs.Tracing.SamplePct)
	assert.False(t, obs.Metrics.Enabled)
	assert.Equal(t, exporters.KindOTLP, exporters.Select(exporters.TraceOptions{
		Endpoint: obs.Tracing.Endpoint,
		Protocol: obs.Tracing.Protocol,
	}).Kind)
}

func TestFromMap_Invalid(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want error
	}{
		{"protocol", map[string]string{"OTEL_EXPORTER_OTLP_PROTOCOL": "thrift"}, observe.ErrInvalidProtocol},
		{"sampling", map[string]string{"OTEL_SAMPLING_RATE": "1.5"}, observe.ErrInvalidSamplePct},
		{"metrics exporter", map[string]string{"OTEL_METRICS_EXPORTER": "statsd"}, observe.ErrInvalidMetricsExporter},
		{"log level", map[string]string{"LOG_LEVEL": "verbose"}, observe.ErrInvalidLogLevel},
		{"timeout", map[string]string{"WEATHER_TIMEOUT": "0s"}, ErrInvalid},
		{"attempts", map[string]string{"WEATHER_MAX_ATTEMPTS": "0"}, ErrInvalid},
		{"rate", map[string]string{"WEATHER_RATE_LIMIT": "0"}, ErrInvalid},
		{"concurrency", map[string]string{"WEATHER_MAX_CONCURRENT": "0"}, ErrInvalid},
		{"cache ttl", map[string]string{"WEATHER_CACHE_TTL": "-1m"}, ErrInvalid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromMap(tc.vars)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestFromMap_ParseError(t *testing.T) {
	_, err := FromMap(map[string]string{"WEATHER_TIMEOUT": "soon"})
	assert.ErrorContains(t, err, "config: parse")
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("WEATHER_TEST_ONLY_KEY=from-dotenv\nWEATHER_MAX_ATTEMPTS=5\n"), 0o600))
	t.Setenv("WEATHER_MAX_ATTEMPTS", "2")
	t.Cleanup(func() { _ = os.Unsetenv("WEATHER_TEST_ONLY_KEY") })

	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "from-dotenv", os.Getenv("WEATHER_TEST_ONLY_KEY"))
	assert.Equal(t, 2, cfg.Weather.MaxAttempts, "process env wins over .env")
}

func TestCachePolicy(t *testing.T) {
	cfg, err := FromMap(map[string]string{"WEATHER_CACHE_TTL": "2h"})
	require.NoError(t, err)

	p := cfg.CachePolicy()
	assert.Equal(t, 2*time.Hour, p.DefaultTTL)
	assert.Equal(t, 2*time.Hour, p.EffectiveTTL(0))
}

func TestResilience(t *testing.T) {
	cfg, err := FromMap(map[string]string{"WEATHER_RATE_LIMIT": "2.5", "WEATHER_RATE_BURST": "1"})
	require.NoError(t, err)

	r := cfg.Resilience()
	assert.Equal(t, 2.5, r.RateLimit)
	assert.Equal(t, 1, r.RateBurst)
	assert.Equal(t, 10*time.Second, r.Timeout)
	assert.Equal(t, 16, r.MaxConcurrent)
}
