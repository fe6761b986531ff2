package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/josephpugh/weather-mcp/auth"
	"github.com/josephpugh/weather-mcp/observe"
	"github.com/josephpugh/weather-mcp/resilience"
	"github.com/josephpugh/weather-mcp/weather"
)

type fetchFunc func(ctx context.Context, city string) (weather.Report, error)

func (f fetchFunc) Current(ctx context.Context, city string) (weather.Report, error) {
	return f(ctx, city)
}

func upstream(_ context.Context, city string) (weather.Report, error) {
	switch city {
	case "Boston":
		return weather.Report{Condition: "Sunny", TempF: 72.5, WindMPH: 5}, nil
	case "Atlantis":
		return weather.Report{}, &weather.UpstreamError{StatusCode: 400, Code: 1006, Message: "No matching location found."}
	case "Tripped":
		return weather.Report{}, resilience.ErrCircuitOpen
	default:
		return weather.Report{}, &weather.UpstreamError{StatusCode: 500}
	}
}

type testEnv struct {
	srv      *Server
	recorder *tracetest.SpanRecorder
}

func newEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	mw := observe.NewMiddleware(observe.NewTracer(tp.Tracer("weather-test")), nil, nil)
	svc := weather.NewService(fetchFunc(upstream), weather.WithMiddleware(mw))

	cfg.ServiceName = "weather-service"
	cfg.TracerProvider = tp
	return &testEnv{srv: New(cfg, svc, nil, nil), recorder: recorder}
}

func (e *testEnv) do(method, path, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		for _, vv := range v {
			req.Header.Add(k, vv)
		}
	}
	rec := httptest.NewRecorder()
	e.srv.Echo().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestGetWeather(t *testing.T) {
	env := newEnv(t, Config{})

	rec := env.do(http.MethodPost, "/get_weather", `{"city":"Boston"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"condition":"Sunny","temp_f":72.5,"wind_mph":5}`, rec.Body.String())

	var server, fetch sdktrace.ReadOnlySpan
	for _, s := range env.recorder.Ended() {
		switch {
		case s.SpanKind() == trace.SpanKindServer:
			server = s
		case s.Name() == weather.SpanFetch:
			fetch = s
		}
	}
	require.NotNil(t, server, "otelecho span")
	require.NotNil(t, fetch)
	assert.Equal(t, server.SpanContext().SpanID(), fetch.Parent().SpanID())
}

func TestGetWeather_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"blank city", `{"city":"  "}`, http.StatusBadRequest, "bad_request"},
		{"malformed body", `{"city":`, http.StatusBadRequest, "bad_request"},
		{"unknown city", `{"city":"Atlantis"}`, http.StatusNotFound, "city_not_found"},
		{"circuit open", `{"city":"Tripped"}`, http.StatusServiceUnavailable, "unavailable"},
		{"upstream failure", `{"city":"Paris"}`, http.StatusBadGateway, "upstream_error"},
	}
	env := newEnv(t, Config{})
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/get_weather", tc.body, nil)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decodeError(t, rec).Code)
		})
	}
}

func TestGetWeatherBatch(t *testing.T) {
	env := newEnv(t, Config{})

	rec := env.do(http.MethodPost, "/get_weather/batch", `{"cities":["Boston","Atlantis"]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "Sunny", resp.Results[0].Report.Condition)
	assert.Nil(t, resp.Results[1].Report)
	assert.Contains(t, resp.Results[1].Error, "No matching location")

	cities := make([]string, weather.MaxBatchSize+1)
	for i := range cities {
		cities[i] = fmt.Sprintf("%q", "Boston")
	}
	rec = env.do(http.MethodPost, "/get_weather/batch", `{"cities":[`+strings.Join(cities, ",")+`]}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/get_weather/batch", `{"cities":[]}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz_Untraced(t *testing.T) {
	env := newEnv(t, Config{})

	rec := env.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"OK"}`, rec.Body.String())
	assert.Empty(t, env.recorder.Ended())

	rec = env.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	calls := prometheus.NewCounter(prometheus.CounterOpts{Name: "weather_test_calls_total", Help: "test"})
	reg.MustRegister(calls)
	calls.Inc()

	env := newEnv(t, Config{Gatherer: reg})
	rec := env.do(http.MethodGet, MetricsPath, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "weather_test_calls_total 1")

	env = newEnv(t, Config{})
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, MetricsPath, "", nil).Code)
}

func TestMCPMount(t *testing.T) {
	mcp := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
	})
	env := newEnv(t, Config{MCPPath: "/mcp-server/mcp", MCP: mcp})

	rec := env.do(http.MethodPost, "/mcp-server/mcp", `{"jsonrpc":"2.0","id":1,"method":"ping"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"result"`)
}

func TestAuth(t *testing.T) {
	mcp := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := auth.IdentityFromContext(r.Context())
		if id == nil {
			http.Error(w, "no identity", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(id.Principal))
	})
	env := newEnv(t, Config{
		Authenticator: auth.NewAPIKeyAuthenticator("s3cret"),
		MCPPath:       "/mcp-server/mcp",
		MCP:           mcp,
	})
	key := http.Header{}
	key.Set(auth.APIKeyHeader, "s3cret")

	rec := env.do(http.MethodPost, "/get_weather", `{"city":"Boston"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
	assert.Equal(t, "unauthorized", decodeError(t, rec).Code)

	rec = env.do(http.MethodPost, "/get_weather", `{"city":"Boston"}`, key)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPost, "/mcp-server/mcp", `{}`, key)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "key:"))

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/mcp-server/mcp", `{}`, nil).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/healthz", "", nil).Code)

	// Header names match case-insensitively.
	lower := http.Header{"x-api-key": []string{"s3cret"}}
	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/get_weather", `{"city":"Boston"}`, lower).Code)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"city required", weather.ErrCityRequired, http.StatusBadRequest},
		{"too many", weather.ErrTooManyCities, http.StatusBadRequest},
		{"not found", &weather.UpstreamError{StatusCode: 400, Code: 1006}, http.StatusNotFound},
		{"rate limited", resilience.ErrRateLimitExceeded, http.StatusServiceUnavailable},
		{"bulkhead", fmt.Errorf("wrapped: %w", resilience.ErrBulkheadFull), http.StatusServiceUnavailable},
		{"timeout", errors.Join(resilience.ErrTimeout, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"upstream", &weather.UpstreamError{StatusCode: 503}, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusBadGateway},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, _ := classify(tc.err)
			assert.Equal(t, tc.status, status)
		})
	}
}

func TestRun_GracefulShutdown(t *testing.T) {
	env := newEnv(t, Config{Address: "127.0.0.1:0", ShutdownTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
