package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/josephpugh/weather-mcp/observe"
	"github.com/josephpugh/weather-mcp/weather"
)

type stubFetcher map[string]weather.Report

func (f stubFetcher) Current(_ context.Context, city string) (weather.Report, error) {
	r, ok := f[city]
	if !ok {
		return weather.Report{}, &weather.UpstreamError{StatusCode: 400, Code: 1006, Message: "No matching location found."}
	}
	return r, nil
}

var fixtures = stubFetcher{
	"Lisbon": {Condition: "Sunny", TempF: 72.5, WindMPH: 5},
	"Rome":   {Condition: "Clear", TempF: 80, WindMPH: 2},
}

func newTestServer(t *testing.T) (*Server, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	mw := observe.NewMiddleware(observe.NewTracer(tp.Tracer("weather-service.mcp")), nil, nil)
	svc := weather.NewService(fixtures, weather.WithMiddleware(mw))
	return New(svc, mw, "test"), recorder
}

func newClient(t *testing.T, s *Server) *client.Client {
	t.Helper()
	c, err := client.NewInProcessClient(s.MCPServer())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	initialize(t, c)
	return c
}

func initialize(t *testing.T, c *client.Client) *mcp.InitializeResult {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	res, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo:      mcp.Implementation{Name: "weather-test", Version: "1.0.0"},
		},
	})
	require.NoError(t, err)
	return res
}

func findSpan(t *testing.T, recorder *tracetest.SpanRecorder, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, s := range recorder.Ended() {
		if s.Name() == name {
			return s
		}
	}
	t.Fatalf("span %q not recorded", name)
	return nil
}

func attr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func callTool(t *testing.T, c *client.Client, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := c.CallTool(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	require.NoError(t, err)
	return res
}

func text(t *testing.T, content mcp.Content) string {
	t.Helper()
	tc, ok := mcp.AsTextContent(content)
	require.True(t, ok, "expected text content, got %T", content)
	return tc.Text
}

func TestInitialize_AdvertisesCapabilities(t *testing.T) {
	s, _ := newTestServer(t)
	c, err := client.NewInProcessClient(s.MCPServer())
	require.NoError(t, err)
	defer c.Close()

	res := initialize(t, c)
	assert.Equal(t, Name, res.ServerInfo.Name)
	assert.NotNil(t, res.Capabilities.Tools)
	assert.NotNil(t, res.Capabilities.Resources)
	assert.NotNil(t, res.Capabilities.Prompts)

	tools, err := c.ListTools(context.Background(), mcp.ListToolsRequest{})
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{ToolGetWeather, ToolGetWeatherMany}, names)
}

func TestGetWeather_Success(t *testing.T) {
	s, recorder := newTestServer(t)
	c := newClient(t, s)

	res := callTool(t, c, ToolGetWeather, map[string]any{"city": "Lisbon"})
	require.False(t, res.IsError)
	require.Len(t, res.Content, 1)

	var report weather.Report
	require.NoError(t, json.Unmarshal([]byte(text(t, res.Content[0])), &report))
	assert.Equal(t, fixtures["Lisbon"], report)

	span := findSpan(t, recorder, SpanGetWeather)
	city, _ := attr(span, weather.AttrCity)
	assert.Equal(t, "Lisbon", city.AsString())
	success, ok := attr(span, AttrToolSuccess)
	require.True(t, ok)
	assert.True(t, success.AsBool())
	assert.Equal(t, codes.Ok, span.Status().Code)
	assert.Empty(t, span.Events())

	fetch := findSpan(t, recorder, weather.SpanFetch)
	assert.Equal(t, span.SpanContext().SpanID(), fetch.Parent().SpanID())
}

func TestGetWeather_FailureIsToolError(t *testing.T) {
	s, recorder := newTestServer(t)
	c := newClient(t, s)

	res := callTool(t, c, ToolGetWeather, map[string]any{"city": "Oslo"})
	require.True(t, res.IsError)
	assert.Contains(t, text(t, res.Content[0]), "weather lookup failed")

	span := findSpan(t, recorder, SpanGetWeather)
	city, _ := attr(span, weather.AttrCity)
	assert.Equal(t, "Oslo", city.AsString())
	success, ok := attr(span, AttrToolSuccess)
	require.True(t, ok)
	assert.False(t, success.AsBool())
	assert.Equal(t, codes.Error, span.Status().Code)
	require.NotEmpty(t, span.Events())
	assert.Equal(t, "exception", span.Events()[0].Name)
}

func TestGetWeather_MissingCity(t *testing.T) {
	s, recorder := newTestServer(t)
	c := newClient(t, s)

	res := callTool(t, c, ToolGetWeather, map[string]any{})
	assert.True(t, res.IsError)
	for _, span := range recorder.Ended() {
		assert.NotEqual(t, SpanGetWeather, span.Name(), "no span for rejected arguments")
	}
}

func TestGetWeatherMany(t *testing.T) {
	s, recorder := newTestServer(t)
	c := newClient(t, s)

	res := callTool(t, c, ToolGetWeatherMany, map[string]any{"cities": []any{"Lisbon", "Atlantis", "Rome"}})
	require.False(t, res.IsError)

	var batch BatchResult
	require.NoError(t, json.Unmarshal([]byte(text(t, res.Content[0])), &batch))
	require.Len(t, batch.Results, 3)
	assert.Equal(t, "Lisbon", batch.Results[0].City)
	require.NotNil(t, batch.Results[0].Report)
	assert.Equal(t, "Sunny", batch.Results[0].Report.Condition)
	assert.Nil(t, batch.Results[1].Report)
	assert.NotEmpty(t, batch.Results[1].Error)
	assert.Equal(t, "Clear", batch.Results[2].Report.Condition)

	span := findSpan(t, recorder, SpanGetWeatherMany)
	count, _ := attr(span, weather.AttrCityCount)
	assert.Equal(t, int64(3), count.AsInt64())
}

func TestGetWeatherMany_TooMany(t *testing.T) {
	s, _ := newTestServer(t)
	c := newClient(t, s)

	cities := make([]any, weather.MaxBatchSize+1)
	for i := range cities {
		cities[i] = "Lisbon"
	}
	res := callTool(t, c, ToolGetWeatherMany, map[string]any{"cities": cities})
	require.True(t, res.IsError)
	assert.Equal(t, weather.ErrTooManyCities.Error(), text(t, res.Content[0]))
}

func TestForecastResource(t *testing.T) {
	s, recorder := newTestServer(t)
	c := newClient(t, s)

	res, err := c.ReadResource(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "weather://forecast/Rome"},
	})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	contents, ok := mcp.AsTextResourceContents(res.Contents[0])
	require.True(t, ok)
	assert.Equal(t, "application/json", contents.MIMEType)
	assert.JSONEq(t, `{"condition":"Clear","temp_f":80,"wind_mph":2}`, contents.Text)

	span := findSpan(t, recorder, SpanForecast)
	city, _ := attr(span, weather.AttrCity)
	assert.Equal(t, "Rome", city.AsString())
	success, _ := attr(span, AttrResourceSuccess)
	assert.True(t, success.AsBool())
}

func TestForecastResource_UnknownCity(t *testing.T) {
	s, recorder := newTestServer(t)
	c := newClient(t, s)

	_, err := c.ReadResource(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "weather://forecast/Atlantis"},
	})
	require.Error(t, err)

	span := findSpan(t, recorder, SpanForecast)
	success, _ := attr(span, AttrResourceSuccess)
	assert.False(t, success.AsBool())
	assert.Equal(t, codes.Error, span.Status().Code)
}

func TestForecastCity(t *testing.T) {
	tests := []struct {
		name string
		req  mcp.ReadResourceRequest
		want string
	}{
		{"string arg", readReq("weather://forecast/x", map[string]any{"city": "Paris"}), "Paris"},
		{"slice arg", readReq("weather://forecast/x", map[string]any{"city": []string{"Lima"}}), "Lima"},
		{"from uri", readReq("weather://forecast/New%20York", nil), "New York"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := forecastCity(tc.req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := forecastCity(readReq("weather://other/Paris", nil))
	assert.Error(t, err)
}

func readReq(uri string, args map[string]any) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{Params: mcp.ReadResourceParams{URI: uri, Arguments: args}}
}

func TestGreetingPrompt(t *testing.T) {
	s, recorder := newTestServer(t)
	c := newClient(t, s)

	res, err := c.GetPrompt(context.Background(), mcp.GetPromptRequest{
		Params: mcp.GetPromptParams{Name: PromptGreeting, Arguments: map[string]string{"name": "Sky"}},
	})
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, mcp.RoleUser, res.Messages[0].Role)
	assert.Equal(t, "Write a warm, friendly greeting for Sky.", text(t, res.Messages[0].Content))

	span := findSpan(t, recorder, SpanGreeting)
	name, _ := attr(span, AttrPromptName)
	assert.Equal(t, "Sky", name.AsString())
	success, _ := attr(span, AttrPromptSuccess)
	assert.True(t, success.AsBool())
}

func TestGreeting(t *testing.T) {
	msg, err := Greeting("Cassie")
	require.NoError(t, err)
	assert.Contains(t, msg, "Cassie")
	assert.Contains(t, strings.ToLower(msg), "friendly")

	_, err = Greeting("  ")
	assert.True(t, errors.Is(err, ErrNameRequired))
}

func TestHandler_StreamableHTTP(t *testing.T) {
	s, recorder := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	c, err := client.NewStreamableHttpClient(ts.URL + EndpointPath)
	require.NoError(t, err)
	defer c.Close()
	initialize(t, c)

	res := callTool(t, c, ToolGetWeather, map[string]any{"city": "Rome"})
	require.False(t, res.IsError)
	assert.Contains(t, text(t, res.Content[0]), `"condition":"Clear"`)
	findSpan(t, recorder, SpanGetWeather)
}
