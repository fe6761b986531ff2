// Package mcpserver exposes the weather lookup as MCP tools, a resource
// template, and a prompt over streamable HTTP.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/josephpugh/weather-mcp/observe"
	"github.com/josephpugh/weather-mcp/weather"
)

const (
	// Name is the MCP server name announced during initialize.
	Name = "weather-service"

	// EndpointPath is where the streamable HTTP transport is mounted.
	EndpointPath = "/mcp-server/mcp"

	ToolGetWeather     = "get_weather"
	ToolGetWeatherMany = "get_weather_many"
	ForecastTemplate   = "weather://forecast/{city}"
	PromptGreeting     = "greeting_prompt"
)

// Span names and attribute keys.
const (
	SpanGetWeather     = "mcp.tool.get_weather"
	SpanGetWeatherMany = "mcp.tool.get_weather_many"
	SpanForecast       = "mcp.resource.weather_forecast"
	SpanGreeting       = "mcp.prompt.greeting_prompt"

	AttrToolSuccess     = "mcp.tool.success"
	AttrResourceSuccess = "mcp.resource.success"
	AttrPromptSuccess   = "mcp.prompt.success"
	AttrPromptName      = "prompt.name"
)

const forecastPrefix = "weather://forecast/"

// ErrNameRequired is returned when greeting_prompt is called without a name.
var ErrNameRequired = errors.New("mcpserver: name is required")

// BatchResult is the structured output of get_weather_many.
type BatchResult struct {
	Results []weather.Result `json:"results"`
}

// Server registers the weather capabilities on an MCP server.
type Server struct {
	mcp *server.MCPServer

	getWeather     observe.Func[string, weather.Report]
	getWeatherMany observe.Func[[]string, []weather.Result]
	forecast       observe.Func[string, weather.Report]
	greeting       observe.Func[string, string]
}

// New builds the MCP server over svc. Every handler is traced through mw.
func New(svc *weather.Service, mw *observe.Middleware, version string) *Server {
	s := &Server{
		mcp: server.NewMCPServer(Name, version,
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
			server.WithPromptCapabilities(false),
			server.WithRecovery(),
			server.WithInstructions("Current weather lookups by city name."),
		),
	}

	cityAttrs := observe.Attrs(func(city string) observe.Attributes {
		return observe.Attributes{weather.AttrCity: city}
	})
	s.getWeather = observe.Wrap[string, weather.Report](mw, observe.SpanSpec[string]{
		Name:             SpanGetWeather,
		SuccessAttribute: AttrToolSuccess,
		Attributes:       cityAttrs,
	}, svc.Lookup)
	s.getWeatherMany = observe.Wrap[[]string, []weather.Result](mw, observe.SpanSpec[[]string]{
		Name:             SpanGetWeatherMany,
		SuccessAttribute: AttrToolSuccess,
		Attributes: observe.Attrs(func(cities []string) observe.Attributes {
			return observe.Attributes{weather.AttrCityCount: len(cities)}
		}),
	}, svc.LookupMany)
	s.forecast = observe.Wrap[string, weather.Report](mw, observe.SpanSpec[string]{
		Name:             SpanForecast,
		SuccessAttribute: AttrResourceSuccess,
		Attributes:       cityAttrs,
	}, svc.Lookup)
	s.greeting = observe.Wrap[string, string](mw, observe.SpanSpec[string]{
		Name:             SpanGreeting,
		SuccessAttribute: AttrPromptSuccess,
		Attributes: observe.Attrs(func(name string) observe.Attributes {
			return observe.Attributes{AttrPromptName: name}
		}),
	}, func(_ context.Context, name string) (string, error) {
		return Greeting(name)
	})

	s.register()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Handler returns a stateless streamable HTTP handler served at EndpointPath.
// Incoming W3C trace context is honored when no span is active yet.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp,
		server.WithEndpointPath(EndpointPath),
		server.WithStateLess(true),
		server.WithHTTPContextFunc(extractTraceContext),
	)
}

// Greeting renders the greeting_prompt text.
func Greeting(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrNameRequired
	}
	return fmt.Sprintf("Write a warm, friendly greeting for %s.", name), nil
}

func (s *Server) register() {
	s.mcp.AddTool(mcp.NewTool(ToolGetWeather,
		mcp.WithDescription("Get the current weather for a city."),
		mcp.WithTitleAnnotation("Get weather"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
		mcp.WithString("city", mcp.Required(), mcp.MinLength(1), mcp.Description("City to get weather for")),
		mcp.WithOutputSchema[weather.Report](),
	), s.handleGetWeather)

	s.mcp.AddTool(mcp.NewTool(ToolGetWeatherMany,
		mcp.WithDescription("Get the current weather for several cities at once."),
		mcp.WithTitleAnnotation("Get weather for many cities"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
		mcp.WithArray("cities",
			mcp.Required(),
			mcp.MinItems(1),
			mcp.MaxItems(weather.MaxBatchSize),
			mcp.WithStringItems(),
			mcp.Description("Cities to get weather for"),
		),
		mcp.WithOutputSchema[BatchResult](),
	), s.handleGetWeatherMany)

	s.mcp.AddResourceTemplate(mcp.NewResourceTemplate(ForecastTemplate, "weather_forecast",
		mcp.WithTemplateDescription("Current weather for a city as JSON."),
		mcp.WithTemplateMIMEType("application/json"),
	), s.handleForecast)

	s.mcp.AddPrompt(mcp.NewPrompt(PromptGreeting,
		mcp.WithPromptDescription("A reusable prompt that asks for a friendly greeting."),
		mcp.WithArgument("name", mcp.ArgumentDescription("Who to greet"), mcp.RequiredArgument()),
	), s.handleGreeting)
}

func (s *Server) handleGetWeather(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	city, err := req.RequireString("city")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	report, err := s.getWeather(ctx, city)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("weather lookup failed", err), nil
	}
	return mcp.NewToolResultJSON(report)
}

func (s *Server) handleGetWeatherMany(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cities, err := req.RequireStringSlice("cities")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(cities) > weather.MaxBatchSize {
		return mcp.NewToolResultError(weather.ErrTooManyCities.Error()), nil
	}
	results, err := s.getWeatherMany(ctx, cities)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("weather lookup failed", err), nil
	}
	return mcp.NewToolResultJSON(BatchResult{Results: results})
}

func (s *Server) handleForecast(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	city, err := forecastCity(req)
	if err != nil {
		return nil, err
	}
	report, err := s.forecast(ctx, city)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(report)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(body),
		},
	}, nil
}

func (s *Server) handleGreeting(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	text, err := s.greeting(ctx, req.Params.Arguments["name"])
	if err != nil {
		return nil, err
	}
	return mcp.NewGetPromptResult("Friendly greeting", []mcp.PromptMessage{
		mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text)),
	}), nil
}

// forecastCity reads the {city} template variable, falling back to the URI.
func forecastCity(req mcp.ReadResourceRequest) (string, error) {
	switch v := req.Params.Arguments["city"].(type) {
	case string:
		return v, nil
	case []string:
		if len(v) > 0 {
			return v[0], nil
		}
	}
	rest, ok := strings.CutPrefix(req.Params.URI, forecastPrefix)
	if !ok {
		return "", fmt.Errorf("mcpserver: unexpected resource uri %q", req.Params.URI)
	}
	city, err := url.PathUnescape(rest)
	if err != nil {
		return "", fmt.Errorf("mcpserver: decode city: %w", err)
	}
	return city, nil
}

func extractTraceContext(ctx context.Context, r *http.Request) context.Context {
	if trace.SpanContextFromContext(ctx).IsValid() {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(r.Header))
}
