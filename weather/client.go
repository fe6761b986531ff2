package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// DefaultBaseURL is the public weatherapi.com endpoint.
const DefaultBaseURL = "https://api.weatherapi.com"

// Fetcher returns the current weather for a city.
type Fetcher interface {
	Current(ctx context.Context, city string) (Report, error)
}

// ClientConfig configures Client.
type ClientConfig struct {
	BaseURL string
	APIKey  string

	// Timeout bounds a whole request. Default: 30s.
	Timeout time.Duration

	// Transport is wrapped with otelhttp. Default: http.DefaultTransport.
	Transport http.RoundTripper

	// TracerProvider for client spans. Default: the global provider.
	TracerProvider trace.TracerProvider
}

// Client calls GET {base}/v1/current.json?q={city}&key={key}.
type Client struct {
	base   *url.URL
	apiKey string
	http   *http.Client
}

// NewClient creates a weatherapi.com client. Each request gets a client span.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("weather: invalid base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	rt := cfg.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}

	opts := []otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "weatherapi " + r.Method + " " + r.URL.Path
		}),
	}
	if cfg.TracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(cfg.TracerProvider))
	}

	// The key is added beneath otelhttp so url.full on the client span
	// never carries it.
	return &Client{
		base:   base,
		apiKey: cfg.APIKey,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(&keyTransport{key: cfg.APIKey, next: rt}, opts...),
		},
	}, nil
}

// keyTransport appends the key query parameter to outgoing requests.
type keyTransport struct {
	key  string
	next http.RoundTripper
}

func (t *keyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if t.key == "" {
		return t.next.RoundTrip(r)
	}
	out := r.Clone(r.Context())
	q := out.URL.Query()
	q.Set("key", t.key)
	out.URL.RawQuery = q.Encode()
	return t.next.RoundTrip(out)
}

type currentResponse struct {
	Current struct {
		Condition struct {
			Text string `json:"text"`
		} `json:"condition"`
		TempF   float64 `json:"temp_f"`
		WindMPH float64 `json:"wind_mph"`
	} `json:"current"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Current fetches current conditions for city.
func (c *Client) Current(ctx context.Context, city string) (Report, error) {
	city, err := NormalizeCity(city)
	if err != nil {
		return Report{}, err
	}

	u := c.base.JoinPath("v1", "current.json")
	q := url.Values{}
	q.Set("q", city)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Report{}, ctxErr
		}
		return Report{}, fmt.Errorf("%w: %v", ErrUpstream, redactKey(err, c.apiKey))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Report{}, fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}

	if resp.StatusCode != http.StatusOK {
		ue := &UpstreamError{StatusCode: resp.StatusCode}
		var er errorResponse
		if json.Unmarshal(body, &er) == nil {
			ue.Code, ue.Message = er.Error.Code, er.Error.Message
		}
		return Report{}, ue
	}

	var cr currentResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return Report{}, fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}
	return Report{
		Condition: cr.Current.Condition.Text,
		TempF:     cr.Current.TempF,
		WindMPH:   cr.Current.WindMPH,
	}, nil
}

// redactKey keeps the API key out of transport errors, which embed the URL.
func redactKey(err error, key string) string {
	msg := err.Error()
	if key == "" {
		return msg
	}
	return strings.ReplaceAll(msg, url.QueryEscape(key), "REDACTED")
}

var _ Fetcher = (*Client)(nil)
