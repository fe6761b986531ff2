package weather

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/josephpugh/weather-mcp/cache"
	"github.com/josephpugh/weather-mcp/observe"
	"github.com/josephpugh/weather-mcp/resilience"
)

// Span names and attribute keys recorded by Service.
const (
	SpanFetch       = "weather.fetch"
	SpanFetchMany   = "weather.fetch_many"
	AttrCity        = "weather.city"
	AttrCityCount   = "weather.city_count"
	AttrSuccess     = "weather.success"
	AttrCacheResult = "weather.cache"
)

// MaxBatchSize bounds LookupMany.
const MaxBatchSize = 25

// Option configures a Service.
type Option func(*Service)

// WithCache caches reports in c under policy.
func WithCache(c cache.Cache, policy cache.Policy) Option {
	return func(s *Service) {
		s.loader = cache.NewLoader[Report](c, policy)
	}
}

// WithExecutor guards upstream calls with e.
func WithExecutor(e *resilience.Executor) Option {
	return func(s *Service) {
		s.exec = e
	}
}

// WithMiddleware traces lookups through m.
func WithMiddleware(m *observe.Middleware) Option {
	return func(s *Service) {
		s.mw = m
	}
}

// Service is the single weather lookup shared by every entry point.
type Service struct {
	fetcher Fetcher
	loader  *cache.Loader[Report]
	exec    *resilience.Executor
	mw      *observe.Middleware
	keyer   cache.Keyer
	log     observe.Logger

	lookup    observe.Func[string, Report]
	lookupOne observe.AsyncFunc[string, Report]
	lookupAll observe.Func[[]string, []Result]
}

// NewService creates a Service over fetcher. Without options it neither
// caches nor retries.
func NewService(fetcher Fetcher, opts ...Option) *Service {
	s := &Service{
		fetcher: fetcher,
		loader:  cache.NewLoader[Report](nil, cache.NoCachePolicy()),
		mw:      observe.NoopMiddleware(),
		keyer:   cache.NewDefaultKeyer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.mw.Logger().Named("weather")

	fetchSpec := observe.SpanSpec[string]{
		Name:             SpanFetch,
		SuccessAttribute: AttrSuccess,
		Attributes: observe.Attrs(func(city string) observe.Attributes {
			return observe.Attributes{AttrCity: city}
		}),
	}
	s.lookup = observe.Wrap[string, Report](s.mw, fetchSpec, s.fetch)
	s.lookupOne = observe.WrapAsync(s.mw, fetchSpec, observe.Go[string, Report](s.fetch))
	s.lookupAll = observe.Wrap[[]string, []Result](s.mw, observe.SpanSpec[[]string]{
		Name:             SpanFetchMany,
		SuccessAttribute: AttrSuccess,
		Attributes: observe.Attrs(func(cities []string) observe.Attributes {
			return observe.Attributes{AttrCityCount: len(cities)}
		}),
	}, s.fetchMany)
	return s
}

// Lookup returns the current weather for city.
func (s *Service) Lookup(ctx context.Context, city string) (Report, error) {
	city, err := NormalizeCity(city)
	if err != nil {
		return Report{}, err
	}
	return s.lookup(ctx, city)
}

// LookupAsync starts a lookup on its own goroutine.
func (s *Service) LookupAsync(ctx context.Context, city string) *observe.Future[Report] {
	city, err := NormalizeCity(city)
	if err != nil {
		return observe.Completed(Report{}, err)
	}
	return s.lookupOne(ctx, city)
}

// LookupMany fans out one lookup per city and returns results in input order.
// Per-city failures are reported in the Result; otherwise the returned error
// is only set for an empty or oversized batch, or when ctx ends first.
func (s *Service) LookupMany(ctx context.Context, cities []string) ([]Result, error) {
	switch {
	case len(cities) == 0:
		return nil, ErrCityRequired
	case len(cities) > MaxBatchSize:
		return nil, ErrTooManyCities
	}
	return s.lookupAll(ctx, cities)
}

// Breaker returns the upstream circuit breaker, if one is configured.
func (s *Service) Breaker() *resilience.CircuitBreaker {
	if s.exec == nil {
		return nil
	}
	return s.exec.CircuitBreaker()
}

// CacheStats returns cache loader counters.
func (s *Service) CacheStats() cache.LoaderStats {
	return s.loader.Stats()
}

func (s *Service) fetch(ctx context.Context, city string) (Report, error) {
	s.log.Info(ctx, "Fetching weather", observe.Field{Key: "city", Value: city})

	key, err := s.keyer.Key("weather", strings.ToLower(city))
	if err != nil {
		return Report{}, err
	}

	report, outcome, err := s.loader.Load(ctx, key, func(ctx context.Context) (Report, error) {
		return resilience.Do(ctx, s.exec, func(ctx context.Context) (Report, error) {
			return s.fetcher.Current(ctx, city)
		})
	})
	trace.SpanFromContext(ctx).SetAttributes(attribute.String(AttrCacheResult, outcome.String()))
	return report, err
}

func (s *Service) fetchMany(ctx context.Context, cities []string) ([]Result, error) {
	futures := make([]*observe.Future[Report], len(cities))
	for i, city := range cities {
		futures[i] = s.LookupAsync(ctx, city)
	}

	results := make([]Result, len(cities))
	for i, f := range futures {
		report, err := f.Await(ctx)
		if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			for _, rest := range futures[i:] {
				rest.Cancel()
			}
			return nil, ctx.Err()
		}
		results[i] = Result{City: strings.TrimSpace(cities[i])}
		if err != nil {
			results[i].Err = err
			results[i].Error = err.Error()
			continue
		}
		results[i].Report = &report
	}
	return results, nil
}

// ResilienceConfig sizes the upstream guard.
type ResilienceConfig struct {
	MaxAttempts   int
	Timeout       time.Duration
	RateLimit     float64
	RateBurst     int
	MaxConcurrent int
	OnStateChange func(name string, from, to resilience.State)
}

// NewExecutor builds the upstream guard: rate limiter, bulkhead, circuit
// breaker, retry with exponential backoff, per-attempt timeout. Only
// transient upstream errors are retried or counted against the breaker.
func NewExecutor(cfg ResilienceConfig) *resilience.Executor {
	return resilience.NewExecutor(
		resilience.WithRateLimiter(resilience.NewRateLimiter(resilience.RateLimiterConfig{
			Rate:    cfg.RateLimit,
			Burst:   cfg.RateBurst,
			MaxWait: cfg.Timeout,
		})),
		resilience.WithBulkhead(resilience.NewBulkhead(resilience.BulkheadConfig{
			MaxConcurrent: cfg.MaxConcurrent,
			MaxWait:       cfg.Timeout,
		})),
		resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:          "weatherapi",
			OnStateChange: cfg.OnStateChange,
			IsFailure:     IsTransient,
		})),
		resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{
			MaxAttempts: cfg.MaxAttempts,
			Jitter:      true,
			RetryIf: func(err error) bool {
				return !resilience.IsRejection(err) && IsTransient(err)
			},
		})),
		resilience.WithTimeout(cfg.Timeout),
	)
}
