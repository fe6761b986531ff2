package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/josephpugh/weather-mcp/cache"
	"github.com/josephpugh/weather-mcp/health"
	"github.com/josephpugh/weather-mcp/internal/config"
	"github.com/josephpugh/weather-mcp/observe"
	"github.com/josephpugh/weather-mcp/resilience"
	"github.com/josephpugh/weather-mcp/secret"
	"github.com/josephpugh/weather-mcp/weather"
)

// app holds the components shared by serve and lookup.
type app struct {
	cfg      *config.Config
	obs      observe.Observer
	mw       *observe.Middleware
	log      observe.Logger
	svc      *weather.Service
	cache    *cache.MemoryCache
	health   *health.Aggregator
	registry *prometheus.Registry
}

// newApp bootstraps telemetry and the weather service. Console spans and
// logs go to out.
func newApp(ctx context.Context, cfg *config.Config, out io.Writer) (*app, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ocfg := cfg.Observe(version, out, out)
	ocfg.Metrics.Registerer = registry
	obs, err := observe.NewObserver(ctx, ocfg)
	if err != nil {
		return nil, err
	}
	mw, err := observe.MiddlewareFromObserver(obs)
	if err != nil {
		_ = obs.Shutdown(ctx)
		return nil, err
	}
	a := &app{
		cfg:      cfg,
		obs:      obs,
		mw:       mw,
		log:      obs.Logger(),
		registry: registry,
	}

	key, err := resolveAPIKey(ctx, cfg.Weather.APIKey)
	if err != nil {
		_ = obs.Shutdown(ctx)
		return nil, err
	}
	if key == "" {
		a.log.Warn(ctx, "WEATHER_API_KEY is not set; upstream requests will be rejected")
	}

	client, err := weather.NewClient(weather.ClientConfig{
		BaseURL: cfg.Weather.BaseURL,
		APIKey:  key,
		Timeout: cfg.Weather.Timeout,
	})
	if err != nil {
		_ = obs.Shutdown(ctx)
		return nil, err
	}

	rc := cfg.Resilience()
	breakerLog := a.log.Named("resilience")
	rc.OnStateChange = func(name string, from, to resilience.State) {
		breakerLog.Warn(context.Background(), "circuit breaker state changed",
			observe.Field{Key: "breaker", Value: name},
			observe.Field{Key: "from", Value: from.String()},
			observe.Field{Key: "to", Value: to.String()},
		)
	}
	opts := []weather.Option{
		weather.WithExecutor(weather.NewExecutor(rc)),
		weather.WithMiddleware(mw),
	}
	if policy := cfg.CachePolicy(); policy.ShouldCache() {
		a.cache = cache.NewMemoryCache(policy)
		opts = append(opts, weather.WithCache(a.cache, policy))
	}
	a.svc = weather.NewService(client, opts...)

	a.health = health.NewAggregator(health.AggregatorConfig{})
	a.health.Register(health.NewMemoryChecker(health.MemoryCheckerConfig{}))
	a.health.Register(health.NewBreakerChecker("weatherapi", a.svc.Breaker()))
	return a, nil
}

// purgeLoop drops expired cache entries until ctx is done.
func (a *app) purgeLoop(ctx context.Context) {
	if a.cache == nil {
		return
	}
	interval := a.cfg.Weather.CacheTTL
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.cache.Purge(); n > 0 {
				a.log.Debug(ctx, "purged expired cache entries", observe.Field{Key: "count", Value: n})
			}
		}
	}
}

// close flushes telemetry.
func (a *app) close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout)
	defer cancel()
	return a.obs.Shutdown(ctx)
}

// resolveAPIKey expands ${VAR} references and secretref:<provider>:<ref>
// values through the default secret providers.
func resolveAPIKey(ctx context.Context, raw string) (key string, err error) {
	if raw == "" {
		return "", nil
	}
	resolver, err := secret.DefaultRegistry.Resolver(true, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		err = errors.Join(err, resolver.Close())
	}()

	key, err = resolver.ResolveValue(ctx, raw)
	if err != nil {
		return "", fmt.Errorf("resolve WEATHER_API_KEY: %w", err)
	}
	return key, nil
}
