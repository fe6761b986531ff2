// Package resilience guards calls to the upstream weather provider.
//
// An Executor chains the individual guards around one operation, from the
// outside in:
//
//	rate limiter -> bulkhead -> circuit breaker -> retry -> per-attempt timeout
//
// Each guard can also be used on its own. Errors produced by the guards are
// the sentinels in errors.go; errors produced by the operation are returned
// unchanged.
//
//	exec := resilience.NewExecutor(
//	    resilience.WithRateLimiter(resilience.NewRateLimiter(resilience.RateLimiterConfig{Rate: 10, Burst: 5})),
//	    resilience.WithBulkhead(resilience.NewBulkhead(resilience.BulkheadConfig{MaxConcurrent: 16})),
//	    resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "weatherapi"})),
//	    resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{MaxAttempts: 3})),
//	    resilience.WithTimeout(10*time.Second),
//	)
//
//	report, err := resilience.Do(ctx, exec, func(ctx context.Context) (Report, error) {
//	    return client.Current(ctx, city)
//	})
package resilience
