// Package health reports whether the weather service can serve traffic.
//
// A Checker reports the Status of one dependency. The Aggregator runs every
// registered checker concurrently under a shared timeout and folds the
// results into an overall Status: any unhealthy check makes the service
// unhealthy, any degraded check makes it degraded.
//
// Built-in checkers cover process memory (MemoryChecker) and the upstream
// circuit breaker (BreakerChecker).
//
// The echo handlers expose the usual probe endpoints:
//
//	health.Register(e, agg)
//	// GET /healthz -> {"status":"OK"}
//	// GET /readyz  -> 200 OK / DEGRADED, 503 UNHEALTHY
//	// GET /health  -> per-check JSON report
package health
