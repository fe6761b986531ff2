package health

import (
	"context"
	"fmt"

	"github.com/josephpugh/weather-mcp/resilience"
)

// BreakerChecker reports the state of a circuit breaker guarding an
// upstream: closed is healthy, half-open is degraded, open is unhealthy.
type BreakerChecker struct {
	name    string
	breaker *resilience.CircuitBreaker
}

// NewBreakerChecker creates a checker named name for cb.
func NewBreakerChecker(name string, cb *resilience.CircuitBreaker) *BreakerChecker {
	return &BreakerChecker{name: name, breaker: cb}
}

func (b *BreakerChecker) Name() string { return b.name }

func (b *BreakerChecker) Check(context.Context) Result {
	if b.breaker == nil {
		return Healthy("no circuit breaker configured")
	}

	m := b.breaker.Metrics()
	details := map[string]any{
		"state":                m.State.String(),
		"consecutive_failures": m.ConsecutiveFailures,
		"total_failures":       m.TotalFailures,
		"rejected":             m.Rejected,
	}

	switch m.State {
	case resilience.StateOpen:
		return Unhealthy(fmt.Sprintf("circuit %s open", b.breaker.Name()), resilience.ErrCircuitOpen).WithDetails(details)
	case resilience.StateHalfOpen:
		return Degraded(fmt.Sprintf("circuit %s probing", b.breaker.Name())).WithDetails(details)
	default:
		return Healthy(fmt.Sprintf("circuit %s closed", b.breaker.Name())).WithDetails(details)
	}
}
