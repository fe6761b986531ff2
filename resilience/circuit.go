package resilience

import (
	"context"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects every call until the reset timeout elapses.
	StateOpen
	// StateHalfOpen lets a limited number of probe calls through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies the breaker in state change notifications.
	Name string

	// MaxFailures is the number of consecutive failures that opens the circuit.
	// Default: 5
	MaxFailures int

	// ResetTimeout is how long the circuit stays open before probing.
	// Default: 30s
	ResetTimeout time.Duration

	// HalfOpenMaxRequests is the number of concurrent probes allowed.
	// Default: 1
	HalfOpenMaxRequests int

	// OnStateChange is called after every transition, outside the breaker lock.
	OnStateChange func(name string, from, to State)

	// IsFailure reports whether err counts against the circuit.
	// Default: every non-nil error.
	IsFailure func(err error) bool

	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

// CircuitBreaker stops calling an upstream that keeps failing.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu       sync.Mutex
	state    State
	failures int
	probes   int
	openedAt time.Time
	stats    CircuitBreakerMetrics
}

// CircuitBreakerMetrics is a snapshot of breaker statistics.
type CircuitBreakerMetrics struct {
	State               State
	ConsecutiveFailures int
	TotalFailures       int64
	TotalSuccesses      int64
	Rejected            int64
	OpenedAt            time.Time
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil }
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &CircuitBreaker{config: config}
}

// Name returns the configured name.
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}

// Allow reserves a call. On success the returned done func must be called
// exactly once with the call's error.
func (cb *CircuitBreaker) Allow() (done func(err error), err error) {
	cb.mu.Lock()
	from, to := cb.advanceLocked()
	switch cb.state {
	case StateOpen:
		cb.stats.Rejected++
		cb.mu.Unlock()
		cb.notify(from, to)
		return nil, ErrCircuitOpen
	case StateHalfOpen:
		if cb.probes >= cb.config.HalfOpenMaxRequests {
			cb.stats.Rejected++
			cb.mu.Unlock()
			cb.notify(from, to)
			return nil, ErrCircuitOpen
		}
		cb.probes++
	}
	cb.mu.Unlock()
	cb.notify(from, to)

	var once sync.Once
	return func(err error) {
		once.Do(func() { cb.record(err) })
	}, nil
}

// Execute runs op through the breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	done, err := cb.Allow()
	if err != nil {
		return err
	}
	err = op(ctx)
	done(err)
	return err
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	from, to := cb.advanceLocked()
	state := cb.state
	cb.mu.Unlock()
	cb.notify(from, to)
	return state
}

// Metrics returns a snapshot of the breaker statistics.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	from, to := cb.advanceLocked()
	m := cb.stats
	m.State = cb.state
	m.ConsecutiveFailures = cb.failures
	m.OpenedAt = cb.openedAt
	cb.mu.Unlock()
	cb.notify(from, to)
	return m
}

// Reset closes the circuit and clears the failure count.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.setLocked(StateClosed)
	cb.mu.Unlock()
	cb.notify(from, StateClosed)
}

func (cb *CircuitBreaker) record(err error) {
	failed := cb.config.IsFailure(err)

	cb.mu.Lock()
	from := cb.state
	if failed {
		cb.stats.TotalFailures++
	} else {
		cb.stats.TotalSuccesses++
	}

	switch cb.state {
	case StateClosed:
		if !failed {
			cb.failures = 0
			break
		}
		cb.failures++
		if cb.failures >= cb.config.MaxFailures {
			cb.setLocked(StateOpen)
		}
	case StateHalfOpen:
		if cb.probes > 0 {
			cb.probes--
		}
		if failed {
			cb.setLocked(StateOpen)
		} else {
			cb.setLocked(StateClosed)
		}
	}
	to := cb.state
	cb.mu.Unlock()
	cb.notify(from, to)
}

// advanceLocked moves an expired open circuit to half-open.
func (cb *CircuitBreaker) advanceLocked() (from, to State) {
	from = cb.state
	if cb.state == StateOpen && cb.config.Now().Sub(cb.openedAt) >= cb.config.ResetTimeout {
		cb.setLocked(StateHalfOpen)
	}
	return from, cb.state
}

func (cb *CircuitBreaker) setLocked(s State) {
	cb.state = s
	cb.probes = 0
	switch s {
	case StateOpen:
		cb.openedAt = cb.config.Now()
	case StateClosed:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, from, to)
	}
}
