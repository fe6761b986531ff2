package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Backoff returns the delay to wait after the given failed attempt (1-based).
type Backoff func(attempt int) time.Duration

// ExponentialBackoff doubles (by multiplier) from initial up to max.
func ExponentialBackoff(initial, max time.Duration, multiplier float64) Backoff {
	if multiplier <= 1 {
		multiplier = 2
	}
	return func(attempt int) time.Duration {
		d := time.Duration(float64(initial) * math.Pow(multiplier, float64(attempt-1)))
		if d > max || d <= 0 {
			return max
		}
		return d
	}
}

// ConstantBackoff waits d between every attempt.
func ConstantBackoff(d time.Duration) Backoff {
	return func(int) time.Duration { return d }
}

// RetryConfig configures the retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	// Default: 3
	MaxAttempts int

	// Backoff computes the delay between attempts.
	// Default: ExponentialBackoff(100ms, 2s, 2)
	Backoff Backoff

	// Jitter adds up to 25% random delay.
	Jitter bool

	// RetryIf reports whether err is worth another attempt.
	// Default: every non-nil error that is not a guard rejection.
	RetryIf func(err error) bool

	// OnRetry is called before sleeping ahead of the next attempt.
	OnRetry func(ctx context.Context, attempt int, err error, delay time.Duration)
}

// Retry re-runs failed operations with backoff.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a new retry handler.
func NewRetry(config RetryConfig) *Retry {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.Backoff == nil {
		config.Backoff = ExponentialBackoff(100*time.Millisecond, 2*time.Second, 2)
	}
	if config.RetryIf == nil {
		config.RetryIf = func(err error) bool { return !IsRejection(err) }
	}
	return &Retry{config: config}
}

// Execute runs op until it succeeds, returns a non-retryable error, or
// MaxAttempts is reached. The last error is returned unchanged.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if attempt >= r.config.MaxAttempts || !r.config.RetryIf(err) {
			return err
		}

		delay := r.delay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(ctx, attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *Retry) delay(attempt int) time.Duration {
	d := r.config.Backoff(attempt)
	if r.config.Jitter && d >= 4 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		d += time.Duration(rand.Int64N(int64(d / 4)))
	}
	return d
}

// MaxAttempts returns the configured attempt budget.
func (r *Retry) MaxAttempts() int {
	return r.config.MaxAttempts
}
