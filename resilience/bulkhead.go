package resilience

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// BulkheadConfig configures the bulkhead.
type BulkheadConfig struct {
	// MaxConcurrent is the maximum number of concurrent operations.
	// Default: 16
	MaxConcurrent int

	// MaxWait is how long a call may queue for a slot. Zero fails immediately.
	MaxWait time.Duration
}

// Bulkhead caps the number of in-flight upstream calls.
type Bulkhead struct {
	sem     *semaphore.Weighted
	max     int
	maxWait time.Duration

	active    atomic.Int64
	maxActive atomic.Int64
	rejected  atomic.Int64
}

// BulkheadMetrics contains bulkhead statistics.
type BulkheadMetrics struct {
	Active        int
	MaxActive     int
	Available     int
	MaxConcurrent int
	Rejected      int64
}

// NewBulkhead creates a new bulkhead.
func NewBulkhead(config BulkheadConfig) *Bulkhead {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 16
	}
	return &Bulkhead{
		sem:     semaphore.NewWeighted(int64(config.MaxConcurrent)),
		max:     config.MaxConcurrent,
		maxWait: config.MaxWait,
	}
}

// Acquire takes a slot. It returns ErrBulkheadFull when none frees up within MaxWait.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	if !b.sem.TryAcquire(1) {
		if b.maxWait <= 0 {
			b.rejected.Add(1)
			return ErrBulkheadFull
		}

		wctx, cancel := context.WithTimeout(ctx, b.maxWait)
		defer cancel()
		if err := b.sem.Acquire(wctx, 1); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.rejected.Add(1)
			return ErrBulkheadFull
		}
	}

	n := b.active.Add(1)
	for {
		peak := b.maxActive.Load()
		if n <= peak || b.maxActive.CompareAndSwap(peak, n) {
			break
		}
	}
	return nil
}

// Release frees a slot taken by Acquire.
func (b *Bulkhead) Release() {
	b.active.Add(-1)
	b.sem.Release(1)
}

// Execute runs op while holding a slot.
func (b *Bulkhead) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.Acquire(ctx); err != nil {
		return err
	}
	defer b.Release()
	return op(ctx)
}

// Metrics returns current bulkhead metrics.
func (b *Bulkhead) Metrics() BulkheadMetrics {
	active := int(b.active.Load())
	return BulkheadMetrics{
		Active:        active,
		MaxActive:     int(b.maxActive.Load()),
		Available:     b.max - active,
		MaxConcurrent: b.max,
		Rejected:      b.rejected.Load(),
	}
}
