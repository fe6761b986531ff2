package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Outcome describes how a Loader satisfied a request.
type Outcome int

const (
	// Miss means the value was fetched by this caller.
	Miss Outcome = iota
	// Hit means the value came from the cache.
	Hit
	// Shared means the value came from a fetch started by another caller.
	Shared
)

func (o Outcome) String() string {
	switch o {
	case Hit:
		return "hit"
	case Shared:
		return "shared"
	default:
		return "miss"
	}
}

// LoaderStats is a snapshot of Loader counters.
type LoaderStats struct {
	Hits   int64
	Misses int64
	Shared int64
	Errors int64
}

// Loader is a typed read-through cache over a Cache.
//
// Values are JSON-encoded. Errors are never cached. Concurrent misses for the
// same key share a single fetch; each waiter still honors its own context.
type Loader[T any] struct {
	cache  Cache
	policy Policy
	group  singleflight.Group

	hits, misses, shared, errs atomic.Int64
}

// NewLoader builds a Loader. A nil cache or a policy that disables caching
// makes every call a Miss that still collapses concurrent fetches.
func NewLoader[T any](c Cache, policy Policy) *Loader[T] {
	return &Loader[T]{cache: c, policy: policy}
}

// Load returns the cached value for key, or calls fetch and stores the result.
func (l *Loader[T]) Load(ctx context.Context, key string, fetch func(context.Context) (T, error)) (T, Outcome, error) {
	var zero T
	if err := ValidateKey(key); err != nil {
		return zero, Miss, err
	}

	if l.cache != nil && l.policy.ShouldCache() {
		if data, ok := l.cache.Get(ctx, key); ok {
			var v T
			if err := json.Unmarshal(data, &v); err == nil {
				l.hits.Add(1)
				return v, Hit, nil
			}
			_ = l.cache.Delete(ctx, key)
		}
	}

	// The shared fetch is detached from any single caller's cancellation so
	// one waiter giving up does not fail the others.
	fetchCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan(key, func() (any, error) {
		v, err := fetch(fetchCtx)
		if err != nil {
			return v, err
		}
		l.store(fetchCtx, key, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, Miss, ctx.Err()
	case res := <-ch:
		outcome := Miss
		if res.Shared {
			outcome = Shared
			l.shared.Add(1)
		} else {
			l.misses.Add(1)
		}
		if res.Err != nil {
			l.errs.Add(1)
			return zero, outcome, res.Err
		}
		return res.Val.(T), outcome, nil
	}
}

// Invalidate drops key from the cache.
func (l *Loader[T]) Invalidate(ctx context.Context, key string) error {
	if l.cache == nil {
		return ErrNilCache
	}
	return l.cache.Delete(ctx, key)
}

// Stats returns a snapshot of the loader counters.
func (l *Loader[T]) Stats() LoaderStats {
	return LoaderStats{
		Hits:   l.hits.Load(),
		Misses: l.misses.Load(),
		Shared: l.shared.Load(),
		Errors: l.errs.Load(),
	}
}

func (l *Loader[T]) store(ctx context.Context, key string, v T) {
	if l.cache == nil || !l.policy.ShouldCache() {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = l.cache.Set(ctx, key, data, l.policy.EffectiveTTL(0))
}

// TTL returns the TTL applied to stored values.
func (l *Loader[T]) TTL() time.Duration {
	if !l.policy.ShouldCache() {
		return 0
	}
	return l.policy.EffectiveTTL(0)
}
