package cache

import "time"

// Policy configures caching behavior.
type Policy struct {
	// DefaultTTL applies when no override is given. Zero disables caching.
	DefaultTTL time.Duration

	// MaxTTL clamps overrides. Zero means unbounded.
	MaxTTL time.Duration

	// MaxEntries bounds the memory cache. Zero means unbounded.
	MaxEntries int
}

// DefaultPolicy caches for 5 minutes, at most 1 hour, up to 10k entries.
func DefaultPolicy() Policy {
	return Policy{
		DefaultTTL: 5 * time.Minute,
		MaxTTL:     time.Hour,
		MaxEntries: 10_000,
	}
}

// NoCachePolicy disables caching.
func NoCachePolicy() Policy {
	return Policy{}
}

// ShouldCache reports whether the policy caches anything.
func (p Policy) ShouldCache() bool {
	return p.DefaultTTL > 0
}

// EffectiveTTL returns override, or DefaultTTL when override <= 0, clamped to MaxTTL.
func (p Policy) EffectiveTTL(override time.Duration) time.Duration {
	ttl := override
	if ttl <= 0 {
		ttl = p.DefaultTTL
	}
	if p.MaxTTL > 0 && ttl > p.MaxTTL {
		ttl = p.MaxTTL
	}
	return ttl
}
