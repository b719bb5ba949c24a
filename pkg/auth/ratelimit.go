package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter checks whether a request should be allowed based on
// the identity's service tier.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// TierConfig holds rate limit settings for a service tier.
type TierConfig struct {
	RequestsPerMinute int
}

// InProcessLimiter is a token-bucket rate limiter keyed by subject and tier,
// held in memory. Each bucket refills at RequestsPerMinute and allows a burst
// of the same size.
type InProcessLimiter struct {
	tiers      map[string]TierConfig
	defaultRPM int
	mu         sync.Mutex
	buckets    map[string]*rate.Limiter
}

// NewInProcessLimiter creates a rate limiter with per-tier configuration.
func NewInProcessLimiter(tiers map[string]TierConfig, defaultRPM int) *InProcessLimiter {
	return &InProcessLimiter{
		tiers:      tiers,
		defaultRPM: defaultRPM,
		buckets:    make(map[string]*rate.Limiter),
	}
}

// Allow checks if the request is within the rate limit.
// Anonymous requests (nil identity) are not limited.
func (l *InProcessLimiter) Allow(_ context.Context, identity *Identity) error {
	if identity == nil {
		return nil
	}

	tier := identity.ServiceTier
	if tier == "" {
		tier = "default"
	}

	rpm := l.defaultRPM
	if tc, ok := l.tiers[tier]; ok {
		rpm = tc.RequestsPerMinute
	}

	if rpm <= 0 {
		return nil // no limit
	}

	key := identity.Subject + ":" + tier

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm)
		l.buckets[key] = b
	}
	l.mu.Unlock()

	if !b.Allow() {
		return ErrTooManyRequests
	}
	return nil
}
