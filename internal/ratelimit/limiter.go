// Package ratelimit enforces a provider's declared rate-limit descriptor
// locally, before the resilient executor dispatches a call — the
// original_source pre-call check supplement (SPEC_FULL.md §C).
package ratelimit

import (
	"context"
	"sync"

	"github.com/wxxb789/vprism/types"
	"golang.org/x/time/rate"
)

// Limiters holds one token-bucket limiter per provider name.
type Limiters struct {
	mu       sync.Mutex
	enabled  bool
	limiters map[string]*rate.Limiter
}

// New creates a Limiters set. When enabled is false, Allow always succeeds
// (matching the providers.rateLimit=false configuration key).
func New(enabled bool) *Limiters {
	return &Limiters{enabled: enabled, limiters: make(map[string]*rate.Limiter)}
}

func (l *Limiters) limiterFor(name string, desc types.RateLimitDescriptor) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[name]
	if !ok {
		rps := desc.RequestsPerSecond
		if rps <= 0 {
			rps = 1
		}
		burst := desc.Burst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(rps), burst)
		l.limiters[name] = lim
	}
	return lim
}

// Allow reports whether a call to provider name may proceed right now. When
// disabled it always allows.
func (l *Limiters) Allow(name string, desc types.RateLimitDescriptor) bool {
	if !l.enabled {
		return true
	}
	return l.limiterFor(name, desc).Allow()
}

// CheckOrError returns a RateLimit *types.Error when the limiter rejects the
// call, otherwise nil.
func (l *Limiters) CheckOrError(_ context.Context, name string, desc types.RateLimitDescriptor) error {
	if l.Allow(name, desc) {
		return nil
	}
	return types.NewError(types.ErrRateLimit, "local rate limit exceeded").WithProvider(name).WithRetryable(false)
}
