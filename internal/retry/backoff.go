// Package retry implements the exponential-backoff-with-jitter engine of
// §4.5, discriminating retryOn/skipOn by types.ErrorCode rather than by Go
// error type (§A.2).
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/wxxb789/vprism/internal/metrics"
	"github.com/wxxb789/vprism/types"
	"go.uber.org/zap"
)

// Policy configures one retry engine.
type Policy struct {
	MaxAttempts     int // default 3
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	Jitter          bool
	RetryOn         map[types.ErrorCode]bool
	SkipOn          map[types.ErrorCode]bool
}

// DefaultPolicy returns the §4.5 defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		BaseDelay:       1 * time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2,
		Jitter:          true,
		RetryOn:         map[types.ErrorCode]bool{types.ErrProviderTransient: true, types.ErrTimeout: true},
		SkipOn:          map[types.ErrorCode]bool{types.ErrRateLimit: true, types.ErrProviderFatal: true},
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 1 * time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 60 * time.Second
	}
	if p.ExponentialBase < 1 {
		p.ExponentialBase = 2
	}
	return p
}

// Retryer executes a function with the configured retry policy.
type Retryer struct {
	name    string
	policy  Policy
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates a Retryer scoped to name (typically the provider it guards;
// used only as the "provider" label on the retry-attempts counter).
func New(name string, policy Policy, logger *zap.Logger) *Retryer {
	return &Retryer{name: name, policy: policy.normalized(), logger: logger}
}

// WithMetrics attaches a metrics.Metrics instance for the retry-attempts
// counter. Optional; a Retryer without metrics behaves identically.
func (r *Retryer) WithMetrics(m *metrics.Metrics) *Retryer {
	r.metrics = m
	return r
}

func (r *Retryer) recordAttempt(outcome string) {
	if r.metrics != nil {
		r.metrics.RetryAttempts.WithLabelValues(r.name, outcome).Inc()
	}
}

// Do executes fn, retrying per policy. attempts are 0-indexed internally;
// the k-th retry delay is min(maxDelay, baseDelay*exponentialBase^k) with
// optional ±10% jitter.
func (r *Retryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := r.delayFor(attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			r.recordAttempt("success")
			if attempt > 0 {
				r.logger.Info("retry succeeded", zap.Int("attempt", attempt))
			}
			return nil
		}
		r.recordAttempt("failure")

		code := types.CodeOf(lastErr)
		if r.policy.SkipOn[code] {
			return lastErr
		}
		if !r.policy.RetryOn[code] {
			return lastErr
		}
		r.logger.Debug("retrying after transient failure",
			zap.Int("attempt", attempt), zap.String("code", string(code)), zap.Error(lastErr))
	}

	return lastErr
}

func (r *Retryer) delayFor(k int) time.Duration {
	delay := float64(r.policy.BaseDelay) * math.Pow(r.policy.ExponentialBase, float64(k))
	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}
	if r.policy.Jitter {
		jitter := delay * 0.10
		delay += (rand.Float64()*2 - 1) * jitter
		if delay < 0 {
			delay = 0
		}
	}
	return time.Duration(delay)
}
