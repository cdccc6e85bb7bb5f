// Package circuitbreaker implements the per-named-endpoint closed/open/
// half-open state machine of §4.4.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wxxb789/vprism/internal/metrics"
	"github.com/wxxb789/vprism/types"
	"go.uber.org/zap"
)

// State is a circuit breaker's current state.
type State int

const (
	StateClosed State = iota
	StateOpen
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

func (s State) Kind() types.CircuitStateKind {
	switch s {
	case StateOpen:
		return types.CircuitOpen
	case StateHalfOpen:
		return types.CircuitHalfOpen
	default:
		return types.CircuitClosed
	}
}

var (
	// ErrOpen is returned when the breaker rejects a call outright.
	ErrOpen = errors.New("circuit breaker open")
	// ErrTooManyHalfOpenCalls is returned when half-open admission is exhausted.
	ErrTooManyHalfOpenCalls = errors.New("too many calls in half-open state")
)

// Config tunes one breaker.
type Config struct {
	FailureThreshold int           // default 5
	RecoveryTimeout  time.Duration // default 60s
	HalfOpenMaxCalls int           // default 3
}

// DefaultConfig returns the §4.4 defaults.
func DefaultConfig() Config {
	return Config{FailureThreshold: 5, RecoveryTimeout: 60 * time.Second, HalfOpenMaxCalls: 3}
}

func (c Config) normalized() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 60 * time.Second
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = 3
	}
	return c
}

// Breaker is one named circuit breaker.
type Breaker struct {
	name    string
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu                sync.Mutex
	state             State
	failureCount      int
	successCount      int // half-open success count
	lastFailureAt     time.Time
	halfOpenCallCount int
}

// New creates a breaker named name with cfg (zero value uses defaults).
func New(name string, cfg Config, logger *zap.Logger) *Breaker {
	return &Breaker{
		name:   name,
		cfg:    cfg.normalized(),
		logger: logger,
		state:  StateClosed,
	}
}

// WithMetrics attaches a metrics.Metrics instance for the circuit-state
// gauge. Optional; a Breaker without metrics behaves identically.
func (b *Breaker) WithMetrics(m *metrics.Metrics) *Breaker {
	b.metrics = m
	return b
}

// Call forwards fn unless the breaker rejects it. A non-nil error only
// counts as a breaker failure when the caller's own context did not cause
// it; cancellation/deadline from the caller carries no breaker penalty.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.beforeCall(); err != nil {
		return types.NewError(types.ErrCircuitOpen, "circuit open for "+b.name).WithCause(err).WithProvider(b.name)
	}

	err := fn(ctx)
	if err != nil && ctx.Err() != nil {
		return err
	}
	b.afterCall(err == nil)
	return err
}

func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(b.lastFailureAt) >= b.cfg.RecoveryTimeout {
			b.setState(StateHalfOpen)
			b.halfOpenCallCount = 1
			b.successCount = 0
			return nil
		}
		return ErrOpen
	case StateHalfOpen:
		if b.halfOpenCallCount >= b.cfg.HalfOpenMaxCalls {
			return ErrTooManyHalfOpenCalls
		}
		b.halfOpenCallCount++
		return nil
	default:
		return nil
	}
}

func (b *Breaker) afterCall(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		switch b.state {
		case StateClosed:
			b.failureCount = 0
		case StateHalfOpen:
			b.successCount++
			if b.successCount >= b.cfg.HalfOpenMaxCalls {
				b.logger.Info("circuit closed after recovery", zap.String("breaker", b.name))
				b.setState(StateClosed)
				b.failureCount = 0
				b.successCount = 0
				b.halfOpenCallCount = 0
			}
		}
		return
	}

	b.failureCount++
	b.lastFailureAt = time.Now()

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.cfg.FailureThreshold {
			b.logger.Warn("circuit open", zap.String("breaker", b.name), zap.Int("failures", b.failureCount))
			b.setState(StateOpen)
		}
	case StateHalfOpen:
		b.logger.Warn("circuit reopened after half-open failure", zap.String("breaker", b.name))
		b.setState(StateOpen)
		b.halfOpenCallCount = 0
		b.successCount = 0
	}
}

func (b *Breaker) setState(s State) {
	b.state = s
	if b.metrics != nil {
		b.metrics.CircuitState.WithLabelValues(b.name).Set(metrics.CircuitStateValue(s.String()))
	}
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns the §3 CircuitState view of this breaker.
func (b *Breaker) Snapshot() types.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return types.CircuitState{
		Name:          b.name,
		State:         b.state.Kind(),
		FailureCount:  b.failureCount,
		SuccessCount:  b.successCount,
		LastFailureAt: b.lastFailureAt,
	}
}

// Reset force-closes the breaker. Used by operators, never by the data path.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failureCount = 0
	b.successCount = 0
	b.halfOpenCallCount = 0
}

// Registry maps names to breakers with safe lazy creation (§4.4).
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	logger   *zap.Logger
	breakers map[string]*Breaker
}

// NewRegistry creates an empty breaker registry.
func NewRegistry(cfg Config, logger *zap.Logger) *Registry {
	return &Registry{cfg: cfg.normalized(), logger: logger, breakers: make(map[string]*Breaker)}
}

// Get returns (creating if absent) the named breaker.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[name]
	if !ok {
		b = New(name, r.cfg, r.logger)
		r.breakers[name] = b
	}
	return b
}

// Reset force-closes the named breaker if it exists.
func (r *Registry) Reset(name string) {
	r.mu.Lock()
	b, ok := r.breakers[name]
	r.mu.Unlock()
	if ok {
		b.Reset()
	}
}
