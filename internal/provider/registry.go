package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wxxb789/vprism/types"
	"go.uber.org/zap"
)

// HealthConfig tunes the hysteresis thresholds used by Registry.RecordProbe.
type HealthConfig struct {
	FailureThreshold int // consecutive failures before status becomes unhealthy
	SuccessThreshold int // consecutive successes before status returns to healthy
}

// DefaultHealthConfig returns the §4.2 defaults.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{FailureThreshold: 3, SuccessThreshold: 2}
}

// Registry holds the name→Provider mapping plus parallel health metadata.
// Registration fails only if the name is already present (§4.2).
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	health    map[string]*types.ProviderHealth
	order     []string // insertion order, for deterministic tie-breaks downstream
	cfg       HealthConfig
	logger    *zap.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(cfg HealthConfig, logger *zap.Logger) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		health:    make(map[string]*types.ProviderHealth),
		cfg:       cfg,
		logger:    logger,
	}
}

// Register adds a provider under name. Health starts at healthy (§4.2).
func (r *Registry) Register(name string, p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.providers[name] = p
	r.health[name] = &types.ProviderHealth{Status: types.HealthHealthy}
	r.order = append(r.order, name)
	r.logger.Info("provider registered", zap.String("provider", name))
	return nil
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Health returns a copy of the provider's current health snapshot.
func (r *Registry) Health(name string) (types.ProviderHealth, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.health[name]
	if !ok {
		return types.ProviderHealth{}, false
	}
	return *h, true
}

// List returns registered provider names in insertion order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ListSorted returns registered provider names sorted alphabetically.
func (r *Registry) ListSorted() []string {
	names := r.List()
	sort.Strings(names)
	return names
}

// FindCapable returns providers (in insertion order) whose capability admits
// q and whose health is not unhealthy (§4.2).
func (r *Registry) FindCapable(q types.DataQuery) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Provider
	for _, name := range r.order {
		p := r.providers[name]
		if !p.CanHandle(q) {
			continue
		}
		if h := r.health[name]; h != nil && h.Status == types.HealthUnhealthy {
			continue
		}
		out = append(out, p)
	}
	return out
}

// RecordProbe applies one probe outcome to name's health via hysteresis
// (§4.2): failureThreshold consecutive failures → unhealthy; successThreshold
// consecutive successes → healthy.
func (r *Registry) RecordProbe(name string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.health[name]
	if !ok {
		return
	}
	h.LastProbe = time.Now()
	h.TotalProbes++

	if success {
		h.ConsecutiveSuccess++
		h.ConsecutiveFailures = 0
		if h.Status != types.HealthHealthy && h.ConsecutiveSuccess >= r.cfg.SuccessThreshold {
			h.Status = types.HealthHealthy
			r.logger.Info("provider recovered", zap.String("provider", name))
		}
	} else {
		h.ConsecutiveFailures++
		h.ConsecutiveSuccess = 0
		h.TotalFailures++
		if h.Status != types.HealthUnhealthy && h.ConsecutiveFailures >= r.cfg.FailureThreshold {
			h.Status = types.HealthUnhealthy
			r.logger.Warn("provider marked unhealthy", zap.String("provider", name))
		}
	}
}

// ProbeAll invokes Authenticate on every provider concurrently, each bounded
// by the given per-probe timeout, and records the outcome. Probes never
// block query serving — the caller runs this from its own ticker goroutine.
// One slow or hanging provider never delays the others' probes; errgroup's
// shared context is only used for cancellation propagation, since a single
// provider's probe error must never abort the others' probes.
func (r *Registry) ProbeAll(ctx context.Context, timeout time.Duration) {
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range r.List() {
		name := name
		p, ok := r.Get(name)
		if !ok {
			continue
		}
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()
			ok2, err := p.Authenticate(probeCtx)
			r.RecordProbe(name, err == nil && ok2)
			return nil
		})
	}
	_ = g.Wait()
}

// StartHealthChecker runs ProbeAll every interval until ctx is cancelled.
func (r *Registry) StartHealthChecker(ctx context.Context, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ProbeAll(ctx, timeout)
		}
	}
}
