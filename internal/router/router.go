// Package router implements capability filtering, multi-factor scoring, and
// deterministic best-of-N provider selection (§4.3).
package router

import (
	"sync"
	"time"

	"github.com/wxxb789/vprism/internal/provider"
	"github.com/wxxb789/vprism/types"
	"go.uber.org/zap"
)

// Router selects the best capable provider for a query and tracks a sticky
// per-provider score that call outcomes update.
type Router struct {
	registry *provider.Registry
	logger   *zap.Logger

	mu     sync.Mutex
	scores map[string]*types.ProviderScore
}

// New creates a Router bound to registry.
func New(registry *provider.Registry, logger *zap.Logger) *Router {
	return &Router{registry: registry, logger: logger, scores: make(map[string]*types.ProviderScore)}
}

func (r *Router) historyFor(name string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scores[name]
	if !ok {
		return 1.0
	}
	return s.History
}

// Route returns the best capable provider for q, or a *types.Error with
// code NoCapableProvider when none exists (§4.3, invariant I5/P1).
func (r *Router) Route(q types.DataQuery) (provider.Provider, error) {
	candidates := r.registry.FindCapable(q)
	if len(candidates) == 0 {
		return nil, types.NewError(types.ErrNoCapableProvider, "no healthy capable provider for query")
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	best := candidates[0]
	bestScore := r.score(best, q)
	for _, c := range candidates[1:] {
		s := r.score(c, q)
		if s > bestScore {
			best, bestScore = c, s
		}
		// ties keep the earlier (lower-index / earlier-inserted) candidate,
		// since candidates is already in registry insertion order.
	}
	return best, nil
}

// score implements the §4.3 formula:
//
//	score = 0.4·history + 0.3·(1 − delay/100) + 0.2·(1 − 0.5·symbolLoadRatio) + 0.1
func (r *Router) score(p provider.Provider, q types.DataQuery) float64 {
	cap := p.Capability()
	history := r.historyFor(p.Name())

	delay := cap.DataDelaySeconds
	if delay > 100 {
		delay = 100
	}
	if delay < 0 {
		delay = 0
	}

	symbolLoadRatio := 0.0
	if cap.MaxSymbolsPerReq > 0 {
		symbolLoadRatio = float64(len(q.Symbols)) / float64(cap.MaxSymbolsPerReq)
	}

	return 0.4*history + 0.3*(1-delay/100) + 0.2*(1-0.5*symbolLoadRatio) + 0.1
}

// RecordSuccess applies the §4.3 success update: history += 0.05 + max(0, 0.1 − latencyMs/1000).
func (r *Router) RecordSuccess(name string, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.scoreOrInit(name)
	bonus := 0.1 - float64(latency.Milliseconds())/1000
	if bonus < 0 {
		bonus = 0
	}
	s.History = types.ClampHistory(s.History + 0.05 + bonus)
	s.LastUpdated = time.Now()
}

// RecordFailure applies the §4.3 failure update: history -= 0.2.
func (r *Router) RecordFailure(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.scoreOrInit(name)
	s.History = types.ClampHistory(s.History - 0.2)
	s.LastUpdated = time.Now()
}

func (r *Router) scoreOrInit(name string) *types.ProviderScore {
	s, ok := r.scores[name]
	if !ok {
		s = &types.ProviderScore{History: 1.0}
		r.scores[name] = s
	}
	return s
}

// Snapshot returns a copy of the current score for name, for diagnostics.
func (r *Router) Snapshot(name string) types.ProviderScore {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.scores[name]; ok {
		return *s
	}
	return types.ProviderScore{History: 1.0}
}
