// Package batch implements the provider-grouped bounded-concurrency fan-out
// of §4.8. Unlike the teacher's time-windowed micro-batcher
// (llm/batch/processor.go, which collects requests until MaxBatchSize or
// MaxWaitTime and dispatches them as one handler call), this processor groups
// already-known queries by their best capable provider and bounds concurrency
// per group with a semaphore, matching the atomic-counter statistics idiom
// the teacher uses for its own Submitted/Batched/Completed/Failed metrics.
package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/wxxb789/vprism/internal/metrics"
	"github.com/wxxb789/vprism/internal/provider"
	"github.com/wxxb789/vprism/internal/resilience"
	"github.com/wxxb789/vprism/internal/router"
	"github.com/wxxb789/vprism/types"
)

// Request is one BatchRequest per §4.8.
type Request struct {
	Queries         []types.DataQuery
	ConcurrentLimit int
	Timeout         time.Duration
	RetryCount      int
	RetryDelay      time.Duration
}

// DefaultRequest fills in §4.8's documented defaults for unset fields.
func DefaultRequest(queries []types.DataQuery) Request {
	return Request{
		Queries:         queries,
		ConcurrentLimit: 10,
		Timeout:         30 * time.Second,
		RetryCount:      3,
		RetryDelay:      time.Second,
	}
}

func (r Request) normalized() Request {
	if r.ConcurrentLimit <= 0 {
		r.ConcurrentLimit = 10
	}
	if r.Timeout <= 0 {
		r.Timeout = 30 * time.Second
	}
	if r.RetryCount <= 0 {
		r.RetryCount = 3
	}
	if r.RetryDelay <= 0 {
		r.RetryDelay = time.Second
	}
	return r
}

// Result is the BatchResult output of §4.8.
type Result struct {
	Results          map[string]types.DataResponse
	SuccessCount     int
	FailureCount     int
	TotalTimeSeconds float64
	Errors           map[string]string
	ProcessedQueries []types.DataQuery
	BatchID          string
}

// Fetcher abstracts a single resilient provider call so Processor doesn't
// need to know about the executor registry's construction.
type Fetcher func(ctx context.Context, p provider.Provider, q types.DataQuery) (types.DataResponse, error)

// Processor executes BatchRequests against a Router for provider selection
// and a per-provider resilience.Executor for retry/breaker behavior.
type Processor struct {
	registry   *provider.Registry
	router     *router.Router
	executorOf func(providerName string) *resilience.Executor
	fetch      Fetcher
	metrics    *metrics.Metrics

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// New builds a Processor. executorOf resolves the resilience.Executor to use
// for a given provider name (typically backed by a per-provider breaker
// registry); fetch performs the actual upstream call inside that executor.
func New(registry *provider.Registry, r *router.Router, executorOf func(string) *resilience.Executor, fetch Fetcher) *Processor {
	return &Processor{registry: registry, router: r, executorOf: executorOf, fetch: fetch}
}

// WithMetrics attaches a metrics.Metrics instance for the in-flight gauge.
// Optional; a Processor without metrics behaves identically.
func (p *Processor) WithMetrics(m *metrics.Metrics) *Processor {
	p.metrics = m
	return p
}

func (p *Processor) incInFlight(providerName string) {
	if p.metrics != nil {
		p.metrics.BatchInFlight.WithLabelValues(providerName).Inc()
	}
}

func (p *Processor) decInFlight(providerName string) {
	if p.metrics != nil {
		p.metrics.BatchInFlight.WithLabelValues(providerName).Dec()
	}
}

type groupMember struct {
	index int
	query types.DataQuery
}

// Run executes req per §4.8's algorithm and returns the aggregated Result.
func (p *Processor) Run(ctx context.Context, req Request) Result {
	req = req.normalized()
	start := time.Now()

	result := Result{
		Results: make(map[string]types.DataResponse),
		Errors:  make(map[string]string),
		BatchID: uuid.NewString(),
	}

	groups := make(map[string][]groupMember)
	var groupOrder []string

	for _, q := range req.Queries {
		p.submitted.Add(1)
		prov, err := p.router.Route(q)
		if err != nil {
			key := fmt.Sprintf("unrouted_%d", len(result.Errors))
			result.Errors[key] = err.Error()
			result.FailureCount++
			p.failed.Add(1)
			result.ProcessedQueries = append(result.ProcessedQueries, q)
			continue
		}
		name := prov.Name()
		if _, ok := groups[name]; !ok {
			groupOrder = append(groupOrder, name)
		}
		groups[name] = append(groups[name], groupMember{index: len(groups[name]), query: q})
	}

	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, name := range groupOrder {
		name := name
		members := groups[name]
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.runGroup(ctx, req, name, members, &mu, &result)
		}()
	}
	wg.Wait()

	result.TotalTimeSeconds = time.Since(start).Seconds()
	return result
}

func (p *Processor) runGroup(ctx context.Context, req Request, providerName string, members []groupMember, mu *sync.Mutex, result *Result) {
	prov, ok := p.registry.Get(providerName)
	if !ok {
		mu.Lock()
		for _, m := range members {
			key := fmt.Sprintf("%s_%d", providerName, m.index)
			result.Errors[key] = "provider no longer registered"
			result.FailureCount++
			result.ProcessedQueries = append(result.ProcessedQueries, m.query)
		}
		mu.Unlock()
		return
	}

	sem := semaphore.NewWeighted(int64(req.ConcurrentLimit))
	executor := p.executorOf(providerName)

	var wg sync.WaitGroup
	for _, m := range members {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			key := fmt.Sprintf("%s_%d", providerName, m.index)
			result.Errors[key] = err.Error()
			result.FailureCount++
			result.ProcessedQueries = append(result.ProcessedQueries, m.query)
			mu.Unlock()
			continue
		}

		wg.Add(1)
		p.incInFlight(providerName)
		go func(m groupMember) {
			defer wg.Done()
			defer sem.Release(1)
			defer p.decInFlight(providerName)

			key := fmt.Sprintf("%s_%d", providerName, m.index)
			resp, err := p.runOne(ctx, req, executor, prov, m.query)

			mu.Lock()
			defer mu.Unlock()
			result.ProcessedQueries = append(result.ProcessedQueries, m.query)
			if err != nil {
				result.Errors[key] = err.Error()
				result.FailureCount++
				p.failed.Add(1)
				return
			}
			result.Results[key] = resp
			result.SuccessCount++
			p.completed.Add(1)
		}(m)
	}
	wg.Wait()
}

// runOne applies the per-query timeout and retryCount/retryDelay·2^attempt
// backoff of §4.8. executor is expected to be breaker-gated but capped at a
// single retry attempt, so the only retry loop a query goes through is this
// one; executor still governs breaker/skip-on classification per attempt.
func (p *Processor) runOne(ctx context.Context, req Request, executor *resilience.Executor, prov provider.Provider, q types.DataQuery) (types.DataResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	var resp types.DataResponse
	var lastErr error

	for attempt := 0; attempt <= req.RetryCount; attempt++ {
		if attempt > 0 {
			delay := req.RetryDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-callCtx.Done():
				return types.DataResponse{}, callCtx.Err()
			}
		}

		err := executor.Execute(callCtx, func(ctx context.Context) error {
			var callErr error
			resp, callErr = p.fetch(ctx, prov, q)
			return callErr
		})
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if callCtx.Err() != nil {
			return types.DataResponse{}, callCtx.Err()
		}
	}
	return types.DataResponse{}, lastErr
}
