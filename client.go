// Package vprism is a thin, functional-options-configured SDK over the
// internal query-routing, resilience, caching, and persistence layers (§6).
//
// Usage:
//
//	c, err := vprism.New(
//	    vprism.WithConfig(cfg),
//	    vprism.WithProvider("akshare", akshareProvider),
//	)
//	q, err := vprism.NewQuery().Asset(types.AssetStock).Symbols("600519").Market("cn").Build()
//	resp, err := c.Get(ctx, q)
package vprism

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wxxb789/vprism/config"
	"github.com/wxxb789/vprism/internal/batch"
	"github.com/wxxb789/vprism/internal/cache"
	"github.com/wxxb789/vprism/internal/cache/l2"
	"github.com/wxxb789/vprism/internal/circuitbreaker"
	"github.com/wxxb789/vprism/internal/consistency"
	"github.com/wxxb789/vprism/internal/ingestion"
	"github.com/wxxb789/vprism/internal/metrics"
	"github.com/wxxb789/vprism/internal/provider"
	"github.com/wxxb789/vprism/internal/ratelimit"
	"github.com/wxxb789/vprism/internal/repository"
	"github.com/wxxb789/vprism/internal/resilience"
	"github.com/wxxb789/vprism/internal/retry"
	"github.com/wxxb789/vprism/internal/router"
	"github.com/wxxb789/vprism/types"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Client wires every internal layer together behind the §6 caller surface.
type Client struct {
	cfg    config.Config
	logger *zap.Logger

	db        *gorm.DB
	registry  *provider.Registry
	router    *router.Router
	breakers  *circuitbreaker.Registry
	limiters  *ratelimit.Limiters
	cache     *cache.Cache
	repo      *repository.Repository
	ingest    *ingestion.Pipeline
	batchProc *batch.Processor
	metrics   *metrics.Metrics
}

// Option configures a Client built by New.
type Option func(*options)

type options struct {
	cfg       config.Config
	logger    *zap.Logger
	db        *gorm.DB
	metricReg *prometheus.Registry
	providers map[string]provider.Provider
}

// WithConfig supplies a fully resolved configuration. Defaults to
// config.DefaultConfig() when omitted.
func WithConfig(cfg config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithDB injects an already-open, already-migrated *gorm.DB, bypassing
// cfg.Database entirely. Mainly for tests.
func WithDB(db *gorm.DB) Option {
	return func(o *options) { o.db = db }
}

// WithMetricsRegistry attaches a *prometheus.Registry so the client's
// internal counters/gauges become observable. Metrics are nop when omitted.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.metricReg = reg }
}

// WithProvider registers a named vendor adapter. Call once per provider.
func WithProvider(name string, p provider.Provider) Option {
	return func(o *options) {
		if o.providers == nil {
			o.providers = make(map[string]provider.Provider)
		}
		o.providers[name] = p
	}
}

// New builds a Client from opts, opening (and migrating, unless WithDB was
// used) the columnar store and wiring every resilience/cache/ingestion layer.
func New(opts ...Option) (*Client, error) {
	o := &options{cfg: *config.DefaultConfig(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}

	db := o.db
	if db == nil {
		dsn := repository.DSNConfig{
			Driver: o.cfg.Database.Driver, Host: o.cfg.Database.Host, Port: o.cfg.Database.Port,
			User: o.cfg.Database.User, Password: o.cfg.Database.Password, Name: o.cfg.Database.Name,
			SSLMode: o.cfg.Database.SSLMode,
		}
		var err error
		db, err = repository.Open(dsn, o.logger)
		if err != nil {
			return nil, fmt.Errorf("open vprism client: %w", err)
		}
	}

	var m *metrics.Metrics
	if o.metricReg != nil {
		m = metrics.New(o.metricReg)
	}

	healthCfg := provider.HealthConfig{
		FailureThreshold: o.cfg.Health.FailureThreshold,
		SuccessThreshold: o.cfg.Health.SuccessThreshold,
	}
	registry := provider.NewRegistry(healthCfg, o.logger)
	for name, p := range o.providers {
		if err := registry.Register(name, p); err != nil {
			return nil, fmt.Errorf("register provider %q: %w", name, err)
		}
	}

	r := router.New(registry, o.logger)

	breakerCfg := circuitbreaker.Config{
		FailureThreshold: o.cfg.Circuit.FailureThreshold,
		RecoveryTimeout:  o.cfg.Circuit.RecoveryTimeout,
		HalfOpenMaxCalls: o.cfg.Circuit.HalfOpenMaxCalls,
	}
	breakers := circuitbreaker.NewRegistry(breakerCfg, o.logger)

	limiters := ratelimit.New(o.cfg.Providers.RateLimit)

	ttl := cache.TTLPolicy{
		Default: o.cfg.Cache.TTLDefault, Tick: o.cfg.Cache.TTLTick,
		Daily: o.cfg.Cache.TTLDaily, Weekly: o.cfg.Cache.TTLWeekly,
		Intraday: map[types.Timeframe]time.Duration{
			types.Timeframe1Minute: o.cfg.Cache.TTLIntraday,
			types.Timeframe5Minute: o.cfg.Cache.TTLIntraday,
			types.Timeframe1Hour:   o.cfg.Cache.TTLIntraday,
		},
	}
	l2Store := l2.New(db, o.logger)
	c := cache.New(o.cfg.Cache.MemorySize, l2Store, ttl, o.logger)
	if m != nil {
		c.WithMetrics(m)
	}

	repo := repository.New(db, o.logger)
	ing := ingestion.New(repo)
	if m != nil {
		ing.WithMetrics(m)
	}

	client := &Client{
		cfg: o.cfg, logger: o.logger, db: db,
		registry: registry, router: r, breakers: breakers, limiters: limiters,
		cache: c, repo: repo, ingest: ing, metrics: m,
	}

	bp := batch.New(registry, r, client.executorForBatch, client.fetch)
	if m != nil {
		bp.WithMetrics(m)
	}
	client.batchProc = bp

	return client, nil
}

// executorFor lazily builds the per-provider resilience.Executor, composing
// a named breaker (via the shared registry) with a freshly scoped retryer —
// breaker state is sticky per provider (§4.4); retry policy is stateless
// per call, so a new *retry.Retryer per lookup is cheap and correct.
func (c *Client) executorFor(name string) *resilience.Executor {
	b := c.breakers.Get(name)
	if c.metrics != nil {
		b.WithMetrics(c.metrics)
	}
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = c.cfg.Providers.MaxRetries + 1
	policy.ExponentialBase = c.cfg.Providers.BackoffFactor
	policy.MaxDelay = c.cfg.Providers.MaxBackoff
	r := retry.New(name, policy, c.logger)
	if c.metrics != nil {
		r.WithMetrics(c.metrics)
	}
	return resilience.New(b, r)
}

// executorForBatch builds the breaker-gated, single-attempt executor used by
// the batch path. runOne already applies its own req.RetryCount+1 loop per
// §4.8; a retryer with executorFor's MaxAttempts composed on top of that
// loop would multiply provider calls to (RetryCount+1)×MaxAttempts, so batch
// gets a retryer capped at exactly one attempt and relies on runOne alone
// for the documented retry count, while still sharing the same per-provider
// breaker registry as the single-query path.
func (c *Client) executorForBatch(name string) *resilience.Executor {
	b := c.breakers.Get(name)
	if c.metrics != nil {
		b.WithMetrics(c.metrics)
	}
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = 1
	r := retry.New(name, policy, c.logger)
	if c.metrics != nil {
		r.WithMetrics(c.metrics)
	}
	return resilience.New(b, r)
}

// fetch is the batch.Fetcher used by Processor.Run. Unlike callProvider, it
// makes exactly one provider call per invocation: runOne itself wraps each
// fetch in the breaker-gated, single-attempt executorForBatch executor, so
// fetch itself must not add a second nested retry/breaker layer on top.
func (c *Client) fetch(ctx context.Context, p provider.Provider, q types.DataQuery) (types.DataResponse, error) {
	name := p.Name()
	if err := c.limiters.CheckOrError(ctx, name, p.Capability().RateLimit); err != nil {
		return types.DataResponse{}, err
	}

	callStart := time.Now()
	resp, err := p.GetData(ctx, q)
	if err != nil {
		if ctx.Err() == nil {
			c.router.RecordFailure(name)
		}
		return types.DataResponse{}, err
	}
	c.router.RecordSuccess(name, time.Since(callStart))
	resp.Provider = name
	resp.Query = q
	return resp, nil
}

// Get performs the §6 "synchronous-style" call: cache lookup, then on miss
// route → rate-limit check → resilient call → ingestion (which writes the
// repository) → cache write → return, per §5's ordering guarantee.
func (c *Client) Get(ctx context.Context, q types.DataQuery) (types.DataResponse, error) {
	return c.Execute(ctx, q)
}

// Execute is the §6 "async/deadline variant"; ctx carries the caller's
// deadline. Get is a thin alias kept for surface parity with §6's naming.
func (c *Client) Execute(ctx context.Context, q types.DataQuery) (types.DataResponse, error) {
	start := time.Now()

	if resp, ok := c.cache.Get(q); ok {
		resp.Metadata.CacheHit = true
		resp.Metadata.LatencyMs = float64(time.Since(start).Microseconds()) / 1000
		return resp, nil
	}

	p, err := c.router.Route(q)
	if err != nil {
		return types.DataResponse{}, err
	}

	resp, err := c.callProvider(ctx, p, q)
	if err != nil {
		return types.DataResponse{}, err
	}

	if err := c.ingestResponse(resp, q.Timeframe); err != nil {
		c.logger.Warn("ingestion pass failed; response still returned to caller",
			zap.String("provider", p.Name()), zap.Error(err))
	}

	resp.Metadata.LatencyMs = float64(time.Since(start).Microseconds()) / 1000
	resp.Metadata.ExecutionTimeMs = resp.Metadata.LatencyMs
	if err := c.cache.Set(q, resp); err != nil {
		c.logger.Warn("cache write failed", zap.Error(err))
	}
	return resp, nil
}

// callProvider applies the pre-call rate-limit check (original_source
// supplement, SPEC_FULL.md §C) and then the breaker-outside-retry resilient
// call, recording router score feedback on both outcomes.
func (c *Client) callProvider(ctx context.Context, p provider.Provider, q types.DataQuery) (types.DataResponse, error) {
	name := p.Name()
	if err := c.limiters.CheckOrError(ctx, name, p.Capability().RateLimit); err != nil {
		return types.DataResponse{}, err
	}

	executor := c.executorFor(name)
	callStart := time.Now()

	var resp types.DataResponse
	err := executor.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = p.GetData(ctx, q)
		return callErr
	})
	latency := time.Since(callStart)

	if err != nil {
		if ctx.Err() == nil {
			c.router.RecordFailure(name)
		}
		return types.DataResponse{}, err
	}
	c.router.RecordSuccess(name, latency)
	resp.Provider = name
	resp.Query = q
	return resp, nil
}

// ingestResponse converts resp's points into RawRecords and runs them
// through the validation/commit/quality-scoring pipeline (§4.9), per §5's
// "within one query" ordering: resilient call, then ingestion, then cache
// write, then return.
func (c *Client) ingestResponse(resp types.DataResponse, tf types.Timeframe) error {
	if len(resp.Data) == 0 {
		return nil
	}
	records := make([]types.RawRecord, len(resp.Data))
	for i, dp := range resp.Data {
		open, high, low, closePrice := dp.Open, dp.High, dp.Low, dp.Close
		records[i] = types.RawRecord{
			Symbol: dp.Symbol, Market: resp.Query.Market, Timestamp: dp.Timestamp,
			Open: &open, High: &high, Low: &low, Close: &closePrice,
			Volume: dp.Volume, SourceSystem: dp.Provider,
		}
	}
	_, err := c.ingest.Ingest(records, tf, uuid.NewString())
	return err
}

// Stream performs Get and replays resp.Data over a channel, matching §6's
// "lazy sequence of DataPoint; finite, not restartable" contract — there is
// no separate streaming transport at this layer (§9).
func (c *Client) Stream(ctx context.Context, q types.DataQuery) (<-chan types.DataPoint, error) {
	resp, err := c.Get(ctx, q)
	if err != nil {
		return nil, err
	}
	ch := make(chan types.DataPoint, len(resp.Data))
	for _, dp := range resp.Data {
		ch <- dp
	}
	close(ch)
	return ch, nil
}

// Batch performs §4.8's provider-grouped bounded-concurrency fan-out.
// Run applies §4.8's own defaults to any remaining zero-valued fields.
func (c *Client) Batch(ctx context.Context, req batch.Request) batch.Result {
	if req.ConcurrentLimit == 0 {
		req.ConcurrentLimit = c.cfg.Batch.DefaultConcurrency
	}
	return c.batchProc.Run(ctx, req)
}

// CheckConsistency runs §4.10's cross-source validator between two already
// fetched responses (e.g. one from a primary provider, one from a reference
// provider registered via WithProvider).
func (c *Client) CheckConsistency(primary, reference types.DataResponse) consistency.Report {
	return consistency.Check(primary, reference, consistency.DefaultTolerance)
}

// StartHealthChecker runs the §4.2 probe loop until ctx is cancelled.
func (c *Client) StartHealthChecker(ctx context.Context) {
	interval := time.Duration(c.cfg.Health.IntervalSeconds) * time.Second
	timeout := time.Duration(c.cfg.Health.TimeoutSeconds) * time.Second
	c.registry.StartHealthChecker(ctx, interval, timeout)
}

// DB exposes the underlying *gorm.DB for callers that need direct repository
// access beyond the Get/Execute/Stream/Batch surface.
func (c *Client) DB() *gorm.DB { return c.db }

// Repository exposes the columnar repository directly.
func (c *Client) Repository() *repository.Repository { return c.repo }

// Close closes the underlying database connection, including one supplied
// through WithDB.
func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
