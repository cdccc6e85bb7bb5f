// Package cache orchestrates the two-tier read-through/write-through cache
// of §4.6, grounded on the teacher's MultiLevelCache (local-then-remote Get,
// dual Set, dual Delete) restructured around the explicit TTL-policy table
// and ordering §4.6 mandates.
package cache

import (
	"encoding/json"

	"github.com/wxxb789/vprism/internal/cache/l1"
	"github.com/wxxb789/vprism/internal/cache/l2"
	"github.com/wxxb789/vprism/internal/cachekey"
	"github.com/wxxb789/vprism/internal/metrics"
	"github.com/wxxb789/vprism/types"
	"go.uber.org/zap"
)

// Cache is the two-tier orchestrator: L1 in-memory LRU, L2 columnar KV.
type Cache struct {
	l1      *l1.Cache
	l2      *l2.Store
	ttl     TTLPolicy
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates a two-tier Cache.
func New(l1Size int, store *l2.Store, ttl TTLPolicy, logger *zap.Logger) *Cache {
	return &Cache{l1: l1.New(l1Size), l2: store, ttl: ttl, logger: logger}
}

// WithMetrics attaches a metrics.Metrics instance for hit/miss counters.
// Calling this is optional; a Cache without metrics behaves identically.
func (c *Cache) WithMetrics(m *metrics.Metrics) *Cache {
	c.metrics = m
	return c
}

// Get performs the §4.6 read path: check L1; on miss check L2; on L2 hit,
// write back to L1 with L1 TTL and return (P6, P7).
func (c *Cache) Get(q types.DataQuery) (types.DataResponse, bool) {
	key := cachekey.L2Key(q)

	if raw, ok := c.l1.Get(key); ok {
		var resp types.DataResponse
		if err := json.Unmarshal(raw, &resp); err == nil {
			c.recordHit("l1")
			return resp, true
		}
	}
	c.recordMiss("l1")

	raw, ok := c.l2.Get(key)
	if !ok {
		c.recordMiss("l2")
		return types.DataResponse{}, false
	}
	c.recordHit("l2")
	var resp types.DataResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.logger.Warn("l2 payload decode failed", zap.String("key", key), zap.Error(err))
		return types.DataResponse{}, false
	}
	c.l1.Set(key, raw, c.ttl.L1TTL(q.Timeframe))
	return resp, true
}

func (c *Cache) recordHit(tier string) {
	if c.metrics != nil {
		c.metrics.CacheHits.WithLabelValues(tier).Inc()
	}
}

func (c *Cache) recordMiss(tier string) {
	if c.metrics != nil {
		c.metrics.CacheMisses.WithLabelValues(tier).Inc()
	}
}

// Set performs the §4.6 write path: write L2 first with full TTL, then L1
// with L1 TTL, so a crash between writes still lets the next read
// repopulate L1 from L2.
func (c *Cache) Set(q types.DataQuery, resp types.DataResponse) error {
	key := cachekey.L2Key(q)
	raw, err := json.Marshal(resp)
	if err != nil {
		return types.NewError(types.ErrCache, "failed to encode cache payload").WithCause(err)
	}

	if err := c.l2.Set(key, raw, c.ttl.L2TTL(q.Timeframe)); err != nil {
		return types.NewError(types.ErrCache, "l2 write failed").WithCause(err)
	}
	c.l1.Set(key, raw, c.ttl.L1TTL(q.Timeframe))
	return nil
}

// Invalidate deletes q's entry from both tiers.
func (c *Cache) Invalidate(q types.DataQuery) error {
	key := cachekey.L2Key(q)
	c.l1.Delete(key)
	return c.l2.Delete(key)
}

// Clear drops all rows from both tiers.
func (c *Cache) Clear() error {
	c.l1.Clear()
	return c.l2.Clear()
}

// CleanupExpired sweeps expired L2 rows and returns the count removed.
func (c *Cache) CleanupExpired() (int64, error) {
	return c.l2.CleanupExpired()
}
