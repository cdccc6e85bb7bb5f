package vprism

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wxxb789/vprism/internal/batch"
	"github.com/wxxb789/vprism/internal/provider"
	"github.com/wxxb789/vprism/internal/repository"
	"github.com/wxxb789/vprism/types"
)

type stubProvider struct {
	provider.BaseProvider
	name     string
	response types.DataResponse
	err      error
	calls    int
}

func (s *stubProvider) Name() string                                   { return s.name }
func (s *stubProvider) Authenticate(ctx context.Context) (bool, error) { return true, nil }
func (s *stubProvider) GetData(ctx context.Context, q types.DataQuery) (types.DataResponse, error) {
	s.calls++
	if s.err != nil {
		return types.DataResponse{}, s.err
	}
	return s.response, nil
}
func (s *stubProvider) StreamData(ctx context.Context, q types.DataQuery) (<-chan types.DataPoint, error) {
	return nil, nil
}
func (s *stubProvider) RealtimeQuote(ctx context.Context, symbol, market string) (map[string]string, error) {
	return nil, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "client.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(repository.AllModels()...))
	return db
}

func newTestClient(t *testing.T, providers ...*stubProvider) *Client {
	t.Helper()
	opts := []Option{WithDB(newTestDB(t)), WithLogger(zap.NewNop())}
	for _, p := range providers {
		opts = append(opts, WithProvider(p.name, p))
	}
	c, err := New(opts...)
	require.NoError(t, err)
	return c
}

func newStub(name string, symbol string) *stubProvider {
	return &stubProvider{
		name: name,
		BaseProvider: provider.BaseProvider{Cap: types.ProviderCapability{
			AssetKinds: []types.AssetKind{types.AssetStock},
			Timeframes: []types.Timeframe{types.TimeframeDaily},
		}},
		response: types.DataResponse{
			Data: []types.DataPoint{{Symbol: symbol, Close: decimal.NewFromFloat(10)}},
		},
	}
}

func TestClient_GetFetchesOnCacheMissAndPopulatesCache(t *testing.T) {
	p := newStub("akshare", "600000")
	c := newTestClient(t, p)
	q := types.DataQuery{Asset: types.AssetStock, Market: "cn", Symbols: []string{"600000"}, Timeframe: types.TimeframeDaily}

	resp, err := c.Get(context.Background(), q)
	require.NoError(t, err)
	assert.False(t, resp.Metadata.CacheHit)
	assert.Equal(t, "akshare", resp.Provider)
	assert.Equal(t, 1, p.calls)

	resp2, err := c.Get(context.Background(), q)
	require.NoError(t, err)
	assert.True(t, resp2.Metadata.CacheHit)
	assert.Equal(t, 1, p.calls, "second call should be served from cache, not the provider")
}

func TestClient_GetReturnsNoCapableProviderError(t *testing.T) {
	c := newTestClient(t)
	q := types.DataQuery{Asset: types.AssetStock, Market: "cn", Symbols: []string{"600000"}, Timeframe: types.TimeframeDaily}

	_, err := c.Get(context.Background(), q)
	require.Error(t, err)
	assert.Equal(t, types.ErrNoCapableProvider, types.CodeOf(err))
}

func TestClient_StreamReplaysFetchedPoints(t *testing.T) {
	p := newStub("akshare", "600000")
	c := newTestClient(t, p)
	q := types.DataQuery{Asset: types.AssetStock, Market: "cn", Symbols: []string{"600000"}, Timeframe: types.TimeframeDaily}

	ch, err := c.Stream(context.Background(), q)
	require.NoError(t, err)
	var points []types.DataPoint
	for dp := range ch {
		points = append(points, dp)
	}
	assert.Len(t, points, 1)
}

func TestClient_BatchRetriesExactlyRetryCountTimesNotMultiplied(t *testing.T) {
	p := newStub("akshare", "600000")
	p.err = errors.New("transient provider failure")
	p.Cap.RateLimit = types.RateLimitDescriptor{RequestsPerSecond: 1000, Burst: 10}
	c := newTestClient(t, p)

	req := batch.Request{
		Queries:         []types.DataQuery{{Asset: types.AssetStock, Market: "cn", Symbols: []string{"600000"}, Timeframe: types.TimeframeDaily}},
		ConcurrentLimit: 1,
		Timeout:         time.Second,
		RetryCount:      2,
		RetryDelay:      time.Millisecond,
	}

	result := c.Batch(context.Background(), req)
	assert.Equal(t, 0, result.SuccessCount)
	assert.Equal(t, 1, result.FailureCount)
	assert.Equal(t, req.RetryCount+1, p.calls, "runOne's own retry loop must be the only retry loop a batched query goes through")
}

func TestClient_CheckConsistencyDelegatesToConsistencyPackage(t *testing.T) {
	c := newTestClient(t)
	report := c.CheckConsistency(types.DataResponse{}, types.DataResponse{})
	assert.Equal(t, 0, report.Total)
}

func TestClient_CloseClosesUnderlyingConnection(t *testing.T) {
	c := newTestClient(t)
	require.NoError(t, c.Close())
}
