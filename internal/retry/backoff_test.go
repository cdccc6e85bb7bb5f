package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wxxb789/vprism/types"
)

func fastPolicy() Policy {
	p := DefaultPolicy()
	p.BaseDelay = time.Millisecond
	p.MaxDelay = 5 * time.Millisecond
	p.Jitter = false
	return p
}

func TestRetryer_SucceedsWithoutRetryOnFirstAttempt(t *testing.T) {
	r := New("p1", fastPolicy(), zap.NewNop())
	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryer_RetriesOnRetryableCodeUntilSuccess(t *testing.T) {
	r := New("p1", fastPolicy(), zap.NewNop())
	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return types.NewError(types.ErrProviderTransient, "transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryer_StopsAfterMaxAttempts(t *testing.T) {
	policy := fastPolicy()
	policy.MaxAttempts = 2
	r := New("p1", policy, zap.NewNop())
	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return types.NewError(types.ErrProviderTransient, "transient")
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryer_SkipOnTakesPrecedenceAndStopsImmediately(t *testing.T) {
	r := New("p1", fastPolicy(), zap.NewNop())
	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return types.NewError(types.ErrRateLimit, "rate limited")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryer_NonRetryableNonSkipCodeStopsImmediately(t *testing.T) {
	r := New("p1", fastPolicy(), zap.NewNop())
	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return types.NewError(types.ErrValidation, "bad row")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryer_PlainGoErrorIsNotRetried(t *testing.T) {
	r := New("p1", fastPolicy(), zap.NewNop())
	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("unclassified failure")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryer_ContextCancellationDuringBackoffStopsRetrying(t *testing.T) {
	policy := DefaultPolicy()
	policy.BaseDelay = 50 * time.Millisecond
	policy.Jitter = false
	r := New("p1", policy, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	err := r.Do(ctx, func(ctx context.Context) error {
		calls++
		return types.NewError(types.ErrProviderTransient, "transient")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDelayFor_CapsAtMaxDelay(t *testing.T) {
	policy := Policy{BaseDelay: time.Second, MaxDelay: 2 * time.Second, ExponentialBase: 2, Jitter: false}
	r := New("p1", policy, zap.NewNop())
	assert.Equal(t, 2*time.Second, r.delayFor(5))
}
