package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

var errBoom = errors.New("boom")

// TestProperty_Breaker_OpensExactlyAtFailureThreshold checks that for any
// configured failure threshold T, the breaker stays closed (and keeps
// forwarding calls) through T-1 consecutive failures and opens on the T-th,
// after which the next call is rejected without invoking the wrapped
// function at all.
func TestProperty_Breaker_OpensExactlyAtFailureThreshold(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		threshold := rapid.IntRange(1, 8).Draw(rt, "threshold")
		cfg := Config{FailureThreshold: threshold, RecoveryTimeout: time.Hour, HalfOpenMaxCalls: 2}
		b := New("p", cfg, zap.NewNop())

		for i := 0; i < threshold; i++ {
			err := b.Call(context.Background(), func(ctx context.Context) error { return errBoom })
			require.ErrorIs(rt, err, errBoom)
		}
		require.Equal(rt, StateOpen, b.State())

		called := false
		err := b.Call(context.Background(), func(ctx context.Context) error {
			called = true
			return nil
		})
		require.Error(rt, err)
		require.False(rt, called, "an open breaker must not invoke the wrapped function")
	})
}

// TestProperty_Breaker_TransitionsToHalfOpenAfterRecoveryTimeout checks that
// regardless of recoveryTimeout's magnitude, a breaker tripped open forwards
// its next call once that duration has elapsed.
func TestProperty_Breaker_TransitionsToHalfOpenAfterRecoveryTimeout(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		recoveryMs := rapid.IntRange(1, 20).Draw(rt, "recoveryMs")
		cfg := Config{FailureThreshold: 1, RecoveryTimeout: time.Duration(recoveryMs) * time.Millisecond, HalfOpenMaxCalls: 2}
		b := New("p", cfg, zap.NewNop())

		_ = b.Call(context.Background(), func(ctx context.Context) error { return errBoom })
		require.Equal(rt, StateOpen, b.State())

		time.Sleep(time.Duration(recoveryMs)*time.Millisecond + 5*time.Millisecond)

		called := false
		err := b.Call(context.Background(), func(ctx context.Context) error {
			called = true
			return nil
		})
		require.NoError(rt, err)
		require.True(rt, called, "a call after recoveryTimeout must be forwarded")
	})
}
