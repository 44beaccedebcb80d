package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chainpulse/internal/platform/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastPolicy = retry.Policy{
	MaxAttempts:    3,
	InitialBackoff: time.Millisecond,
}

var errPermanent = errors.New("permanent")

func classify(err error) retry.Action {
	if errors.Is(err, errPermanent) {
		return retry.Stop
	}
	return retry.Retry
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	calls := 0
	val, err := retry.Do(context.Background(), fastPolicy, classify, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, val)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := retry.DoVoid(context.Background(), fastPolicy, retry.Always, func(context.Context) error {
		calls++
		return errors.New("transient")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := retry.DoVoid(context.Background(), fastPolicy, classify, func(context.Context) error {
		calls++
		return errPermanent
	})

	var permanent *retry.PermanentError
	require.ErrorAs(t, err, &permanent)
	assert.ErrorIs(t, err, errPermanent)
	assert.Equal(t, 1, calls)
}

func TestDo_InvalidPolicy(t *testing.T) {
	err := retry.DoVoid(context.Background(), retry.Policy{}, retry.Always, func(context.Context) error { return nil })
	assert.Error(t, err)
}

func TestDo_BackoffDoublesAndCaps(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var backoffs []time.Duration
	p := retry.Policy{
		MaxAttempts:    4,
		InitialBackoff: time.Second,
		MaxBackoff:     3 * time.Second,
		Clock:          clock,
		OnRetry: func(_ int, _ error, backoff time.Duration) {
			backoffs = append(backoffs, backoff)
		},
	}

	done := make(chan error, 1)
	go func() {
		done <- retry.DoVoid(context.Background(), p, retry.Always, func(context.Context) error {
			return errors.New("transient")
		})
	}()

	for range 3 {
		require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
		clock.Advance(3 * time.Second)
	}

	require.Error(t, <-done)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, backoffs)
}

func TestDo_ContextCancelled(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	p := retry.Policy{MaxAttempts: 5, InitialBackoff: time.Hour, Clock: clock}

	done := make(chan error, 1)
	go func() {
		done <- retry.DoVoid(ctx, p, retry.Always, func(context.Context) error {
			return errors.New("transient")
		})
	}()

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
}
