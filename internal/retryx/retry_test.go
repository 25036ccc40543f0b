package retryx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetry_SucceedsFirstTry(t *testing.T) {
	calls := 0
	result := WithRetry(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	}, Options{})

	require.True(t, result.OK)
	assert.Equal(t, 42, result.Value)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, result.Attempts)
}

func TestWithRetry_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	result := WithRetry(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 7, nil
	}, Options{MaxRetries: 5, BaseDelay: time.Millisecond})

	require.True(t, result.OK)
	assert.Equal(t, 7, result.Value)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_NeverExceedsMaxAttempts(t *testing.T) {
	calls := 0
	result := WithRetry(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("permanent failure")
	}, Options{MaxRetries: 2, BaseDelay: time.Millisecond})

	assert.False(t, result.OK)
	assert.Equal(t, 3, calls) // 1 + MaxRetries
	assert.Equal(t, 3, result.Attempts)
}

func TestWithRetry_NeverRetriesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	result := WithRetry(ctx, func(ctx context.Context) (int, error) {
		calls++
		return 0, ctx.Err()
	}, Options{MaxRetries: 5, BaseDelay: time.Millisecond})

	assert.False(t, result.OK)
	assert.Equal(t, 0, calls)
}

func TestWithRetry_ShouldRetryOverride(t *testing.T) {
	calls := 0
	result := WithRetry(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("do not retry me")
	}, Options{
		MaxRetries: 5,
		BaseDelay:  time.Millisecond,
		ShouldRetry: func(err error) bool {
			return false
		},
	})

	assert.False(t, result.OK)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_PerAttemptTimeout(t *testing.T) {
	result := WithRetry(context.Background(), func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}, Options{MaxRetries: 1, BaseDelay: time.Millisecond, Timeout: 10 * time.Millisecond})

	assert.False(t, result.OK)
	assert.GreaterOrEqual(t, result.Attempts, 1)
}
