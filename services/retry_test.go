package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	r := NewRetryExecutor(3, time.Millisecond, nil)

	calls := 0
	value, err := Retry(context.Background(), r, "test.op", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("timeout")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.Equal(t, 3, calls)
}

func TestRetryExhausted(t *testing.T) {
	r := NewRetryExecutor(3, time.Millisecond, nil)
	last := errors.New("connection refused")

	calls := 0
	err := r.Execute(context.Background(), "test.op", func(ctx context.Context) error {
		calls++
		return last
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, ErrExhaustedRetries)
	assert.ErrorIs(t, err, last, "последняя ошибка должна сохраняться")

	var exhausted *ExhaustedRetriesError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, "test.op", exhausted.Operation)
	assert.Equal(t, 3, exhausted.Attempts)
}

func TestRetryPermanentErrorStopsImmediately(t *testing.T) {
	r := NewRetryExecutor(5, time.Millisecond, nil)

	calls := 0
	err := r.Execute(context.Background(), "test.op", func(ctx context.Context) error {
		calls++
		return Permanent(ErrAuthConfig)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, ErrAuthConfig)
	assert.NotErrorIs(t, err, ErrExhaustedRetries)
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	r := NewRetryExecutor(5, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := r.Execute(ctx, "test.op", func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("temporary")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRetryExecutorMinimumOneAttempt(t *testing.T) {
	r := NewRetryExecutor(0, 0, nil)
	assert.Equal(t, 1, r.MaxAttempts)
	assert.Nil(t, Permanent(nil))
}
