package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithBackoff_Success(t *testing.T) {
	attempts := 0
	operation := func() error {
		attempts++
		return nil
	}

	err := WithBackoff(context.Background(), operation, 3, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, attempts, "should succeed on first try")
}

func TestWithBackoff_EventualSuccess(t *testing.T) {
	attempts := 0
	operation := func() error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	}

	err := WithBackoff(context.Background(), operation, 5, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts, "should succeed on third attempt")
}

func TestWithBackoff_AllAttemptsFail(t *testing.T) {
	attempts := 0
	expectedErr := errors.New("persistent error")
	operation := func() error {
		attempts++
		return expectedErr
	}

	err := WithBackoff(context.Background(), operation, 3, time.Millisecond)
	assert.Equal(t, expectedErr, err, "should return the original error")
	assert.Equal(t, 3, attempts, "should attempt exactly maxAttempts times")
}

func TestWithBackoff_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	operation := func() error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errors.New("error")
	}

	err := WithBackoff(ctx, operation, 10, 10*time.Millisecond)
	require.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, attempts, 2, "should stop when context is canceled")
}

func TestWithBackoff_InvalidMaxAttempts(t *testing.T) {
	for _, n := range []int{0, -1} {
		attempts := 0
		err := WithBackoff(context.Background(), func() error {
			attempts++
			return nil
		}, n, time.Millisecond)
		require.ErrorIs(t, err, ErrInvalidMaxAttempts)
		assert.Zero(t, attempts)
	}
}

func TestDo_NonRetryableReturnsImmediately(t *testing.T) {
	transient := errors.New("transient")
	fatal := errors.New("fatal")

	attempts := 0
	err := Do(context.Background(), func(attempt int) error {
		attempts++
		if attempt == 1 {
			return transient
		}
		return fatal
	}, WithMaxAttempts(5), WithBaseDelay(time.Millisecond), If(func(err error) bool {
		return errors.Is(err, transient)
	}))

	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 2, attempts)
}

func TestDo_PassesAttemptNumber(t *testing.T) {
	var seen []int
	err := Do(context.Background(), func(attempt int) error {
		seen = append(seen, attempt)
		return errors.New("again")
	}, WithMaxAttempts(3), WithBaseDelay(time.Millisecond))

	require.Error(t, err)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestDelay(t *testing.T) {
	c := config{baseDelay: 10 * time.Millisecond, maxDelay: 35 * time.Millisecond}

	assert.Equal(t, 10*time.Millisecond, c.delay(1))
	assert.Equal(t, 20*time.Millisecond, c.delay(2))
	assert.Equal(t, 35*time.Millisecond, c.delay(3))
	assert.Equal(t, 35*time.Millisecond, c.delay(10))

	uncapped := config{baseDelay: time.Millisecond}
	assert.Equal(t, 8*time.Millisecond, uncapped.delay(4))
}
