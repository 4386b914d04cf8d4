package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(maxAttempts int) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		Retryable:   IsRateLimit,
	}
}

func TestPolicy_Do_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicy_Do_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &RateLimitError{Err: errors.New("429")}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPolicy_Do_NonRetryableReturnsImmediately(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestPolicy_Do_MaxAttemptsExceeded(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		return &RateLimitError{Err: errors.New("429")}
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxAttemptsExceeded)
	assert.Equal(t, 3, calls)
	// 元のエラーも辿れる
	assert.True(t, IsRateLimit(err))
}

func TestPolicy_Do_HonorsRetryAfterHint(t *testing.T) {
	// プロバイダ指示の待機時間が計算済みバックオフより優先される
	hint := 50 * time.Millisecond
	calls := 0
	start := time.Now()
	err := fastPolicy(2).Do(context.Background(), func() error {
		calls++
		if calls == 1 {
			return &RateLimitError{RetryAfter: hint, Err: errors.New("429")}
		}
		return nil
	})

	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), hint)
}

func TestPolicy_Do_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	policy := Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Retryable:   IsRateLimit,
	}

	err := policy.Do(ctx, func() error {
		return &RateLimitError{Err: errors.New("429")}
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIsRateLimit(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "RateLimitError", err: &RateLimitError{}, want: true},
		{name: "ラップされたRateLimitError", err: errors.Join(errors.New("outer"), &RateLimitError{}), want: true},
		{name: "通常のエラー", err: errors.New("boom"), want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRateLimit(tt.err))
		})
	}
}

func TestRateLimitError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	err := &RateLimitError{Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "rate limited")
}
