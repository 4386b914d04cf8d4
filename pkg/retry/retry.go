package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrMaxAttemptsExceeded は最大試行回数を超過した場合のエラー
var ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")

// RateLimitError はレート制限エラーを表す
// RetryAfter が正の値の場合、プロバイダが指示した待機時間として
// 計算済みのバックオフより優先される
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rate limited: %v", e.Err)
	}
	return "rate limited"
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// Policy はリトライポリシーを表す
// 複数のプロバイダクライアントで共有される（重複実装の排除）
type Policy struct {
	MaxAttempts int                  // 最大試行回数（初回を含む）
	BaseDelay   time.Duration        // バックオフの基底時間
	MaxDelay    time.Duration        // バックオフの上限時間
	Retryable   func(err error) bool // リトライ可能なエラーかどうかの判定
}

// DefaultPolicy はデフォルトのリトライポリシーを返す
// レート制限エラーのみをリトライ対象とする
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    32 * time.Second,
		Retryable:   IsRateLimit,
	}
}

// IsRateLimit は err が RateLimitError かどうかを判定する
func IsRateLimit(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}

// Do は fn をポリシーに従って実行する
// リトライ不可能なエラーは即座に返す
// リトライ可能なエラーが MaxAttempts 回続いた場合は
// ErrMaxAttemptsExceeded でラップして返す
func (p Policy) Do(ctx context.Context, fn func() error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := p.sleep(ctx, attempt, lastErr); err != nil {
				return err
			}
		}

		err := fn()
		if err == nil {
			return nil
		}

		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%w: %w", ErrMaxAttemptsExceeded, lastErr)
}

// sleep は attempt 回目のリトライ前の待機を行う
// プロバイダが待機時間を指示している場合はそれを優先する
func (p Policy) sleep(ctx context.Context, attempt int, lastErr error) error {
	delay := p.BaseDelay << (attempt - 1)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	var rle *RateLimitError
	if errors.As(lastErr, &rle) && rle.RetryAfter > 0 {
		delay = rle.RetryAfter
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
