package fetcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := retry(context.Background(), fastRetry(5), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("not found")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_SucceedsAfterTransient(t *testing.T) {
	calls := 0
	var retried []int
	cfg := fastRetry(3)
	cfg.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	v, err := retry(context.Background(), cfg, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &TransientError{Err: errors.New("503"), StatusCode: 503}
		}
		return "ok", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := retry(context.Background(), fastRetry(2), func(context.Context) (int, error) {
		calls++
		return 0, &TransientError{Err: errors.New("429"), StatusCode: 429}
	})
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetry_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := retry(ctx, fastRetry(5), func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, &TransientError{Err: errors.New("503")}
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoff_Capped(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: time.Second, MaxBackoff: 2 * time.Second}
	assert.Equal(t, time.Second, backoff(0, cfg))
	assert.Equal(t, 2*time.Second, backoff(5, cfg))
}
