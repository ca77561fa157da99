package resilience

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"wrapped transient", NewTransientError(errors.New("upstream 503"), 503), true},
		{"conn reset errno", syscall.ECONNRESET, true},
		{"conn refused errno", syscall.ECONNREFUSED, true},
		{"reset message", errors.New("read tcp: connection reset by peer"), true},
		{"dns message", errors.New("dial tcp: lookup api.example.com: no such host"), true},
		{"io timeout message", errors.New("read tcp: i/o timeout"), true},
		{"plain error", errors.New("invalid api key"), false},
		{"context canceled", context.Canceled, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 301, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}

func TestDoVal_SucceedsFirstTry(t *testing.T) {
	calls := 0
	val, err := DoVal(context.Background(), fastRetry(3), "test", func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, 1, calls)
}

func TestDoVal_RetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	val, err := DoVal(context.Background(), fastRetry(3), "test", func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, NewTransientError(errors.New("upstream 503"), 503)
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)
	assert.Equal(t, 3, calls)
}

func TestDoVal_NonTransientFailsImmediately(t *testing.T) {
	calls := 0
	fatal := errors.New("invalid api key")
	_, err := DoVal(context.Background(), fastRetry(3), "test", func(context.Context) (string, error) {
		calls++
		return "", fatal
	})
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), fastRetry(3), "test", func(context.Context) (string, error) {
		calls++
		return "", NewTransientError(errors.New("upstream 503"), 503)
	})
	require.Error(t, err)
	var te *TransientError
	assert.ErrorAs(t, err, &te)
	assert.Equal(t, 3, calls)
}

func TestDoVal_CancelledContextStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := DoVal(ctx, fastRetry(5), "test", func(context.Context) (string, error) {
		calls++
		cancel()
		return "", NewTransientError(errors.New("upstream 503"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ZeroAttemptsDefaults(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), RetryConfig{InitialBackoff: time.Millisecond}, "test", func(context.Context) (string, error) {
		calls++
		return "", NewTransientError(errors.New("upstream 503"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestBackoffGrowsAndIsCapped(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     2.0,
	}
	assert.Equal(t, 100*time.Millisecond, backoff(0, cfg))
	assert.Equal(t, 200*time.Millisecond, backoff(1, cfg))
	assert.Equal(t, time.Second, backoff(10, cfg))
}

func TestBackoffJitterStaysInRange(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
	for i := 0; i < 100; i++ {
		d := backoff(0, cfg)
		assert.GreaterOrEqual(t, d, 75*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
	}
}
