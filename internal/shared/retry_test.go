package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		Jitter:      time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
}

func TestRetryerSucceedsAfterTransientFailures(t *testing.T) {
	var retries int
	r := NewRetryer(fastRetry(5), nil, func(error, time.Duration) { retries++ })

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return &HTTPError{StatusCode: 503, Status: "Service Unavailable"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
}

func TestRetryerExhaustsAttempts(t *testing.T) {
	r := NewRetryer(fastRetry(5), nil, nil)
	boom := errors.New("boom")

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return boom
	})

	require.Error(t, err)
	assert.Equal(t, 5, calls)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failed after 5 attempts")
}

func TestRetryerStopsOnPermanent(t *testing.T) {
	r := NewRetryer(fastRetry(5), nil, nil)
	notFound := errors.New("not found")

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(notFound)
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, notFound)
	assert.NotContains(t, err.Error(), "failed after")
}

func TestRetryerHonoursContext(t *testing.T) {
	r := NewRetryer(RetryConfig{MaxAttempts: 5, BaseDelay: time.Second}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := r.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestJitterBackOffGrowsAndCaps(t *testing.T) {
	b := &jitterBackOff{
		cfg: RetryConfig{BaseDelay: 100 * time.Millisecond, Jitter: 100 * time.Millisecond, MaxDelay: 500 * time.Millisecond},
		rnd: func() float64 { return 1 },
	}
	assert.Equal(t, 200*time.Millisecond, b.NextBackOff()) // 100 + 100*1
	assert.Equal(t, 300*time.Millisecond, b.NextBackOff()) // 100 + 100*2
	assert.Equal(t, 500*time.Millisecond, b.NextBackOff()) // capped
	b.Reset()
	assert.Equal(t, 200*time.Millisecond, b.NextBackOff())
}

func TestIsRetryableHTTPError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&HTTPError{StatusCode: 429}, true},
		{&HTTPError{StatusCode: 503}, true},
		{&HTTPError{StatusCode: 404}, false},
		{errors.Join(errors.New("wrap"), &HTTPError{StatusCode: 502}), true},
		{errors.New("plain"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRetryableHTTPError(tt.err), "%v", tt.err)
	}
}
