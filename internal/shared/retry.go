package shared

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig controls the bounded exponential backoff used by Retryer.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay" yaml:"base_delay" json:"base_delay"`
	Jitter      time.Duration `mapstructure:"jitter" yaml:"jitter" json:"jitter"`
	MaxDelay    time.Duration `mapstructure:"max_delay" yaml:"max_delay" json:"max_delay"`
}

// DefaultRetryConfig returns the retry policy used for provider calls and store writes.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: DefaultMaxRetries,
		BaseDelay:   500 * time.Millisecond,
		Jitter:      250 * time.Millisecond,
		MaxDelay:    30 * time.Second,
	}
}

// Permanent marks err as not worth retrying. Retryer.Do returns the original error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// jitterBackOff yields base + rand*jitter*2^attempt, capped at max.
type jitterBackOff struct {
	cfg     RetryConfig
	attempt int
	rnd     func() float64
}

func (b *jitterBackOff) NextBackOff() time.Duration {
	jitter := time.Duration(b.rnd() * float64(b.cfg.Jitter) * float64(uint64(1)<<uint(b.attempt)))
	b.attempt++
	delay := b.cfg.BaseDelay + jitter
	if b.cfg.MaxDelay > 0 && delay > b.cfg.MaxDelay {
		delay = b.cfg.MaxDelay
	}
	return delay
}

func (b *jitterBackOff) Reset() { b.attempt = 0 }

// Retryer retries a fallible operation with bounded exponential backoff.
type Retryer struct {
	cfg     RetryConfig
	logger  *slog.Logger
	onRetry func(err error, next time.Duration)

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRetryer creates a Retryer. onRetry may be nil.
func NewRetryer(cfg RetryConfig, logger *slog.Logger, onRetry func(err error, next time.Duration)) *Retryer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Retryer{
		cfg:     cfg,
		logger:  logger,
		onRetry: onRetry,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *Retryer) random() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

// Do runs op until it succeeds, returns a permanent error, the context ends,
// or MaxAttempts is exhausted.
func (r *Retryer) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var (
		attempts  int
		permanent bool
	)
	policy := backoff.WithContext(
		backoff.WithMaxRetries(&jitterBackOff{cfg: r.cfg, rnd: r.random}, uint64(r.cfg.MaxAttempts-1)),
		ctx,
	)
	err := backoff.RetryNotify(func() error {
		attempts++
		err := op(ctx)
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			permanent = true
		}
		return err
	}, policy, func(err error, next time.Duration) {
		r.logger.Debug("operation failed, retrying",
			slog.Int("attempt", attempts),
			slog.Int("max_attempts", r.cfg.MaxAttempts),
			slog.Duration("next", next),
			slog.Any("error", err))
		if r.onRetry != nil {
			r.onRetry(err, next)
		}
	})
	if err == nil || permanent || ctx.Err() != nil || attempts < r.cfg.MaxAttempts {
		return err
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, err)
}
