// Package ratelimit serializes calls to one provider behind a minimum
// dispatch interval with an optional cooldown.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"music-enricher/internal/metrics"
)

// Mode controls what happens when the queue is saturated.
type Mode int

const (
	// ModeDrop rejects new tasks once MaxPending tasks are queued.
	ModeDrop Mode = iota
	// ModeWait never drops; tasks always eventually run.
	ModeWait
)

// ParseMode maps a config string onto a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "drop":
		return ModeDrop, nil
	case "wait":
		return ModeWait, nil
	}
	return ModeDrop, fmt.Errorf("unknown queue mode %q (want wait or drop)", s)
}

func (m Mode) String() string {
	if m == ModeWait {
		return "wait"
	}
	return "drop"
}

var (
	// ErrQueueFull is returned by ModeDrop queues when MaxPending is reached.
	ErrQueueFull = errors.New("ratelimit: queue saturated")
	// ErrClosed is returned for tasks pushed to, or still pending in, a closed queue.
	ErrClosed = errors.New("ratelimit: queue closed")
)

const (
	defaultMaxPending = 64
	defaultCooldown   = 5 * time.Second
)

// Config describes one provider queue.
type Config struct {
	Name       string
	Interval   time.Duration
	Cooldown   time.Duration
	Mode       Mode
	MaxPending int
}

type result struct {
	value any
	err   error
}

type task struct {
	ctx  context.Context
	run  func(ctx context.Context) (any, error)
	done chan result
}

// Queue runs tasks one at a time, in FIFO order, at most once per Interval.
type Queue struct {
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu            sync.Mutex
	pending       []*task
	cooldownUntil time.Time
	closed        bool

	wake     chan struct{}
	stop     chan struct{}
	finished chan struct{}
	once     sync.Once
}

// New creates a queue and starts its worker. Call Close to stop it.
func New(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Queue {
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = defaultMaxPending
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	q := &Queue{
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger.With(slog.String("queue", cfg.Name)),
		metrics:  m,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go q.loop()
	return q
}

// Name returns the provider name the queue was created for.
func (q *Queue) Name() string { return q.cfg.Name }

// Push enqueues fn and waits for its result. The task runs on a context
// detached from ctx's cancellation: if ctx ends first Push returns ctx.Err()
// and the task still runs to completion.
func Push[R any](ctx context.Context, q *Queue, fn func(ctx context.Context) (R, error)) (R, error) {
	var zero R
	t := &task{
		ctx: context.WithoutCancel(ctx),
		run: func(ctx context.Context) (any, error) {
			return fn(ctx)
		},
		done: make(chan result, 1),
	}
	if err := q.enqueue(t); err != nil {
		return zero, err
	}
	select {
	case res := <-t.done:
		if res.err != nil {
			return zero, res.err
		}
		v, _ := res.value.(R)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Do is Push for tasks without a result value.
func (q *Queue) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Push(ctx, q, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Delay postpones the next dispatch by d (the configured cooldown when d <= 0).
// Overlapping delays extend to the latest deadline rather than stacking.
func (q *Queue) Delay(d time.Duration) {
	if d <= 0 {
		d = q.cfg.Cooldown
	}
	until := time.Now().Add(d)
	q.mu.Lock()
	if until.After(q.cooldownUntil) {
		q.cooldownUntil = until
	}
	q.mu.Unlock()
	q.metrics.Cooldown(q.cfg.Name)
	q.logger.Debug("queue cooldown", slog.Duration("delay", d))
}

// Pending returns the number of queued tasks not yet dispatched.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops the worker. Tasks still pending fail with ErrClosed.
func (q *Queue) Close() {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.stop)
		<-q.finished
	})
}

func (q *Queue) enqueue(t *task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if q.cfg.Mode == ModeDrop && len(q.pending) >= q.cfg.MaxPending {
		q.mu.Unlock()
		q.metrics.Dropped(q.cfg.Name)
		return fmt.Errorf("%s: %w", q.cfg.Name, ErrQueueFull)
	}
	q.pending = append(q.pending, t)
	depth := len(q.pending)
	q.mu.Unlock()

	q.metrics.SetQueueDepth(q.cfg.Name, depth)
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

func (q *Queue) next() (*task, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, 0
	}
	t := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	q.metrics.SetQueueDepth(q.cfg.Name, len(q.pending))
	return t, time.Until(q.cooldownUntil)
}

func (q *Queue) loop() {
	defer close(q.finished)
	defer q.drain()

	stopCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-q.stop:
			cancel()
		case <-stopCtx.Done():
		}
	}()

	for {
		t, cooldown := q.next()
		if t == nil {
			select {
			case <-q.wake:
				continue
			case <-q.stop:
				return
			}
		}
		if err := sleepWithContext(stopCtx, cooldown); err != nil {
			t.done <- result{err: ErrClosed}
			return
		}
		// Cooldown may have been extended while sleeping.
		if extra := q.remainingCooldown(); extra > 0 {
			if err := sleepWithContext(stopCtx, extra); err != nil {
				t.done <- result{err: ErrClosed}
				return
			}
		}
		if err := q.limiter.Wait(stopCtx); err != nil {
			t.done <- result{err: ErrClosed}
			return
		}
		select {
		case <-q.stop:
			t.done <- result{err: ErrClosed}
			return
		default:
		}
		q.metrics.Dispatched(q.cfg.Name)
		t.done <- q.execute(t)
	}
}

func (q *Queue) remainingCooldown() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	return time.Until(q.cooldownUntil)
}

func (q *Queue) execute(t *task) (res result) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("queued task panicked", slog.Any("panic", r))
			res = result{err: fmt.Errorf("%s: task panicked: %v", q.cfg.Name, r)}
		}
	}()
	v, err := t.run(t.ctx)
	return result{value: v, err: err}
}

func (q *Queue) drain() {
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()
	for _, t := range pending {
		t.done <- result{err: ErrClosed}
	}
	q.metrics.SetQueueDepth(q.cfg.Name, 0)
}

// sleepWithContext blocks for d, returning early if ctx is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
