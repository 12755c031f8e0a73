// Package provider holds the request pipeline shared by every external
// metadata client: canonical request keys, the response cache, the
// rate-limited queue and bounded retry.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"music-enricher/internal/cache"
	"music-enricher/internal/metrics"
	"music-enricher/internal/ratelimit"
	"music-enricher/internal/shared"
)

const defaultTimeout = 30 * time.Second

// Config holds the pipeline settings for one provider.
type Config struct {
	Name        string             `mapstructure:"-" yaml:"-" json:"-"`
	Interval    time.Duration      `mapstructure:"interval" yaml:"interval" json:"interval"`
	Cooldown    time.Duration      `mapstructure:"cooldown" yaml:"cooldown" json:"cooldown"`
	Mode        string             `mapstructure:"mode" yaml:"mode" json:"mode"`
	MaxPending  int                `mapstructure:"max_pending" yaml:"max_pending" json:"max_pending"`
	CacheSize   int                `mapstructure:"cache_size" yaml:"cache_size" json:"cache_size"`
	CacheWindow time.Duration      `mapstructure:"cache_window" yaml:"cache_window" json:"cache_window"`
	Timeout     time.Duration      `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	Retry       shared.RetryConfig `mapstructure:"retry" yaml:"retry" json:"retry"`
}

// DefaultConfig returns pipeline defaults for a provider dispatching at most
// once per interval.
func DefaultConfig(name string, interval time.Duration) Config {
	return Config{
		Name:        name,
		Interval:    interval,
		Cooldown:    5 * time.Second,
		Mode:        ratelimit.ModeWait.String(),
		MaxPending:  64,
		CacheSize:   cache.DefaultMaxEntries,
		CacheWindow: cache.DefaultWindow,
		Timeout:     defaultTimeout,
		Retry:       shared.DefaultRetryConfig(),
	}
}

// Options carries the collaborators a Client is built with.
type Options struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Client composes cache, queue and retry for one provider.
type Client struct {
	name     string
	http     *http.Client
	queue    *ratelimit.Queue
	cache    *cache.Cache
	retry    *shared.Retryer
	cooldown time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New builds a Client. Close releases the queue worker and cache timer.
func New(cfg Config, opts Options) (*Client, error) {
	if cfg.Name == "" {
		return nil, errors.New("provider: name is required")
	}
	mode, err := ratelimit.ParseMode(cfg.Mode)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", cfg.Name, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With(slog.String("provider", cfg.Name))

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		name:     cfg.Name,
		http:     httpClient,
		cooldown: cfg.Cooldown,
		logger:   logger,
		metrics:  opts.Metrics,
	}
	c.queue = ratelimit.New(ratelimit.Config{
		Name:       cfg.Name,
		Interval:   cfg.Interval,
		Cooldown:   cfg.Cooldown,
		Mode:       mode,
		MaxPending: cfg.MaxPending,
	}, logger, opts.Metrics)
	c.cache = cache.New(cache.Config{
		Name:       cfg.Name,
		MaxEntries: cfg.CacheSize,
		Window:     cfg.CacheWindow,
	}, opts.Metrics)
	c.retry = shared.NewRetryer(cfg.Retry, logger, func(err error, next time.Duration) {
		opts.Metrics.Retried(cfg.Name)
	})
	return c, nil
}

// Name returns the provider name.
func (c *Client) Name() string { return c.name }

// HTTPClient returns the underlying HTTP client.
func (c *Client) HTTPClient() *http.Client { return c.http }

// Logger returns the provider-scoped logger.
func (c *Client) Logger() *slog.Logger { return c.logger }

// Queue exposes the provider's rate-limited queue.
func (c *Client) Queue() *ratelimit.Queue { return c.queue }

// Cache exposes the provider's response cache.
func (c *Client) Cache() *cache.Cache { return c.cache }

// Close stops the queue worker and the cache timer.
func (c *Client) Close() {
	c.queue.Close()
	c.cache.Close()
}

// Fetch runs call through the provider pipeline. It returns ok=false with a
// nil error when the provider has no usable match or the response had an
// unexpected shape. Only successful results are cached, and cache hits never
// touch the queue. Identical requests waiting in the queue at the same time
// reach the network once.
func Fetch[T any](ctx context.Context, c *Client, req Request, call func(ctx context.Context) (T, error)) (T, bool, error) {
	var zero T
	key := req.Key()
	if v, ok := cached[T](c.cache.Get, key); ok {
		c.logger.Debug("cache hit", slog.String("key", key))
		return v, true, nil
	}

	value, err := ratelimit.Push(ctx, c.queue, func(ctx context.Context) (T, error) {
		// an earlier task for the same key may have filled the cache
		if v, ok := cached[T](c.cache.Peek, key); ok {
			c.logger.Debug("request served by an earlier identical request", slog.String("key", key))
			return v, nil
		}
		var out T
		err := c.retry.Do(ctx, func(ctx context.Context) error {
			v, err := call(ctx)
			if err != nil {
				if IsThrottle(err) {
					c.queue.Delay(c.cooldown)
				}
				if isTerminal(err) {
					return shared.Permanent(err)
				}
				return err
			}
			out = v
			return nil
		})
		if err != nil {
			return zero, err
		}
		// Cached inside the task so the result lands even if the caller left.
		c.cache.Set(key, out)
		return out, nil
	})

	switch {
	case err == nil:
		return value, true, nil
	case errors.Is(err, ErrNotFound):
		c.logger.Debug("no match", slog.String("key", key))
		return zero, false, nil
	case errors.Is(err, ErrSchemaMismatch):
		c.metrics.ProviderError(c.name, Class(err))
		c.logger.Warn("unexpected response shape, treating as not found",
			slog.String("key", key), slog.Any("error", err))
		return zero, false, nil
	default:
		c.metrics.ProviderError(c.name, Class(err))
		return zero, false, fmt.Errorf("%s %s: %w", c.name, req.Method, err)
	}
}

func cached[T any](get func(string) (any, bool), key string) (T, bool) {
	v, ok := get(key)
	if !ok {
		var zero T
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}

// Do performs req and returns the body of a 200 response. Other statuses
// become *shared.HTTPError (404 also matches ErrNotFound).
func (c *Client) Do(req *http.Request) ([]byte, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", shared.UserAgent)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		// Handle network timeouts
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, &shared.HTTPError{
				StatusCode: http.StatusGatewayTimeout,
				Status:     "Gateway Timeout",
				Message:    err.Error(),
			}
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %w", ErrNotFound, shared.NewHTTPError(resp, body))
	default:
		return nil, shared.NewHTTPError(resp, body)
	}
}

// Get is Do for a GET request with an Accept: application/json header.
func (c *Client) Get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	return c.Do(req)
}
