// Package acoustid is the client for the AcoustID fingerprint lookup service.
package acoustid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"music-enricher/internal/api/provider"
	"music-enricher/internal/shared"
)

const (
	defaultBaseURL   = "https://api.acoustid.org/v2/"
	defaultRateLimit = 340 * time.Millisecond // AcoustID allows three requests per second
	lookupMeta       = "recordings releasegroups"
)

// AcoustID error codes that warrant special handling.
const (
	codeInvalidAPIKey      = 4
	codeServiceUnavailable = 13
	codeTooManyRequests    = 14
)

// Config holds configuration for the AcoustID client
type Config struct {
	BaseURL  string          `mapstructure:"base_url" yaml:"base_url" json:"base_url"`
	APIKey   string          `mapstructure:"api_key" yaml:"api_key" json:"api_key"`
	Pipeline provider.Config `mapstructure:",squash" yaml:",inline" json:"pipeline"`
}

// DefaultConfig returns sensible defaults for the AcoustID client
func DefaultConfig() Config {
	return Config{
		BaseURL:  defaultBaseURL,
		Pipeline: provider.DefaultConfig(shared.ProviderAcoustID, defaultRateLimit),
	}
}

// Client looks up fingerprints on AcoustID.
type Client struct {
	config Config
	p      *provider.Client
}

// NewClientWithConfig creates an AcoustID client.
func NewClientWithConfig(config Config, opts provider.Options) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if !strings.HasSuffix(config.BaseURL, "/") {
		config.BaseURL += "/"
	}
	config.Pipeline.Name = shared.ProviderAcoustID
	p, err := provider.New(config.Pipeline, opts)
	if err != nil {
		return nil, err
	}
	return &Client{config: config, p: p}, nil
}

// Pipeline exposes the shared request pipeline.
func (c *Client) Pipeline() *provider.Client { return c.p }

// Close stops the request queue.
func (c *Client) Close() { c.p.Close() }

// Lookup resolves a fingerprint to scored results. An empty slice with a nil
// error means AcoustID had no match.
func (c *Client) Lookup(ctx context.Context, fingerprint string, durationSeconds int) ([]Result, error) {
	if c.config.APIKey == "" {
		return nil, provider.MissingMetadata("AcoustID API key")
	}
	if fingerprint == "" {
		return nil, provider.MissingMetadata("fingerprint")
	}
	req := provider.NewRequest("lookup",
		"fingerprint", fingerprint,
		"duration", strconv.Itoa(durationSeconds),
		"meta", lookupMeta)

	results, ok, err := provider.Fetch(ctx, c.p, req, func(ctx context.Context) ([]Result, error) {
		return c.lookup(ctx, fingerprint, durationSeconds)
	})
	if err != nil || !ok {
		return nil, err
	}
	return results, nil
}

func (c *Client) lookup(ctx context.Context, fingerprint string, durationSeconds int) ([]Result, error) {
	// Fingerprints are long; AcoustID accepts the same parameters as a form POST.
	form := url.Values{
		"client":      {c.config.APIKey},
		"format":      {"json"},
		"meta":        {lookupMeta},
		"duration":    {strconv.Itoa(durationSeconds)},
		"fingerprint": {fingerprint},
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"lookup", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	body, err := c.p.Do(httpReq)
	if err != nil {
		// AcoustID reports throttling and bad input in a JSON body with a 4xx/5xx status.
		if apiErr := parseError(err); apiErr != nil {
			return nil, apiErr
		}
		return nil, err
	}
	return parseLookup(body)
}

func parseLookup(body []byte) ([]Result, error) {
	var resp lookupResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, provider.SchemaError(err)
	}
	if resp.Status == "error" && resp.Error != nil {
		return nil, classify(resp.Error)
	}
	if resp.Status != "ok" {
		return nil, provider.SchemaError(fmt.Errorf("status %q", resp.Status))
	}
	if len(resp.Results) == 0 {
		return nil, provider.ErrNotFound
	}
	return resp.Results, nil
}

// parseError extracts an AcoustID error object from a failed response, if any.
func parseError(err error) error {
	var httpErr *shared.HTTPError
	if !errors.As(err, &httpErr) {
		return nil
	}
	var resp lookupResponse
	if json.Unmarshal([]byte(httpErr.Message), &resp) != nil || resp.Error == nil {
		return nil
	}
	return fmt.Errorf("%w (%w)", classify(resp.Error), httpErr)
}

func classify(e *apiError) error {
	switch e.Code {
	case codeTooManyRequests:
		return provider.RateLimitError(shared.ProviderAcoustID, e.Code, e.Message)
	case codeServiceUnavailable:
		return &shared.HTTPError{StatusCode: http.StatusServiceUnavailable, Status: "Service Unavailable", Message: e.Message}
	case codeInvalidAPIKey:
		return fmt.Errorf("%w: acoustid: %s", provider.ErrFatal, e.Message)
	default:
		return fmt.Errorf("%w: acoustid error %d: %s", provider.ErrFatal, e.Code, e.Message)
	}
}
