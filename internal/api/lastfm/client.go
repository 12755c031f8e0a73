// Package lastfm is the client for the Last.fm scrobbling service.
package lastfm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"music-enricher/internal/api/provider"
	"music-enricher/internal/shared"
)

const (
	defaultBaseURL   = "https://ws.audioscrobbler.com/2.0/"
	defaultRateLimit = 250 * time.Millisecond
)

// Last.fm API error codes.
const (
	errInvalidParameters = 6
	errOperationFailed   = 8
	errInvalidAPIKey     = 10
	errServiceOffline    = 11
	errTemporary         = 16
	errSuspendedKey      = 26
	errRateLimit         = 29
)

// Config holds configuration for the Last.fm client
type Config struct {
	BaseURL  string          `mapstructure:"base_url" yaml:"base_url" json:"base_url"`
	APIKey   string          `mapstructure:"api_key" yaml:"api_key" json:"api_key"`
	Pipeline provider.Config `mapstructure:",squash" yaml:",inline" json:"pipeline"`
}

// DefaultConfig returns sensible defaults for the Last.fm client
func DefaultConfig() Config {
	return Config{
		BaseURL:  defaultBaseURL,
		Pipeline: provider.DefaultConfig(shared.ProviderLastFM, defaultRateLimit),
	}
}

// Client fetches artist, album and track info from Last.fm.
type Client struct {
	config Config
	p      *provider.Client
}

// NewClientWithConfig creates a Last.fm client.
func NewClientWithConfig(config Config, opts provider.Options) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.Pipeline.Name = shared.ProviderLastFM
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

// ArtistInfo looks an artist up by MBID when known, otherwise by name.
func (c *Client) ArtistInfo(ctx context.Context, name, mbid string) (*Artist, bool, error) {
	if name == "" && mbid == "" {
		return nil, false, provider.MissingMetadata("artist name")
	}
	params := lookupParams(mbid, "artist", name)
	return call(ctx, c, "artist.getinfo", params, func(env *envelope) (*Artist, bool) {
		return env.Artist, env.Artist != nil && env.Artist.Name != ""
	})
}

// AlbumInfo looks an album up by MBID when known, otherwise by artist and title.
func (c *Client) AlbumInfo(ctx context.Context, artist, album, mbid string) (*Album, bool, error) {
	if mbid == "" && artist == "" {
		return nil, false, provider.MissingMetadata("artist name")
	}
	if mbid == "" && album == "" {
		return nil, false, provider.MissingMetadata("album title")
	}
	params := lookupParams(mbid, "artist", artist, "album", album)
	return call(ctx, c, "album.getinfo", params, func(env *envelope) (*Album, bool) {
		return env.Album, env.Album != nil && env.Album.Name != ""
	})
}

// TrackInfo looks a track up by MBID when known, otherwise by artist and title.
func (c *Client) TrackInfo(ctx context.Context, artist, track, mbid string) (*Track, bool, error) {
	if mbid == "" && artist == "" {
		return nil, false, provider.MissingMetadata("artist name")
	}
	if mbid == "" && track == "" {
		return nil, false, provider.MissingMetadata("track title")
	}
	params := lookupParams(mbid, "artist", artist, "track", track)
	return call(ctx, c, "track.getinfo", params, func(env *envelope) (*Track, bool) {
		return env.Track, env.Track != nil && env.Track.Name != ""
	})
}

// lookupParams prefers an MBID lookup; name parameters are only sent without one.
func lookupParams(mbid string, kv ...string) []string {
	if mbid != "" {
		return []string{"mbid", mbid}
	}
	return kv
}

func call[T any](ctx context.Context, c *Client, method string, params []string, pick func(*envelope) (T, bool)) (T, bool, error) {
	var zero T
	if c.config.APIKey == "" {
		return zero, false, provider.MissingMetadata("Last.fm API key")
	}
	req := provider.NewRequest(method, params...)
	return provider.Fetch(ctx, c.p, req, func(ctx context.Context) (T, error) {
		query := url.Values{
			"method":      {method},
			"api_key":     {c.config.APIKey},
			"format":      {"json"},
			"autocorrect": {"1"},
		}
		for k, v := range req.Params {
			query.Set(k, v)
		}
		body, err := c.p.Get(ctx, c.config.BaseURL+"?"+query.Encode(), nil)
		if err != nil {
			// Last.fm returns its error object with 4xx statuses too.
			if apiErr := errorFromHTTP(err); apiErr != nil {
				return zero, apiErr
			}
			return zero, err
		}
		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return zero, provider.SchemaError(err)
		}
		if env.Error != 0 {
			return zero, classify(env.Error, env.Message)
		}
		v, ok := pick(&env)
		if !ok {
			return zero, provider.SchemaError(fmt.Errorf("%s: missing payload", method))
		}
		return v, nil
	})
}

func errorFromHTTP(err error) error {
	var httpErr *shared.HTTPError
	if !errors.As(err, &httpErr) {
		return nil
	}
	var env envelope
	if json.Unmarshal([]byte(httpErr.Message), &env) != nil || env.Error == 0 {
		return nil
	}
	return fmt.Errorf("%w (%w)", classify(env.Error, env.Message), httpErr)
}

func classify(code int, message string) error {
	switch code {
	case errInvalidParameters:
		// "The artist you supplied could not be found"
		return fmt.Errorf("%w: %s", provider.ErrNotFound, message)
	case errRateLimit:
		return provider.RateLimitError(shared.ProviderLastFM, code, message)
	case errOperationFailed, errServiceOffline, errTemporary:
		return &shared.HTTPError{StatusCode: 503, Status: "Service Unavailable", Message: message}
	case errInvalidAPIKey, errSuspendedKey:
		return fmt.Errorf("%w: lastfm: %s", provider.ErrFatal, message)
	default:
		return fmt.Errorf("%w: lastfm error %d: %s", provider.ErrFatal, code, strings.TrimSpace(message))
	}
}
