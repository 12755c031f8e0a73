// Package audiodb is the client for TheAudioDB, keyed by MusicBrainz ids.
package audiodb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"music-enricher/internal/api/provider"
	"music-enricher/internal/shared"
)

const (
	defaultBaseURL   = "https://www.theaudiodb.com/api/v1/json/"
	defaultAPIKey    = "2" // public test key
	defaultRateLimit = 500 * time.Millisecond
)

// Config holds configuration for the TheAudioDB client
type Config struct {
	BaseURL  string          `mapstructure:"base_url" yaml:"base_url" json:"base_url"`
	APIKey   string          `mapstructure:"api_key" yaml:"api_key" json:"api_key"`
	Pipeline provider.Config `mapstructure:",squash" yaml:",inline" json:"pipeline"`
}

// DefaultConfig returns sensible defaults for the TheAudioDB client
func DefaultConfig() Config {
	return Config{
		BaseURL:  defaultBaseURL,
		APIKey:   defaultAPIKey,
		Pipeline: provider.DefaultConfig(shared.ProviderAudioDB, defaultRateLimit),
	}
}

// Client looks artists and albums up by MusicBrainz id.
type Client struct {
	config Config
	p      *provider.Client
}

// NewClientWithConfig creates a TheAudioDB client.
func NewClientWithConfig(config Config, opts provider.Options) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.BaseURL[len(config.BaseURL)-1] != '/' {
		config.BaseURL += "/"
	}
	if config.APIKey == "" {
		config.APIKey = defaultAPIKey
	}
	config.Pipeline.Name = shared.ProviderAudioDB
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

// ArtistByMBID fetches the artist with the given MusicBrainz id.
func (c *Client) ArtistByMBID(ctx context.Context, mbid string) (*Artist, bool, error) {
	if mbid == "" {
		return nil, false, provider.MissingMetadata("MusicBrainz artist id")
	}
	return lookup(ctx, c, "artist-mb.php", mbid, func(b []byte) (*Artist, error) {
		var resp struct {
			Artists []Artist `json:"artists"`
		}
		if err := json.Unmarshal(b, &resp); err != nil {
			return nil, err
		}
		if len(resp.Artists) == 0 {
			return nil, nil
		}
		return &resp.Artists[0], nil
	})
}

// AlbumByMBID fetches the album with the given MusicBrainz release-group id.
func (c *Client) AlbumByMBID(ctx context.Context, mbid string) (*Album, bool, error) {
	if mbid == "" {
		return nil, false, provider.MissingMetadata("MusicBrainz release group id")
	}
	return lookup(ctx, c, "album-mb.php", mbid, func(b []byte) (*Album, error) {
		var resp struct {
			Album []Album `json:"album"`
		}
		if err := json.Unmarshal(b, &resp); err != nil {
			return nil, err
		}
		if len(resp.Album) == 0 {
			return nil, nil
		}
		return &resp.Album[0], nil
	})
}

// lookup decodes a single-entity response; TheAudioDB answers unknown ids
// with a null list.
func lookup[T any](ctx context.Context, c *Client, endpoint, mbid string, decode func([]byte) (*T, error)) (*T, bool, error) {
	req := provider.NewRequest(endpoint, "i", mbid)
	return provider.Fetch(ctx, c.p, req, func(ctx context.Context) (*T, error) {
		u := fmt.Sprintf("%s%s/%s?i=%s", c.config.BaseURL, url.PathEscape(c.config.APIKey), endpoint, url.QueryEscape(mbid))
		body, err := c.p.Get(ctx, u, nil)
		if err != nil {
			return nil, err
		}
		v, err := decode(body)
		if err != nil {
			return nil, provider.SchemaError(err)
		}
		if v == nil {
			return nil, provider.ErrNotFound
		}
		return v, nil
	})
}
