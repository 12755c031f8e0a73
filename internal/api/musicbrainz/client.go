package musicbrainz

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"music-enricher/internal/api/provider"
	"music-enricher/internal/shared"
)

// 1. Constants and types
const (
	defaultBaseURL   = "https://musicbrainz.org/ws/2/"
	defaultSiteURL   = "https://musicbrainz.org/"
	defaultUserAgent = "music-enricher/1.0 ( https://github.com/music-enricher/music-enricher )"
	defaultRateLimit = time.Second // MusicBrainz allows one request per second per client
	searchLimit      = 10
)

// Config holds configuration for MusicBrainz API client
type Config struct {
	BaseURL   string          `mapstructure:"base_url" yaml:"base_url" json:"base_url"`
	UserAgent string          `mapstructure:"user_agent" yaml:"user_agent" json:"user_agent"`
	Pipeline  provider.Config `mapstructure:",squash" yaml:",inline" json:"pipeline"`
}

// Client represents a MusicBrainz API client
type Client struct {
	config Config
	p      *provider.Client
}

// 2. Constructor and configuration

// DefaultConfig returns sensible defaults for MusicBrainz API client
func DefaultConfig() Config {
	return Config{
		BaseURL:   defaultBaseURL,
		UserAgent: defaultUserAgent,
		Pipeline:  provider.DefaultConfig(shared.ProviderMusicBrainz, defaultRateLimit),
	}
}

// NewClientWithConfig creates a new MusicBrainz API client with custom configuration
func NewClientWithConfig(config Config, opts provider.Options) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if !strings.HasSuffix(config.BaseURL, "/") {
		config.BaseURL += "/"
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}
	config.Pipeline.Name = shared.ProviderMusicBrainz
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

// 3. Core HTTP methods (private)

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	query.Set("fmt", "json")
	header := http.Header{}
	header.Set("User-Agent", c.config.UserAgent)
	return c.p.Get(ctx, c.config.BaseURL+path+"?"+query.Encode(), header)
}

func decode[T any](body []byte, valid func(*T) bool) (*T, error) {
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, provider.SchemaError(err)
	}
	if valid != nil && !valid(&out) {
		return nil, provider.SchemaError(fmt.Errorf("missing required fields"))
	}
	return &out, nil
}

// 4. Public API methods (grouped by functionality)

// Lookup methods. A false ok means MusicBrainz has no such entity.

// GetRecording fetches a recording with its artists, releases, media and genres.
func (c *Client) GetRecording(ctx context.Context, mbid string) (*Recording, bool, error) {
	if mbid == "" {
		return nil, false, provider.MissingMetadata("recording MBID")
	}
	req := provider.NewRequest("recording", "id", mbid)
	return provider.Fetch(ctx, c.p, req, func(ctx context.Context) (*Recording, error) {
		body, err := c.get(ctx, "recording/"+url.PathEscape(mbid), url.Values{
			"inc": {"artists+releases+release-groups+media+genres"},
		})
		if err != nil {
			return nil, err
		}
		return decode(body, func(r *Recording) bool { return r.ID != "" })
	})
}

// GetReleaseGroup fetches a release group with its artists and genres.
func (c *Client) GetReleaseGroup(ctx context.Context, mbid string) (*ReleaseGroup, bool, error) {
	if mbid == "" {
		return nil, false, provider.MissingMetadata("release group MBID")
	}
	req := provider.NewRequest("release-group", "id", mbid)
	return provider.Fetch(ctx, c.p, req, func(ctx context.Context) (*ReleaseGroup, error) {
		body, err := c.get(ctx, "release-group/"+url.PathEscape(mbid), url.Values{
			"inc": {"artists+genres"},
		})
		if err != nil {
			return nil, err
		}
		return decode(body, func(rg *ReleaseGroup) bool { return rg.ID != "" })
	})
}

// GetArtist fetches an artist with genres.
func (c *Client) GetArtist(ctx context.Context, mbid string) (*Artist, bool, error) {
	if mbid == "" {
		return nil, false, provider.MissingMetadata("artist MBID")
	}
	req := provider.NewRequest("artist", "id", mbid)
	return provider.Fetch(ctx, c.p, req, func(ctx context.Context) (*Artist, error) {
		body, err := c.get(ctx, "artist/"+url.PathEscape(mbid), url.Values{
			"inc": {"genres"},
		})
		if err != nil {
			return nil, err
		}
		return decode(body, func(a *Artist) bool { return a.ID != "" && a.Name != "" })
	})
}

// Search methods

// SearchArtists searches artists by name.
func (c *Client) SearchArtists(ctx context.Context, name string) ([]Artist, error) {
	if strings.TrimSpace(name) == "" {
		return nil, provider.MissingMetadata("artist name")
	}
	query := fmt.Sprintf("artist:%s", luceneQuote(name))
	res, _, err := c.search(ctx, "artist", query)
	if err != nil || res == nil {
		return nil, err
	}
	return res.Artists, nil
}

// SearchReleaseGroups searches release groups by artist and title.
func (c *Client) SearchReleaseGroups(ctx context.Context, artist, title string) ([]ReleaseGroup, error) {
	if strings.TrimSpace(artist) == "" {
		return nil, provider.MissingMetadata("artist name")
	}
	if strings.TrimSpace(title) == "" {
		return nil, provider.MissingMetadata("album title")
	}
	query := fmt.Sprintf("artist:%s AND releasegroup:%s", luceneQuote(artist), luceneQuote(title))
	res, _, err := c.search(ctx, "release-group", query)
	if err != nil || res == nil {
		return nil, err
	}
	return res.ReleaseGroups, nil
}

// SearchRecordings searches recordings by artist and title.
func (c *Client) SearchRecordings(ctx context.Context, artist, title string) ([]Recording, error) {
	if strings.TrimSpace(artist) == "" {
		return nil, provider.MissingMetadata("artist name")
	}
	if strings.TrimSpace(title) == "" {
		return nil, provider.MissingMetadata("track title")
	}
	query := fmt.Sprintf("artist:%s AND recording:%s", luceneQuote(artist), luceneQuote(title))
	res, _, err := c.search(ctx, "recording", query)
	if err != nil || res == nil {
		return nil, err
	}
	return res.Recordings, nil
}

func (c *Client) search(ctx context.Context, entity, query string) (*searchResult, bool, error) {
	req := provider.NewRequest("search/"+entity, "query", query)
	return provider.Fetch(ctx, c.p, req, func(ctx context.Context) (*searchResult, error) {
		body, err := c.get(ctx, entity, url.Values{
			"query": {query},
			"limit": {fmt.Sprint(searchLimit)},
		})
		if err != nil {
			return nil, err
		}
		res, err := decode[searchResult](body, nil)
		if err != nil {
			return nil, err
		}
		if res.Count == 0 && len(res.Artists)+len(res.ReleaseGroups)+len(res.Recordings) == 0 {
			return nil, provider.ErrNotFound
		}
		return res, nil
	})
}

// 5. Helper/utility functions

// luceneQuote wraps s in quotes for a MusicBrainz search query.
func luceneQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// RecordingURL returns the public page of a recording.
func RecordingURL(id string) string { return defaultSiteURL + "recording/" + id }

// ReleaseGroupURL returns the public page of a release group.
func ReleaseGroupURL(id string) string { return defaultSiteURL + "release-group/" + id }

// ArtistURL returns the public page of an artist.
func ArtistURL(id string) string { return defaultSiteURL + "artist/" + id }
