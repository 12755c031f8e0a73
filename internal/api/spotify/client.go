// Package spotify wraps the Spotify Web API for artist, album and track
// lookups behind the shared provider pipeline.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"music-enricher/internal/api/provider"
	"music-enricher/internal/shared"
)

const (
	defaultRateLimit   = 170 * time.Millisecond
	defaultSearchLimit = 10
)

// Config holds configuration for the Spotify client
type Config struct {
	ClientID     string          `mapstructure:"client_id" yaml:"client_id" json:"client_id"`
	ClientSecret string          `mapstructure:"client_secret" yaml:"client_secret" json:"client_secret"`
	Market       string          `mapstructure:"market" yaml:"market" json:"market"`
	SearchLimit  int             `mapstructure:"search_limit" yaml:"search_limit" json:"search_limit"`
	Pipeline     provider.Config `mapstructure:",squash" yaml:",inline" json:"pipeline"`
}

// DefaultConfig returns sensible defaults for the Spotify client
func DefaultConfig() Config {
	return Config{
		SearchLimit: defaultSearchLimit,
		Pipeline:    provider.DefaultConfig(shared.ProviderSpotify, defaultRateLimit),
	}
}

// Client holds the spotify client and the shared request pipeline
type Client struct {
	config Config
	p      *provider.Client
	api    *spotify.Client
}

// NewClientWithConfig creates a Spotify client authenticated with the client
// credentials flow. The token is fetched lazily on the first request and
// refreshed when it expires.
func NewClientWithConfig(config Config, opts provider.Options) (*Client, error) {
	if config.SearchLimit <= 0 {
		config.SearchLimit = defaultSearchLimit
	}
	config.Pipeline.Name = shared.ProviderSpotify
	p, err := provider.New(config.Pipeline, opts)
	if err != nil {
		return nil, err
	}

	creds := &clientcredentials.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	// Token requests go through the same transport as API calls.
	authCtx := context.WithValue(context.Background(), oauth2.HTTPClient, p.HTTPClient())
	return &Client{
		config: config,
		p:      p,
		api:    spotify.New(creds.Client(authCtx)),
	}, nil
}

// Pipeline exposes the shared request pipeline.
func (c *Client) Pipeline() *provider.Client { return c.p }

// Close stops the request queue.
func (c *Client) Close() { c.p.Close() }

func (c *Client) options() []spotify.RequestOption {
	opts := []spotify.RequestOption{spotify.Limit(c.config.SearchLimit)}
	if c.config.Market != "" {
		opts = append(opts, spotify.Market(c.config.Market))
	}
	return opts
}

func (c *Client) credentials() error {
	if c.config.ClientID == "" || c.config.ClientSecret == "" {
		return fmt.Errorf("%w: spotify client credentials not configured", provider.ErrFatal)
	}
	return nil
}

// SearchArtist returns artists matching name, best match first.
func (c *Client) SearchArtist(ctx context.Context, name string) ([]spotify.FullArtist, error) {
	if name == "" {
		return nil, provider.MissingMetadata("artist name")
	}
	q := fmt.Sprintf("artist:%s", quote(name))
	artists, _, err := search(ctx, c, "search.artist", q, spotify.SearchTypeArtist, func(r *spotify.SearchResult) []spotify.FullArtist {
		if r.Artists == nil {
			return nil
		}
		return r.Artists.Artists
	})
	return artists, err
}

// SearchAlbum returns albums matching artist and title.
func (c *Client) SearchAlbum(ctx context.Context, artist, title string) ([]spotify.SimpleAlbum, error) {
	if artist == "" {
		return nil, provider.MissingMetadata("artist name")
	}
	if title == "" {
		return nil, provider.MissingMetadata("album title")
	}
	q := fmt.Sprintf("album:%s artist:%s", quote(title), quote(artist))
	albums, _, err := search(ctx, c, "search.album", q, spotify.SearchTypeAlbum, func(r *spotify.SearchResult) []spotify.SimpleAlbum {
		if r.Albums == nil {
			return nil
		}
		return r.Albums.Albums
	})
	return albums, err
}

// SearchTrack returns tracks matching artist and title.
func (c *Client) SearchTrack(ctx context.Context, artist, title string) ([]spotify.FullTrack, error) {
	if artist == "" {
		return nil, provider.MissingMetadata("artist name")
	}
	if title == "" {
		return nil, provider.MissingMetadata("track title")
	}
	q := fmt.Sprintf("track:%s artist:%s", quote(title), quote(artist))
	tracks, _, err := search(ctx, c, "search.track", q, spotify.SearchTypeTrack, func(r *spotify.SearchResult) []spotify.FullTrack {
		if r.Tracks == nil {
			return nil
		}
		return r.Tracks.Tracks
	})
	return tracks, err
}

// GetAlbum fetches the full album, which carries popularity and genres.
func (c *Client) GetAlbum(ctx context.Context, id string) (*spotify.FullAlbum, bool, error) {
	if err := c.credentials(); err != nil {
		return nil, false, err
	}
	req := provider.NewRequest("album", "id", id)
	return provider.Fetch(ctx, c.p, req, func(ctx context.Context) (*spotify.FullAlbum, error) {
		album, err := c.api.GetAlbum(ctx, spotify.ID(id))
		if err != nil {
			return nil, classify(err)
		}
		return album, nil
	})
}

// AudioFeatures fetches the audio descriptors of a track.
func (c *Client) AudioFeatures(ctx context.Context, trackID string) (*shared.AudioFeatures, bool, error) {
	if err := c.credentials(); err != nil {
		return nil, false, err
	}
	req := provider.NewRequest("audio-features", "id", trackID)
	return provider.Fetch(ctx, c.p, req, func(ctx context.Context) (*shared.AudioFeatures, error) {
		features, err := c.api.GetAudioFeatures(ctx, spotify.ID(trackID))
		if err != nil {
			return nil, classify(err)
		}
		if len(features) == 0 || features[0] == nil {
			return nil, provider.ErrNotFound
		}
		f := features[0]
		return &shared.AudioFeatures{
			Danceability: float64(f.Danceability),
			Energy:       float64(f.Energy),
			Valence:      float64(f.Valence),
			Tempo:        float64(f.Tempo),
			Acousticness: float64(f.Acousticness),
		}, nil
	})
}

func search[T any](ctx context.Context, c *Client, method, query string, t spotify.SearchType, pick func(*spotify.SearchResult) []T) ([]T, bool, error) {
	if err := c.credentials(); err != nil {
		return nil, false, err
	}
	req := provider.NewRequest(method, "q", query, "market", c.config.Market)
	return provider.Fetch(ctx, c.p, req, func(ctx context.Context) ([]T, error) {
		result, err := c.api.Search(ctx, query, t, c.options()...)
		if err != nil {
			return nil, classify(err)
		}
		items := pick(result)
		if len(items) == 0 {
			return nil, provider.ErrNotFound
		}
		return items, nil
	})
}

// classify maps library and token errors onto the provider taxonomy.
func classify(err error) error {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusTooManyRequests:
			return provider.RateLimitError(shared.ProviderSpotify, apiErr.Status, apiErr.Message)
		case apiErr.Status == http.StatusNotFound, apiErr.Status == http.StatusBadRequest:
			return fmt.Errorf("%w: %s", provider.ErrNotFound, apiErr.Message)
		case apiErr.Status == http.StatusUnauthorized, apiErr.Status == http.StatusForbidden:
			return fmt.Errorf("%w: spotify: %s", provider.ErrFatal, apiErr.Message)
		case apiErr.Status >= 500:
			return &shared.HTTPError{StatusCode: apiErr.Status, Status: http.StatusText(apiErr.Status), Message: apiErr.Message}
		}
		return err
	}
	var tokenErr *oauth2.RetrieveError
	if errors.As(err, &tokenErr) {
		if tokenErr.Response != nil && tokenErr.Response.StatusCode >= 500 {
			return &shared.HTTPError{StatusCode: tokenErr.Response.StatusCode, Status: tokenErr.Response.Status, Message: "token endpoint unavailable"}
		}
		return fmt.Errorf("%w: spotify authentication failed: %v", provider.ErrFatal, err)
	}
	return err
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `"`, "")
	return `"` + strings.TrimSpace(s) + `"`
}

// ArtistNames joins the names of the credited artists.
func ArtistNames(artists []spotify.SimpleArtist) []string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		names = append(names, a.Name)
	}
	return names
}

// LargestImage returns the URL of the widest image.
func LargestImage(images []spotify.Image) string {
	var (
		url   string
		width int
	)
	for _, img := range images {
		if w := int(img.Width); url == "" || w > width {
			url, width = img.URL, w
		}
	}
	return url
}

// ExternalURL returns the open.spotify.com link.
func ExternalURL(urls map[string]string) string {
	return urls["spotify"]
}
