// Package navidrome reads the library of a Navidrome (Subsonic API) server.
package navidrome

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	subsonic "github.com/delucks/go-subsonic"
)

// Config holds the server location and credentials.
type Config struct {
	URL      string `mapstructure:"url" yaml:"url" json:"url"`
	Username string `mapstructure:"username" yaml:"username" json:"username"`
	Password string `mapstructure:"password" yaml:"password" json:"-"`
}

// Validate checks that the server is configured.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("navidrome url is required")
	}
	if c.Username == "" || c.Password == "" {
		return errors.New("navidrome username and password are required")
	}
	return nil
}

// Client holds the subsonic client and other required fields
type Client struct {
	config Config
	api    subsonic.Client
	logger *slog.Logger
}

// NewClient creates a navidrome client. Call Authenticate before reading.
func NewClient(config Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		config: config,
		api: subsonic.Client{
			Client:     httpClient,
			BaseUrl:    strings.TrimRight(config.URL, "/"),
			User:       config.Username,
			ClientName: "music-enricher",
		},
		logger: logger,
	}
}

// Authenticate authenticates the client with the navidrome api
func (c *Client) Authenticate() error {
	if err := c.config.Validate(); err != nil {
		return err
	}
	if err := c.api.Authenticate(c.config.Password); err != nil {
		return fmt.Errorf("navidrome authentication failed: %w", err)
	}
	return nil
}

// Walk calls fn once per artist, with albums and tracks filled in. It stops
// at the first error fn returns or when ctx ends. Artists or albums that fail
// to load are logged and skipped.
func (c *Client) Walk(ctx context.Context, fn func(Artist) error) error {
	index, err := c.api.GetArtists(nil)
	if err != nil {
		return fmt.Errorf("failed to list artists: %w", err)
	}
	for _, idx := range index.Index {
		for _, a := range idx.Artist {
			if err := ctx.Err(); err != nil {
				return err
			}
			artist, err := c.loadArtist(ctx, a.ID, a.Name)
			if err != nil {
				c.logger.Warn("skipping artist", slog.String("artist", a.Name), slog.Any("error", err))
				continue
			}
			if err := fn(artist); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Client) loadArtist(ctx context.Context, id, name string) (Artist, error) {
	full, err := c.api.GetArtist(id)
	if err != nil {
		return Artist{}, err
	}
	artist := Artist{ID: id, Name: name}
	for _, al := range full.Album {
		if err := ctx.Err(); err != nil {
			return Artist{}, err
		}
		album, err := c.api.GetAlbum(al.ID)
		if err != nil {
			c.logger.Warn("skipping album", slog.String("album", al.Name), slog.Any("error", err))
			continue
		}
		artist.Albums = append(artist.Albums, convertAlbum(album))
	}
	return artist, nil
}

func convertAlbum(al *subsonic.AlbumID3) Album {
	album := Album{
		ID:       al.ID,
		Name:     al.Name,
		Artist:   al.Artist,
		ArtistID: al.ArtistID,
	}
	for _, s := range al.Song {
		if s == nil {
			continue
		}
		album.Tracks = append(album.Tracks, Track{
			ID:              s.ID,
			Title:           s.Title,
			Artist:          s.Artist,
			Album:           s.Album,
			Path:            s.Path,
			TrackNumber:     s.Track,
			DurationSeconds: s.Duration,
		})
	}
	return album
}

// TrackExternalID namespaces a server song id for the entities table.
func TrackExternalID(id string) string { return "navidrome:" + id }

// AlbumExternalID namespaces a server album id.
func AlbumExternalID(id string) string { return "navidrome:album:" + id }

// ArtistExternalID namespaces a server artist id.
func ArtistExternalID(id string) string { return "navidrome:artist:" + id }
