package reconcile

import (
	"context"
	"math"

	"github.com/zmb3/spotify/v2"

	spotifyapi "music-enricher/internal/api/spotify"
	"music-enricher/internal/shared"
)

// SpotifyAPI is the part of the Spotify client the identifier uses.
type SpotifyAPI interface {
	SearchArtist(ctx context.Context, name string) ([]spotify.FullArtist, error)
	SearchAlbum(ctx context.Context, artist, title string) ([]spotify.SimpleAlbum, error)
	GetAlbum(ctx context.Context, id string) (*spotify.FullAlbum, bool, error)
	SearchTrack(ctx context.Context, artist, title string) ([]spotify.FullTrack, error)
	AudioFeatures(ctx context.Context, trackID string) (*shared.AudioFeatures, bool, error)
}

// Spotify identifies entities in the streaming catalog by search.
type Spotify struct {
	api SpotifyAPI
}

func NewSpotify(api SpotifyAPI) *Spotify {
	return &Spotify{api: api}
}

func (s *Spotify) Provider() string { return shared.ProviderSpotify }

func (s *Spotify) Supports(shared.Kind) bool { return true }

func (s *Spotify) Identify(ctx context.Context, subj Subject) (*Result, error) {
	switch subj.Entity.Kind {
	case shared.KindArtist:
		return s.artist(ctx, subj)
	case shared.KindAlbum:
		return s.album(ctx, subj)
	default:
		return s.track(ctx, subj)
	}
}

func (s *Spotify) artist(ctx context.Context, subj Subject) (*Result, error) {
	found, err := s.api.SearchArtist(ctx, subj.Entity.Name)
	if err != nil {
		return nil, err
	}
	for _, a := range found {
		if !sameName(a.Name, subj.Entity.Name) {
			continue
		}
		return &Result{Record: shared.ProviderRecord{
			Provider:   shared.ProviderSpotify,
			ProviderID: string(a.ID),
			Kind:       shared.KindArtist,
			Name:       a.Name,
			URL:        spotifyapi.ExternalURL(a.ExternalURLs),
			Stats: shared.RecordStats{
				Popularity: int(a.Popularity),
				Followers:  int64(a.Followers.Count),
			},
			Details: shared.RecordDetails{
				Genres:   a.Genres,
				ImageURL: spotifyapi.LargestImage(a.Images),
			},
		}}, nil
	}
	return nil, nil
}

func (s *Spotify) album(ctx context.Context, subj Subject) (*Result, error) {
	found, err := s.api.SearchAlbum(ctx, subj.ArtistName(), subj.Entity.Name)
	if err != nil {
		return nil, err
	}
	for _, a := range found {
		if !sameTitle(a.Name, subj.Entity.Name) || !creditedBy(subj.ArtistName(), spotifyapi.ArtistNames(a.Artists)) {
			continue
		}
		rec := spotifyAlbumRecord(a)
		// Search results omit popularity and genres.
		full, ok, err := s.api.GetAlbum(ctx, string(a.ID))
		if err != nil {
			return nil, err
		}
		if ok {
			rec.Stats.Popularity = int(full.Popularity)
			rec.Stats.TrackCount = len(full.Tracks.Tracks)
			rec.Details.Genres = full.Genres
		}
		return &Result{Record: rec, Related: spotifyArtistRecords(a.Artists)}, nil
	}
	return nil, nil
}

func (s *Spotify) track(ctx context.Context, subj Subject) (*Result, error) {
	found, err := s.api.SearchTrack(ctx, subj.ArtistName(), subj.Entity.Name)
	if err != nil {
		return nil, err
	}

	var (
		best  *spotify.FullTrack
		delta = math.Inf(1)
	)
	for i := range found {
		t := &found[i]
		if !sameTitle(t.Name, subj.Entity.Name) || !creditedBy(subj.ArtistName(), spotifyapi.ArtistNames(t.Artists)) {
			continue
		}
		d := math.Inf(1)
		if subj.Entity.DurationSeconds > 0 && t.Duration > 0 {
			d = math.Abs(float64(t.Duration)/1000 - subj.Entity.DurationSeconds)
		}
		if best == nil || d < delta {
			best, delta = t, d
		}
	}
	if best == nil {
		return nil, nil
	}

	rec := shared.ProviderRecord{
		Provider:   shared.ProviderSpotify,
		ProviderID: string(best.ID),
		Kind:       shared.KindTrack,
		Name:       best.Name,
		URL:        spotifyapi.ExternalURL(best.ExternalURLs),
		Stats: shared.RecordStats{
			Popularity: int(best.Popularity),
			Position:   int(best.TrackNumber),
		},
		Details: shared.RecordDetails{
			ImageURL: spotifyapi.LargestImage(best.Album.Images),
			Artists:  spotifyapi.ArtistNames(best.Artists),
		},
	}
	features, ok, err := s.api.AudioFeatures(ctx, string(best.ID))
	if err != nil {
		return nil, err
	}
	if ok {
		rec.Stats.AudioFeatures = features
	}

	res := &Result{Record: rec, Related: spotifyArtistRecords(best.Artists)}
	if best.Album.ID != "" {
		res.Related = append(res.Related, spotifyAlbumRecord(best.Album))
	}
	return res, nil
}

func spotifyAlbumRecord(a spotify.SimpleAlbum) shared.ProviderRecord {
	return shared.ProviderRecord{
		Provider:   shared.ProviderSpotify,
		ProviderID: string(a.ID),
		Kind:       shared.KindAlbum,
		Name:       a.Name,
		URL:        spotifyapi.ExternalURL(a.ExternalURLs),
		Details: shared.RecordDetails{
			ImageURL: spotifyapi.LargestImage(a.Images),
			Type:     a.AlbumType,
			Artists:  spotifyapi.ArtistNames(a.Artists),
		},
	}
}

func spotifyArtistRecords(artists []spotify.SimpleArtist) []shared.ProviderRecord {
	out := make([]shared.ProviderRecord, 0, len(artists))
	for _, a := range artists {
		if a.ID == "" {
			continue
		}
		out = append(out, shared.ProviderRecord{
			Provider:   shared.ProviderSpotify,
			ProviderID: string(a.ID),
			Kind:       shared.KindArtist,
			Name:       a.Name,
			URL:        spotifyapi.ExternalURL(a.ExternalURLs),
		})
	}
	return out
}
