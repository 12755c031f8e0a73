package reconcile

import (
	"context"
	"strings"

	"music-enricher/internal/api/lastfm"
	"music-enricher/internal/shared"
)

// LastFMAPI is the part of the Last.fm client the identifier uses.
type LastFMAPI interface {
	ArtistInfo(ctx context.Context, name, mbid string) (*lastfm.Artist, bool, error)
	AlbumInfo(ctx context.Context, artist, album, mbid string) (*lastfm.Album, bool, error)
	TrackInfo(ctx context.Context, artist, track, mbid string) (*lastfm.Track, bool, error)
}

// LastFM identifies entities at Last.fm, preferring MusicBrainz ids when the
// entity is already connected to MusicBrainz.
type LastFM struct {
	api LastFMAPI
}

func NewLastFM(api LastFMAPI) *LastFM {
	return &LastFM{api: api}
}

func (l *LastFM) Provider() string { return shared.ProviderLastFM }

func (l *LastFM) Supports(shared.Kind) bool { return true }

func (l *LastFM) Identify(ctx context.Context, s Subject) (*Result, error) {
	switch s.Entity.Kind {
	case shared.KindArtist:
		a, ok, err := l.api.ArtistInfo(ctx, s.Entity.Name, s.MBID)
		if err != nil || !ok {
			return nil, err
		}
		return &Result{Record: shared.ProviderRecord{
			Provider:   shared.ProviderLastFM,
			ProviderID: lastfmID(a.URL, a.Name),
			Kind:       shared.KindArtist,
			Name:       a.Name,
			URL:        a.URL,
			Stats: shared.RecordStats{
				Listeners: int64(a.Stats.Listeners),
				Playcount: int64(a.Stats.Playcount),
			},
			Details: shared.RecordDetails{
				Genres:   a.Tags.Names(),
				ImageURL: a.Image.Largest(),
				Summary:  a.Bio.Summary,
			},
		}}, nil

	case shared.KindAlbum:
		a, ok, err := l.api.AlbumInfo(ctx, s.ArtistName(), s.Entity.Name, s.MBID)
		if err != nil || !ok {
			return nil, err
		}
		res := &Result{Record: shared.ProviderRecord{
			Provider:   shared.ProviderLastFM,
			ProviderID: lastfmID(a.URL, a.Artist, a.Name),
			Kind:       shared.KindAlbum,
			Name:       a.Name,
			URL:        a.URL,
			Stats: shared.RecordStats{
				Listeners: int64(a.Listeners),
				Playcount: int64(a.Playcount),
			},
			Details: shared.RecordDetails{
				Genres:   a.Tags.Names(),
				ImageURL: a.Image.Largest(),
				Summary:  a.Wiki.Summary,
				Artists:  nonEmpty(a.Artist),
			},
		}}
		return res, nil

	default:
		t, ok, err := l.api.TrackInfo(ctx, s.ArtistName(), s.Entity.Name, s.MBID)
		if err != nil || !ok {
			return nil, err
		}
		res := &Result{Record: shared.ProviderRecord{
			Provider:   shared.ProviderLastFM,
			ProviderID: lastfmID(t.URL, t.Artist.Name, t.Name),
			Kind:       shared.KindTrack,
			Name:       t.Name,
			URL:        t.URL,
			Stats: shared.RecordStats{
				Listeners: int64(t.Listeners),
				Playcount: int64(t.Playcount),
			},
			Details: shared.RecordDetails{
				Genres:  t.TopTags.Names(),
				Summary: t.Wiki.Summary,
				Artists: nonEmpty(t.Artist.Name),
			},
		}}
		if t.Artist.Name != "" {
			res.Related = append(res.Related, shared.ProviderRecord{
				Provider:   shared.ProviderLastFM,
				ProviderID: lastfmID(t.Artist.URL, t.Artist.Name),
				Kind:       shared.KindArtist,
				Name:       t.Artist.Name,
				URL:        t.Artist.URL,
			})
		}
		if alb := t.Album; alb != nil && alb.Title != "" {
			res.Record.Details.ImageURL = alb.Image.Largest()
			res.Related = append(res.Related, shared.ProviderRecord{
				Provider:   shared.ProviderLastFM,
				ProviderID: lastfmID(alb.URL, alb.Artist, alb.Title),
				Kind:       shared.KindAlbum,
				Name:       alb.Title,
				URL:        alb.URL,
				Details: shared.RecordDetails{
					ImageURL: alb.Image.Largest(),
					Artists:  nonEmpty(alb.Artist),
				},
			})
		}
		return res, nil
	}
}

// lastfmID uses the page URL as identity. Entities without one are keyed
// by their simplified names.
func lastfmID(url string, names ...string) string {
	if url != "" {
		return url
	}
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, shared.SimplifyName(n))
	}
	return strings.Join(parts, "/")
}

func nonEmpty(values ...string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
