package reconcile

import (
	"context"

	"music-enricher/internal/api/audiodb"
	"music-enricher/internal/api/provider"
	"music-enricher/internal/shared"
)

// AudioDBAPI is the part of the TheAudioDB client the identifier uses.
type AudioDBAPI interface {
	ArtistByMBID(ctx context.Context, mbid string) (*audiodb.Artist, bool, error)
	AlbumByMBID(ctx context.Context, mbid string) (*audiodb.Album, bool, error)
}

// AudioDB identifies artists and albums at TheAudioDB. It only resolves
// MusicBrainz ids, so the entity must be connected to MusicBrainz first.
type AudioDB struct {
	api AudioDBAPI
}

func NewAudioDB(api AudioDBAPI) *AudioDB {
	return &AudioDB{api: api}
}

func (a *AudioDB) Provider() string { return shared.ProviderAudioDB }

func (a *AudioDB) Supports(kind shared.Kind) bool {
	return kind == shared.KindArtist || kind == shared.KindAlbum
}

func (a *AudioDB) Identify(ctx context.Context, s Subject) (*Result, error) {
	if s.MBID == "" {
		return nil, provider.MissingMetadata("MusicBrainz id")
	}
	if s.Entity.Kind == shared.KindArtist {
		artist, ok, err := a.api.ArtistByMBID(ctx, s.MBID)
		if err != nil || !ok {
			return nil, err
		}
		return &Result{Record: shared.ProviderRecord{
			Provider:   shared.ProviderAudioDB,
			ProviderID: artist.ID,
			Kind:       shared.KindArtist,
			Name:       artist.Name,
			URL:        audiodb.ArtistURL(artist.ID),
			Details: shared.RecordDetails{
				Genres:   audiodb.Genres(artist.Genre, artist.Style),
				ImageURL: artist.Thumb,
				Summary:  artist.Biography,
			},
		}}, nil
	}

	album, ok, err := a.api.AlbumByMBID(ctx, s.MBID)
	if err != nil || !ok {
		return nil, err
	}
	res := &Result{Record: shared.ProviderRecord{
		Provider:   shared.ProviderAudioDB,
		ProviderID: album.ID,
		Kind:       shared.KindAlbum,
		Name:       album.Name,
		URL:        audiodb.AlbumURL(album.ID),
		Stats:      shared.RecordStats{Votes: album.Votes()},
		Details: shared.RecordDetails{
			Genres:   audiodb.Genres(album.Genre, album.Style),
			ImageURL: album.Thumb,
			Summary:  album.Description,
			Type:     album.ReleaseType,
			Artists:  nonEmpty(album.Artist),
		},
	}}
	if album.ArtistID != "" && album.Artist != "" {
		res.Related = append(res.Related, shared.ProviderRecord{
			Provider:   shared.ProviderAudioDB,
			ProviderID: album.ArtistID,
			Kind:       shared.KindArtist,
			Name:       album.Artist,
			URL:        audiodb.ArtistURL(album.ArtistID),
		})
	}
	return res, nil
}
