package reconcile

import (
	"context"

	"music-enricher/internal/api/musicbrainz"
	"music-enricher/internal/api/provider"
	"music-enricher/internal/core/fingerprint"
	"music-enricher/internal/shared"
)

// TrackResolver identifies a track from its audio.
type TrackResolver interface {
	Identify(ctx context.Context, path string, local fingerprint.LocalMetadata) (*fingerprint.Match, error)
}

// AcoustID identifies tracks by fingerprinting their files. The
// cross-validated artists and release group are returned as related
// MusicBrainz records.
type AcoustID struct {
	resolver TrackResolver
}

func NewAcoustID(resolver TrackResolver) *AcoustID {
	return &AcoustID{resolver: resolver}
}

func (a *AcoustID) Provider() string { return shared.ProviderAcoustID }

func (a *AcoustID) Supports(kind shared.Kind) bool { return kind == shared.KindTrack }

func (a *AcoustID) Identify(ctx context.Context, s Subject) (*Result, error) {
	if s.Entity.FilePath == "" {
		return nil, provider.MissingMetadata("file path")
	}
	local := fingerprint.LocalMetadata{
		Title:           s.Entity.Name,
		Artist:          s.ArtistName(),
		Album:           s.AlbumName(),
		DurationSeconds: s.Entity.DurationSeconds,
	}
	if local.Artist != "" {
		local.Artists = []string{local.Artist}
	}

	match, err := a.resolver.Identify(ctx, s.Entity.FilePath, local)
	if err != nil || match == nil {
		return nil, err
	}
	return MatchResult(match), nil
}

// AcoustIDTrackURL is the public page of an AcoustID track.
func AcoustIDTrackURL(id string) string { return "https://acoustid.org/track/" + id }

// MatchResult converts a fingerprint match into provider records.
func MatchResult(m *fingerprint.Match) *Result {
	names := make([]string, 0, len(m.Artists))
	for _, a := range m.Artists {
		names = append(names, a.Name)
	}
	rec := shared.ProviderRecord{
		Provider:   shared.ProviderAcoustID,
		ProviderID: m.AcoustID,
		Kind:       shared.KindTrack,
		Name:       m.Title,
		URL:        AcoustIDTrackURL(m.AcoustID),
		Stats: shared.RecordStats{
			Position:   m.Position,
			TrackCount: m.TrackCount,
		},
		Details: shared.RecordDetails{
			Genres:  m.Genres,
			Artists: names,
		},
	}
	res := &Result{Record: rec}

	for _, a := range m.Artists {
		res.Related = append(res.Related, matchArtistRecord(a))
	}
	if rg := m.ReleaseGroup; rg != nil {
		res.Record.Details.Type = rg.Type
		rgNames := make([]string, 0, len(rg.Artists))
		for _, a := range rg.Artists {
			rgNames = append(rgNames, a.Name)
		}
		res.Related = append(res.Related, shared.ProviderRecord{
			Provider:   shared.ProviderMusicBrainz,
			ProviderID: rg.ID,
			Kind:       shared.KindAlbum,
			Name:       rg.Title,
			URL:        musicbrainz.ReleaseGroupURL(rg.ID),
			Details: shared.RecordDetails{
				Genres:  rg.Genres,
				Type:    rg.Type,
				Artists: rgNames,
			},
		})
	}
	return res
}

func matchArtistRecord(a fingerprint.MatchArtist) shared.ProviderRecord {
	return shared.ProviderRecord{
		Provider:   shared.ProviderMusicBrainz,
		ProviderID: a.ID,
		Kind:       shared.KindArtist,
		Name:       a.Name,
		URL:        musicbrainz.ArtistURL(a.ID),
		Details:    shared.RecordDetails{Genres: a.Genres},
	}
}
