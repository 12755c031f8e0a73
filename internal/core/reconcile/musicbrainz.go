package reconcile

import (
	"context"
	"math"

	"music-enricher/internal/api/musicbrainz"
	"music-enricher/internal/shared"
)

// MusicBrainzAPI is the part of the MusicBrainz client the identifier uses.
type MusicBrainzAPI interface {
	GetRecording(ctx context.Context, mbid string) (*musicbrainz.Recording, bool, error)
	GetReleaseGroup(ctx context.Context, mbid string) (*musicbrainz.ReleaseGroup, bool, error)
	GetArtist(ctx context.Context, mbid string) (*musicbrainz.Artist, bool, error)
	SearchArtists(ctx context.Context, name string) ([]musicbrainz.Artist, error)
	SearchReleaseGroups(ctx context.Context, artist, title string) ([]musicbrainz.ReleaseGroup, error)
	SearchRecordings(ctx context.Context, artist, title string) ([]musicbrainz.Recording, error)
}

// MusicBrainz identifies entities at the canonical naming authority. A
// connected record is looked up by id, anything else is searched by name.
type MusicBrainz struct {
	api MusicBrainzAPI
}

func NewMusicBrainz(api MusicBrainzAPI) *MusicBrainz {
	return &MusicBrainz{api: api}
}

func (m *MusicBrainz) Provider() string { return shared.ProviderMusicBrainz }

func (m *MusicBrainz) Supports(shared.Kind) bool { return true }

func (m *MusicBrainz) Identify(ctx context.Context, s Subject) (*Result, error) {
	switch s.Entity.Kind {
	case shared.KindArtist:
		return m.artist(ctx, s)
	case shared.KindAlbum:
		return m.album(ctx, s)
	default:
		return m.track(ctx, s)
	}
}

func (m *MusicBrainz) artist(ctx context.Context, s Subject) (*Result, error) {
	id := s.MBID
	if id == "" {
		found, err := m.api.SearchArtists(ctx, s.Entity.Name)
		if err != nil {
			return nil, err
		}
		for _, a := range found {
			if sameName(a.Name, s.Entity.Name) {
				id = a.ID
				break
			}
		}
		if id == "" {
			return nil, nil
		}
	}
	a, ok, err := m.api.GetArtist(ctx, id)
	if err != nil || !ok {
		return nil, err
	}
	return &Result{Record: mbArtistRecord(*a)}, nil
}

func (m *MusicBrainz) album(ctx context.Context, s Subject) (*Result, error) {
	id := s.MBID
	if id == "" {
		found, err := m.api.SearchReleaseGroups(ctx, s.ArtistName(), s.Entity.Name)
		if err != nil {
			return nil, err
		}
		for _, rg := range found {
			if sameTitle(rg.Title, s.Entity.Name) && creditedBy(s.ArtistName(), creditNames(rg.ArtistCredit)) {
				id = rg.ID
				break
			}
		}
		if id == "" {
			return nil, nil
		}
	}
	rg, ok, err := m.api.GetReleaseGroup(ctx, id)
	if err != nil || !ok {
		return nil, err
	}
	res := &Result{Record: mbReleaseGroupRecord(*rg)}
	for _, a := range musicbrainz.CreditedArtists(rg.ArtistCredit) {
		if a.ID != "" {
			res.Related = append(res.Related, mbArtistRecord(a))
		}
	}
	return res, nil
}

func (m *MusicBrainz) track(ctx context.Context, s Subject) (*Result, error) {
	id := s.MBID
	if id == "" {
		found, err := m.api.SearchRecordings(ctx, s.ArtistName(), s.Entity.Name)
		if err != nil {
			return nil, err
		}
		id = bestRecording(found, s)
		if id == "" {
			return nil, nil
		}
	}
	rec, ok, err := m.api.GetRecording(ctx, id)
	if err != nil || !ok {
		return nil, err
	}

	res := &Result{Record: shared.ProviderRecord{
		Provider:   shared.ProviderMusicBrainz,
		ProviderID: rec.ID,
		Kind:       shared.KindTrack,
		Name:       rec.Title,
		URL:        musicbrainz.RecordingURL(rec.ID),
		Details: shared.RecordDetails{
			Genres:  musicbrainz.GenreNames(rec.Genres),
			Artists: creditNames(rec.ArtistCredit),
		},
	}}
	for _, a := range musicbrainz.CreditedArtists(rec.ArtistCredit) {
		if a.ID != "" {
			res.Related = append(res.Related, mbArtistRecord(a))
		}
	}
	if rg := releaseGroupFor(rec.Releases, s.AlbumName()); rg != nil {
		res.Related = append(res.Related, mbReleaseGroupRecord(*rg))
	}
	return res, nil
}

// bestRecording picks the search hit whose title and artist match, closest
// in duration to the local track.
func bestRecording(found []musicbrainz.Recording, s Subject) string {
	var (
		id   string
		best = math.Inf(1)
	)
	for _, r := range found {
		if !sameTitle(r.Title, s.Entity.Name) || !creditedBy(s.ArtistName(), creditNames(r.ArtistCredit)) {
			continue
		}
		delta := math.Inf(1)
		if r.Length > 0 && s.Entity.DurationSeconds > 0 {
			delta = math.Abs(float64(r.Length)/1000 - s.Entity.DurationSeconds)
		}
		if id == "" || delta < best {
			id, best = r.ID, delta
		}
	}
	return id
}

// releaseGroupFor returns the release group whose title matches album, or
// the first one when album is unknown.
func releaseGroupFor(releases []musicbrainz.Release, album string) *musicbrainz.ReleaseGroup {
	for i := range releases {
		rg := &releases[i].ReleaseGroup
		if rg.ID == "" {
			continue
		}
		if album == "" || sameTitle(rg.Title, album) {
			return rg
		}
	}
	return nil
}

func creditNames(credit []musicbrainz.ArtistCredit) []string {
	artists := musicbrainz.CreditedArtists(credit)
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		names = append(names, a.Name)
	}
	return names
}

func mbArtistRecord(a musicbrainz.Artist) shared.ProviderRecord {
	return shared.ProviderRecord{
		Provider:   shared.ProviderMusicBrainz,
		ProviderID: a.ID,
		Kind:       shared.KindArtist,
		Name:       a.Name,
		URL:        musicbrainz.ArtistURL(a.ID),
		Details: shared.RecordDetails{
			Genres: musicbrainz.GenreNames(a.Genres),
			Type:   a.Type,
		},
	}
}

func mbReleaseGroupRecord(rg musicbrainz.ReleaseGroup) shared.ProviderRecord {
	return shared.ProviderRecord{
		Provider:   shared.ProviderMusicBrainz,
		ProviderID: rg.ID,
		Kind:       shared.KindAlbum,
		Name:       rg.Title,
		URL:        musicbrainz.ReleaseGroupURL(rg.ID),
		Details: shared.RecordDetails{
			Genres:  musicbrainz.GenreNames(rg.Genres),
			Type:    rg.PrimaryType,
			Artists: creditNames(rg.ArtistCredit),
		},
	}
}
