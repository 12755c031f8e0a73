package fingerprint

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"music-enricher/internal/api/acoustid"
	"music-enricher/internal/api/musicbrainz"
)

type fakeFpcalc struct {
	fp  *Fingerprint
	err error
}

func (f fakeFpcalc) Calculate(context.Context, string) (*Fingerprint, error) { return f.fp, f.err }

type fakeLookup struct {
	results []acoustid.Result
	calls   int
}

func (f *fakeLookup) Lookup(_ context.Context, _ string, _ int) ([]acoustid.Result, error) {
	f.calls++
	return f.results, nil
}

type fakeCanonical struct {
	recordings    map[string]*musicbrainz.Recording
	releaseGroups map[string]*musicbrainz.ReleaseGroup
	artists       map[string]*musicbrainz.Artist
	err           error
}

func (f *fakeCanonical) GetRecording(_ context.Context, id string) (*musicbrainz.Recording, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	r, ok := f.recordings[id]
	return r, ok, nil
}

func (f *fakeCanonical) GetReleaseGroup(_ context.Context, id string) (*musicbrainz.ReleaseGroup, bool, error) {
	rg, ok := f.releaseGroups[id]
	return rg, ok, nil
}

func (f *fakeCanonical) GetArtist(_ context.Context, id string) (*musicbrainz.Artist, bool, error) {
	a, ok := f.artists[id]
	return a, ok, nil
}

func intPtr(i int) *int { return &i }

func scenarioResults() []acoustid.Result {
	bar := []acoustid.Artist{{ID: "artist-bar", Name: "Bar"}}
	return []acoustid.Result{
		{ID: "acoustid-1", Score: 0.9, Recordings: []acoustid.Recording{{
			ID: "rec-studio", Title: "Foo", Duration: 198, Artists: bar,
			ReleaseGroups: []acoustid.ReleaseGroup{{ID: "rg-album", Title: "Album X", Type: "Album", Artists: bar}},
		}}},
		{ID: "acoustid-2", Score: 0.95, Recordings: []acoustid.Recording{{
			ID: "rec-live", Title: "Foo (Live)", Duration: 205, Artists: bar,
			ReleaseGroups: []acoustid.ReleaseGroup{{ID: "rg-live", Type: "Live"}},
		}}},
	}
}

func TestIdentifyScenario(t *testing.T) {
	canonical := &fakeCanonical{
		recordings: map[string]*musicbrainz.Recording{
			"rec-studio": {
				ID: "rec-studio", Title: "Foo", Length: 198000,
				Genres:       []musicbrainz.Genre{{Name: "rock"}},
				ArtistCredit: []musicbrainz.ArtistCredit{{Name: "Bar", Artist: musicbrainz.Artist{ID: "artist-bar", Name: "Bar"}}},
				Releases: []musicbrainz.Release{
					{ID: "rel-1", ReleaseGroup: musicbrainz.ReleaseGroup{ID: "rg-album"}, Media: []musicbrainz.Media{{TrackOffset: intPtr(2), TrackCount: 10}}},
					{ID: "rel-2", ReleaseGroup: musicbrainz.ReleaseGroup{ID: "rg-album"}, Media: []musicbrainz.Media{{TrackOffset: intPtr(2), TrackCount: 10}}},
					{ID: "rel-3", ReleaseGroup: musicbrainz.ReleaseGroup{ID: "rg-other"}, Media: []musicbrainz.Media{{TrackOffset: intPtr(0), TrackCount: 1}}},
				},
			},
		},
		releaseGroups: map[string]*musicbrainz.ReleaseGroup{
			"rg-album": {ID: "rg-album", Title: "Album X (Deluxe)", PrimaryType: "Album", Genres: []musicbrainz.Genre{{Name: "indie"}}},
		},
		artists: map[string]*musicbrainz.Artist{
			"artist-bar": {ID: "artist-bar", Name: "Bär", Genres: []musicbrainz.Genre{{Name: "rock"}}},
		},
	}
	lookup := &fakeLookup{results: scenarioResults()}
	r := NewResolver(fakeFpcalc{fp: &Fingerprint{Duration: 200, Fingerprint: "AQAA"}}, lookup, canonical, DefaultGates(), nil)

	match, err := r.Identify(context.Background(), "/music/foo.flac", LocalMetadata{Title: "Foo", Artist: "Bar"})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "rec-studio", match.RecordingID)
	assert.Equal(t, "acoustid-1", match.AcoustID)
	assert.Equal(t, []string{"rock"}, match.Genres)
	require.NotNil(t, match.ReleaseGroup)
	assert.Equal(t, "Album X (Deluxe)", match.ReleaseGroup.Title)
	assert.Equal(t, []string{"indie"}, match.ReleaseGroup.Genres)
	// canonical names overwrite the fingerprint provider's
	assert.Equal(t, "Bär", match.Artists[0].Name)
	assert.Equal(t, 3, match.Position)
	assert.Equal(t, 10, match.TrackCount)
}

func TestIdentifyNoViableCandidate(t *testing.T) {
	lookup := &fakeLookup{results: []acoustid.Result{{ID: "x", Score: 0.5, Recordings: []acoustid.Recording{{ID: "rec", Title: "Foo", Duration: 200}}}}}
	canonical := &fakeCanonical{err: errors.New("must not be called")}
	r := NewResolver(fakeFpcalc{fp: &Fingerprint{Duration: 200, Fingerprint: "AQAA"}}, lookup, canonical, DefaultGates(), nil)

	match, err := r.Identify(context.Background(), "/music/foo.flac", LocalMetadata{Title: "Foo"})
	require.NoError(t, err)
	assert.Nil(t, match)

	lookup.results = nil
	match, err = r.Identify(context.Background(), "/music/foo.flac", LocalMetadata{Title: "Foo"})
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestIdentifyFingerprintFailure(t *testing.T) {
	lookup := &fakeLookup{}
	r := NewResolver(fakeFpcalc{err: ErrFpcalcNotFound}, lookup, nil, DefaultGates(), nil)

	_, err := r.Identify(context.Background(), "/music/foo.flac", LocalMetadata{})
	assert.ErrorIs(t, err, ErrFpcalcNotFound)
	assert.Zero(t, lookup.calls)
}

func TestIdentifyCanonicalErrorPropagates(t *testing.T) {
	lookup := &fakeLookup{results: scenarioResults()}
	canonical := &fakeCanonical{err: errors.New("musicbrainz unavailable")}
	r := NewResolver(fakeFpcalc{fp: &Fingerprint{Duration: 200, Fingerprint: "AQAA"}}, lookup, canonical, DefaultGates(), nil)

	_, err := r.Identify(context.Background(), "/music/foo.flac", LocalMetadata{Title: "Foo", Artist: "Bar"})
	assert.ErrorContains(t, err, "musicbrainz unavailable")
}

func TestAgreedPosition(t *testing.T) {
	rel := func(rg string, offset *int, count int) musicbrainz.Release {
		return musicbrainz.Release{ReleaseGroup: musicbrainz.ReleaseGroup{ID: rg}, Media: []musicbrainz.Media{{TrackOffset: offset, TrackCount: count}}}
	}

	p, n := agreedPosition([]musicbrainz.Release{rel("rg", intPtr(4), 12), rel("rg", intPtr(4), 12)}, "rg")
	assert.Equal(t, []int{5, 12}, []int{p, n})

	p, n = agreedPosition([]musicbrainz.Release{rel("rg", intPtr(4), 12), rel("rg", intPtr(5), 13)}, "rg")
	assert.Equal(t, []int{0, 0}, []int{p, n})

	p, n = agreedPosition([]musicbrainz.Release{rel("rg", nil, 12)}, "rg")
	assert.Equal(t, []int{0, 0}, []int{p, n})

	p, n = agreedPosition([]musicbrainz.Release{rel("other", intPtr(1), 2)}, "rg")
	assert.Equal(t, []int{0, 0}, []int{p, n})
}

func TestRepairArtistOrder(t *testing.T) {
	featured := MatchArtist{ID: "artist-feat", Name: "Guest"}
	primary := MatchArtist{ID: "artist-bar", Name: "Bar"}
	other := MatchArtist{ID: "artist-qux", Name: "Qux"}

	t.Run("sole release group artist", func(t *testing.T) {
		m := &Match{
			Artists:      []MatchArtist{featured, other, primary},
			ReleaseGroup: &MatchReleaseGroup{Artists: []MatchArtist{primary}},
		}
		repairArtistOrder(m, LocalMetadata{})
		assert.Equal(t, []MatchArtist{primary, featured, other}, m.Artists)
	})

	t.Run("local artist metadata", func(t *testing.T) {
		m := &Match{Artists: []MatchArtist{featured, primary}}
		repairArtistOrder(m, LocalMetadata{Artist: "bar"})
		assert.Equal(t, []MatchArtist{primary, featured}, m.Artists)
	})

	t.Run("already first", func(t *testing.T) {
		m := &Match{Artists: []MatchArtist{primary, featured}}
		repairArtistOrder(m, LocalMetadata{Artist: "Bar"})
		assert.Equal(t, []MatchArtist{primary, featured}, m.Artists)
	})

	t.Run("no match leaves order", func(t *testing.T) {
		m := &Match{Artists: []MatchArtist{featured, other}}
		repairArtistOrder(m, LocalMetadata{Artist: "Nobody"})
		assert.Equal(t, []MatchArtist{featured, other}, m.Artists)
	})
}

func TestCandidatesFlatten(t *testing.T) {
	cs := Candidates([]acoustid.Result{{
		ID: "a1", Score: 0.9,
		Recordings: []acoustid.Recording{
			{ID: "rec-1", Title: "Foo", ReleaseGroups: []acoustid.ReleaseGroup{{ID: "rg-1"}, {ID: "rg-2"}}},
			{ID: "rec-2", Title: "Foo"},
			{Title: "no id"},
		},
	}})
	assert.Equal(t, []string{"rec-1/rg-1", "rec-1/rg-2", "rec-2"}, ids(cs))
	for _, c := range cs {
		assert.Equal(t, 0.9, c.Score)
		assert.Equal(t, "a1", c.AcoustID)
	}
}
