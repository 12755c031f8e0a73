package library

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"music-enricher/internal/api/navidrome"
	"music-enricher/internal/shared"
	"music-enricher/internal/testsupport"
)

type staticSource []navidrome.Artist

func (s staticSource) Walk(ctx context.Context, fn func(navidrome.Artist) error) error {
	for _, a := range s {
		if err := fn(a); err != nil {
			return err
		}
	}
	return nil
}

func library() staticSource {
	return staticSource{
		{ID: "ar1", Name: "Bar", Albums: []navidrome.Album{
			{ID: "al1", Name: "Foo Album", Artist: "Bar", ArtistID: "ar1", Tracks: []navidrome.Track{
				{ID: "t1", Title: "Foo", Path: "Bar/Foo Album/01 Foo.flac", TrackNumber: 1, DurationSeconds: 200},
				{ID: "t2", Title: "", Path: "Bar/Foo Album/02.flac", TrackNumber: 2},
				{ID: "t3", Title: "Baz", Path: "Bar/Foo Album/03 Baz.flac", TrackNumber: 3, DurationSeconds: 180},
			}},
		}},
		{ID: "ar2", Name: "Qux"},
	}
}

func TestImportCreatesGraph(t *testing.T) {
	ctx := context.Background()
	st := testsupport.NewStore(t)
	warnings := shared.NewWarningCollector(true)
	im := NewImporter(st, testsupport.Logger(t), warnings)

	var progress []Stats
	im.Progress = func(s Stats) { progress = append(progress, s) }

	stats, err := im.Import(ctx, library())
	require.NoError(t, err)
	assert.Equal(t, Stats{Artists: 2, Albums: 1, Tracks: 2, Created: 5, Skipped: 1}, stats)
	assert.Len(t, progress, 2)
	assert.Len(t, warnings.GetWarningsByType()[shared.ImportSkippedWarning], 1)

	artist, err := st.FindEntityByExternalID(ctx, shared.KindArtist, navidrome.ArtistExternalID("ar1"))
	require.NoError(t, err)
	require.NotNil(t, artist)

	album, err := st.FindEntityByExternalID(ctx, shared.KindAlbum, navidrome.AlbumExternalID("al1"))
	require.NoError(t, err)
	require.NotNil(t, album)
	assert.Equal(t, artist.ID, album.ArtistID)

	track, err := st.FindEntityByExternalID(ctx, shared.KindTrack, navidrome.TrackExternalID("t1"))
	require.NoError(t, err)
	require.NotNil(t, track)
	assert.Equal(t, artist.ID, track.ArtistID)
	assert.Equal(t, album.ID, track.AlbumID)
	assert.Equal(t, "Bar/Foo Album/01 Foo.flac", track.FilePath)
	assert.Equal(t, 200.0, track.DurationSeconds)
}

func TestImportIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := testsupport.NewStore(t)
	im := NewImporter(st, nil, nil)

	_, err := im.Import(ctx, library())
	require.NoError(t, err)
	stats, err := im.Import(ctx, library())
	require.NoError(t, err)
	assert.Zero(t, stats.Created)
	assert.Equal(t, 5, stats.Updated)

	all, err := st.ListEntities(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

type failingSource struct{ err error }

func (f failingSource) Walk(context.Context, func(navidrome.Artist) error) error { return f.err }

func TestImportSourceError(t *testing.T) {
	boom := errors.New("server unreachable")
	im := NewImporter(testsupport.NewStore(t), nil, nil)
	_, err := im.Import(context.Background(), failingSource{boom})
	assert.ErrorIs(t, err, boom)
}
