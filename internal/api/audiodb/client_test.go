package audiodb

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"music-enricher/internal/api/provider"
	"music-enricher/internal/shared"
)

const baseURL = "https://audiodb.example.test/api/v1/json"

func newMockClient(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.Pipeline.Interval = 0
	cfg.Pipeline.Cooldown = time.Millisecond
	cfg.Pipeline.Retry = shared.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	c, err := NewClientWithConfig(cfg, provider.Options{HTTPClient: &http.Client{Transport: transport}})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, transport
}

func TestArtistByMBID(t *testing.T) {
	c, transport := newMockClient(t)
	transport.RegisterResponder(http.MethodGet, baseURL+"/2/artist-mb.php", func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "artist-bar", req.URL.Query().Get("i"))
		return httpmock.NewStringResponse(200, `{"artists":[{"idArtist":"111","strArtist":"Bar",
			"strMusicBrainzID":"artist-bar","strGenre":"Rock","strStyle":"Indie","strArtistThumb":"bar.jpg"}]}`), nil
	})

	artist, ok, err := c.ArtistByMBID(context.Background(), "artist-bar")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "111", artist.ID)
	assert.Equal(t, []string{"Rock", "Indie"}, Genres(artist.Genre, artist.Style))
	assert.Equal(t, "https://www.theaudiodb.com/artist/111", ArtistURL(artist.ID))
}

func TestAlbumByMBIDNullIsNotFound(t *testing.T) {
	c, transport := newMockClient(t)
	transport.RegisterResponder(http.MethodGet, baseURL+"/2/album-mb.php",
		httpmock.NewStringResponder(200, `{"album":null}`))

	album, ok, err := c.AlbumByMBID(context.Background(), "rg-unknown")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, album)
}

func TestServerErrorIsRetried(t *testing.T) {
	c, transport := newMockClient(t)
	transport.RegisterResponder(http.MethodGet, baseURL+"/2/album-mb.php", httpmock.ResponderFromMultipleResponses([]*http.Response{
		httpmock.NewStringResponse(502, "bad gateway"),
		httpmock.NewStringResponse(200, `{"album":[{"idAlbum":"222","strAlbum":"Album X","intScoreVotes":"7"}]}`),
	}))

	album, ok, err := c.AlbumByMBID(context.Background(), "rg-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(7), album.Votes())
	assert.Equal(t, 2, transport.GetTotalCallCount())
}

func TestMissingMBID(t *testing.T) {
	c, transport := newMockClient(t)
	_, _, err := c.ArtistByMBID(context.Background(), "")
	assert.ErrorIs(t, err, provider.ErrFatal)
	assert.Zero(t, transport.GetTotalCallCount())
}
