package navidrome

import (
	"net/http"
	"net/http/httptest"
	"testing"

	subsonic "github.com/delucks/go-subsonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{"complete", Config{URL: "http://localhost:4533", Username: "admin", Password: "pw"}, ""},
		{"missing url", Config{Username: "admin", Password: "pw"}, "url is required"},
		{"missing password", Config{URL: "http://localhost:4533", Username: "admin"}, "username and password"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.config.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestAuthenticateRequiresConfig(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { calls++ }))
	defer srv.Close()

	err := NewClient(Config{URL: srv.URL}, srv.Client(), nil).Authenticate()

	require.Error(t, err)
	assert.Zero(t, calls)
}

func TestAuthenticateRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewClient(Config{URL: srv.URL + "/", Username: "admin", Password: "wrong"}, srv.Client(), nil).Authenticate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "navidrome authentication failed")
}

func TestConvertAlbum(t *testing.T) {
	album := &subsonic.AlbumID3{
		ID:       "al-1",
		Name:     "Homogenic",
		Artist:   "Björk",
		ArtistID: "ar-1",
		Song: []*subsonic.Child{
			{ID: "so-1", Title: "Joga", Artist: "Björk", Album: "Homogenic", Path: "Björk/Homogenic/02 Joga.flac", Track: 2, Duration: 305},
			nil,
			{ID: "so-2", Title: "Bachelorette", Artist: "Björk", Album: "Homogenic", Track: 7, Duration: 312},
		},
	}

	got := convertAlbum(album)

	assert.Equal(t, "al-1", got.ID)
	assert.Equal(t, "ar-1", got.ArtistID)
	require.Len(t, got.Tracks, 2)
	assert.Equal(t, Track{
		ID:              "so-1",
		Title:           "Joga",
		Artist:          "Björk",
		Album:           "Homogenic",
		Path:            "Björk/Homogenic/02 Joga.flac",
		TrackNumber:     2,
		DurationSeconds: 305,
	}, got.Tracks[0])
}

func TestExternalIDsAreNamespaced(t *testing.T) {
	assert.Equal(t, "navidrome:42", TrackExternalID("42"))
	assert.Equal(t, "navidrome:album:42", AlbumExternalID("42"))
	assert.Equal(t, "navidrome:artist:42", ArtistExternalID("42"))
}
