package reconcile

import (
	"context"
	"strings"

	"music-enricher/internal/shared"
)

// Subject is a local entity together with the context providers need to
// look it up.
type Subject struct {
	Entity shared.LocalEntity
	Artist *shared.LocalEntity
	Album  *shared.LocalEntity

	// MusicBrainz ids of the connected records, empty when unconnected.
	MBID       string
	ArtistMBID string
	AlbumMBID  string
}

// ArtistName is the name of the entity's artist, or the entity's own name
// for artists.
func (s Subject) ArtistName() string {
	if s.Entity.Kind == shared.KindArtist {
		return s.Entity.Name
	}
	if s.Artist != nil {
		return s.Artist.Name
	}
	return ""
}

// AlbumName is the name of the track's album, or the entity's own name for
// albums.
func (s Subject) AlbumName() string {
	if s.Entity.Kind == shared.KindAlbum {
		return s.Entity.Name
	}
	if s.Album != nil {
		return s.Album.Name
	}
	return ""
}

// Result is a provider's answer for a subject. Related holds artist and album
// records discovered along the way; they are stored unconnected and linked
// to local entities by name.
type Result struct {
	Record  shared.ProviderRecord
	Related []shared.ProviderRecord
}

// Identifier looks a subject up at one provider. A nil Result with a nil
// error means the provider has no match.
type Identifier interface {
	Provider() string
	Supports(kind shared.Kind) bool
	Identify(ctx context.Context, s Subject) (*Result, error)
}

func sameName(a, b string) bool {
	sa := shared.SimplifyName(a)
	return sa != "" && sa == shared.SimplifyName(b)
}

func sameTitle(a, b string) bool {
	sa := shared.SimplifyTitle(a)
	return sa != "" && sa == shared.SimplifyTitle(b)
}

// creditedBy reports whether artist is one of names. An empty artist matches.
func creditedBy(artist string, names []string) bool {
	if strings.TrimSpace(artist) == "" {
		return true
	}
	for _, n := range names {
		if sameName(artist, n) {
			return true
		}
	}
	return false
}
