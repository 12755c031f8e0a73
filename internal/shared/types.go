package shared

import (
	"fmt"
	"time"
)

// Kind is the type of a local library entity.
type Kind string

const (
	KindTrack  Kind = "track"
	KindAlbum  Kind = "album"
	KindArtist Kind = "artist"
)

// ParseKind validates a kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindTrack, KindAlbum, KindArtist:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown entity kind %q (want track, album or artist)", s)
}

// Provider names
const (
	ProviderAcoustID    = "acoustid"
	ProviderMusicBrainz = "musicbrainz"
	ProviderLastFM      = "lastfm"
	ProviderSpotify     = "spotify"
	ProviderAudioDB     = "audiodb"
)

// LocalEntity is a track, album or artist in the local library.
type LocalEntity struct {
	ID              int64     `json:"id"`
	Kind            Kind      `json:"kind"`
	Name            string    `json:"name"`
	SimplifiedName  string    `json:"simplified_name"`
	ArtistID        int64     `json:"artist_id,omitempty"`
	AlbumID         int64     `json:"album_id,omitempty"`
	FilePath        string    `json:"file_path,omitempty"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
	ExternalID      string    `json:"external_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// AudioFeatures are the streaming catalog's per-track audio descriptors.
type AudioFeatures struct {
	Danceability float64 `json:"danceability"`
	Energy       float64 `json:"energy"`
	Valence      float64 `json:"valence"`
	Tempo        float64 `json:"tempo"`
	Acousticness float64 `json:"acousticness"`
}

// RecordStats holds the numeric statistics a provider reports.
type RecordStats struct {
	Listeners     int64          `json:"listeners,omitempty"`
	Playcount     int64          `json:"playcount,omitempty"`
	Popularity    int            `json:"popularity,omitempty"`
	Followers     int64          `json:"followers,omitempty"`
	AudioFeatures *AudioFeatures `json:"audio_features,omitempty"`
	Position      int            `json:"position,omitempty"`
	TrackCount    int            `json:"track_count,omitempty"`
	Votes         int64          `json:"votes,omitempty"`
}

// RecordDetails holds descriptive, non-numeric provider data.
type RecordDetails struct {
	Genres   []string `json:"genres,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
	Summary  string   `json:"summary,omitempty"`
	Type     string   `json:"type,omitempty"`
	Artists  []string `json:"artists,omitempty"`
}

// ProviderRecord is one provider's view of an entity.
type ProviderRecord struct {
	ID         string        `json:"id"`
	Provider   string        `json:"provider"`
	ProviderID string        `json:"provider_id"`
	Kind       Kind          `json:"kind"`
	Name       string        `json:"name"`
	URL        string        `json:"url,omitempty"`
	Stats      RecordStats   `json:"stats"`
	Details    RecordDetails `json:"details"`
	EntityID   int64         `json:"entity_id,omitempty"`
	FetchedAt  time.Time     `json:"fetched_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Connected reports whether the record is attached to a local entity.
func (r *ProviderRecord) Connected() bool {
	return r != nil && r.EntityID != 0
}

// FreshnessMark records when an entity was last fetched from a provider.
type FreshnessMark struct {
	EntityID      int64     `json:"entity_id"`
	Provider      string    `json:"provider"`
	LastFetchedAt time.Time `json:"last_fetched_at"`
}

// Age returns how long ago the mark was written.
func (m FreshnessMark) Age(now time.Time) time.Duration {
	return now.Sub(m.LastFetchedAt)
}
