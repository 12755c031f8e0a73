package navidrome

// Artist is a library artist with its albums.
type Artist struct {
	ID     string
	Name   string
	Albums []Album
}

// Album is a library album with its tracks.
type Album struct {
	ID       string
	Name     string
	Artist   string
	ArtistID string
	Tracks   []Track
}

// Track is a library song.
type Track struct {
	ID              string
	Title           string
	Artist          string
	Album           string
	Path            string
	TrackNumber     int
	DurationSeconds int
}
