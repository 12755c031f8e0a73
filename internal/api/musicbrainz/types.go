package musicbrainz

// Genre is a MusicBrainz genre tag with its vote count.
type Genre struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Artist represents a MusicBrainz artist
type Artist struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	SortName       string  `json:"sort-name"`
	Type           string  `json:"type"`
	Country        string  `json:"country"`
	Disambiguation string  `json:"disambiguation"`
	Genres         []Genre `json:"genres"`
	Score          int     `json:"score"`
}

// ArtistCredit represents artist credit information
type ArtistCredit struct {
	Name       string `json:"name"`
	JoinPhrase string `json:"joinphrase"`
	Artist     Artist `json:"artist"`
}

// MediaTrack represents a track within media
type MediaTrack struct {
	ID       string `json:"id"`
	Number   string `json:"number"`
	Title    string `json:"title"`
	Position int    `json:"position"`
	Length   int    `json:"length"`
}

// Media represents one medium of a release. With inc=media on a recording
// lookup, TrackOffset locates the recording on the medium.
type Media struct {
	Position    int          `json:"position"`
	Format      string       `json:"format"`
	TrackCount  int          `json:"track-count"`
	TrackOffset *int         `json:"track-offset"`
	Tracks      []MediaTrack `json:"tracks"`
}

// ReleaseGroup represents a MusicBrainz release group
type ReleaseGroup struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	PrimaryType      string         `json:"primary-type"`
	SecondaryTypes   []string       `json:"secondary-types"`
	FirstReleaseDate string         `json:"first-release-date"`
	ArtistCredit     []ArtistCredit `json:"artist-credit"`
	Genres           []Genre        `json:"genres"`
	Score            int            `json:"score"`
}

// Release represents a MusicBrainz release as embedded in a recording lookup
type Release struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Status       string         `json:"status"`
	Date         string         `json:"date"`
	Country      string         `json:"country"`
	ArtistCredit []ArtistCredit `json:"artist-credit"`
	ReleaseGroup ReleaseGroup   `json:"release-group"`
	Media        []Media        `json:"media"`
}

// Recording represents a MusicBrainz recording (track)
type Recording struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Length         int            `json:"length"` // Duration in milliseconds
	Disambiguation string         `json:"disambiguation"`
	ArtistCredit   []ArtistCredit `json:"artist-credit"`
	Releases       []Release      `json:"releases"`
	Genres         []Genre        `json:"genres"`
	Score          int            `json:"score"`
}

type searchResult struct {
	Count         int            `json:"count"`
	Artists       []Artist       `json:"artists"`
	ReleaseGroups []ReleaseGroup `json:"release-groups"`
	Recordings    []Recording    `json:"recordings"`
}

// GenreNames returns genre names ordered as MusicBrainz returned them.
func GenreNames(genres []Genre) []string {
	names := make([]string, 0, len(genres))
	for _, g := range genres {
		if g.Name != "" {
			names = append(names, g.Name)
		}
	}
	return names
}

// CreditedArtists returns the artists of a credit in order.
func CreditedArtists(credit []ArtistCredit) []Artist {
	artists := make([]Artist, 0, len(credit))
	for _, ac := range credit {
		a := ac.Artist
		if a.Name == "" {
			a.Name = ac.Name
		}
		artists = append(artists, a)
	}
	return artists
}

// CreditName renders an artist credit the way MusicBrainz displays it.
func CreditName(credit []ArtistCredit) string {
	var name string
	for _, ac := range credit {
		n := ac.Name
		if n == "" {
			n = ac.Artist.Name
		}
		name += n + ac.JoinPhrase
	}
	return name
}
