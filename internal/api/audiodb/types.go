package audiodb

import (
	"strconv"
	"strings"
)

// Artist is an artist as returned by artist-mb.php.
type Artist struct {
	ID            string `json:"idArtist"`
	Name          string `json:"strArtist"`
	MBID          string `json:"strMusicBrainzID"`
	Genre         string `json:"strGenre"`
	Style         string `json:"strStyle"`
	Mood          string `json:"strMood"`
	Country       string `json:"strCountry"`
	FormedYear    string `json:"intFormedYear"`
	Biography     string `json:"strBiographyEN"`
	Thumb         string `json:"strArtistThumb"`
	Website       string `json:"strWebsite"`
	MembersNumber string `json:"intMembers"`
}

// Album is an album as returned by album-mb.php.
type Album struct {
	ID          string `json:"idAlbum"`
	ArtistID    string `json:"idArtist"`
	Name        string `json:"strAlbum"`
	Artist      string `json:"strArtist"`
	MBID        string `json:"strMusicBrainzID"`
	Year        string `json:"intYearReleased"`
	Genre       string `json:"strGenre"`
	Style       string `json:"strStyle"`
	ReleaseType string `json:"strReleaseFormat"`
	Description string `json:"strDescriptionEN"`
	Thumb       string `json:"strAlbumThumb"`
	Score       string `json:"intScore"`
	ScoreVotes  string `json:"intScoreVotes"`
}

// Genres collects the non-empty genre and style labels.
func Genres(labels ...string) []string {
	var out []string
	for _, l := range labels {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// ArtistURL is the public page of an artist.
func ArtistURL(id string) string { return "https://www.theaudiodb.com/artist/" + id }

// AlbumURL is the public page of an album.
func AlbumURL(id string) string { return "https://www.theaudiodb.com/album/" + id }

// Votes parses the vote count, which the API encodes as a string.
func (a Album) Votes() int64 {
	n, _ := strconv.ParseInt(a.ScoreVotes, 10, 64)
	return n
}
