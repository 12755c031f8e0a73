package lastfm

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Count is a numeric field Last.fm encodes as a JSON string.
type Count int64

func (c *Count) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*c = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*c = Count(n)
	return nil
}

// Tag is a Last.fm user tag.
type Tag struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Tags decodes Last.fm's tag list, which is an object for a single tag, an
// array for several, and an empty string when there are none.
type Tags []Tag

func (t *Tags) UnmarshalJSON(data []byte) error {
	var wrapper struct {
		Tag json.RawMessage `json:"tag"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		// "tags": "" for entities without tags
		*t = nil
		return nil
	}
	if len(wrapper.Tag) == 0 {
		*t = nil
		return nil
	}
	var many []Tag
	if err := json.Unmarshal(wrapper.Tag, &many); err == nil {
		*t = many
		return nil
	}
	var one Tag
	if err := json.Unmarshal(wrapper.Tag, &one); err != nil {
		return err
	}
	*t = Tags{one}
	return nil
}

// Names returns the tag names.
func (t Tags) Names() []string {
	names := make([]string, 0, len(t))
	for _, tag := range t {
		if tag.Name != "" {
			names = append(names, tag.Name)
		}
	}
	return names
}

// Image is a sized image URL.
type Image struct {
	URL  string `json:"#text"`
	Size string `json:"size"`
}

// Images is a list of sized images.
type Images []Image

// Largest returns the URL of the biggest non-empty image.
func (im Images) Largest() string {
	var url string
	for _, img := range im {
		if img.URL != "" {
			url = img.URL
		}
	}
	return url
}

// Stats are listener and play counts.
type Stats struct {
	Listeners Count `json:"listeners"`
	Playcount Count `json:"playcount"`
}

// Wiki is a short and long description.
type Wiki struct {
	Summary string `json:"summary"`
	Content string `json:"content"`
}

// Artist is the payload of artist.getinfo.
type Artist struct {
	Name  string `json:"name"`
	MBID  string `json:"mbid"`
	URL   string `json:"url"`
	Image Images `json:"image"`
	Stats Stats  `json:"stats"`
	Tags  Tags   `json:"tags"`
	Bio   Wiki   `json:"bio"`
}

// Album is the payload of album.getinfo.
type Album struct {
	Name      string `json:"name"`
	Artist    string `json:"artist"`
	MBID      string `json:"mbid"`
	URL       string `json:"url"`
	Image     Images `json:"image"`
	Listeners Count  `json:"listeners"`
	Playcount Count  `json:"playcount"`
	Tags      Tags   `json:"tags"`
	Wiki      Wiki   `json:"wiki"`
}

// TrackArtist is the artist object embedded in a track.
type TrackArtist struct {
	Name string `json:"name"`
	MBID string `json:"mbid"`
	URL  string `json:"url"`
}

// TrackAlbum is the album object embedded in a track.
type TrackAlbum struct {
	Artist string `json:"artist"`
	Title  string `json:"title"`
	MBID   string `json:"mbid"`
	URL    string `json:"url"`
	Image  Images `json:"image"`
}

// Track is the payload of track.getinfo.
type Track struct {
	Name      string      `json:"name"`
	MBID      string      `json:"mbid"`
	URL       string      `json:"url"`
	Duration  Count       `json:"duration"` // milliseconds
	Listeners Count       `json:"listeners"`
	Playcount Count       `json:"playcount"`
	Artist    TrackArtist `json:"artist"`
	Album     *TrackAlbum `json:"album"`
	TopTags   Tags        `json:"toptags"`
	Wiki      Wiki        `json:"wiki"`
}

type envelope struct {
	Artist  *Artist `json:"artist"`
	Album   *Album  `json:"album"`
	Track   *Track  `json:"track"`
	Error   int     `json:"error"`
	Message string  `json:"message"`
}
