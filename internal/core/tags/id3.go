package tags

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bogem/id3v2/v2"
)

func readID3(path string) (*Tags, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read ID3 tag: %w", err)
	}
	defer tag.Close()

	t := &Tags{
		Title:       tag.Title(),
		Artist:      tag.Artist(),
		Album:       tag.Album(),
		AlbumArtist: tag.GetTextFrame("TPE2").Text,
		TrackNumber: parseTrackNumber(tag.GetTextFrame("TRCK").Text),
	}
	// TPE1 separates multiple artists with "/" in v2.3 and NUL in v2.4.
	for _, a := range strings.FieldsFunc(t.Artist, func(r rune) bool { return r == '/' || r == 0 }) {
		if a = strings.TrimSpace(a); a != "" {
			t.Artists = append(t.Artists, a)
		}
	}
	if len(t.Artists) > 0 {
		t.Artist = t.Artists[0]
	}
	if ms, err := strconv.Atoi(strings.TrimSpace(tag.GetTextFrame("TLEN").Text)); err == nil && ms > 0 {
		t.DurationSeconds = float64(ms) / 1000
	}
	for _, f := range tag.GetFrames(tag.CommonID("Attached picture")) {
		if pic, ok := f.(id3v2.PictureFrame); ok {
			t.Cover = &Cover{MIME: pic.MimeType, Size: len(pic.Picture)}
			break
		}
	}
	return t, nil
}
