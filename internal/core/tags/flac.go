package tags

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"
)

func readFLAC(path string) (*Tags, error) {
	f, err := flac.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse FLAC file: %w", err)
	}

	t := &Tags{}
	for _, block := range f.Meta {
		switch block.Type {
		case flac.StreamInfo:
			t.DurationSeconds = streamDuration(block.Data)
		case flac.VorbisComment:
			comment, err := flacvorbis.ParseFromMetaDataBlock(*block)
			if err != nil {
				return nil, fmt.Errorf("failed to parse vorbis comment: %w", err)
			}
			applyVorbis(t, comment.Comments)
		case flac.Picture:
			if t.Cover != nil {
				continue
			}
			pic, err := flacpicture.ParseFromMetaDataBlock(*block)
			if err != nil {
				continue
			}
			t.Cover = &Cover{MIME: pic.MIME, Size: len(pic.ImageData)}
		}
	}
	return t, nil
}

func applyVorbis(t *Tags, comments []string) {
	for _, c := range comments {
		key, value, ok := strings.Cut(c, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToUpper(key) {
		case flacvorbis.FIELD_TITLE:
			t.Title = value
		case flacvorbis.FIELD_ARTIST:
			if t.Artist == "" {
				t.Artist = value
			}
			t.Artists = append(t.Artists, value)
		case "ALBUMARTIST", "ALBUM ARTIST":
			t.AlbumArtist = value
		case flacvorbis.FIELD_ALBUM:
			t.Album = value
		case flacvorbis.FIELD_TRACKNUMBER:
			t.TrackNumber = parseTrackNumber(value)
		case "MUSICBRAINZ_TRACKID":
			t.RecordingMBID = value
		}
	}
}

// streamDuration decodes sample rate and total samples from STREAMINFO.
func streamDuration(data []byte) float64 {
	if len(data) < 18 {
		return 0
	}
	v := binary.BigEndian.Uint64(data[10:18])
	sampleRate := v >> 44
	totalSamples := v & (1<<36 - 1)
	if sampleRate == 0 {
		return 0
	}
	return float64(totalSamples) / float64(sampleRate)
}
