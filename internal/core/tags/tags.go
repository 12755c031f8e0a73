// Package tags reads the embedded metadata of local audio files.
package tags

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrUnsupportedFormat is returned for files whose tags cannot be read.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Cover describes embedded cover art.
type Cover struct {
	MIME string
	Size int
}

// Tags is the subset of embedded metadata used for identification.
type Tags struct {
	Title           string
	Artist          string
	Artists         []string
	AlbumArtist     string
	Album           string
	TrackNumber     int
	DurationSeconds float64
	RecordingMBID   string
	Cover           *Cover
}

// Read dispatches on the file extension.
func Read(path string) (*Tags, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".flac":
		return readFLAC(path)
	case ".mp3":
		return readID3(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// parseTrackNumber accepts "3" and "3/12".
func parseTrackNumber(s string) int {
	s, _, _ = strings.Cut(strings.TrimSpace(s), "/")
	n, _ := strconv.Atoi(s)
	return n
}
