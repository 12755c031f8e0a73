// Package fingerprint identifies a track from its audio content: fpcalc
// produces a fingerprint, AcoustID proposes scored candidates, and
// MusicBrainz confirms the winner.
package fingerprint

import (
	"math"

	"music-enricher/internal/api/acoustid"
)

// Artist is a credited artist.
type Artist struct {
	ID   string
	Name string
}

// ReleaseGroup is the release group a candidate recording appears on.
type ReleaseGroup struct {
	ID             string
	Title          string
	Type           string
	SecondaryTypes []string
	Artists        []Artist
}

// Candidate is one recording × release group proposed by the fingerprint lookup.
type Candidate struct {
	AcoustID        string
	Score           float64
	RecordingID     string
	Title           string
	DurationSeconds float64
	Artists         []Artist
	ReleaseGroup    *ReleaseGroup
}

// DurationDelta is the absolute difference from local, or +Inf when the
// candidate's duration is unknown.
func (c Candidate) DurationDelta(local float64) float64 {
	if c.DurationSeconds <= 0 {
		return math.Inf(1)
	}
	return math.Abs(c.DurationSeconds - local)
}

// LocalMetadata is what the library already knows about the file.
type LocalMetadata struct {
	Title           string
	Artist          string
	Artists         []string
	Album           string
	DurationSeconds float64
}

// Candidates flattens lookup results into one candidate per recording and
// release group. Recordings without release groups yield a single candidate.
func Candidates(results []acoustid.Result) []Candidate {
	var out []Candidate
	for _, res := range results {
		for _, rec := range res.Recordings {
			if rec.ID == "" {
				continue
			}
			base := Candidate{
				AcoustID:        res.ID,
				Score:           res.Score,
				RecordingID:     rec.ID,
				Title:           rec.Title,
				DurationSeconds: rec.Duration,
				Artists:         convertArtists(rec.Artists),
			}
			if len(rec.ReleaseGroups) == 0 {
				out = append(out, base)
				continue
			}
			for _, rg := range rec.ReleaseGroups {
				c := base
				c.ReleaseGroup = &ReleaseGroup{
					ID:             rg.ID,
					Title:          rg.Title,
					Type:           rg.Type,
					SecondaryTypes: rg.SecondaryTypes,
					Artists:        convertArtists(rg.Artists),
				}
				out = append(out, c)
			}
		}
	}
	return out
}

func convertArtists(in []acoustid.Artist) []Artist {
	if len(in) == 0 {
		return nil
	}
	out := make([]Artist, len(in))
	for i, a := range in {
		out[i] = Artist{ID: a.ID, Name: a.Name}
	}
	return out
}
