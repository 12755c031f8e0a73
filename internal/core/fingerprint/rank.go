package fingerprint

import (
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"

	"music-enricher/internal/shared"
)

// fuzzyThreshold is the Levenshtein similarity counted as a near match.
const fuzzyThreshold = 0.8

var primaryTypePriority = map[string]int{
	"album":     5,
	"ep":        4,
	"single":    3,
	"broadcast": 2,
	"other":     1,
}

var secondaryTypePriority = map[string]int{
	"live":           11,
	"soundtrack":     10,
	"compilation":    9,
	"remix":          8,
	"dj-mix":         7,
	"mixtape/street": 6,
	"demo":           5,
	"spokenword":     4,
	"interview":      3,
	"audiobook":      2,
	"audio drama":    1,
}

// similarityTier is 2 for equal simplified strings, 1 for a fuzzy match and
// 0 otherwise. Empty inputs never match.
func similarityTier(a, b string) int {
	a, b = shared.SimplifyTitle(a), shared.SimplifyTitle(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 2
	}
	sim, err := edlib.StringsSimilarity(a, b, edlib.Levenshtein)
	if err == nil && sim >= fuzzyThreshold {
		return 1
	}
	return 0
}

// rankKey holds the precomputed cascade criteria, in comparison order.
type rankKey struct {
	hasReleaseGroup bool
	hasArtists      bool
	title           int
	primaryArtist   int
	artistList      int
	album           int
	primaryType     int
	secondaryCount  int
	secondarySum    int
	realArtist      int
	score           float64
	delta           float64
	recordingID     string
	releaseGroupID  string
}

func keyFor(c Candidate, local LocalMetadata) rankKey {
	k := rankKey{
		hasReleaseGroup: c.ReleaseGroup != nil,
		hasArtists:      len(c.Artists) > 0,
		title:           similarityTier(c.Title, local.Title),
		score:           c.Score,
		delta:           c.DurationDelta(local.DurationSeconds),
		recordingID:     c.RecordingID,
	}
	for _, a := range c.Artists {
		k.primaryArtist = max(k.primaryArtist, similarityTier(a.Name, local.Artist))
	}
	for _, want := range local.Artists {
		for _, a := range c.Artists {
			if similarityTier(a.Name, want) > 0 {
				k.artistList++
				break
			}
		}
	}

	compilation := false
	if rg := c.ReleaseGroup; rg != nil {
		k.releaseGroupID = rg.ID
		k.album = similarityTier(rg.Title, local.Album)
		k.primaryType = primaryTypePriority[strings.ToLower(rg.Type)]
		k.secondaryCount = len(rg.SecondaryTypes)
		for _, st := range rg.SecondaryTypes {
			st = strings.ToLower(st)
			k.secondarySum += secondaryTypePriority[st]
			if st == "compilation" {
				compilation = true
			}
		}
	}

	// Compilations are neutral; otherwise a real artist beats a placeholder.
	switch {
	case compilation:
		k.realArtist = 1
	case isPlaceholder(c):
		k.realArtist = 0
	default:
		k.realArtist = 2
	}
	return k
}

func isPlaceholder(c Candidate) bool {
	artists := c.Artists
	if c.ReleaseGroup != nil && len(c.ReleaseGroup.Artists) > 0 {
		artists = c.ReleaseGroup.Artists
	}
	if len(artists) == 0 {
		return false
	}
	return shared.IsPlaceholderArtist(artists[0].ID, artists[0].Name)
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

// less orders a before b when a is the better candidate.
func less(a, b rankKey) bool {
	// higher is better
	for _, pair := range [][2]int{
		{boolRank(a.hasReleaseGroup), boolRank(b.hasReleaseGroup)},
		{boolRank(a.hasArtists), boolRank(b.hasArtists)},
		{a.title, b.title},
		{a.primaryArtist, b.primaryArtist},
		{a.artistList, b.artistList},
		{a.album, b.album},
		{a.primaryType, b.primaryType},
		{-a.secondaryCount, -b.secondaryCount},
		{a.secondarySum, b.secondarySum},
		{a.realArtist, b.realArtist},
	} {
		if pair[0] != pair[1] {
			return pair[0] > pair[1]
		}
	}
	if a.score != b.score {
		return a.score > b.score
	}
	if a.delta != b.delta {
		return a.delta < b.delta
	}
	if a.recordingID != b.recordingID {
		return a.recordingID < b.recordingID
	}
	return a.releaseGroupID < b.releaseGroupID
}

// Rank returns the candidates best first. The input is not modified and the
// order depends only on the candidates and local metadata.
func Rank(candidates []Candidate, local LocalMetadata) []Candidate {
	type ranked struct {
		c   Candidate
		key rankKey
	}
	items := make([]ranked, len(candidates))
	for i, c := range candidates {
		items[i] = ranked{c: c, key: keyFor(c, local)}
	}
	sort.SliceStable(items, func(i, j int) bool { return less(items[i].key, items[j].key) })
	out := make([]Candidate, len(items))
	for i, it := range items {
		out[i] = it.c
	}
	return out
}
