package shared

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// VariousArtistsMBID is the MusicBrainz id of the "Various Artists" placeholder.
const VariousArtistsMBID = "89ad4ac3-39f7-470e-963a-56509c546377"

var (
	qualifierPattern = regexp.MustCompile(`\s*[\(\[][^\)\]]*[\)\]]\s*`)
	featPattern      = regexp.MustCompile(`(?i)\s+(feat\.?|ft\.?|featuring)\s+.*$`)

	placeholderArtists = map[string]struct{}{
		"various artists": {},
		"various":         {},
		"va":              {},
		"unknown artist":  {},
		"[unknown]":       {},
		"unknown":         {},
	}
)

// SimplifyName lowercases, strips diacritics and punctuation, and collapses
// whitespace so names from different providers compare equal.
func SimplifyName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(folded)
	folded = strings.ReplaceAll(folded, "&", " and ")

	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			if !space && b.Len() > 0 {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// StripQualifiers removes bracketed qualifiers ("(Live)", "[Remastered]") and
// featured-artist suffixes from a title.
func StripQualifiers(title string) string {
	stripped := qualifierPattern.ReplaceAllString(title, " ")
	stripped = featPattern.ReplaceAllString(stripped, "")
	stripped = strings.TrimSpace(stripped)
	if stripped == "" {
		return title
	}
	return stripped
}

// SimplifyTitle is SimplifyName applied after StripQualifiers.
func SimplifyTitle(title string) string {
	return SimplifyName(StripQualifiers(title))
}

// IsPlaceholderArtist reports whether the artist is a "Various Artists"-style placeholder.
func IsPlaceholderArtist(id, name string) bool {
	if id == VariousArtistsMBID {
		return true
	}
	_, ok := placeholderArtists[strings.ToLower(strings.TrimSpace(name))]
	return ok
}
