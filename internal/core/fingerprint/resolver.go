package fingerprint

import (
	"context"
	"fmt"
	"log/slog"

	"music-enricher/internal/api/acoustid"
	"music-enricher/internal/api/musicbrainz"
)

// Fingerprinter computes an acoustic fingerprint for a file.
type Fingerprinter interface {
	Calculate(ctx context.Context, path string) (*Fingerprint, error)
}

// Lookup resolves a fingerprint to scored matches.
type Lookup interface {
	Lookup(ctx context.Context, fingerprint string, durationSeconds int) ([]acoustid.Result, error)
}

// Canonical re-fetches identifiers from the naming authority.
type Canonical interface {
	GetRecording(ctx context.Context, mbid string) (*musicbrainz.Recording, bool, error)
	GetReleaseGroup(ctx context.Context, mbid string) (*musicbrainz.ReleaseGroup, bool, error)
	GetArtist(ctx context.Context, mbid string) (*musicbrainz.Artist, bool, error)
}

// MatchArtist is a cross-validated artist.
type MatchArtist struct {
	ID     string
	Name   string
	Genres []string
}

// MatchReleaseGroup is a cross-validated release group.
type MatchReleaseGroup struct {
	ID             string
	Title          string
	Type           string
	SecondaryTypes []string
	Artists        []MatchArtist
	Genres         []string
}

// Match is the identified recording.
type Match struct {
	AcoustID        string
	RecordingID     string
	Title           string
	Score           float64
	DurationSeconds float64
	Artists         []MatchArtist
	ReleaseGroup    *MatchReleaseGroup
	Genres          []string
	// Position and TrackCount are zero unless every release of the release
	// group agrees on them.
	Position   int
	TrackCount int
}

// Resolver identifies tracks from audio content.
type Resolver struct {
	fpcalc    Fingerprinter
	lookup    Lookup
	canonical Canonical
	gates     Gates
	logger    *slog.Logger
}

// NewResolver creates a Resolver. canonical may be nil, in which case
// cross-validation is skipped.
func NewResolver(fp Fingerprinter, lookup Lookup, canonical Canonical, gates Gates, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{
		fpcalc:    fp,
		lookup:    lookup,
		canonical: canonical,
		gates:     gates,
		logger:    logger,
	}
}

// Identify fingerprints the file at path and returns the best cross-validated
// match, or nil when no candidate survives.
func (r *Resolver) Identify(ctx context.Context, path string, local LocalMetadata) (*Match, error) {
	fp, err := r.fpcalc.Calculate(ctx, path)
	if err != nil {
		return nil, err
	}
	if local.DurationSeconds <= 0 {
		local.DurationSeconds = fp.Duration
	}

	results, err := r.lookup.Lookup(ctx, fp.Fingerprint, int(fp.Duration))
	if err != nil {
		return nil, fmt.Errorf("fingerprint lookup: %w", err)
	}

	best, rejected := r.Select(Candidates(results), local)
	if best == nil {
		r.logger.Debug("no viable fingerprint candidate",
			slog.String("path", path), slog.String("reason", string(rejected)))
		return nil, nil
	}

	match, err := r.crossValidate(ctx, *best)
	if err != nil {
		return nil, err
	}
	repairArtistOrder(match, local)

	r.logger.Info("fingerprint identified",
		slog.String("path", path),
		slog.String("recording", match.RecordingID),
		slog.String("title", match.Title),
		slog.Float64("score", match.Score))
	return match, nil
}

// Select runs the gates and the ranking and returns the top candidate, or the
// rejection reason.
func (r *Resolver) Select(candidates []Candidate, local LocalMetadata) (*Candidate, Rejection) {
	res := Run(candidates, local, r.gates.Confidence, r.gates.Duration)
	if !res.OK() {
		return nil, res.Rejected
	}
	ranked := Rank(res.Candidates, local)
	return &ranked[0], ""
}

func (r *Resolver) crossValidate(ctx context.Context, c Candidate) (*Match, error) {
	m := &Match{
		AcoustID:        c.AcoustID,
		RecordingID:     c.RecordingID,
		Title:           c.Title,
		Score:           c.Score,
		DurationSeconds: c.DurationSeconds,
	}
	for _, a := range c.Artists {
		m.Artists = append(m.Artists, MatchArtist{ID: a.ID, Name: a.Name})
	}
	if rg := c.ReleaseGroup; rg != nil {
		m.ReleaseGroup = &MatchReleaseGroup{
			ID:             rg.ID,
			Title:          rg.Title,
			Type:           rg.Type,
			SecondaryTypes: rg.SecondaryTypes,
		}
		for _, a := range rg.Artists {
			m.ReleaseGroup.Artists = append(m.ReleaseGroup.Artists, MatchArtist{ID: a.ID, Name: a.Name})
		}
	}
	if r.canonical == nil {
		return m, nil
	}

	rec, ok, err := r.canonical.GetRecording(ctx, c.RecordingID)
	if err != nil {
		return nil, fmt.Errorf("cross-validate recording %s: %w", c.RecordingID, err)
	}
	if ok {
		m.Title = rec.Title
		m.Genres = musicbrainz.GenreNames(rec.Genres)
		if rec.Length > 0 {
			m.DurationSeconds = float64(rec.Length) / 1000
		}
		if credited := musicbrainz.CreditedArtists(rec.ArtistCredit); len(credited) > 0 {
			m.Artists = m.Artists[:0]
			for _, a := range credited {
				m.Artists = append(m.Artists, MatchArtist{ID: a.ID, Name: a.Name})
			}
		}
		if m.ReleaseGroup != nil {
			m.Position, m.TrackCount = agreedPosition(rec.Releases, m.ReleaseGroup.ID)
		}
	}

	if m.ReleaseGroup != nil {
		rg, ok, err := r.canonical.GetReleaseGroup(ctx, m.ReleaseGroup.ID)
		if err != nil {
			return nil, fmt.Errorf("cross-validate release group %s: %w", m.ReleaseGroup.ID, err)
		}
		if ok {
			m.ReleaseGroup.Title = rg.Title
			m.ReleaseGroup.Type = rg.PrimaryType
			m.ReleaseGroup.SecondaryTypes = rg.SecondaryTypes
			m.ReleaseGroup.Genres = musicbrainz.GenreNames(rg.Genres)
			if credited := musicbrainz.CreditedArtists(rg.ArtistCredit); len(credited) > 0 {
				m.ReleaseGroup.Artists = m.ReleaseGroup.Artists[:0]
				for _, a := range credited {
					m.ReleaseGroup.Artists = append(m.ReleaseGroup.Artists, MatchArtist{ID: a.ID, Name: a.Name})
				}
			}
		}
		if err := r.validateArtists(ctx, m.ReleaseGroup.Artists); err != nil {
			return nil, err
		}
	}
	if err := r.validateArtists(ctx, m.Artists); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *Resolver) validateArtists(ctx context.Context, artists []MatchArtist) error {
	for i := range artists {
		if artists[i].ID == "" {
			continue
		}
		a, ok, err := r.canonical.GetArtist(ctx, artists[i].ID)
		if err != nil {
			return fmt.Errorf("cross-validate artist %s: %w", artists[i].ID, err)
		}
		if ok {
			artists[i].Name = a.Name
			artists[i].Genres = musicbrainz.GenreNames(a.Genres)
		}
	}
	return nil
}

// agreedPosition returns the track position and count shared by every
// release of the release group, or zeros when they disagree or are unknown.
func agreedPosition(releases []musicbrainz.Release, releaseGroupID string) (int, int) {
	position, count, seen := 0, 0, false
	for _, rel := range releases {
		if rel.ReleaseGroup.ID != releaseGroupID {
			continue
		}
		if len(rel.Media) != 1 || rel.Media[0].TrackOffset == nil {
			return 0, 0
		}
		p, n := *rel.Media[0].TrackOffset+1, rel.Media[0].TrackCount
		if seen && (p != position || n != count) {
			return 0, 0
		}
		position, count, seen = p, n, true
	}
	return position, count
}

// repairArtistOrder moves the primary artist to the front when a featured
// artist is credited first.
func repairArtistOrder(m *Match, local LocalMetadata) {
	if len(m.Artists) < 2 {
		return
	}
	idx := -1
	if m.ReleaseGroup != nil && len(m.ReleaseGroup.Artists) == 1 {
		sole := m.ReleaseGroup.Artists[0]
		idx = indexOfArtist(m.Artists, func(a MatchArtist) bool {
			return (sole.ID != "" && a.ID == sole.ID) || similarityTier(a.Name, sole.Name) > 0
		})
	}
	if idx < 0 && local.Artist != "" {
		idx = indexOfArtist(m.Artists, func(a MatchArtist) bool {
			return similarityTier(a.Name, local.Artist) > 0
		})
	}
	if idx <= 0 {
		return
	}
	primary := m.Artists[idx]
	copy(m.Artists[1:idx+1], m.Artists[:idx])
	m.Artists[0] = primary
}

func indexOfArtist(artists []MatchArtist, match func(MatchArtist) bool) int {
	for i, a := range artists {
		if match(a) {
			return i
		}
	}
	return -1
}
