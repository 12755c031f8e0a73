package fingerprint

import (
	"fmt"
)

// Rejection names the stage that left no viable candidate.
type Rejection string

// Rejection reasons, one per filtering stage.
const (
	RejectNoResults     Rejection = "no_results"
	RejectLowConfidence Rejection = "low_confidence"
	RejectDuration      Rejection = "duration_mismatch"
	RejectShortTrack    Rejection = "short_track_low_score"
)

// StageResult is either the surviving candidates or the reason none survived.
type StageResult struct {
	Candidates []Candidate
	Rejected   Rejection
}

// OK reports whether candidates survived.
func (r StageResult) OK() bool { return r.Rejected == "" && len(r.Candidates) > 0 }

func keep(c []Candidate) StageResult { return StageResult{Candidates: c} }

func reject(reason Rejection) StageResult { return StageResult{Rejected: reason} }

// Stage narrows candidates against local metadata.
type Stage func(candidates []Candidate, local LocalMetadata) StageResult

// Run applies stages in order and stops at the first rejection.
func Run(candidates []Candidate, local LocalMetadata, stages ...Stage) StageResult {
	if len(candidates) == 0 {
		return reject(RejectNoResults)
	}
	res := keep(candidates)
	for _, stage := range stages {
		res = stage(res.Candidates, local)
		if !res.OK() {
			if res.Rejected == "" {
				res.Rejected = RejectNoResults
			}
			return res
		}
	}
	return res
}

// DurationBand accepts a candidate whose score is above MinScore when its
// duration is within MaxDelta seconds of the local file. A negative MaxDelta
// accepts any duration.
type DurationBand struct {
	MinScore float64 `mapstructure:"min_score" yaml:"min_score" json:"min_score"`
	MaxDelta float64 `mapstructure:"max_delta" yaml:"max_delta" json:"max_delta"`
}

// Gates holds the confidence and duration thresholds. The defaults are
// calibrated against AcoustID scores and may need tuning.
type Gates struct {
	MinConfidence      float64        `mapstructure:"min_confidence" yaml:"min_confidence" json:"min_confidence"`
	DurationBands      []DurationBand `mapstructure:"duration_bands" yaml:"duration_bands" json:"duration_bands"`
	FallbackMaxDelta   float64        `mapstructure:"fallback_max_delta" yaml:"fallback_max_delta" json:"fallback_max_delta"`
	ShortTrackSeconds  float64        `mapstructure:"short_track_seconds" yaml:"short_track_seconds" json:"short_track_seconds"`
	ShortTrackMinScore float64        `mapstructure:"short_track_min_score" yaml:"short_track_min_score" json:"short_track_min_score"`
}

// DefaultDurationBands are checked in order; the first band whose MinScore
// the candidate exceeds applies.
func DefaultDurationBands() []DurationBand {
	return []DurationBand{
		{MinScore: 0.98, MaxDelta: -1},
		{MinScore: 0.95, MaxDelta: 20},
		{MinScore: 0.90, MaxDelta: 10},
		{MinScore: 0.85, MaxDelta: 7},
		{MinScore: 0.80, MaxDelta: 5},
	}
}

// DefaultGates returns the standard thresholds.
func DefaultGates() Gates {
	return Gates{
		MinConfidence:      0.8,
		DurationBands:      DefaultDurationBands(),
		FallbackMaxDelta:   3,
		ShortTrackSeconds:  15,
		ShortTrackMinScore: 0.9,
	}
}

// Validate checks the bands are ordered by descending score.
func (g Gates) Validate() error {
	for i := 1; i < len(g.DurationBands); i++ {
		if g.DurationBands[i].MinScore >= g.DurationBands[i-1].MinScore {
			return fmt.Errorf("duration band %d: min_score must decrease (%.2f after %.2f)",
				i, g.DurationBands[i].MinScore, g.DurationBands[i-1].MinScore)
		}
	}
	if g.FallbackMaxDelta < 0 {
		return fmt.Errorf("fallback_max_delta must not be negative")
	}
	return nil
}

// Tolerance returns the allowed duration delta for score, or a negative
// value when any duration is accepted.
func (g Gates) Tolerance(score float64) float64 {
	for _, b := range g.DurationBands {
		if score > b.MinScore {
			return b.MaxDelta
		}
	}
	return g.FallbackMaxDelta
}

// Confidence rejects everything when even the best candidate is below MinConfidence.
func (g Gates) Confidence(candidates []Candidate, _ LocalMetadata) StageResult {
	best := 0.0
	for _, c := range candidates {
		if c.Score > best {
			best = c.Score
		}
	}
	if best < g.MinConfidence {
		return reject(RejectLowConfidence)
	}
	return keep(candidates)
}

// Duration keeps candidates within the score-scaled tolerance of the local
// duration. Short tracks skip the comparison and need a high score instead.
func (g Gates) Duration(candidates []Candidate, local LocalMetadata) StageResult {
	var out []Candidate
	if local.DurationSeconds > 0 && local.DurationSeconds < g.ShortTrackSeconds {
		for _, c := range candidates {
			if c.Score > g.ShortTrackMinScore {
				out = append(out, c)
			}
		}
		if len(out) == 0 {
			return reject(RejectShortTrack)
		}
		return keep(out)
	}
	for _, c := range candidates {
		tol := g.Tolerance(c.Score)
		if tol < 0 || c.DurationDelta(local.DurationSeconds) <= tol {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return reject(RejectDuration)
	}
	return keep(out)
}
