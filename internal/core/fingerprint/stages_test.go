package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cand(id string, score, duration float64) Candidate {
	return Candidate{RecordingID: id, Score: score, DurationSeconds: duration, Title: "Foo"}
}

func TestConfidenceGate(t *testing.T) {
	g := DefaultGates()

	res := g.Confidence([]Candidate{cand("a", 0.79, 200), cand("b", 0.5, 200)}, LocalMetadata{})
	assert.False(t, res.OK())
	assert.Equal(t, RejectLowConfidence, res.Rejected)

	res = g.Confidence([]Candidate{cand("a", 0.8, 200), cand("b", 0.5, 200)}, LocalMetadata{})
	require.True(t, res.OK())
	assert.Len(t, res.Candidates, 2)
}

func TestDurationGateBands(t *testing.T) {
	g := DefaultGates()
	local := LocalMetadata{DurationSeconds: 200}

	tests := []struct {
		name     string
		score    float64
		duration float64
		accepted bool
	}{
		{"0.85 at exactly 5s", 0.85, 205, true},
		{"0.85 at 5.01s", 0.85, 205.01, false},
		{"0.86 at 7s", 0.86, 193, true},
		{"0.86 at 7.5s", 0.86, 207.5, false},
		{"0.91 at 10s", 0.91, 210, true},
		{"0.96 at 20s", 0.96, 180, true},
		{"0.96 at 21s", 0.96, 221, false},
		{"0.99 ignores duration", 0.99, 400, true},
		{"0.80 falls back to 3s", 0.80, 203, true},
		{"0.80 at 3.5s", 0.80, 203.5, false},
		{"unknown candidate duration", 0.9, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := g.Duration([]Candidate{cand("a", tt.score, tt.duration)}, local)
			assert.Equal(t, tt.accepted, res.OK())
			if !tt.accepted {
				assert.Equal(t, RejectDuration, res.Rejected)
			}
		})
	}
}

func TestDurationGateShortTrack(t *testing.T) {
	g := DefaultGates()
	local := LocalMetadata{DurationSeconds: 12}

	// duration is ignored for short tracks
	res := g.Duration([]Candidate{cand("a", 0.95, 60), cand("b", 0.9, 12)}, local)
	require.True(t, res.OK())
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "a", res.Candidates[0].RecordingID)

	res = g.Duration([]Candidate{cand("b", 0.9, 12)}, local)
	assert.Equal(t, RejectShortTrack, res.Rejected)
}

func TestRunStopsAtFirstRejection(t *testing.T) {
	g := DefaultGates()
	called := false
	spy := func(c []Candidate, _ LocalMetadata) StageResult {
		called = true
		return keep(c)
	}

	res := Run([]Candidate{cand("a", 0.5, 200)}, LocalMetadata{DurationSeconds: 200}, g.Confidence, spy)
	assert.Equal(t, RejectLowConfidence, res.Rejected)
	assert.False(t, called)

	res = Run(nil, LocalMetadata{}, g.Confidence)
	assert.Equal(t, RejectNoResults, res.Rejected)
}

func TestGatesValidate(t *testing.T) {
	assert.NoError(t, DefaultGates().Validate())

	g := DefaultGates()
	g.DurationBands = []DurationBand{{MinScore: 0.9, MaxDelta: 10}, {MinScore: 0.95, MaxDelta: 20}}
	assert.Error(t, g.Validate())
}
