package reconcile

import "music-enricher/internal/shared"

// Outcome is the result of one provider identification.
type Outcome string

// Outcomes of IdentifyWith. Fresh and InFlight mean the provider was not
// consulted; Failed carries the provider error alongside.
const (
	OutcomeFresh     Outcome = "fresh"
	OutcomeInFlight  Outcome = "in-flight"
	OutcomeNotFound  Outcome = "not-found"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeUpdated   Outcome = "updated"
	OutcomeConflict  Outcome = "conflict"
	OutcomeFailed    Outcome = "failed"
)

// Ran reports whether the provider was actually consulted.
func (o Outcome) Ran() bool {
	return o != OutcomeFresh && o != OutcomeInFlight
}

// Changed reports whether the entity's provider data changed.
func (o Outcome) Changed() bool {
	return o == OutcomeUpdated
}

// ProviderResult is one provider's part of a Report.
type ProviderResult struct {
	Provider string  `json:"provider"`
	Outcome  Outcome `json:"outcome"`
	Error    string  `json:"error,omitempty"`
}

// Report collects the outcomes of identifying an entity with every provider
// that supports its kind.
type Report struct {
	EntityID int64            `json:"entity_id"`
	Kind     shared.Kind      `json:"kind"`
	Results  []ProviderResult `json:"results"`
}

// Outcome returns the outcome for provider, or "" if it did not run.
func (r Report) Outcome(provider string) Outcome {
	for _, res := range r.Results {
		if res.Provider == provider {
			return res.Outcome
		}
	}
	return ""
}

// Changed reports whether any provider changed the entity.
func (r Report) Changed() bool {
	for _, res := range r.Results {
		if res.Outcome.Changed() {
			return true
		}
	}
	return false
}
