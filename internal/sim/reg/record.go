package reg

// Record is one firing of an event. CoachID is empty for world-only fires.
type Record struct {
	Week             int     `json:"week"`
	EventID          string  `json:"event_id"`
	Category         string  `json:"category,omitempty"`
	Weight           float64 `json:"weight,omitempty"`
	CoachID          string  `json:"coach_id,omitempty"`
	Intensity        float64 `json:"intensity"`
	PersistenceWeeks float64 `json:"persistence_weeks"`

	TraitDeltas     []TraitDelta     `json:"trait_deltas,omitempty"`
	DonorYieldMuls  []float64        `json:"donor_yield_mul,omitempty"`
	Sentiment       float64          `json:"sentiment,omitempty"`
	MediaHeat       float64          `json:"media_heat,omitempty"`
	ContextsApplied []ContextApplied `json:"contexts_applied,omitempty"`
	Skipped         []SkippedEffect  `json:"skipped,omitempty"`
}

type TraitDelta struct {
	Trait    string  `json:"trait"`
	Subtrait string  `json:"subtrait"`
	Delta    float64 `json:"delta"`
}

type ContextApplied struct {
	Context string  `json:"context"`
	Weeks   float64 `json:"weeks"`
}

// SkippedEffect is an effect dropped because its expression failed.
type SkippedEffect struct {
	Index int    `json:"index"`
	Type  string `json:"type"`
	Error string `json:"error"`
}

// OutcomeSignals sums trait_delta deltas per parent trait for one coach.
func OutcomeSignals(records []Record, coachID string) map[string]float64 {
	out := map[string]float64{}
	for i := range records {
		if records[i].CoachID != coachID {
			continue
		}
		for _, d := range records[i].TraitDeltas {
			out[d.Trait] += d.Delta
		}
	}
	return out
}
