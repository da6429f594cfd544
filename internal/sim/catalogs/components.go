package catalogs

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// WeightSumTolerance is how far a trait's subtrait weights may drift from 1.
const WeightSumTolerance = 1e-6

// WeightSumError reports a trait whose subtrait weights do not sum to 1.
type WeightSumError struct {
	Trait string
	Sum   float64
}

func (e *WeightSumError) Error() string {
	return fmt.Sprintf("trait %s: subtrait weights sum to %.6f, want 1.0", e.Trait, e.Sum)
}

type ComponentCatalog struct {
	// Weights maps trait -> subtrait -> blend weight.
	Weights map[string]map[string]float64
	Digest  string
}

// CheckWeights verifies every trait's weights sum to 1 within tolerance.
func CheckWeights(weights map[string]map[string]float64) error {
	traits := make([]string, 0, len(weights))
	for t := range weights {
		traits = append(traits, t)
	}
	sort.Strings(traits)
	for _, t := range traits {
		sum := 0.0
		for _, w := range weights[t] {
			sum += w
		}
		if math.Abs(sum-1) > WeightSumTolerance {
			return &WeightSumError{Trait: t, Sum: sum}
		}
	}
	return nil
}

func loadComponents(path string, out *ComponentCatalog) error {
	raw, digest, err := readValidated(path)
	if err != nil {
		return err
	}
	out.Digest = digest
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return fmt.Errorf("%s: %w", ComponentsFile, err)
	}
	out.Weights = make(map[string]map[string]float64, len(top))
	for trait, body := range top {
		if trait == "meta" {
			continue
		}
		var spec struct {
			Weights map[string]float64 `json:"weights"`
		}
		if err := json.Unmarshal(body, &spec); err != nil {
			return fmt.Errorf("%s: trait %s: %w", ComponentsFile, trait, err)
		}
		out.Weights[trait] = spec.Weights
	}
	if err := CheckWeights(out.Weights); err != nil {
		return fmt.Errorf("%s: %w", ComponentsFile, err)
	}
	return nil
}
