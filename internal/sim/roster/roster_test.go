package roster

import (
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadPrototypes_RepoFixture(t *testing.T) {
	protos, err := LoadPrototypes(filepath.Join("..", "..", "..", "configs", File))
	if err != nil {
		t.Fatalf("LoadPrototypes: %v", err)
	}
	if len(protos) != 3 {
		t.Fatalf("prototypes=%d", len(protos))
	}
	if protos[0].ID != "AGG" || protos[0].Size() != 20 {
		t.Fatalf("first prototype=%+v", protos[0])
	}
}

func TestLoadPrototypes_Rejects(t *testing.T) {
	for _, body := range []string{
		`{"coaches": [{"archetype": "A", "traits": {"Ego": 1}}]}`,
		`{"coaches": [{"id": "X", "traits": {"Ego": 1}}]}`,
		`{"coaches": [{"id": "X", "archetype": "A"}]}`,
		`{"coaches": [{"id": "X", "archetype": "A", "traits": {"Ego": 1}}, {"id": "X", "archetype": "A", "traits": {"Ego": 1}}]}`,
		`{"coaches": [{"id": "X", "archetype": "A", "count": -1, "traits": {"Ego": 1}}]}`,
	} {
		p := filepath.Join(t.TempDir(), File)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := LoadPrototypes(p); err == nil {
			t.Fatalf("expected error for %s", body)
		}
	}
}

func TestSeed(t *testing.T) {
	three := 3
	protos := []Prototype{
		{ID: "AGG", Name: "Agg", Archetype: "Aggressor", Count: &three, Traits: map[string]float64{"Ego": 98, "Charisma": 50}},
		{ID: "BLD", Archetype: "Builder", Traits: map[string]float64{"Ego": 40}},
	}
	weights := map[string]map[string]float64{"Charisma": {"Warmth": 0.5, "Presence": 0.5}}
	coaches := Seed(protos, DefaultOptions(weights), rand.New(rand.NewPCG(DefaultSeed, 0)))

	if len(coaches) != 3+DefaultCount {
		t.Fatalf("coaches=%d", len(coaches))
	}
	if coaches[0].ID != "AGG_001" || coaches[2].ID != "AGG_003" || coaches[3].ID != "BLD_001" {
		t.Fatalf("ids=%s %s %s", coaches[0].ID, coaches[2].ID, coaches[3].ID)
	}
	if coaches[0].Name != "Agg 001" {
		t.Fatalf("name=%q", coaches[0].Name)
	}
	for _, c := range coaches[:3] {
		ego := c.Traits["Ego"]
		if ego < 93 || ego > 100 {
			t.Fatalf("Ego jitter out of bounds: %v", ego)
		}
		ch := c.Traits["Charisma"]
		if math.Abs(ch-50) > TraitJitter {
			t.Fatalf("Charisma jitter=%v", ch)
		}
		subs := c.Subtraits["Charisma"]
		if len(subs) != 2 {
			t.Fatalf("subtraits=%v", subs)
		}
		for s, v := range subs {
			if math.Abs(v-ch) > SubtraitJitter+1e-9 {
				t.Fatalf("%s=%v too far from trait %v", s, v, ch)
			}
		}
		if _, ok := c.Cultivation["Ego"]; !ok {
			t.Fatalf("DBS vectors not initialised")
		}
	}
}

func TestSeed_Deterministic(t *testing.T) {
	protos, err := LoadPrototypes(filepath.Join("..", "..", "..", "configs", File))
	if err != nil {
		t.Fatalf("LoadPrototypes: %v", err)
	}
	a := Seed(protos, DefaultOptions(nil), rand.New(rand.NewPCG(DefaultSeed, 0)))
	b := Seed(protos, DefaultOptions(nil), rand.New(rand.NewPCG(DefaultSeed, 0)))
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same seed produced different rosters")
	}
}
