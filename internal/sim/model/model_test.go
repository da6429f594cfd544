package model

import (
	"encoding/json"
	"reflect"
	"testing"
)

func sampleCoach() *Coach {
	k := 0.7
	c := &Coach{
		ID:             "AGG_001",
		Name:           "Coach One",
		Archetype:      "Aggressor",
		AnchorStrength: &k,
		Region:         "SEC",
		Traits:         map[string]float64{"Charisma": 61.5, "Integrity": 48},
		Subtraits: map[string]map[string]float64{
			"Charisma": {"Warmth": 60, "Presence": 63},
		},
		Cultivation:    map[string]float64{"Charisma": 1.5, "Integrity": -0.5},
		EraWaterline:   map[string]float64{"Charisma": 0.2, "Integrity": 0},
		ActiveContexts: []string{"HotSeat"},
		RegCooldowns:   map[string]float64{"EV_SCANDAL": 3},
		RegPersistence: []PersistenceEntry{
			{EventID: "CTX::HotSeat", RemainingWeeks: 2.5, Context: "HotSeat"},
			{EventID: "EV_SCANDAL", RemainingWeeks: 1, Intensity: 0.4},
		},
		RegSpent:     []string{"EV_ONCE"},
		PolarityTags: []string{"fiery"},
	}
	return c
}

func TestCoachDoc_RoundTripThroughJSON(t *testing.T) {
	c := sampleCoach()
	raw, err := json.Marshal(c.ToDoc())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var d Doc
	if err := json.Unmarshal(raw, &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got, err := CoachFromDoc(d)
	if err != nil {
		t.Fatalf("CoachFromDoc: %v", err)
	}
	if !reflect.DeepEqual(got, c) {
		t.Fatalf("round trip mismatch:\n got=%+v\nwant=%+v", got, c)
	}
}

func TestCoachFromDoc_Errors(t *testing.T) {
	cases := []Doc{
		{},
		{"id": 12},
		{"id": "a", "traits": []any{1.0}},
		{"id": "a", "traits": map[string]any{"Ego": "high"}},
		{"id": "a", "active_contexts": []any{3.0}},
		{"id": "a", "reg_persistence": map[string]any{}},
		{"id": "a", "subtraits": map[string]any{"Ego": 1.0}},
	}
	for i, d := range cases {
		if _, err := CoachFromDoc(d); err == nil {
			t.Fatalf("case %d: expected error for %+v", i, d)
		}
	}
}

func TestCoachFromDoc_FillsDBSVectors(t *testing.T) {
	c, err := CoachFromDoc(Doc{"id": "x", "traits": map[string]any{"Ego": 55.0}})
	if err != nil {
		t.Fatalf("CoachFromDoc: %v", err)
	}
	if _, ok := c.Cultivation["Ego"]; !ok {
		t.Fatalf("cultivation slot not initialised")
	}
	if _, ok := c.EraWaterline["Ego"]; !ok {
		t.Fatalf("era slot not initialised")
	}
}

func TestWorldDoc_RoundTrip(t *testing.T) {
	p := 61.0
	w := &World{Sentiment: 0.3, MediaHeat: 2, DonorYieldMul: 1.1, Prestige: &p}
	got, err := WorldFromDoc(w.ToDoc())
	if err != nil {
		t.Fatalf("WorldFromDoc: %v", err)
	}
	if !reflect.DeepEqual(got, w) {
		t.Fatalf("got %+v want %+v", got, w)
	}
	empty, err := WorldFromDoc(Doc{})
	if err != nil {
		t.Fatalf("empty: %v", err)
	}
	if empty.DonorYieldMul != 1 {
		t.Fatalf("DonorYieldMul default=%v", empty.DonorYieldMul)
	}
}

func TestCoach_Contexts(t *testing.T) {
	c := &Coach{}
	c.AddContext("A")
	c.AddContext("B")
	c.AddContext("A")
	c.AddContext("")
	if !reflect.DeepEqual(c.ActiveContexts, []string{"A", "B"}) {
		t.Fatalf("contexts=%v", c.ActiveContexts)
	}
	c.RemoveContext("A")
	if !reflect.DeepEqual(c.ActiveContexts, []string{"B"}) {
		t.Fatalf("after remove=%v", c.ActiveContexts)
	}
}

func TestCoach_Spent(t *testing.T) {
	c := &Coach{}
	c.MarkSpent("b")
	c.MarkSpent("a")
	c.MarkSpent("b")
	if !reflect.DeepEqual(c.RegSpent, []string{"a", "b"}) {
		t.Fatalf("spent=%v", c.RegSpent)
	}
	if !c.IsSpent("a") || c.IsSpent("c") {
		t.Fatalf("IsSpent wrong")
	}
}

