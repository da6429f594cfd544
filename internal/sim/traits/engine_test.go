package traits

import (
	"errors"
	"math"
	"math/rand/v2"
	"reflect"
	"testing"

	"collegead.ai/internal/sim/catalogs"
	"collegead.ai/internal/sim/gravity"
	"collegead.ai/internal/sim/model"
	"collegead.ai/internal/sim/timestep"
	"collegead.ai/internal/sim/tuning"
)

func fixtureCatalogs() *catalogs.Catalogs {
	return &catalogs.Catalogs{
		Gravity: catalogs.GravityCatalog{Matrix: gravity.Matrix{
			"Charisma": {"Ego": 0.2},
			"Ego":      {"Charisma": 0.1, "Integrity": -0.3},
		}},
		Anchors: catalogs.AnchorCatalog{Table: catalogs.AnchorTable{
			"Aggressor": {"Charisma": 60, "Ego": 70, "Integrity": 50},
		}},
		Contexts: catalogs.ContextCatalog{ByID: map[string]gravity.Context{
			"HotSeat": {GravityOverrides: []gravity.Override{{Source: "Charisma", Target: "Integrity", Delta: 0.5}}},
		}},
		Components: catalogs.ComponentCatalog{Weights: map[string]map[string]float64{
			"Charisma": {"Warmth": 0.5, "Presence": 0.5},
		}},
	}
}

func bareCatalogs(anchors map[string]float64) *catalogs.Catalogs {
	return &catalogs.Catalogs{
		Gravity: catalogs.GravityCatalog{Matrix: gravity.Matrix{}},
		Anchors: catalogs.AnchorCatalog{Table: catalogs.AnchorTable{"A": anchors}},
	}
}

func coach(traits map[string]float64) *model.Coach {
	c := &model.Coach{ID: "c1", Archetype: "Aggressor", Traits: traits}
	c.EnsureState()
	return c
}

func TestAdvance_RangeAndGuardrailInvariants(t *testing.T) {
	for _, tickDays := range []float64{1, 7, 14, 28} {
		tu := tuning.Defaults()
		tu.Core.TickDays = tickDays
		dcfg := tuning.DefaultDBS()
		tu.DBS = &dcfg
		eng := New(tu, fixtureCatalogs())
		lim := tu.Core.MaxWeeklyDelta * tu.DtWeeks()

		rng := rand.New(rand.NewPCG(1, uint64(tickDays)))
		for n := 0; n < 40; n++ {
			c := coach(map[string]float64{
				"Charisma":  rng.Float64()*140 - 20,
				"Ego":       rng.Float64() * 100,
				"Integrity": rng.Float64() * 100,
			})
			c.Subtraits["Charisma"] = map[string]float64{"Warmth": rng.Float64()*300 - 100}
			c.Cultivation["Ego"] = 30
			if n%2 == 0 {
				c.ActiveContexts = []string{"HotSeat"}
			}
			for week := 0; week < 20; week++ {
				res, err := eng.Advance(c)
				if err != nil {
					t.Fatalf("Advance: %v", err)
				}
				for tr, v := range res.Post {
					if v < 0 || v > 100 {
						t.Fatalf("tick_days=%v %s=%v out of range", tickDays, tr, v)
					}
					if d := math.Abs(res.Delta[tr]); d > lim+1e-9 {
						t.Fatalf("tick_days=%v %s moved %v > %v", tickDays, tr, d, lim)
					}
					if res.Pre[tr] < 0 || res.Pre[tr] > 100 {
						t.Fatalf("pre %s=%v out of range", tr, res.Pre[tr])
					}
				}
			}
		}
	}
}

func TestAdvance_AnchorOnlyFallback(t *testing.T) {
	tu := tuning.Defaults()
	tu.Core.MaxWeeklyDelta = 100
	tu.DBS = nil
	eng := New(tu, bareCatalogs(map[string]float64{"Ego": 60}))

	c := &model.Coach{ID: "x", Archetype: "A", Traits: map[string]float64{"Ego": 80}}
	c.EnsureState()
	c.Cultivation["Ego"] = 5
	res, err := eng.Advance(c)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	want := 60 + 20*math.Exp(-0.10*0.5)
	if math.Abs(res.Post["Ego"]-want) > 1e-9 {
		t.Fatalf("anchor-only post=%v want %v", res.Post["Ego"], want)
	}
}

func TestAdvance_DynamicBaselinePull(t *testing.T) {
	tu := tuning.Defaults()
	tu.Core.MaxWeeklyDelta = 100
	d := tuning.DefaultDBS()
	tu.DBS = &d
	eng := New(tu, bareCatalogs(map[string]float64{"Ego": 60}))

	k := 0.3
	c := &model.Coach{ID: "x", Archetype: "A", AnchorStrength: &k, Traits: map[string]float64{"Ego": 80}}
	c.EnsureState()
	c.Cultivation["Ego"] = 2
	c.EraWaterline["Ego"] = 1
	res, err := eng.Advance(c)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	r := d.DecayDefault + 0.10*k
	want := 63 + 17*math.Exp(-r)
	if math.Abs(res.Post["Ego"]-want) > 1e-9 {
		t.Fatalf("post=%v want %v", res.Post["Ego"], want)
	}
}

func TestAdvance_GuardrailClampsLargeMoves(t *testing.T) {
	tu := tuning.Defaults()
	tu.Core.MaxWeeklyDelta = 0.5
	tu.Core.AnchorStrengthDefault = 50
	eng := New(tu, bareCatalogs(map[string]float64{"Ego": 10}))
	c := &model.Coach{ID: "x", Archetype: "A", Traits: map[string]float64{"Ego": 80}}
	res, err := eng.Advance(c)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if res.Post["Ego"] != 79.5 {
		t.Fatalf("post=%v want 79.5", res.Post["Ego"])
	}
}

func TestAdvance_Blend(t *testing.T) {
	tu := tuning.Defaults()
	tu.Core.MaxWeeklyDelta = 100
	cats := bareCatalogs(map[string]float64{})
	cats.Components.Weights = map[string]map[string]float64{"Charisma": {"Warmth": 0.5, "Presence": 0.5}}
	eng := New(tu, cats)

	c := &model.Coach{ID: "x", Archetype: "A", Traits: map[string]float64{"Charisma": 60}}
	c.EnsureState()
	c.Subtraits["Charisma"] = map[string]float64{"Warmth": 80}
	res, err := eng.Advance(c)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	// composite = 0.5*80 + 0.5*60 (missing Presence falls back to the trait)
	want := 0.65*60 + 0.35*70
	if math.Abs(res.Pre["Charisma"]-want) > 1e-9 || math.Abs(res.Post["Charisma"]-want) > 1e-9 {
		t.Fatalf("pre=%v post=%v want %v", res.Pre["Charisma"], res.Post["Charisma"], want)
	}
}

func TestAdvance_ContextChangesGravity(t *testing.T) {
	tu := tuning.Defaults()
	run := func(active []string) float64 {
		c := coach(map[string]float64{"Charisma": 90, "Ego": 70, "Integrity": 50})
		c.ActiveContexts = active
		res, err := New(tu, fixtureCatalogs()).Advance(c)
		if err != nil {
			t.Fatalf("Advance: %v", err)
		}
		return res.Post["Integrity"]
	}
	base, hot := run(nil), run([]string{"HotSeat"})
	if !(hot > base) {
		t.Fatalf("HotSeat should pull Integrity up: base=%v hot=%v", base, hot)
	}
	if w := fixtureCatalogs().Gravity.Matrix.Weight("Charisma", "Integrity"); w != 0 {
		t.Fatalf("base matrix mutated")
	}
}

func TestAdvance_UnknownArchetype(t *testing.T) {
	eng := New(tuning.Defaults(), fixtureCatalogs())
	c := &model.Coach{ID: "x", Archetype: "Ghost", Traits: map[string]float64{"Ego": 50}}
	if _, err := eng.Advance(c); !errors.Is(err, ErrUnknownArchetype) {
		t.Fatalf("err=%v want ErrUnknownArchetype", err)
	}
}

func TestAdvance_Order(t *testing.T) {
	tu := tuning.Defaults()
	tu.Core.TraitOrder = []string{"Integrity", "Missing", "Charisma"}
	c := coach(map[string]float64{"Charisma": 50, "Ego": 50, "Integrity": 50, "Adaptability": 50})
	res, err := New(tu, fixtureCatalogs()).Advance(c)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	want := []string{"Integrity", "Charisma", "Adaptability", "Ego"}
	if !reflect.DeepEqual(res.Order, want) {
		t.Fatalf("order=%v want %v", res.Order, want)
	}
}

func TestSoftcap(t *testing.T) {
	if Softcap(85) != 85 || Softcap(90) != 90 {
		t.Fatalf("values at or below 90 must pass through")
	}
	got := Softcap(90.3)
	if !(got > 90 && got < 90.3) {
		t.Fatalf("Softcap(90.3)=%v", got)
	}
	for x := 90.5; x <= 100; x += 0.5 {
		if v := Softcap(x); v <= 90 || v >= x {
			t.Fatalf("Softcap(%v)=%v not compressed into (90, x)", x, v)
		}
	}
	if Softcap(100) >= 91 {
		t.Fatalf("Softcap(100)=%v", Softcap(100))
	}
}

func TestAdvance_SoftcapInsideGuardrail(t *testing.T) {
	tu := tuning.Defaults()
	lim := tu.Core.MaxWeeklyDelta * tu.DtWeeks()
	r := 0.10 * tu.Core.AnchorStrengthDefault

	// Crossing 90 from below: the softcap is the last transform.
	eng := New(tu, bareCatalogs(map[string]float64{"Ego": 95}))
	c := &model.Coach{ID: "x", Archetype: "A", Traits: map[string]float64{"Ego": 90.2}}
	res, err := eng.Advance(c)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	pulled := timestep.PullExact(90.2, 95, r, tu.DtWeeks())
	if want := Softcap(pulled); math.Abs(res.Post["Ego"]-want) > 1e-9 || !(want < pulled) {
		t.Fatalf("post=%v want softcapped %v (pulled %v)", res.Post["Ego"], want, pulled)
	}

	// Deep above 90: the softcap target lies outside the window, so the
	// trait descends by exactly lim instead of jumping to Softcap(x).
	eng = New(tu, bareCatalogs(map[string]float64{"Ego": 98}))
	c = &model.Coach{ID: "x", Archetype: "A", Traits: map[string]float64{"Ego": 98.7}}
	res, err = eng.Advance(c)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if want := 98.7 - lim; math.Abs(res.Post["Ego"]-want) > 1e-9 {
		t.Fatalf("post=%v want %v", res.Post["Ego"], want)
	}
	if math.Abs(res.Delta["Ego"]) > lim+1e-9 {
		t.Fatalf("delta=%v exceeds guardrail %v", res.Delta["Ego"], lim)
	}
}
