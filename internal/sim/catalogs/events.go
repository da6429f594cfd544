package catalogs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"collegead.ai/internal/sim/expr"
)

const (
	TargetCoach  = "Coach"
	TargetSchool = "School"

	EffectTraitDelta   = "trait_delta"
	EffectFinance      = "finance"
	EffectSentiment    = "sentiment"
	EffectMediaHeat    = "media_heat"
	EffectContextApply = "context_apply"

	// WeeksPersistence makes context_apply reuse the sampled persistence.
	WeeksPersistence = "persistence"
)

type EventCatalog struct {
	// List keeps file order; the REG pass iterates it in this order.
	List   []EventTemplate
	ByID   map[string]*EventTemplate
	Digest string
}

type EventTemplate struct {
	ID               string       `json:"id"`
	Category         string       `json:"category,omitempty"`
	TriggerChance    float64      `json:"trigger_chance"`
	// Weight is the event's importance. It does not change the firing odds;
	// it is copied onto each firing so reports can rank by impact.
	Weight           float64      `json:"weight,omitempty"`
	Intensity        Range        `json:"intensity"`
	PersistenceWeeks Range        `json:"persistence_weeks"`
	Repeatable       *bool        `json:"repeatable,omitempty"`
	CooldownWeeks    float64      `json:"cooldown_weeks,omitempty"`
	Targets          Targets      `json:"targets,omitempty"`
	Eligibility      *Eligibility `json:"eligibility,omitempty"`
	Effects          []EffectSpec `json:"effects,omitempty"`
}

// IsRepeatable defaults to true when unset.
func (e *EventTemplate) IsRepeatable() bool {
	return e.Repeatable == nil || *e.Repeatable
}

// Targets defaults to Coach when unset.
func (e *EventTemplate) TargetsCoach() bool {
	return len(e.Targets) == 0 || e.Targets.Has(TargetCoach)
}

func (e *EventTemplate) TargetsSchool() bool {
	return e.Targets.Has(TargetSchool)
}

// Range is a closed interval. JSON accepts {"min":a,"max":b}, [a,b] or a
// bare number; bounds are swapped when reversed.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r *Range) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || string(b) == "null":
		*r = Range{}
	case b[0] == '[':
		var pair []float64
		if err := json.Unmarshal(b, &pair); err != nil {
			return err
		}
		if len(pair) != 2 {
			return fmt.Errorf("range: want 2 numbers, got %d", len(pair))
		}
		*r = Range{Min: pair[0], Max: pair[1]}
	case b[0] == '{':
		type plain Range
		var p plain
		if err := json.Unmarshal(b, &p); err != nil {
			return err
		}
		*r = Range(p)
	default:
		var f float64
		if err := json.Unmarshal(b, &f); err != nil {
			return fmt.Errorf("range: %w", err)
		}
		*r = Range{Min: f, Max: f}
	}
	if r.Max < r.Min {
		r.Min, r.Max = r.Max, r.Min
	}
	return nil
}

// Targets is a set of "Coach"/"School" given as a string or a list.
type Targets []string

func (t Targets) Has(who string) bool {
	for _, x := range t {
		if x == who {
			return true
		}
	}
	return false
}

func (t *Targets) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*t = Targets{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("targets: %w", err)
	}
	*t = many
	return nil
}

type Eligibility struct {
	// PrestigeMin passes when world prestige is unknown.
	PrestigeMin *float64           `json:"prestige_min,omitempty"`
	TraitMax    map[string]float64 `json:"trait_max,omitempty"`
	TraitMin    map[string]float64 `json:"trait_min,omitempty"`
	// AuthMax is folded into TraitMax["Authenticity"] at load.
	AuthMax *float64 `json:"auth_max,omitempty"`
}

// Expr is an arithmetic expression over intensity. JSON numbers are
// accepted and kept as their literal text.
type Expr string

func (e *Expr) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*e = Expr(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("expression: want string or number")
	}
	*e = Expr(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

// EffectSpec is one typed effect of an event. Which expression field is
// read depends on Type.
type EffectSpec struct {
	Type          string `json:"type"`
	Who           string `json:"who,omitempty"`
	Trait         string `json:"trait,omitempty"`
	Subtrait      string `json:"subtrait,omitempty"`
	Formula       Expr   `json:"formula,omitempty"`
	Delta         Expr   `json:"delta,omitempty"`
	DonorYieldMul Expr   `json:"donor_yield_mul,omitempty"`
	Context       string `json:"context,omitempty"`
	Weeks         Expr   `json:"weeks,omitempty"`

	prog    *expr.Program
	progErr error
}

// Source returns the expression driving the effect's magnitude.
func (e *EffectSpec) Source() Expr {
	switch e.Type {
	case EffectTraitDelta:
		return orDefault(e.Formula, "0")
	case EffectFinance:
		return orDefault(e.DonorYieldMul, "1")
	case EffectSentiment, EffectMediaHeat:
		return orDefault(e.Delta, "0")
	case EffectContextApply:
		return orDefault(e.Weeks, WeeksPersistence)
	}
	return ""
}

// Eval evaluates Source at intensity. Expressions are compiled once at load;
// an effect built by hand compiles on every call.
func (e *EffectSpec) Eval(intensity float64) (float64, error) {
	if e.prog != nil {
		return e.prog.Eval(intensity)
	}
	if e.progErr != nil {
		return 0, e.progErr
	}
	return expr.Eval(string(e.Source()), intensity)
}

func (e *EffectSpec) compile() {
	src := e.Source()
	if src == "" || src == WeeksPersistence {
		return
	}
	e.prog, e.progErr = expr.Compile(string(src))
}

func (e *EffectSpec) normalize() {
	if e.Who == "" {
		e.Who = TargetCoach
	}
	switch e.Type {
	case EffectTraitDelta:
		if e.Trait == "" {
			e.Trait = "Unknown"
		}
		if e.Subtrait == "" {
			e.Subtrait = "Default"
		}
	case EffectContextApply:
		if e.Context == "" {
			e.Context = "Context"
		}
	}
	e.compile()
}

func orDefault(e Expr, def Expr) Expr {
	if e == "" {
		return def
	}
	return e
}

// NewEventCatalog validates and indexes templates in the given order.
func NewEventCatalog(list []EventTemplate) (EventCatalog, error) {
	out := EventCatalog{List: list, ByID: make(map[string]*EventTemplate, len(list))}
	for i := range out.List {
		ev := &out.List[i]
		if ev.ID == "" {
			return EventCatalog{}, fmt.Errorf("event %d: missing id", i)
		}
		if _, dup := out.ByID[ev.ID]; dup {
			return EventCatalog{}, fmt.Errorf("event %s: duplicate id", ev.ID)
		}
		if math.IsNaN(ev.TriggerChance) || ev.TriggerChance < 0 || ev.TriggerChance > 1 {
			return EventCatalog{}, fmt.Errorf("event %s: trigger_chance %v out of [0,1]", ev.ID, ev.TriggerChance)
		}
		if ev.CooldownWeeks < 0 {
			return EventCatalog{}, fmt.Errorf("event %s: negative cooldown_weeks", ev.ID)
		}
		if el := ev.Eligibility; el != nil && el.AuthMax != nil {
			if el.TraitMax == nil {
				el.TraitMax = map[string]float64{}
			}
			if _, set := el.TraitMax["Authenticity"]; !set {
				el.TraitMax["Authenticity"] = *el.AuthMax
			}
			el.AuthMax = nil
		}
		for j := range ev.Effects {
			ev.Effects[j].normalize()
		}
		out.ByID[ev.ID] = ev
	}
	return out, nil
}

func loadEvents(path string, out *EventCatalog) error {
	raw, digest, err := readValidated(path)
	if err != nil {
		return err
	}
	var list []EventTemplate
	if err := json.Unmarshal(unwrap(raw, "events"), &list); err != nil {
		return fmt.Errorf("%s: %w", EventsFile, err)
	}
	cat, err := NewEventCatalog(list)
	if err != nil {
		return fmt.Errorf("%s: %w", EventsFile, err)
	}
	cat.Digest = digest
	*out = cat
	return nil
}
