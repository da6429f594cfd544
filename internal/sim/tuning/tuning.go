package tuning

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"collegead.ai/internal/sim/timestep"
)

type Tuning struct {
	Core Core `yaml:"core"`
	// DBS is nil when the file has no dbs section; the trait engine then
	// pulls toward the archetype anchor only.
	DBS   *DBS  `yaml:"dbs"`
	Guard Guard `yaml:"guard"`
	Batch Batch `yaml:"batch"`
}

type Core struct {
	DaysPerWeek           float64  `yaml:"days_per_week"`
	TickDays              float64  `yaml:"tick_days"`
	GravityScale          float64  `yaml:"gravity_scale"`
	AnchorStrengthDefault float64  `yaml:"anchor_strength_default"`
	MaxWeeklyDelta        float64  `yaml:"max_weekly_delta"`
	ClampMin              float64  `yaml:"clamp_min"`
	ClampMax              float64  `yaml:"clamp_max"`
	BlendAlpha            float64  `yaml:"blend_alpha"`
	TraitOrder            []string `yaml:"trait_order"`
}

type DBS struct {
	DecayDefault float64     `yaml:"decay_default"`
	Cultivation  Cultivation `yaml:"cultivation"`
	Era          Era         `yaml:"era"`
}

type Cultivation struct {
	Alpha           float64 `yaml:"alpha"`
	BackslideLambda float64 `yaml:"backslide_lambda"`
	CapAbs          float64 `yaml:"cap_abs"`
}

type Era struct {
	Mu                float64            `yaml:"mu"`
	MuByTrait         map[string]float64 `yaml:"mu_by_trait"`
	CapAbs            float64            `yaml:"cap_abs"`
	RegionMultipliers map[string]float64 `yaml:"region_multipliers"`
}

// MuFor returns the per-week drift for trait.
func (e Era) MuFor(trait string) float64 {
	if v, ok := e.MuByTrait[trait]; ok {
		return v
	}
	return e.Mu
}

// RegionMultiplier returns the multiplier for region, 1 when unlisted.
func (e Era) RegionMultiplier(region string) float64 {
	if v, ok := e.RegionMultipliers[region]; ok {
		return v
	}
	return 1
}

type Guard struct {
	Strict            bool    `yaml:"strict"`
	DeltaLimit        float64 `yaml:"delta_limit"`
	MaxActiveContexts int     `yaml:"max_active_contexts"`
	DonorYieldMin     float64 `yaml:"donor_yield_min"`
	DonorYieldMax     float64 `yaml:"donor_yield_max"`
}

type Batch struct {
	MaxWorkers int `yaml:"max_workers"`
}

func Defaults() Tuning {
	return Tuning{
		Core: Core{
			DaysPerWeek:           timestep.DefaultDaysPerWeek,
			TickDays:              timestep.DefaultTickDays,
			GravityScale:          0.05,
			AnchorStrengthDefault: 0.5,
			MaxWeeklyDelta:        1.0,
			ClampMin:              0,
			ClampMax:              100,
			BlendAlpha:            0.35,
		},
		Guard: Guard{
			DeltaLimit:        6.0,
			MaxActiveContexts: 4,
			DonorYieldMin:     0,
			DonorYieldMax:     5,
		},
		Batch: Batch{MaxWorkers: 8},
	}
}

// DefaultDBS is used when a dbs section is present but leaves fields out.
func DefaultDBS() DBS {
	return DBS{
		DecayDefault: 0.02,
		Cultivation:  Cultivation{Alpha: 0.05, BackslideLambda: 0.02, CapAbs: 10},
		Era:          Era{Mu: 0, CapAbs: 5},
	}
}

// UnmarshalYAML fills unset fields from DefaultDBS.
func (d *DBS) UnmarshalYAML(n *yaml.Node) error {
	type plain DBS
	v := plain(DefaultDBS())
	if err := n.Decode(&v); err != nil {
		return err
	}
	*d = DBS(v)
	return nil
}

// Load reads path over Defaults and validates the result.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	c := t.Core
	for name, v := range map[string]float64{
		"core.days_per_week":           c.DaysPerWeek,
		"core.tick_days":               c.TickDays,
		"core.gravity_scale":           c.GravityScale,
		"core.anchor_strength_default": c.AnchorStrengthDefault,
		"core.max_weekly_delta":        c.MaxWeeklyDelta,
		"core.clamp_min":               c.ClampMin,
		"core.clamp_max":               c.ClampMax,
		"core.blend_alpha":             c.BlendAlpha,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s: not finite", name)
		}
	}
	if c.ClampMin < 0 || c.ClampMax > 100 {
		return fmt.Errorf("core.clamp_min %v / clamp_max %v must lie within [0,100]", c.ClampMin, c.ClampMax)
	}
	if c.ClampMin >= c.ClampMax {
		return fmt.Errorf("core.clamp_min %v must be below clamp_max %v", c.ClampMin, c.ClampMax)
	}
	if c.MaxWeeklyDelta < 0 {
		return fmt.Errorf("core.max_weekly_delta must be >= 0")
	}
	if c.BlendAlpha < 0 || c.BlendAlpha > 1 {
		return fmt.Errorf("core.blend_alpha %v out of [0,1]", c.BlendAlpha)
	}
	seen := map[string]bool{}
	for _, tr := range c.TraitOrder {
		if tr == "" || seen[tr] {
			return fmt.Errorf("core.trait_order: empty or duplicate %q", tr)
		}
		seen[tr] = true
	}
	if d := t.DBS; d != nil {
		if d.DecayDefault < 0 || d.Cultivation.Alpha < 0 || d.Cultivation.BackslideLambda < 0 {
			return fmt.Errorf("dbs: rates must be >= 0")
		}
		if d.Cultivation.CapAbs < 0 || d.Era.CapAbs < 0 {
			return fmt.Errorf("dbs: cap_abs must be >= 0")
		}
	}
	if t.Guard.DonorYieldMin > t.Guard.DonorYieldMax {
		return fmt.Errorf("guard: donor_yield_min above donor_yield_max")
	}
	if t.Batch.MaxWorkers < 0 {
		return fmt.Errorf("batch.max_workers must be >= 0")
	}
	return nil
}

// DtWeeks is the tick length in weeks.
func (t Tuning) DtWeeks() float64 {
	return timestep.DtWeeks(t.Core.DaysPerWeek, t.Core.TickDays)
}
