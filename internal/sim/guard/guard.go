// Package guard checks runtime invariants after each tick. A violation means
// a configuration or formula bug; callers either abort (strict) or log it.
package guard

import (
	"errors"
	"fmt"
	"math"

	"collegead.ai/internal/sim/model"
	"collegead.ai/internal/sim/tuning"
)

const (
	KindRange        = "range"
	KindDeltaLimit   = "delta_limit"
	KindGuardrail    = "guardrail"
	KindContextLimit = "context_limit"
	KindDonorYield   = "donor_yield"
)

// tolerance absorbs float rounding on limit comparisons.
const tolerance = 1e-9

// Traits must stay in [TraitMin, TraitMax] whatever the tuning clamp says.
const (
	TraitMin = 0.0
	TraitMax = 100.0
)

type Violation struct {
	Kind    string
	CoachID string
	Trait   string
	Value   float64
	Limit   float64
}

func (v *Violation) Error() string {
	who := v.CoachID
	if who == "" {
		who = "world"
	}
	if v.Trait != "" {
		return fmt.Sprintf("%s: %s %s=%v exceeds %v", v.Kind, who, v.Trait, v.Value, v.Limit)
	}
	return fmt.Sprintf("%s: %s value %v exceeds %v", v.Kind, who, v.Value, v.Limit)
}

// AssertRanges checks every trait lies in [TraitMin, TraitMax].
func AssertRanges(c *model.Coach) error {
	const lo, hi = TraitMin, TraitMax
	for _, tr := range c.TraitNames() {
		v := c.Traits[tr]
		if math.IsNaN(v) || v < lo-tolerance || v > hi+tolerance {
			limit := hi
			if v < lo {
				limit = lo
			}
			return &Violation{Kind: KindRange, CoachID: c.ID, Trait: tr, Value: v, Limit: limit}
		}
	}
	return nil
}

// AssertDeltaLimit checks |delta| <= limit for every trait.
func AssertDeltaLimit(kind, coachID string, delta map[string]float64, limit float64) error {
	for _, tr := range model.SortedKeys(delta) {
		if d := math.Abs(delta[tr]); d > limit+tolerance {
			return &Violation{Kind: kind, CoachID: coachID, Trait: tr, Value: d, Limit: limit}
		}
	}
	return nil
}

func AssertContextLimit(c *model.Coach, limit int) error {
	if n := len(c.ActiveContexts); limit > 0 && n > limit {
		return &Violation{Kind: KindContextLimit, CoachID: c.ID, Value: float64(n), Limit: float64(limit)}
	}
	return nil
}

func AssertDonorYield(w *model.World, lo, hi float64) error {
	v := w.DonorYieldMul
	if math.IsNaN(v) || v < lo || v > hi {
		limit := hi
		if v < lo {
			limit = lo
		}
		return &Violation{Kind: KindDonorYield, Value: v, Limit: limit}
	}
	return nil
}

// Checker bundles the configured limits.
type Checker struct {
	cfg tuning.Guard
	// guardrail is max_weekly_delta*dt; deltaLimit is delta_limit*dt.
	guardrail  float64
	deltaLimit float64
}

func NewChecker(t tuning.Tuning) *Checker {
	dt := t.DtWeeks()
	return &Checker{
		cfg:        t.Guard,
		guardrail:  t.Core.MaxWeeklyDelta * dt,
		deltaLimit: t.Guard.DeltaLimit * dt,
	}
}

func (k *Checker) Strict() bool { return k.cfg.Strict }

// CheckCoach runs every per-coach assertion and joins the failures.
func (k *Checker) CheckCoach(c *model.Coach, delta map[string]float64) error {
	var errs []error
	if err := AssertRanges(c); err != nil {
		errs = append(errs, err)
	}
	if err := AssertDeltaLimit(KindGuardrail, c.ID, delta, k.guardrail); err != nil {
		errs = append(errs, err)
	}
	if k.cfg.DeltaLimit > 0 {
		if err := AssertDeltaLimit(KindDeltaLimit, c.ID, delta, k.deltaLimit); err != nil {
			errs = append(errs, err)
		}
	}
	if err := AssertContextLimit(c, k.cfg.MaxActiveContexts); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (k *Checker) CheckWorld(w *model.World) error {
	return AssertDonorYield(w, k.cfg.DonorYieldMin, k.cfg.DonorYieldMax)
}
