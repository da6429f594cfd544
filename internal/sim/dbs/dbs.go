// Package dbs holds the dynamic baseline accumulators: cultivation, a
// bounded leaky integrator of coaching and outcome signals, and the era
// waterline, a slow clamped drift. Anchor + cultivation + era is the target
// the trait engine pulls toward.
package dbs

import (
	"math"

	"collegead.ai/internal/sim/model"
	"collegead.ai/internal/sim/tuning"
)

// Baseline is the moving target for one trait.
func Baseline(anchor, cultivation, era float64) float64 {
	return anchor + cultivation + era
}

// StepCultivation advances cultivation one step:
// clamp(c + alpha*(coaching+outcome) - lambda*c, ±capAbs).
func StepCultivation(cultivation, coaching, outcome, alpha, backslideLambda, capAbs float64) float64 {
	d := alpha*(coaching+outcome) - backslideLambda*cultivation
	return clampAbs(cultivation+d, capAbs)
}

// StepEraWaterline advances the waterline one step: clamp(e + mu*region, ±capAbs).
func StepEraWaterline(era, mu, regionMult, capAbs float64) float64 {
	return clampAbs(era+mu*regionMult, capAbs)
}

func clampAbs(x, capAbs float64) float64 {
	capAbs = math.Abs(capAbs)
	return math.Max(-capAbs, math.Min(capAbs, x))
}

// Signals are the per-trait inputs to cultivation for one tick.
type Signals struct {
	Coaching map[string]float64
	Outcome  map[string]float64
}

type Params struct {
	cfg tuning.DBS
}

func NewParams(cfg tuning.DBS) Params { return Params{cfg: cfg} }

// Advance steps both accumulators for every trait of c. The configured
// rates are per week and are scaled by dt; the backslide factor is capped
// at 1 so a long tick cannot flip the sign of cultivation.
func (p Params) Advance(c *model.Coach, s Signals, dt float64) {
	c.EnsureState()
	alpha := p.cfg.Cultivation.Alpha * dt
	lambda := math.Min(1, p.cfg.Cultivation.BackslideLambda*dt)
	region := p.cfg.Era.RegionMultiplier(c.Region)
	for _, trait := range c.TraitNames() {
		c.Cultivation[trait] = StepCultivation(
			c.Cultivation[trait],
			s.Coaching[trait],
			s.Outcome[trait],
			alpha, lambda, p.cfg.Cultivation.CapAbs,
		)
		c.EraWaterline[trait] = StepEraWaterline(
			c.EraWaterline[trait],
			p.cfg.Era.MuFor(trait)*dt,
			region,
			p.cfg.Era.CapAbs,
		)
	}
}
