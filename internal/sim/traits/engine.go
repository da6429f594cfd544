// Package traits advances a coach's trait vector one tick: subtrait blend,
// context-aware gravity, exact pull toward the dynamic baseline, the
// per-week guardrail, then clamp and softcap.
package traits

import (
	"errors"
	"fmt"
	"math"

	"collegead.ai/internal/sim/catalogs"
	"collegead.ai/internal/sim/dbs"
	"collegead.ai/internal/sim/gravity"
	"collegead.ai/internal/sim/model"
	"collegead.ai/internal/sim/timestep"
	"collegead.ai/internal/sim/tuning"
)

// ErrUnknownArchetype is returned for a coach whose archetype has no anchors.
var ErrUnknownArchetype = errors.New("unknown archetype")

const (
	// anchorPullPerStrength converts anchor strength into a weekly pull rate.
	anchorPullPerStrength = 0.10

	SoftcapThreshold = 90.0
	softcapScale     = 4.0

	midpoint  = 50.0
	halfRange = 50.0
)

type Engine struct {
	core  tuning.Core
	dbs   *tuning.DBS
	dt    float64
	alpha float64

	gravity  gravity.Matrix
	contexts map[string]gravity.Context
	anchors  catalogs.AnchorTable
	weights  map[string]map[string]float64
}

// Result is the outcome of one Advance. Order lists traits in the order
// they were processed.
type Result struct {
	CoachID        string
	Order          []string
	Pre            map[string]float64
	Post           map[string]float64
	Delta          map[string]float64
	ActiveContexts []string
}

// New builds an engine over shared read-only catalogs. A nil t.DBS selects
// anchor-only pulls.
func New(t tuning.Tuning, c *catalogs.Catalogs) *Engine {
	return &Engine{
		core:     t.Core,
		dbs:      t.DBS,
		dt:       t.DtWeeks(),
		alpha:    math.Max(0, math.Min(1, t.Core.BlendAlpha)),
		gravity:  c.Gravity.Matrix,
		contexts: c.Contexts.ByID,
		anchors:  c.Anchors.Table,
		weights:  c.Components.Weights,
	}
}

func (e *Engine) DtWeeks() float64 { return e.dt }

// Advance mutates c.Traits in place and reports the change.
func (e *Engine) Advance(c *model.Coach) (Result, error) {
	anchors, ok := e.anchors.Lookup(c.Archetype)
	if !ok {
		return Result{}, fmt.Errorf("coach %s: %w %q", c.ID, ErrUnknownArchetype, c.Archetype)
	}
	c.EnsureState()
	order := e.order(c)
	x := c.Traits

	// Blend, then clamp so pre is always in range.
	for _, tr := range order {
		v := x[tr]
		if w := e.weights[tr]; len(w) > 0 {
			v = (1-e.alpha)*v + e.alpha*composite(w, c.Subtraits[tr], v)
		}
		x[tr] = e.clamp(v)
	}

	pre := make(map[string]float64, len(order))
	for _, tr := range order {
		pre[tr] = x[tr]
	}

	g := gravity.Overlay(e.gravity, c.ActiveContexts, e.contexts)
	scale := e.core.GravityScale * e.dt
	for _, i := range order {
		acc := 0.0
		for _, j := range order {
			if w := g.Weight(j, i); w != 0 {
				acc += w * (pre[j] - midpoint) / halfRange
			}
		}
		x[i] += acc * scale
	}

	k := e.core.AnchorStrengthDefault
	if c.AnchorStrength != nil {
		k = *c.AnchorStrength
	}
	for _, tr := range order {
		a, ok := anchors[tr]
		if !ok {
			continue
		}
		b, r := a, anchorPullPerStrength*k
		if e.dbs != nil {
			b = dbs.Baseline(a, c.Cultivation[tr], c.EraWaterline[tr])
			r += e.dbs.DecayDefault
		}
		x[tr] = timestep.PullExact(x[tr], b, r, e.dt)
	}

	lim := e.core.MaxWeeklyDelta * e.dt
	post := make(map[string]float64, len(order))
	delta := make(map[string]float64, len(order))
	for _, tr := range order {
		lo, hi := pre[tr]-lim, pre[tr]+lim
		v := clampTo(x[tr], lo, hi)
		v = Softcap(e.clamp(v))
		// Softcap only lowers values. The guardrail window wins, so a trait
		// already high above 90 sheds at most lim per tick.
		v = e.clamp(clampTo(v, lo, hi))
		x[tr] = v
		post[tr] = v
		delta[tr] = v - pre[tr]
	}

	return Result{
		CoachID:        c.ID,
		Order:          order,
		Pre:            pre,
		Post:           post,
		Delta:          delta,
		ActiveContexts: append([]string(nil), c.ActiveContexts...),
	}, nil
}

// order is the configured trait order restricted to c's traits, followed by
// any remaining traits sorted by name.
func (e *Engine) order(c *model.Coach) []string {
	out := make([]string, 0, len(c.Traits))
	seen := make(map[string]bool, len(c.Traits))
	for _, tr := range e.core.TraitOrder {
		if _, ok := c.Traits[tr]; ok && !seen[tr] {
			out = append(out, tr)
			seen[tr] = true
		}
	}
	for _, tr := range c.TraitNames() {
		if !seen[tr] {
			out = append(out, tr)
		}
	}
	return out
}

// composite is the weighted subtrait mean; missing subtraits count as the
// trait's current value.
func composite(weights, subs map[string]float64, current float64) float64 {
	sum := 0.0
	for _, name := range model.SortedKeys(weights) {
		v, ok := subs[name]
		if !ok {
			v = current
		}
		sum += weights[name] * v
	}
	return sum
}

func (e *Engine) clamp(v float64) float64 {
	return clampTo(v, e.core.ClampMin, e.core.ClampMax)
}

func clampTo(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Softcap compresses values above 90: 90 + (x-90)·σ(-(x-90)/4).
func Softcap(x float64) float64 {
	if x <= SoftcapThreshold {
		return x
	}
	excess := x - SoftcapThreshold
	return SoftcapThreshold + excess/(1+math.Exp(excess/softcapScale))
}
