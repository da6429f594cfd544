// Package reg rolls the random event catalog against a roster once per
// tick. Weekly trigger chances are converted to per-tick probabilities, so
// the same catalog behaves consistently at any tick length.
package reg

import (
	"collegead.ai/internal/sim/catalogs"
	"collegead.ai/internal/sim/model"
	"collegead.ai/internal/sim/timestep"
)

// Rand is the random source the engine draws from. *rand.Rand from
// math/rand/v2 satisfies it.
type Rand interface {
	Float64() float64
}

type Engine struct {
	events []catalogs.EventTemplate
	dt     float64
}

// New returns an engine over events (rolled in slice order) at dtWeeks per
// tick. The slice is read, never written.
func New(events []catalogs.EventTemplate, dtWeeks float64) *Engine {
	if dtWeeks < timestep.MinDtWeeks {
		dtWeeks = timestep.MinDtWeeks
	}
	return &Engine{events: events, dt: dtWeeks}
}

func (e *Engine) DtWeeks() float64 { return e.dt }

// Tick runs one REG pass: ledgers are aged for every coach first, then each
// event rolls for each eligible coach and, when it targets School, once more
// for the world. Records come back in firing order.
func (e *Engine) Tick(coaches []*model.Coach, world *model.World, rng Rand, week int) []Record {
	for _, c := range coaches {
		c.EnsureState()
		AdvanceLedger(c, e.dt)
	}

	var out []Record
	for i := range e.events {
		ev := &e.events[i]
		pTick := timestep.TickProbability(ev.TriggerChance, e.dt)
		if pTick <= 0 {
			continue
		}
		if ev.TargetsCoach() {
			for _, c := range coaches {
				if !e.canRoll(ev, c, world) {
					continue
				}
				if rng.Float64() > pTick {
					continue
				}
				out = append(out, e.fireCoach(ev, c, world, rng, week))
			}
		}
		if ev.TargetsSchool() && rng.Float64() <= pTick {
			out = append(out, e.fireWorld(ev, world, rng, week))
		}
	}
	return out
}

func (e *Engine) canRoll(ev *catalogs.EventTemplate, c *model.Coach, w *model.World) bool {
	if !Eligible(ev.Eligibility, c, w) {
		return false
	}
	if _, cooling := c.RegCooldowns[ev.ID]; cooling {
		return false
	}
	if !ev.IsRepeatable() && c.IsSpent(ev.ID) {
		return false
	}
	return true
}

func (e *Engine) fireCoach(ev *catalogs.EventTemplate, c *model.Coach, w *model.World, rng Rand, week int) Record {
	intensity := uniform(rng, ev.Intensity)
	persistence := 0.0
	if ev.PersistenceWeeks.Max > 0 {
		persistence = uniform(rng, ev.PersistenceWeeks)
	}
	rec := Record{
		Week:             week,
		EventID:          ev.ID,
		Category:         ev.Category,
		Weight:           ev.Weight,
		CoachID:          c.ID,
		Intensity:        intensity,
		PersistenceWeeks: persistence,
	}
	school := ev.TargetsSchool()
	for i := range ev.Effects {
		eff := &ev.Effects[i]
		switch eff.Type {
		case catalogs.EffectTraitDelta:
			if eff.Who == catalogs.TargetCoach {
				e.applyTraitDelta(&rec, i, eff, c, intensity)
			}
		case catalogs.EffectFinance, catalogs.EffectSentiment, catalogs.EffectMediaHeat:
			if eff.Who == catalogs.TargetSchool && school {
				e.applyWorld(&rec, i, eff, w, intensity)
			}
		case catalogs.EffectContextApply:
			if eff.Who == catalogs.TargetCoach {
				applyContext(&rec, i, eff, c, intensity, persistence)
			}
		}
	}

	if ev.CooldownWeeks > 0 {
		c.RegCooldowns[ev.ID] = ev.CooldownWeeks
	}
	if persistence > 0 {
		c.RegPersistence = append(c.RegPersistence, model.PersistenceEntry{
			EventID:        ev.ID,
			RemainingWeeks: persistence,
			Intensity:      intensity,
		})
	}
	if !ev.IsRepeatable() {
		c.MarkSpent(ev.ID)
	}
	return rec
}

// fireWorld applies only the school-side effects, whatever their who.
func (e *Engine) fireWorld(ev *catalogs.EventTemplate, w *model.World, rng Rand, week int) Record {
	intensity := uniform(rng, ev.Intensity)
	rec := Record{Week: week, EventID: ev.ID, Category: ev.Category, Weight: ev.Weight, Intensity: intensity}
	for i := range ev.Effects {
		eff := &ev.Effects[i]
		switch eff.Type {
		case catalogs.EffectFinance, catalogs.EffectSentiment, catalogs.EffectMediaHeat:
			e.applyWorld(&rec, i, eff, w, intensity)
		}
	}
	return rec
}

func uniform(rng Rand, r catalogs.Range) float64 {
	return r.Min + (r.Max-r.Min)*rng.Float64()
}
