package reg

import (
	"collegead.ai/internal/sim/catalogs"
	"collegead.ai/internal/sim/model"
)

// bleedFraction of a subtrait delta is mirrored into the parent trait.
const bleedFraction = 0.1

func skip(rec *Record, i int, eff *catalogs.EffectSpec, err error) {
	rec.Skipped = append(rec.Skipped, SkippedEffect{Index: i, Type: eff.Type, Error: err.Error()})
}

// applyTraitDelta adds expr*dt into the subtrait. A subtrait that does not
// exist yet starts from its parent trait's value.
func (e *Engine) applyTraitDelta(rec *Record, i int, eff *catalogs.EffectSpec, c *model.Coach, intensity float64) {
	raw, err := eff.Eval(intensity)
	if err != nil {
		skip(rec, i, eff, err)
		return
	}
	delta := raw * e.dt
	subs := c.Subtraits[eff.Trait]
	if subs == nil {
		subs = map[string]float64{}
		c.Subtraits[eff.Trait] = subs
	}
	cur, ok := subs[eff.Subtrait]
	if !ok {
		// Start at the parent, not 0: the next blend then sees only the
		// delta instead of a subtrait sitting at the bottom of the range.
		cur = c.Traits[eff.Trait]
	}
	subs[eff.Subtrait] = cur + delta
	if v, ok := c.Traits[eff.Trait]; ok {
		c.Traits[eff.Trait] = v + bleedFraction*delta
	}
	rec.TraitDeltas = append(rec.TraitDeltas, TraitDelta{Trait: eff.Trait, Subtrait: eff.Subtrait, Delta: delta})
}

// applyWorld handles finance (a multiplier, not time-scaled) and the two
// additive meters (time-scaled).
func (e *Engine) applyWorld(rec *Record, i int, eff *catalogs.EffectSpec, w *model.World, intensity float64) {
	v, err := eff.Eval(intensity)
	if err != nil {
		skip(rec, i, eff, err)
		return
	}
	switch eff.Type {
	case catalogs.EffectFinance:
		w.DonorYieldMul *= v
		rec.DonorYieldMuls = append(rec.DonorYieldMuls, v)
	case catalogs.EffectSentiment:
		d := v * e.dt
		w.Sentiment += d
		rec.Sentiment += d
	case catalogs.EffectMediaHeat:
		d := v * e.dt
		w.MediaHeat += d
		rec.MediaHeat += d
	}
}

func applyContext(rec *Record, i int, eff *catalogs.EffectSpec, c *model.Coach, intensity, persistence float64) {
	weeks := persistence
	if eff.Source() != catalogs.WeeksPersistence {
		v, err := eff.Eval(intensity)
		if err != nil {
			skip(rec, i, eff, err)
			return
		}
		weeks = v
	}
	if weeks <= 0 {
		return
	}
	c.RegPersistence = append(c.RegPersistence, model.PersistenceEntry{
		EventID:        ContextEventPrefix + eff.Context,
		RemainingWeeks: weeks,
		Context:        eff.Context,
	})
	c.AddContext(eff.Context)
	rec.ContextsApplied = append(rec.ContextsApplied, ContextApplied{Context: eff.Context, Weeks: weeks})
}
