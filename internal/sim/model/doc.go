package model

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Doc is the plain key/value form of a record at the I/O edge. Values are
// limited to what encoding/json produces when decoding into any: string,
// float64 (or json.Number), bool, nil, []any and map[string]any.
type Doc = map[string]any

// ToDoc converts the coach into its document form.
func (c *Coach) ToDoc() Doc {
	d := Doc{
		"id":              c.ID,
		"archetype":       c.Archetype,
		"traits":          floatsDoc(c.Traits),
		"cultivation":     floatsDoc(c.Cultivation),
		"era_waterline":   floatsDoc(c.EraWaterline),
		"active_contexts": stringsDoc(c.ActiveContexts),
		"reg_cooldowns":   floatsDoc(c.RegCooldowns),
		"polarity_tags":   stringsDoc(c.PolarityTags),
	}
	if c.Name != "" {
		d["name"] = c.Name
	}
	if c.Region != "" {
		d["region"] = c.Region
	}
	if c.AnchorStrength != nil {
		d["anchor_strength"] = *c.AnchorStrength
	}
	sub := Doc{}
	for trait, m := range c.Subtraits {
		sub[trait] = floatsDoc(m)
	}
	d["subtraits"] = sub
	pers := make([]any, 0, len(c.RegPersistence))
	for _, p := range c.RegPersistence {
		e := Doc{
			"event_id":        p.EventID,
			"remaining_weeks": p.RemainingWeeks,
			"intensity":       p.Intensity,
		}
		if p.Context != "" {
			e["context"] = p.Context
		}
		pers = append(pers, e)
	}
	d["reg_persistence"] = pers
	if len(c.RegSpent) > 0 {
		d["reg_spent"] = stringsDoc(c.RegSpent)
	}
	return d
}

// CoachFromDoc rebuilds a coach from its document form. Unknown keys are
// ignored; malformed known keys are errors.
func CoachFromDoc(d Doc) (*Coach, error) {
	c := &Coach{}
	var err error
	if c.ID, err = docString(d, "id"); err != nil {
		return nil, err
	}
	if c.ID == "" {
		return nil, fmt.Errorf("coach doc: missing id")
	}
	if c.Name, err = docString(d, "name"); err != nil {
		return nil, err
	}
	if c.Archetype, err = docString(d, "archetype"); err != nil {
		return nil, err
	}
	if c.Region, err = docString(d, "region"); err != nil {
		return nil, err
	}
	if v, ok := d["anchor_strength"]; ok && v != nil {
		f, err := toFloat(v)
		if err != nil {
			return nil, fmt.Errorf("coach %s: anchor_strength: %w", c.ID, err)
		}
		c.AnchorStrength = &f
	}
	if c.Traits, err = docFloats(d, "traits"); err != nil {
		return nil, fmt.Errorf("coach %s: %w", c.ID, err)
	}
	if c.Cultivation, err = docFloats(d, "cultivation"); err != nil {
		return nil, fmt.Errorf("coach %s: %w", c.ID, err)
	}
	if c.EraWaterline, err = docFloats(d, "era_waterline"); err != nil {
		return nil, fmt.Errorf("coach %s: %w", c.ID, err)
	}
	if c.RegCooldowns, err = docFloats(d, "reg_cooldowns"); err != nil {
		return nil, fmt.Errorf("coach %s: %w", c.ID, err)
	}
	if c.ActiveContexts, err = docStrings(d, "active_contexts"); err != nil {
		return nil, fmt.Errorf("coach %s: %w", c.ID, err)
	}
	if c.PolarityTags, err = docStrings(d, "polarity_tags"); err != nil {
		return nil, fmt.Errorf("coach %s: %w", c.ID, err)
	}
	if c.RegSpent, err = docStrings(d, "reg_spent"); err != nil {
		return nil, fmt.Errorf("coach %s: %w", c.ID, err)
	}
	sort.Strings(c.RegSpent)

	if raw, ok := d["subtraits"]; ok && raw != nil {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("coach %s: subtraits: want object, got %T", c.ID, raw)
		}
		c.Subtraits = make(map[string]map[string]float64, len(m))
		for trait := range m {
			sub, err := docFloats(m, trait)
			if err != nil {
				return nil, fmt.Errorf("coach %s: subtraits: %w", c.ID, err)
			}
			c.Subtraits[trait] = sub
		}
	}
	if raw, ok := d["reg_persistence"]; ok && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("coach %s: reg_persistence: want array, got %T", c.ID, raw)
		}
		for i, item := range list {
			e, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("coach %s: reg_persistence[%d]: want object", c.ID, i)
			}
			var p PersistenceEntry
			if p.EventID, err = docString(e, "event_id"); err != nil {
				return nil, err
			}
			if p.Context, err = docString(e, "context"); err != nil {
				return nil, err
			}
			if p.RemainingWeeks, err = docFloat(e, "remaining_weeks"); err != nil {
				return nil, err
			}
			if p.Intensity, err = docFloat(e, "intensity"); err != nil {
				return nil, err
			}
			c.RegPersistence = append(c.RegPersistence, p)
		}
	}
	c.EnsureState()
	return c, nil
}

// ToDoc converts the meters into their document form.
func (w *World) ToDoc() Doc {
	d := Doc{
		"Sentiment":     w.Sentiment,
		"MediaHeat":     w.MediaHeat,
		"DonorYieldMul": w.DonorYieldMul,
	}
	if w.Prestige != nil {
		d["Prestige"] = *w.Prestige
	}
	return d
}

// WorldFromDoc rebuilds meters; a missing DonorYieldMul defaults to 1.
func WorldFromDoc(d Doc) (*World, error) {
	w := NewWorld()
	var err error
	if w.Sentiment, err = docFloat(d, "Sentiment"); err != nil {
		return nil, err
	}
	if w.MediaHeat, err = docFloat(d, "MediaHeat"); err != nil {
		return nil, err
	}
	if _, ok := d["DonorYieldMul"]; ok {
		if w.DonorYieldMul, err = docFloat(d, "DonorYieldMul"); err != nil {
			return nil, err
		}
	}
	if v, ok := d["Prestige"]; ok && v != nil {
		f, err := toFloat(v)
		if err != nil {
			return nil, fmt.Errorf("Prestige: %w", err)
		}
		w.Prestige = &f
	}
	return w, nil
}

func floatsDoc(m map[string]float64) Doc {
	out := make(Doc, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func stringsDoc(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

func docString(d Doc, key string) (string, error) {
	v, ok := d[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s: want string, got %T", key, v)
	}
	return s, nil
}

func docFloat(d Doc, key string) (float64, error) {
	v, ok := d[key]
	if !ok || v == nil {
		return 0, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func docFloats(d Doc, key string) (map[string]float64, error) {
	v, ok := d[key]
	if !ok || v == nil {
		return map[string]float64{}, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: want object, got %T", key, v)
	}
	out := make(map[string]float64, len(m))
	for k, raw := range m {
		f, err := toFloat(raw)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", key, k, err)
		}
		out[k] = f
	}
	return out, nil
}

func docStrings(d Doc, key string) ([]string, error) {
	v, ok := d[key]
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: want array, got %T", key, v)
	}
	out := make([]string, 0, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s[%d]: want string, got %T", key, i, item)
		}
		out = append(out, s)
	}
	return out, nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	default:
		return 0, fmt.Errorf("want number, got %T", v)
	}
}
