package reg

import (
	"collegead.ai/internal/sim/catalogs"
	"collegead.ai/internal/sim/model"
)

// Eligible reports whether an event may roll for c. A nil spec always passes.
func Eligible(el *catalogs.Eligibility, c *model.Coach, w *model.World) bool {
	if el == nil {
		return true
	}
	if el.PrestigeMin != nil && w != nil && w.Prestige != nil && *w.Prestige < *el.PrestigeMin {
		return false
	}
	for trait, limit := range el.TraitMax {
		if ceilingValue(c, trait) > limit {
			return false
		}
	}
	if el.AuthMax != nil {
		if _, folded := el.TraitMax["Authenticity"]; !folded && ceilingValue(c, "Authenticity") > *el.AuthMax {
			return false
		}
	}
	for trait, limit := range el.TraitMin {
		if c.Traits[trait] < limit {
			return false
		}
	}
	return true
}

// ceilingValue is the larger of the trait and any of its subtraits, so a
// coach strong in one facet is still excluded by a trait ceiling.
func ceilingValue(c *model.Coach, trait string) float64 {
	v := c.Traits[trait]
	for _, s := range c.Subtraits[trait] {
		if s > v {
			v = s
		}
	}
	return v
}
