// Package roster seeds the coach population from archetype prototypes.
package roster

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"collegead.ai/internal/sim/model"
)

const (
	File = "sample_coaches.json"

	DefaultCount   = 20
	DefaultSeed    = 424242
	TraitJitter    = 5.0
	SubtraitJitter = 4.0
)

type Rand interface {
	Float64() float64
}

// Prototype is one entry of sample_coaches.json.
type Prototype struct {
	ID             string                        `json:"id"`
	Name           string                        `json:"name,omitempty"`
	Archetype      string                        `json:"archetype"`
	Region         string                        `json:"region,omitempty"`
	AnchorStrength *float64                      `json:"anchor_strength,omitempty"`
	Count          *int                          `json:"count,omitempty"`
	Traits         map[string]float64            `json:"traits"`
	Subtraits      map[string]map[string]float64 `json:"subtraits,omitempty"`
	PolarityTags   []string                      `json:"polarity_tags,omitempty"`
}

// Size is the number of coaches seeded from p.
func (p Prototype) Size() int {
	if p.Count == nil {
		return DefaultCount
	}
	return *p.Count
}

// LoadPrototypes reads {"coaches": [...]} from path.
func LoadPrototypes(path string) ([]Prototype, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Coaches []Prototype `json:"coaches"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", File, err)
	}
	seen := map[string]bool{}
	for i, p := range doc.Coaches {
		switch {
		case p.ID == "":
			return nil, fmt.Errorf("%s: prototype %d: missing id", File, i)
		case seen[p.ID]:
			return nil, fmt.Errorf("%s: prototype %s: duplicate id", File, p.ID)
		case p.Archetype == "":
			return nil, fmt.Errorf("%s: prototype %s: missing archetype", File, p.ID)
		case len(p.Traits) == 0:
			return nil, fmt.Errorf("%s: prototype %s: no traits", File, p.ID)
		case p.Size() < 0:
			return nil, fmt.Errorf("%s: prototype %s: negative count", File, p.ID)
		}
		seen[p.ID] = true
	}
	return doc.Coaches, nil
}

// Options tune seeding. Weights supplies the subtraits to create per trait.
type Options struct {
	TraitJitter    float64
	SubtraitJitter float64
	ClampMin       float64
	ClampMax       float64
	Weights        map[string]map[string]float64
}

func DefaultOptions(weights map[string]map[string]float64) Options {
	return Options{
		TraitJitter:    TraitJitter,
		SubtraitJitter: SubtraitJitter,
		ClampMin:       0,
		ClampMax:       100,
		Weights:        weights,
	}
}

// Seed creates count coaches per prototype, in prototype order, with ids
// <proto>_<NNN> starting at 001. Every draw happens in sorted key order so
// the roster depends only on the seed.
func Seed(protos []Prototype, opt Options, rng Rand) []*model.Coach {
	var out []*model.Coach
	for _, p := range protos {
		for i := 1; i <= p.Size(); i++ {
			out = append(out, seedOne(p, i, opt, rng))
		}
	}
	return out
}

func seedOne(p Prototype, idx int, opt Options, rng Rand) *model.Coach {
	c := &model.Coach{
		ID:           fmt.Sprintf("%s_%03d", p.ID, idx),
		Archetype:    p.Archetype,
		Region:       p.Region,
		Traits:       make(map[string]float64, len(p.Traits)),
		Subtraits:    map[string]map[string]float64{},
		PolarityTags: append([]string(nil), p.PolarityTags...),
	}
	if p.Name != "" {
		c.Name = fmt.Sprintf("%s %03d", p.Name, idx)
	}
	if p.AnchorStrength != nil {
		k := *p.AnchorStrength
		c.AnchorStrength = &k
	}
	for _, tr := range model.SortedKeys(p.Traits) {
		c.Traits[tr] = opt.clamp(p.Traits[tr] + jitter(rng, opt.TraitJitter))
	}
	for _, tr := range model.SortedKeys(c.Traits) {
		names := map[string]float64{}
		for s := range opt.Weights[tr] {
			names[s] = c.Traits[tr]
		}
		for s, v := range p.Subtraits[tr] {
			names[s] = v
		}
		if len(names) == 0 {
			continue
		}
		subs := make(map[string]float64, len(names))
		for _, s := range model.SortedKeys(names) {
			subs[s] = opt.clamp(names[s] + jitter(rng, opt.SubtraitJitter))
		}
		c.Subtraits[tr] = subs
	}
	c.EnsureState()
	return c
}

func jitter(rng Rand, amt float64) float64 {
	if amt <= 0 {
		return 0
	}
	return -amt + 2*amt*rng.Float64()
}

func (o Options) clamp(v float64) float64 {
	if o.ClampMax <= o.ClampMin {
		return v
	}
	return math.Max(o.ClampMin, math.Min(o.ClampMax, v))
}
