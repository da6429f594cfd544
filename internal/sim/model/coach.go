package model

import "sort"

// Coach is one simulated individual. Records are created at seeding and
// mutated in place by the REG pass and then the trait pass every tick.
type Coach struct {
	ID        string
	Name      string
	Archetype string
	// AnchorStrength overrides the configured default when set.
	AnchorStrength *float64
	// Region keys the era waterline region multiplier ("" = 1.0).
	Region string

	Traits       map[string]float64
	Subtraits    map[string]map[string]float64
	Cultivation  map[string]float64
	EraWaterline map[string]float64

	// ActiveContexts is an ordered set; order drives overlay application.
	ActiveContexts []string

	RegCooldowns   map[string]float64
	RegPersistence []PersistenceEntry
	// RegSpent lists non-repeatable events that already fired (sorted).
	RegSpent []string

	PolarityTags []string
}

// PersistenceEntry is a lingering effect or context left behind by a fired
// event. Context is empty for generic persistence slots.
type PersistenceEntry struct {
	EventID        string
	RemainingWeeks float64
	Intensity      float64
	Context        string
}

// EnsureState allocates nil maps so engines can write without checks, and
// makes sure every trait has a cultivation and era slot.
func (c *Coach) EnsureState() {
	if c.Traits == nil {
		c.Traits = map[string]float64{}
	}
	if c.Subtraits == nil {
		c.Subtraits = map[string]map[string]float64{}
	}
	if c.Cultivation == nil {
		c.Cultivation = map[string]float64{}
	}
	if c.EraWaterline == nil {
		c.EraWaterline = map[string]float64{}
	}
	if c.RegCooldowns == nil {
		c.RegCooldowns = map[string]float64{}
	}
	for k := range c.Traits {
		if _, ok := c.Cultivation[k]; !ok {
			c.Cultivation[k] = 0
		}
		if _, ok := c.EraWaterline[k]; !ok {
			c.EraWaterline[k] = 0
		}
	}
}

func (c *Coach) HasContext(name string) bool {
	for _, x := range c.ActiveContexts {
		if x == name {
			return true
		}
	}
	return false
}

// AddContext appends name unless already active.
func (c *Coach) AddContext(name string) {
	if name == "" || c.HasContext(name) {
		return
	}
	c.ActiveContexts = append(c.ActiveContexts, name)
}

// RemoveContext drops name, keeping the order of the rest.
func (c *Coach) RemoveContext(name string) {
	out := c.ActiveContexts[:0]
	for _, x := range c.ActiveContexts {
		if x != name {
			out = append(out, x)
		}
	}
	c.ActiveContexts = out
}

func (c *Coach) IsSpent(eventID string) bool {
	i := sort.SearchStrings(c.RegSpent, eventID)
	return i < len(c.RegSpent) && c.RegSpent[i] == eventID
}

func (c *Coach) MarkSpent(eventID string) {
	i := sort.SearchStrings(c.RegSpent, eventID)
	if i < len(c.RegSpent) && c.RegSpent[i] == eventID {
		return
	}
	c.RegSpent = append(c.RegSpent, "")
	copy(c.RegSpent[i+1:], c.RegSpent[i:])
	c.RegSpent[i] = eventID
}

// TraitNames returns the coach's trait names, sorted.
func (c *Coach) TraitNames() []string {
	return SortedKeys(c.Traits)
}

// SortedKeys returns the keys of m in ascending order. Every engine iterates
// maps through this so results do not depend on map order.
func SortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

