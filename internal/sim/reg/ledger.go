package reg

import "collegead.ai/internal/sim/model"

// persistenceEpsilon is the remaining time at or below which an entry is
// considered expired.
const persistenceEpsilon = 1e-6

// ContextEventPrefix marks persistence entries created by context_apply.
const ContextEventPrefix = "CTX::"

// AdvanceLedger ages a coach's persistence entries and cooldowns by dt.
// Context names whose last entry expired leave ActiveContexts.
func AdvanceLedger(c *model.Coach, dt float64) {
	var expired []string
	keep := c.RegPersistence[:0]
	for _, p := range c.RegPersistence {
		p.RemainingWeeks -= dt
		if p.RemainingWeeks > persistenceEpsilon {
			keep = append(keep, p)
			continue
		}
		if p.Context != "" {
			expired = append(expired, p.Context)
		}
	}
	for i := len(keep); i < len(c.RegPersistence); i++ {
		c.RegPersistence[i] = model.PersistenceEntry{}
	}
	c.RegPersistence = keep

	for _, name := range expired {
		if !contextLive(c, name) {
			c.RemoveContext(name)
		}
	}

	for id, rem := range c.RegCooldowns {
		rem -= dt
		if rem <= 0 {
			delete(c.RegCooldowns, id)
			continue
		}
		c.RegCooldowns[id] = rem
	}
}

func contextLive(c *model.Coach, name string) bool {
	for _, p := range c.RegPersistence {
		if p.Context == name {
			return true
		}
	}
	return false
}
