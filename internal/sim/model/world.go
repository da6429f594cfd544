package model

// World holds the simulation-scope meters that school-targeted REG effects
// move. Nothing in the trait engine reads it.
type World struct {
	Sentiment     float64
	MediaHeat     float64
	DonorYieldMul float64
	// Prestige gates events with a prestige_min; nil means "unknown" and
	// never blocks.
	Prestige *float64
}

// NewWorld returns meters at their seeded values.
func NewWorld() *World {
	return &World{DonorYieldMul: 1}
}
