// Package timestep converts the configured tick length into weeks and hosts
// the two formulas every dt-aware system shares: per-tick trigger
// probability and the exact exponential pull.
package timestep

import "math"

// MinDtWeeks floors dt so a zero or negative tick configuration can never
// freeze the simulation or divide by zero downstream.
const MinDtWeeks = 1e-9

const (
	DefaultDaysPerWeek = 7.0
	DefaultTickDays    = 7.0
)

// DtWeeks returns tickDays/daysPerWeek, floor-guarded at MinDtWeeks.
// A non-positive daysPerWeek falls back to the 7-day default.
func DtWeeks(daysPerWeek, tickDays float64) float64 {
	if daysPerWeek <= 0 {
		daysPerWeek = DefaultDaysPerWeek
	}
	return math.Max(MinDtWeeks, tickDays/daysPerWeek)
}

// TickProbability converts a weekly trigger probability into the
// probability of at least one trigger during a tick of dtWeeks, assuming
// independent weekly draws: 1 - (1-p)^dt.
func TickProbability(pWeek, dtWeeks float64) float64 {
	p := clamp01(pWeek)
	if dtWeeks <= 0 || p == 0 {
		return 0
	}
	if p == 1 {
		return 1
	}
	return 1 - math.Pow(1-p, dtWeeks)
}

// PullExact moves x toward baseline b at rate r (per week) over dtWeeks
// using the closed-form solution b + (x-b)*exp(-r*dt).
// dtWeeks <= 0 returns x unchanged.
func PullExact(x, b, rPerWeek, dtWeeks float64) float64 {
	if dtWeeks <= 0 {
		return x
	}
	k := math.Exp(-math.Max(0, rPerWeek) * dtWeeks)
	return b + (x-b)*k
}

func clamp01(x float64) float64 {
	if x < 0 || math.IsNaN(x) {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
