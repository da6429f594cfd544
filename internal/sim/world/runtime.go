// Package world drives a roster of coaches through simulated weeks: one
// REG pass, then the trait engine and baseline accumulators per coach,
// then invariant checks and log flushes.
package world

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"

	"collegead.ai/internal/sim/catalogs"
	"collegead.ai/internal/sim/dbs"
	"collegead.ai/internal/sim/guard"
	"collegead.ai/internal/sim/model"
	"collegead.ai/internal/sim/reg"
	"collegead.ai/internal/sim/traits"
	"collegead.ai/internal/sim/tuning"
)

type Config struct {
	Tuning tuning.Tuning
	Seed   uint64
	// Stream selects the PCG stream; batch runners use the batch index.
	Stream    uint64
	StartWeek int
}

// EventLogger receives the REG records of each tick.
type EventLogger interface {
	WriteEvents(recs []reg.Record) error
	Flush() error
}

// HistoryLogger receives one row per coach per trait per tick.
type HistoryLogger interface {
	WriteHistory(rows []HistoryRow) error
	Flush() error
}

// CoachingSource supplies per-trait coaching input for cultivation. Without
// one, cultivation only sees outcome signals.
type CoachingSource interface {
	Coaching(c *model.Coach, week int) map[string]float64
}

type HistoryRow struct {
	Week     int
	CoachID  string
	Trait    string
	Pre      float64
	Post     float64
	Delta    float64
	Contexts []string
	Tags     []string
}

// StepResult summarises one tick.
type StepResult struct {
	Week       int
	Events     int
	Violations int
	Digest     string
}

type World struct {
	cfg Config

	reg    *reg.Engine
	traits *traits.Engine
	dbs    *dbs.Params
	guard  *guard.Checker

	coaches []*model.Coach
	meters  *model.World
	rng     *rand.Rand
	week    int
	dt      float64

	logger        *log.Logger
	eventLogger   EventLogger
	historyLogger HistoryLogger
	coaching      CoachingSource
}

// New wires a runtime over shared read-only catalogs. The coaches and
// meters are owned by the runtime from here on. A nil meters starts fresh.
func New(cfg Config, cats *catalogs.Catalogs, coaches []*model.Coach, meters *model.World) (*World, error) {
	if cats == nil {
		return nil, errors.New("nil catalogs")
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, err
	}
	for _, c := range coaches {
		if _, ok := cats.Anchors.Table.Lookup(c.Archetype); !ok {
			return nil, fmt.Errorf("coach %s: %w %q", c.ID, traits.ErrUnknownArchetype, c.Archetype)
		}
		c.EnsureState()
	}
	if meters == nil {
		meters = model.NewWorld()
	}
	dt := cfg.Tuning.DtWeeks()
	w := &World{
		cfg:     cfg,
		reg:     reg.New(cats.Events.List, dt),
		traits:  traits.New(cfg.Tuning, cats),
		guard:   guard.NewChecker(cfg.Tuning),
		coaches: coaches,
		meters:  meters,
		rng:     rand.New(rand.NewPCG(cfg.Seed, cfg.Stream)),
		week:    cfg.StartWeek,
		dt:      dt,
	}
	if cfg.Tuning.DBS != nil {
		p := dbs.NewParams(*cfg.Tuning.DBS)
		w.dbs = &p
	}
	return w, nil
}

func (w *World) SetLogger(l *log.Logger)              { w.logger = l }
func (w *World) SetEventLogger(l EventLogger)         { w.eventLogger = l }
func (w *World) SetHistoryLogger(l HistoryLogger)     { w.historyLogger = l }
func (w *World) SetCoachingSource(src CoachingSource) { w.coaching = src }
func (w *World) Week() int                            { return w.week }
func (w *World) Coaches() []*model.Coach              { return w.coaches }
func (w *World) Meters() *model.World                 { return w.meters }
func (w *World) DtWeeks() float64                     { return w.dt }
func (w *World) Digest() string                       { return w.stateDigest() }

func (w *World) logf(format string, args ...any) {
	if w.logger != nil {
		w.logger.Printf(format, args...)
	}
}

// StepWeek advances every coach by one tick. In strict mode the first tick
// with a violation returns the joined violations; state has already been
// mutated by then and the run should stop.
func (w *World) StepWeek() (StepResult, error) {
	week := w.week
	recs := w.reg.Tick(w.coaches, w.meters, w.rng, week)

	var (
		rows []HistoryRow
		errs []error
	)
	for _, c := range w.coaches {
		res, err := w.traits.Advance(c)
		if err != nil {
			return StepResult{}, err
		}
		tags := append([]string(nil), c.PolarityTags...)
		for _, tr := range res.Order {
			rows = append(rows, HistoryRow{
				Week:     week,
				CoachID:  c.ID,
				Trait:    tr,
				Pre:      res.Pre[tr],
				Post:     res.Post[tr],
				Delta:    res.Delta[tr],
				Contexts: res.ActiveContexts,
				Tags:     tags,
			})
		}
		if w.dbs != nil {
			sig := dbs.Signals{Outcome: reg.OutcomeSignals(recs, c.ID)}
			if w.coaching != nil {
				sig.Coaching = w.coaching.Coaching(c, week)
			}
			w.dbs.Advance(c, sig, w.dt)
		}
		if err := w.guard.CheckCoach(c, res.Delta); err != nil {
			errs = append(errs, err)
		}
	}
	if err := w.guard.CheckWorld(w.meters); err != nil {
		errs = append(errs, err)
	}

	if w.eventLogger != nil {
		if err := w.eventLogger.WriteEvents(recs); err != nil {
			return StepResult{}, fmt.Errorf("write events: %w", err)
		}
		if err := w.eventLogger.Flush(); err != nil {
			return StepResult{}, fmt.Errorf("flush events: %w", err)
		}
	}
	if w.historyLogger != nil {
		if err := w.historyLogger.WriteHistory(rows); err != nil {
			return StepResult{}, fmt.Errorf("write history: %w", err)
		}
		if err := w.historyLogger.Flush(); err != nil {
			return StepResult{}, fmt.Errorf("flush history: %w", err)
		}
	}

	w.week++
	out := StepResult{Week: week, Events: len(recs), Violations: countViolations(errs), Digest: w.stateDigest()}
	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if w.guard.Strict() {
			return out, fmt.Errorf("week %d: %w", week, joined)
		}
		w.logf("week %d: %d invariant violation(s): %v", week, out.Violations, joined)
	}
	return out, nil
}

// Run steps weeks ticks, stopping early on ctx cancellation or error.
func (w *World) Run(ctx context.Context, weeks int) ([]StepResult, error) {
	out := make([]StepResult, 0, weeks)
	for i := 0; i < weeks; i++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := w.StepWeek()
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

func countViolations(errs []error) int {
	n := 0
	for _, err := range errs {
		if u, ok := err.(interface{ Unwrap() []error }); ok {
			n += len(u.Unwrap())
			continue
		}
		n++
	}
	return n
}
