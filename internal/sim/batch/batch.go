// Package batch runs a roster as N independent world runtimes in parallel.
// Each batch owns its coaches, meters, RNG stream and scratch logs; the
// scratch logs are merged in batch order once every batch has finished.
package batch

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"collegead.ai/internal/persistence/log"
	"collegead.ai/internal/sim/catalogs"
	"collegead.ai/internal/sim/model"
	"collegead.ai/internal/sim/tuning"
	"collegead.ai/internal/sim/world"
)

const (
	EventsName  = "reg_events"
	HistoryName = "trait_history"
)

type Options struct {
	Weeks     int
	StartWeek int
	Seed      uint64
	// Workers caps the batch count; 0 uses tuning batch.max_workers.
	Workers int
	// OutDir receives the canonical logs. Empty disables logging.
	OutDir string
	// Meters resumes per-batch meters; used only when its length matches
	// the batch count.
	Meters   []*model.World
	Coaching world.CoachingSource
	Logger   *stdlog.Logger
}

type Result struct {
	Batches     int
	EventsPath  string
	HistoryPath string
	// Coaches is the roster in its original order.
	Coaches []*model.Coach
	Meters  []*model.World
	// Digests holds each batch's final state digest.
	Digests []string
	Events  int
}

// Workers returns min(NumCPU, maxWorkers, n), at least 1.
func Workers(maxWorkers, n int) int {
	w := runtime.NumCPU()
	if maxWorkers > 0 && maxWorkers < w {
		w = maxWorkers
	}
	if n < w {
		w = n
	}
	if w < 1 {
		w = 1
	}
	return w
}

// Partition deals coaches round-robin into n batches: batch i gets
// coaches[i], coaches[i+n], ...
func Partition(coaches []*model.Coach, n int) [][]*model.Coach {
	out := make([][]*model.Coach, n)
	for i, c := range coaches {
		out[i%n] = append(out[i%n], c)
	}
	return out
}

func ScratchPath(dir, name string, batch int) string {
	return filepath.Join(dir, fmt.Sprintf("%s.b%d.jsonl.zst", name, batch))
}

func CanonicalPath(dir, name string) string {
	return filepath.Join(dir, name+".jsonl.zst")
}

// Run advances every coach opt.Weeks ticks. Coaches are mutated in place.
func Run(ctx context.Context, t tuning.Tuning, cats *catalogs.Catalogs, coaches []*model.Coach, opt Options) (*Result, error) {
	workers := opt.Workers
	if workers <= 0 {
		workers = t.Batch.MaxWorkers
	}
	n := Workers(workers, len(coaches))
	parts := Partition(coaches, n)
	meters := opt.Meters
	if len(meters) != n {
		meters = make([]*model.World, n)
		for i := range meters {
			meters[i] = model.NewWorld()
		}
	}

	res := &Result{Batches: n, Coaches: coaches, Meters: meters, Digests: make([]string, n)}
	if opt.OutDir != "" {
		res.EventsPath = CanonicalPath(opt.OutDir, EventsName)
		res.HistoryPath = CanonicalPath(opt.OutDir, HistoryName)
		for i := 0; i < n; i++ {
			for _, name := range []string{EventsName, HistoryName} {
				if err := os.Remove(ScratchPath(opt.OutDir, name, i)); err != nil && !errors.Is(err, os.ErrNotExist) {
					return nil, err
				}
			}
		}
	}
	logf(opt.Logger, "batch run: %d coaches, %d batch(es), %d week(s) from week %d", len(coaches), n, opt.Weeks, opt.StartWeek)

	events := make([]int, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			w, err := world.New(world.Config{
				Tuning:    t,
				Seed:      opt.Seed,
				Stream:    uint64(i),
				StartWeek: opt.StartWeek,
			}, cats, parts[i], meters[i])
			if err != nil {
				return fmt.Errorf("batch %d: %w", i, err)
			}
			w.SetLogger(opt.Logger)
			if opt.Coaching != nil {
				w.SetCoachingSource(opt.Coaching)
			}
			var closers []func() error
			if opt.OutDir != "" {
				el := log.NewEventLogger(ScratchPath(opt.OutDir, EventsName, i))
				hl := log.NewHistoryLogger(ScratchPath(opt.OutDir, HistoryName, i))
				w.SetEventLogger(el)
				w.SetHistoryLogger(hl)
				closers = append(closers, el.Close, hl.Close)
			}
			steps, runErr := w.Run(gctx, opt.Weeks)
			var closeErr error
			for _, c := range closers {
				closeErr = errors.Join(closeErr, c())
			}
			for _, s := range steps {
				events[i] += s.Events
			}
			res.Digests[i] = w.Digest()
			if runErr != nil {
				return fmt.Errorf("batch %d: %w", i, runErr)
			}
			return closeErr
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, e := range events {
		res.Events += e
	}

	if opt.OutDir != "" {
		if err := mergeScratch(opt.OutDir, n); err != nil {
			return nil, err
		}
	}
	logf(opt.Logger, "batch run done: %d event(s)", res.Events)
	return res, nil
}

func mergeScratch(dir string, n int) error {
	for _, name := range []string{EventsName, HistoryName} {
		parts := make([]string, n)
		for i := range parts {
			parts[i] = ScratchPath(dir, name, i)
		}
		if err := log.Merge(CanonicalPath(dir, name), parts); err != nil {
			return fmt.Errorf("merge %s: %w", name, err)
		}
		for _, p := range parts {
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
		}
	}
	return nil
}

func logf(l *stdlog.Logger, format string, args ...any) {
	if l != nil {
		l.Printf(format, args...)
	}
}
