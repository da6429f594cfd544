package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"collegead.ai/internal/persistence/indexdb"
	persistlog "collegead.ai/internal/persistence/log"
	"collegead.ai/internal/persistence/snapshot"
	"collegead.ai/internal/sim/batch"
	"collegead.ai/internal/sim/model"
	"collegead.ai/internal/sim/roster"
)

// rosterStream keeps roster jitter off the PCG streams the batches use.
const rosterStream = math.MaxUint64

const indexFile = "coachsim.sqlite"

func newRunCmd(cfg envConfig) *cobra.Command {
	var (
		weeks    int
		seed     uint64
		workers  int
		resume   string
		noIndex  bool
		noOutput bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate the roster for a number of weeks",
		Long: `Seeds the roster from sample_coaches.json (or resumes a snapshot), runs
it in parallel batches, merges the logs under <data>/runs/<run id>/, writes a
final snapshot, and indexes the run into <data>/coachsim.sqlite.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("configs")
			dataDir, _ := cmd.Flags().GetString("data")
			logger := newLogger(cmd)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runSim(ctx, runParams{
				configDir: configDir,
				dataDir:   dataDir,
				weeks:     weeks,
				seed:      seed,
				workers:   workers,
				resume:    resume,
				index:     !noIndex,
				logs:      !noOutput,
			}, logger, cmd)
		},
	}
	cmd.Flags().IntVar(&weeks, "weeks", 52, "weeks to simulate")
	cmd.Flags().Uint64Var(&seed, "seed", cfg.Seed, "RNG seed")
	cmd.Flags().IntVar(&workers, "workers", cfg.Workers, "max parallel batches (0 = tuning batch.max_workers)")
	cmd.Flags().StringVar(&resume, "resume", "", "snapshot to resume from")
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "skip the sqlite index")
	cmd.Flags().BoolVar(&noOutput, "no-logs", false, "skip event and history logs")
	return cmd
}

type runParams struct {
	configDir string
	dataDir   string
	weeks     int
	seed      uint64
	workers   int
	resume    string
	index     bool
	logs      bool
}

func runSim(ctx context.Context, p runParams, logger *log.Logger, cmd *cobra.Command) error {
	if p.weeks < 0 {
		return fmt.Errorf("weeks must be >= 0, got %d", p.weeks)
	}
	in, err := loadInputs(p.configDir)
	if err != nil {
		return err
	}

	var (
		coaches   []*model.Coach
		meters    []*model.World
		startWeek int
	)
	if p.resume != "" {
		hdr, err := snapshot.ReadHeader(p.resume)
		if err != nil {
			return fmt.Errorf("resume %s: %w", p.resume, err)
		}
		for _, name := range changedCatalogs(in.catalogs.Digests(), hdr.Digests) {
			logf(logger, "resume: %s changed since run %s", name, hdr.RunID)
		}
		snap, err := snapshot.ReadSnapshot(p.resume)
		if err != nil {
			return fmt.Errorf("resume %s: %w", p.resume, err)
		}
		if coaches, meters, err = snap.Restore(); err != nil {
			return fmt.Errorf("resume %s: %w", p.resume, err)
		}
		startWeek = snap.Header.Week
		logf(logger, "resumed %d coaches at week %d from run %s", len(coaches), startWeek, snap.Header.RunID)
	} else {
		opt := roster.DefaultOptions(in.catalogs.Components.Weights)
		opt.ClampMin, opt.ClampMax = in.tuning.Core.ClampMin, in.tuning.Core.ClampMax
		coaches = roster.Seed(in.prototypes, opt, rand.New(rand.NewPCG(p.seed, rosterStream)))
	}

	runID := uuid.NewString()
	runDir := filepath.Join(p.dataDir, "runs", runID)
	opt := batch.Options{
		Weeks:     p.weeks,
		StartWeek: startWeek,
		Seed:      p.seed,
		Workers:   p.workers,
		Meters:    meters,
		Logger:    logger,
	}
	if p.logs {
		opt.OutDir = runDir
	}
	res, err := batch.Run(ctx, in.tuning, in.catalogs, coaches, opt)
	if err != nil {
		return err
	}

	endWeek := startWeek + p.weeks
	snapPath := filepath.Join(runDir, fmt.Sprintf("week_%d.snap.zst", endWeek))
	snap := snapshot.Capture(snapshot.Header{
		RunID:   runID,
		Week:    endWeek,
		Seed:    p.seed,
		Digests: in.catalogs.Digests(),
	}, res.Coaches, res.Meters)
	if err := snapshot.WriteSnapshot(snapPath, snap); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	logf(logger, "snapshot: %s", snapPath)

	if p.index {
		if err := indexRun(ctx, p, in, runID, startWeek, res, snapPath, logger); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "run=%s weeks=%d..%d coaches=%d batches=%d events=%d\n",
		runID, startWeek, endWeek, len(res.Coaches), res.Batches, res.Events)
	return nil
}

func indexRun(ctx context.Context, p runParams, in *inputs, runID string, startWeek int, res *batch.Result, snapPath string, logger *log.Logger) error {
	idx, err := indexdb.OpenSQLite(filepath.Join(p.dataDir, indexFile))
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	cur := in.catalogs.Digests()
	prev := make(map[string]string, len(cur))
	for name := range cur {
		d, ok, err := idx.CatalogDigest(ctx, name)
		if err != nil {
			_ = idx.Close()
			return fmt.Errorf("index catalogs: %w", err)
		}
		if ok {
			prev[name] = d
		}
	}
	for _, name := range changedCatalogs(cur, prev) {
		logf(logger, "index: %s changed since the last indexed run", name)
	}
	if err := idx.UpsertCatalogs(p.configDir, in.catalogs, in.tuning); err != nil {
		_ = idx.Close()
		return fmt.Errorf("index catalogs: %w", err)
	}
	if err := idx.RecordRun(indexdb.Run{
		ID:        runID,
		Seed:      p.seed,
		StartWeek: startWeek,
		Weeks:     p.weeks,
		Batches:   res.Batches,
		Coaches:   len(res.Coaches),
	}); err != nil {
		_ = idx.Close()
		return fmt.Errorf("index run: %w", err)
	}
	if res.EventsPath != "" {
		recs, err := persistlog.ReadEvents(res.EventsPath)
		if err != nil {
			_ = idx.Close()
			return fmt.Errorf("read events: %w", err)
		}
		idx.WriteEvents(runID, recs)
	}
	if res.HistoryPath != "" {
		rows, err := persistlog.ReadHistory(res.HistoryPath)
		if err != nil {
			_ = idx.Close()
			return fmt.Errorf("read history: %w", err)
		}
		idx.WriteHistory(runID, rows)
	}
	idx.RecordSnapshot(runID, startWeek+p.weeks, snapPath, len(res.Coaches), batchDigest(res.Digests))
	st := idx.Stats()
	if err := idx.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	if drops := st.DropEventTotal + st.DropHistoryTotal + st.DropSnapshotTotal; drops > 0 {
		logf(logger, "index dropped %d row(s); logs under %s remain complete", drops, filepath.Dir(snapPath))
	}
	return nil
}

// changedCatalogs lists, sorted, the files whose digest in cur differs from
// prev. Files prev does not know are not reported.
func changedCatalogs(cur, prev map[string]string) []string {
	var out []string
	for _, name := range model.SortedKeys(cur) {
		if d, ok := prev[name]; ok && d != cur[name] {
			out = append(out, name)
		}
	}
	return out
}

// batchDigest folds the per-batch digests, in batch order, into one value.
func batchDigest(digests []string) string {
	h := sha256.New()
	for _, d := range digests {
		h.Write([]byte(d))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
