package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"collegead.ai/internal/persistence/indexdb"
	"collegead.ai/internal/persistence/snapshot"
	"collegead.ai/internal/sim/model"
)

func newInspectCmd() *cobra.Command {
	var (
		runID    string
		coachID  string
		trait    string
		snapPath string
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Query an indexed run or a snapshot",
		Long: `Without --snapshot, reads <data>/coachsim.sqlite: event counts for the
run, plus the weekly series of --trait for --coach when both are given.
With --snapshot, prints the snapshot header and the coaches it holds.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if snapPath != "" {
				snap, err := snapshot.ReadSnapshot(snapPath)
				if err != nil {
					return err
				}
				coaches, _, err := snap.Restore()
				if err != nil {
					return err
				}
				h := snap.Header
				fmt.Fprintf(out, "run=%s week=%d seed=%d coaches=%d worlds=%d\n", h.RunID, h.Week, h.Seed, len(coaches), len(snap.Worlds))
				for _, c := range coaches {
					if coachID != "" && c.ID != coachID {
						continue
					}
					fmt.Fprintf(out, "%s %s", c.ID, c.Archetype)
					for _, tr := range model.SortedKeys(c.Traits) {
						fmt.Fprintf(out, " %s=%.2f", tr, c.Traits[tr])
					}
					fmt.Fprintln(out)
				}
				return nil
			}

			dataDir, _ := cmd.Flags().GetString("data")
			path := filepath.Join(dataDir, indexFile)
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("no index at %s: %w", path, err)
			}
			idx, err := indexdb.OpenSQLite(path)
			if err != nil {
				return err
			}
			defer idx.Close()
			ctx := cmd.Context()

			if runID == "" {
				run, ok, err := idx.LatestRun(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no runs indexed under %s", dataDir)
				}
				runID = run.ID
				fmt.Fprintf(out, "run=%s seed=%d weeks=%d..%d batches=%d coaches=%d\n",
					run.ID, run.Seed, run.StartWeek, run.StartWeek+run.Weeks, run.Batches, run.Coaches)
			}

			counts, err := idx.EventCounts(ctx, runID)
			if err != nil {
				return err
			}
			for _, c := range counts {
				fmt.Fprintf(out, "%-28s %6d  impact=%.2f\n", c.EventID, c.Count, c.Impact)
			}

			if coachID == "" || trait == "" {
				return nil
			}
			series, err := idx.TraitSeries(ctx, runID, coachID, trait)
			if err != nil {
				return err
			}
			if len(series) == 0 {
				return fmt.Errorf("no history for %s/%s in run %s", coachID, trait, runID)
			}
			for _, p := range series {
				fmt.Fprintf(out, "week=%d pre=%.3f post=%.3f delta=%+.3f contexts=%s\n", p.Week, p.Pre, p.Post, p.Delta, p.Contexts)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run id (default: latest)")
	cmd.Flags().StringVar(&coachID, "coach", "", "coach id")
	cmd.Flags().StringVar(&trait, "trait", "", "trait name")
	cmd.Flags().StringVar(&snapPath, "snapshot", "", "snapshot file to read instead of the index")
	return cmd
}
