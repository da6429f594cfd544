package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"collegead.ai/internal/sim/model"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and check every config file",
		Long:  "Loads tuning, catalogs and coach prototypes, runs schema and weight checks, and prints catalog digests.",
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("configs")
			in, err := loadInputs(configDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			digests := in.catalogs.Digests()
			for _, name := range model.SortedKeys(digests) {
				fmt.Fprintf(out, "%-24s %s\n", name, digests[name])
			}
			coaches := 0
			for _, p := range in.prototypes {
				coaches += p.Size()
			}
			fmt.Fprintf(out, "events=%d prototypes=%d coaches=%d dt_weeks=%g\n",
				len(in.catalogs.Events.List), len(in.prototypes), coaches, in.tuning.DtWeeks())
			return nil
		},
	}
}
