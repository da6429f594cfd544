package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg, envErr := loadEnvConfig()

	rootCmd := &cobra.Command{
		Use:   "coachsim",
		Short: "Coach personality simulator",
		Long: `coachsim advances a roster of coaches week by week: random events,
trait gravity toward archetype anchors, and slowly moving baselines.

Defaults come from COACHSIM_CONFIG_DIR, COACHSIM_DATA_DIR, COACHSIM_SEED
and COACHSIM_WORKERS.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return envErr
		},
	}

	rootCmd.PersistentFlags().String("configs", cfg.ConfigDir, "config directory")
	rootCmd.PersistentFlags().String("data", cfg.DataDir, "runtime data directory")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress operational logging")

	rootCmd.AddCommand(
		newValidateCmd(),
		newRunCmd(cfg),
		newInspectCmd(),
	)
	return rootCmd
}

func newLogger(cmd *cobra.Command) *log.Logger {
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		return nil
	}
	return log.New(cmd.ErrOrStderr(), "[coachsim] ", log.LstdFlags|log.Lmicroseconds)
}

func logf(l *log.Logger, format string, args ...any) {
	if l != nil {
		l.Printf(format, args...)
	}
}
