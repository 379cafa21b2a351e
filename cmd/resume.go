package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cwbudde/ogsolve/internal/store"
)

var resumeFlags solveFlags

var resumeCmd = &cobra.Command{
	Use:   "resume [run-id]",
	Short: "Solve the transition path from a saved steady state",
	Long: `Loads a converged steady-state run from the data directory and solves the
transition path to it with the same parameters. Solver flags apply to the
transition path only.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.NewFSStore(dataDir)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		parent, err := st.LoadRun(args[0])
		if err != nil {
			return fmt.Errorf("failed to load run: %w", err)
		}

		cfg := resumeFlags.config(store.KindTPI)
		cfg.Parent = parent.ID
		if err := parent.IsCompatible(store.RunConfig{S: parent.Config.S, J: parent.Config.J}); err != nil {
			return fmt.Errorf("cannot resume from run %s: %w", parent.ID, err)
		}
		if !cmd.Flags().Changed("T") {
			cfg.T = parent.Config.T
		}
		return execute(cmd, cfg)
	},
}

func init() {
	resumeFlags.register(resumeCmd)
	rootCmd.AddCommand(resumeCmd)
}
