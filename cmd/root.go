package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	logLevel string
	dataDir  string
)

var rootCmd = &cobra.Command{
	Use:   "ogsolve",
	Short: "Solve overlapping-generations models: steady state and transition path",
	Long: `ogsolve solves an overlapping-generations economy with heterogeneous
ability types, a representative firm, a government budget closure and an
optional small open economy.

  ogsolve ss              solve the steady state and save it as a run
  ogsolve tpi             solve the transition path toward a steady state
  ogsolve resume <run>    continue a saved steady state as a transition
  ogsolve runs ...        list, show, compare and clean saved runs
  ogsolve serve           accept solve jobs over HTTP and stream progress
  ogsolve status [job]    query jobs on a running server

Parameters come from a preset (default or small) and an optional YAML
revision file. Logs are JSON on stderr; results go to stdout and the data
directory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := parseLogLevel(logLevel)
		if err != nil {
			return err
		}
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	},
}

// parseLogLevel accepts the slog level names in any case. An empty name is
// info.
func parseLogLevel(name string) (slog.Level, error) {
	var level slog.Level
	if name == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return 0, fmt.Errorf("invalid --log-level %q: want debug, info, warn or error", name)
	}
	return level, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "Directory holding saved runs and traces")
}
