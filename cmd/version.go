package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the solver version and the Go toolchain it was built with",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), versionString())
	},
}

func versionString() string {
	s := "ogsolve " + version
	if info, ok := debug.ReadBuildInfo(); ok {
		s += " (" + info.GoVersion + ")"
	}
	return s
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
