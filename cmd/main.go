package main

import (
	"errors"
	"os"

	"github.com/cwbudde/ogsolve/internal/solver"
)

// Invalid parameters or options exit with 2 so scripts can tell them apart
// from a solve that ran and failed.
func main() {
	err := rootCmd.Execute()
	var ce *solver.ConfigurationError
	switch {
	case err == nil:
	case errors.As(err, &ce):
		os.Exit(2)
	default:
		os.Exit(1)
	}
}
