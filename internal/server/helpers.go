package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cwbudde/ogsolve/internal/runner"
	"github.com/cwbudde/ogsolve/internal/store"
)

// writeJSON encodes v with the given status code
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// validateConfig fills defaults and rejects configs no worker can run
func validateConfig(config JobConfig) (JobConfig, error) {
	config = runner.Normalize(config)
	switch config.Kind {
	case store.KindSS:
		if config.Parent != "" {
			return config, fmt.Errorf("parent is only valid for tpi jobs")
		}
	case store.KindTPI:
	default:
		return config, fmt.Errorf("unknown kind %q", config.Kind)
	}
	if config.Damping > 1 {
		return config, fmt.Errorf("damping must be in (0, 1], got %g", config.Damping)
	}
	if config.S < 0 || config.T < 0 {
		return config, fmt.Errorf("dimensions cannot be negative")
	}
	return config, nil
}
