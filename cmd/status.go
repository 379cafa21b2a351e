package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/ogsolve/internal/server"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) == 0 {
		return listJobs(out, fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}
	jobID := args[0]
	return getJobStatus(out, fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID)
}

func getJSON(url string, v any) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

var errNotFound = errors.New("not found")

func listJobs(w io.Writer, url string) error {
	var jobs []server.Job
	if err := getJSON(url, &jobs); err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs found")
		return nil
	}

	fmt.Fprintf(w, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(w, "Job ID: %s\n", job.ID)
		fmt.Fprintf(w, "  State: %s\n", job.State)
		fmt.Fprintf(w, "  Kind: %s\n", job.Config.Kind)
		if job.Iterations > 0 {
			fmt.Fprintf(w, "  Progress: %s iteration %d, residual %.3g\n", job.Solver, job.Iterations, job.Residual)
		}
		fmt.Fprintln(w)
	}

	return nil
}

func getJobStatus(w io.Writer, url, jobID string) error {
	var status struct {
		server.Job
		Elapsed float64 `json:"elapsed"`
	}
	if err := getJSON(url, &status); err != nil {
		if errors.Is(err, errNotFound) {
			return fmt.Errorf("job not found: %s", jobID)
		}
		return err
	}

	fmt.Fprintf(w, "Job: %s\n", status.ID)
	fmt.Fprintf(w, "State: %s\n", status.State)
	fmt.Fprintln(w)

	cfg := status.Config
	fmt.Fprintln(w, "Configuration:")
	fmt.Fprintf(w, "  Kind: %s\n", cfg.Kind)
	fmt.Fprintf(w, "  Preset: %s\n", cfg.Preset)
	if cfg.ParamsPath != "" {
		fmt.Fprintf(w, "  Parameters: %s\n", cfg.ParamsPath)
	}
	if cfg.Parent != "" {
		fmt.Fprintf(w, "  Parent: %s\n", cfg.Parent)
	}
	fmt.Fprintf(w, "  Method: %s\n", cfg.Method)
	fmt.Fprintf(w, "  Tolerance: %g\n", cfg.Tolerance)
	fmt.Fprintf(w, "  Max iterations: %d\n", cfg.MaxIterations)
	fmt.Fprintf(w, "  Damping: %g\n", cfg.Damping)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Progress:")
	if status.ParentID != "" {
		fmt.Fprintf(w, "  Steady-state run: %s\n", status.ParentID)
	}
	if status.Iterations > 0 {
		fmt.Fprintf(w, "  Solver: %s\n", status.Solver)
		fmt.Fprintf(w, "  Iterations: %d\n", status.Iterations)
		fmt.Fprintf(w, "  Residual: %.3g\n", status.Residual)
	}
	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Fprintf(w, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))

	if len(status.Summary) > 0 {
		names := make([]string, 0, len(status.Summary))
		for name := range status.Summary {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintln(w, "\nWealth inequality:")
		for _, name := range names {
			fmt.Fprintf(w, "  %s: %.4f\n", name, status.Summary[name])
		}
	}

	if status.Error != "" {
		fmt.Fprintf(w, "\nError: %s\n", status.Error)
	}

	return nil
}
