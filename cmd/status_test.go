package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/ogsolve/internal/server"
	"github.com/cwbudde/ogsolve/internal/store"
)

func newStatusServer(t *testing.T, jobs []server.Job) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/jobs", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(jobs)
	})
	mux.HandleFunc("/api/v1/jobs/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		for _, job := range jobs {
			if job.ID == r.PathValue("id") {
				json.NewEncoder(w).Encode(map[string]any{
					"id":         job.ID,
					"state":      job.State,
					"config":     job.Config,
					"solver":     job.Solver,
					"iterations": job.Iterations,
					"residual":   job.Residual,
					"summary":    job.Summary,
					"elapsed":    1.5,
					"error":      job.Error,
				})
				return
			}
		}
		http.Error(w, "Job not found", http.StatusNotFound)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func testJobs() []server.Job {
	return []server.Job{
		{
			ID:         "job-ss",
			State:      server.StateCompleted,
			Config:     store.RunConfig{Kind: store.KindSS, Preset: "small", Method: "fixed_point", Tolerance: 1e-9, MaxIterations: 250, Damping: 0.4},
			Solver:     "ss",
			Iterations: 37,
			Residual:   4e-10,
			Summary:    map[string]float64{"gini": 0.41, "top10_share": 0.33},
			StartTime:  time.Now(),
		},
		{
			ID:        "job-tpi",
			State:     server.StateFailed,
			Config:    store.RunConfig{Kind: store.KindTPI, Parent: "job-ss"},
			Error:     "tpi did not converge",
			StartTime: time.Now(),
		},
	}
}

func TestListJobs(t *testing.T) {
	ts := newStatusServer(t, testJobs())

	var out bytes.Buffer
	if err := listJobs(&out, ts.URL+"/api/v1/jobs"); err != nil {
		t.Fatalf("listJobs failed: %v", err)
	}
	text := out.String()
	for _, want := range []string{"Found 2 job(s)", "job-ss", "job-tpi", "ss iteration 37"} {
		if !strings.Contains(text, want) {
			t.Errorf("Output should contain %q: %s", want, text)
		}
	}
}

func TestListJobs_Empty(t *testing.T) {
	ts := newStatusServer(t, nil)

	var out bytes.Buffer
	if err := listJobs(&out, ts.URL+"/api/v1/jobs"); err != nil {
		t.Fatalf("listJobs failed: %v", err)
	}
	if !strings.Contains(out.String(), "No jobs found") {
		t.Errorf("Unexpected output: %s", out.String())
	}
}

func TestGetJobStatus(t *testing.T) {
	ts := newStatusServer(t, testJobs())

	var out bytes.Buffer
	if err := getJobStatus(&out, ts.URL+"/api/v1/jobs/job-ss/status", "job-ss"); err != nil {
		t.Fatalf("getJobStatus failed: %v", err)
	}
	text := out.String()
	for _, want := range []string{"Job: job-ss", "State: completed", "Preset: small", "Iterations: 37", "Elapsed: 1.5s", "gini: 0.4100"} {
		if !strings.Contains(text, want) {
			t.Errorf("Output should contain %q: %s", want, text)
		}
	}

	out.Reset()
	if err := getJobStatus(&out, ts.URL+"/api/v1/jobs/job-tpi/status", "job-tpi"); err != nil {
		t.Fatalf("getJobStatus failed: %v", err)
	}
	if !strings.Contains(out.String(), "Error: tpi did not converge") {
		t.Errorf("Failed job should print its error: %s", out.String())
	}
}

func TestGetJobStatus_NotFound(t *testing.T) {
	ts := newStatusServer(t, testJobs())

	var out bytes.Buffer
	err := getJobStatus(&out, ts.URL+"/api/v1/jobs/missing/status", "missing")
	if err == nil || !strings.Contains(err.Error(), "job not found") {
		t.Errorf("Expected job not found error, got %v", err)
	}
}
