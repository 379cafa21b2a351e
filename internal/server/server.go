// Package server exposes solver runs over HTTP: jobs are submitted as JSON,
// solved in the background and streamed as server-sent events.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cwbudde/ogsolve/internal/runner"
	"github.com/cwbudde/ogsolve/internal/store"
)

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	runner     *runner.Runner
	addr       string
	server     *http.Server

	// jobs run under ctx and are cancelled on shutdown
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// finished jobs are forgotten after retention
	retention   time.Duration
	janitorDone chan struct{}
}

// NewServer creates a new HTTP server saving runs through rn. Finished jobs
// are pruned after an hour until Shutdown.
func NewServer(addr string, rn *runner.Runner) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		jobManager:  NewJobManager(),
		runner:      rn,
		addr:        addr,
		ctx:         ctx,
		cancel:      cancel,
		retention:   time.Hour,
		janitorDone: make(chan struct{}),
	}
	go s.janitor(s.retention / 4)
	return s
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)
	mux.HandleFunc("/api/v1/runs", s.handleRuns)
	mux.HandleFunc("/api/v1/runs/", s.handleRunsWithID)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "addr", s.addr, "job_retention", s.retention.String())
	return s.server.ListenAndServe()
}

// janitor prunes finished jobs every interval until shutdown.
func (s *Server) janitor(interval time.Duration) {
	defer close(s.janitorDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			if pruned := s.jobManager.Prune(now.Add(-s.retention)); len(pruned) > 0 {
				slog.Debug("Pruned finished jobs", "count", len(pruned))
			}
		}
	}
}

// Shutdown gracefully shuts down the server, cancelling running jobs and
// waiting for their workers to save what they have.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	if running := s.jobManager.GetRunningJobs(); len(running) > 0 {
		slog.Info("Cancelling running jobs", "count", len(running))
	}
	s.cancel()
	s.Wait()
	<-s.janitorDone
	return err
}

// Wait blocks until every submitted job has finished
func (s *Server) Wait() {
	s.wg.Wait()
}

// submit starts a worker for the job
func (s *Server) submit(jobID string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := runJob(s.ctx, s.jobManager, s.runner, jobID); err != nil {
			slog.Debug("Job ended with error", "job_id", jobID, "error", err)
		}
	}()
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodDelete:
		s.handleCancelJob(w, r, jobID)
	case len(parts) == 1 || parts[1] == "status":
		s.handleGetJobStatus(w, r, jobID)
	case parts[1] == "stream":
		s.handleJobStream(w, r, jobID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var config JobConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	config, err := validateConfig(config)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := s.jobManager.CreateJob(config)
	s.submit(job.ID)

	writeJSON(w, http.StatusCreated, job)
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	var elapsed time.Duration
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime)
	} else {
		elapsed = time.Since(job.StartTime)
	}

	response := map[string]any{
		"id":         job.ID,
		"state":      job.State,
		"config":     job.Config,
		"parentId":   job.ParentID,
		"solver":     job.Solver,
		"iterations": job.Iterations,
		"residual":   job.Residual,
		"summary":    job.Summary,
		"elapsed":    elapsed.Seconds(),
		"startTime":  job.StartTime,
		"endTime":    job.EndTime,
		"error":      job.Error,
	}

	writeJSON(w, http.StatusOK, response)
}

// handleCancelJob handles DELETE /api/v1/jobs/:id
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if _, exists := s.jobManager.GetJob(jobID); !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if !s.jobManager.CancelJob(jobID) {
		http.Error(w, "Job already finished", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleRuns handles GET /api/v1/runs
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	infos, err := s.runner.Store().ListRuns()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// handleRunsWithID handles GET /api/v1/runs/:id and /api/v1/runs/:id/trace[?summary=1]
func (s *Server) handleRunsWithID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/v1/runs/"), "/")
	if parts[0] == "" {
		http.Error(w, "Run ID required", http.StatusBadRequest)
		return
	}
	runID := parts[0]

	if len(parts) > 1 && parts[1] == "trace" {
		entries, err := store.ReadTrace(s.runner.Store().BaseDir(), runID)
		if err != nil {
			storeError(w, err)
			return
		}
		if r.URL.Query().Get("summary") != "" {
			writeJSON(w, http.StatusOK, store.Summarize(entries))
			return
		}
		writeJSON(w, http.StatusOK, entries)
		return
	}
	if len(parts) > 1 {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	run, err := s.runner.Store().LoadRun(runID)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
