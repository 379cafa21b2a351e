package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/cwbudde/ogsolve/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s := NewServer("localhost:0", newTestRunner(t))
	t.Cleanup(func() {
		s.Shutdown(context.Background())
		http.DefaultClient.CloseIdleConnections()
	})
	return s
}

func postJob(t *testing.T, h http.Handler, config JobConfig) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(config)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServer_CreateJob(t *testing.T) {
	s := newTestServer(t)

	w := postJob(t, s.Handler(), smallConfig())
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var job Job
	if err := json.NewDecoder(w.Body).Decode(&job); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if job.ID == "" {
		t.Error("Job ID should not be empty")
	}
	if job.Config.Tolerance != 1e-9 || job.Config.Method != "newton" {
		t.Errorf("Defaults not applied: %+v", job.Config)
	}

	s.Wait()
	done, _ := s.jobManager.GetJob(job.ID)
	if done.State != StateCompleted {
		t.Errorf("Expected completed job, got %s (%s)", done.State, done.Error)
	}
}

func TestServer_CreateJob_Invalid(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	tests := []struct {
		name string
		body string
	}{
		{"bad json", "{"},
		{"unknown kind", `{"kind": "mc"}`},
		{"parent on ss", `{"kind": "ss", "parent": "abc"}`},
		{"damping above one", `{"kind": "ss", "damping": 1.5}`},
		{"negative dimensions", `{"kind": "ss", "S": -1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", w.Code)
			}
		})
	}
	if n := len(s.jobManager.ListJobs()); n != 0 {
		t.Errorf("Invalid requests should not create jobs, got %d", n)
	}
}

func TestServer_ListJobs(t *testing.T) {
	s := newTestServer(t)

	s.jobManager.CreateJob(JobConfig{Kind: store.KindSS})
	s.jobManager.CreateJob(JobConfig{Kind: store.KindTPI})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var jobs []*Job
	if err := json.NewDecoder(w.Body).Decode(&jobs); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("Expected 2 jobs, got %d", len(jobs))
	}
}

func TestServer_GetJobStatus(t *testing.T) {
	s := newTestServer(t)
	job := s.jobManager.CreateJob(JobConfig{Kind: store.KindSS})

	for _, path := range []string{"/api/v1/jobs/" + job.ID, "/api/v1/jobs/" + job.ID + "/status"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", path, w.Code)
		}
		var response map[string]any
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if response["id"] != job.ID {
			t.Error("Response should contain job ID")
		}
		if response["state"] != string(StatePending) {
			t.Errorf("Expected pending state, got %v", response["state"])
		}
	}
}

func TestServer_GetJobStatus_NotFound(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/api/v1/jobs/nonexistent/status", "/api/v1/jobs/nonexistent/stream", "/api/v1/jobs/x/unknown"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s: expected status 404, got %d", path, w.Code)
		}
	}
}

func TestServer_CancelJob(t *testing.T) {
	s := newTestServer(t)
	job := s.jobManager.CreateJob(JobConfig{Kind: store.KindSS})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/"+job.ID, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/"+job.ID, nil))
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409 for a finished job, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/nonexistent", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_CORSPreflight(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/jobs", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Missing CORS header")
	}
}

func TestServer_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	s := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body, _ := json.Marshal(smallConfig())
	resp, err := http.Post(srv.URL+"/api/v1/jobs", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}
	var job Job
	json.NewDecoder(resp.Body).Decode(&job)
	resp.Body.Close()

	// Poll status until completed
	maxAttempts := 100
	for i := 0; i < maxAttempts; i++ {
		resp, err := http.Get(srv.URL + "/api/v1/jobs/" + job.ID + "/status")
		if err != nil {
			t.Fatalf("Failed to get status: %v", err)
		}
		var status map[string]any
		json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()

		if status["state"] == string(StateCompleted) {
			break
		}
		if status["state"] == string(StateFailed) {
			t.Fatalf("Job failed: %v", status["error"])
		}
		if i == maxAttempts-1 {
			t.Fatal("Job did not complete in time")
		}
		time.Sleep(100 * time.Millisecond)
	}

	// the saved run and its trace are served from the store
	resp, err = http.Get(srv.URL + "/api/v1/runs/" + job.ID)
	if err != nil {
		t.Fatalf("Failed to get run: %v", err)
	}
	var run store.Run
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		t.Fatalf("Failed to decode run: %v", err)
	}
	resp.Body.Close()
	if !run.Converged || run.Outputs.Float("Kss") <= 0 {
		t.Errorf("Unexpected run: converged=%v Kss=%g", run.Converged, run.Outputs.Float("Kss"))
	}

	resp, err = http.Get(srv.URL + "/api/v1/runs/" + job.ID + "/trace")
	if err != nil {
		t.Fatalf("Failed to get trace: %v", err)
	}
	var trace []store.TraceEntry
	json.NewDecoder(resp.Body).Decode(&trace)
	resp.Body.Close()
	if len(trace) != run.Iterations {
		t.Errorf("Expected %d trace entries, got %d", run.Iterations, len(trace))
	}

	resp, err = http.Get(srv.URL + "/api/v1/runs/" + job.ID + "/trace?summary=1")
	if err != nil {
		t.Fatalf("Failed to get trace summary: %v", err)
	}
	var summaries []store.TraceSummary
	json.NewDecoder(resp.Body).Decode(&summaries)
	resp.Body.Close()
	if len(summaries) != 1 || summaries[0].Solver != "ss" || summaries[0].Iterations != run.Iterations {
		t.Errorf("Unexpected trace summary: %+v", summaries)
	}

	resp, err = http.Get(srv.URL + "/api/v1/runs")
	if err != nil {
		t.Fatalf("Failed to list runs: %v", err)
	}
	var infos []store.RunInfo
	json.NewDecoder(resp.Body).Decode(&infos)
	resp.Body.Close()
	if len(infos) != 1 || infos[0].ID != job.ID {
		t.Errorf("Expected the job's run in the listing, got %+v", infos)
	}

	resp, err = http.Get(srv.URL + "/api/v1/runs/nonexistent")
	if err != nil {
		t.Fatalf("Failed to get run: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown run, got %d", resp.StatusCode)
	}
}

func TestServer_JobStream_SSE(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping SSE test in short mode")
	}

	s := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	// create the job without starting it so the stream sees every event
	job := s.jobManager.CreateJob(smallConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/v1/jobs/%s/stream", srv.URL, job.ID), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to connect to stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected text/event-stream, got %s", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	var events []ProgressEvent
	started := false
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev ProgressEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("Invalid event %q: %v", line, err)
		}
		events = append(events, ev)
		if !started {
			// the initial event arrived, so the client is subscribed
			started = true
			s.submit(job.ID)
		}
		if ev.State.Terminal() {
			break
		}
	}

	if len(events) < 3 {
		t.Fatalf("Expected initial, progress and final events, got %d", len(events))
	}
	if events[0].State != StatePending {
		t.Errorf("First event should be pending, got %s", events[0].State)
	}
	last := events[len(events)-1]
	if last.State != StateCompleted {
		t.Errorf("Last event should be completed, got %s", last.State)
	}
	for _, ev := range events[1 : len(events)-1] {
		if ev.Solver != "ss" || ev.Iteration == 0 {
			t.Errorf("Unexpected progress event %+v", ev)
		}
	}
}

func TestServer_Shutdown(t *testing.T) {
	s := NewServer("localhost:0", newTestRunner(t))
	job := s.jobManager.CreateJob(smallConfig())
	s.submit(job.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	// the worker has returned; the job either finished or was cancelled
	got, _ := s.jobManager.GetJob(job.ID)
	if !got.State.Terminal() {
		t.Errorf("Job should be finished after shutdown, got %s", got.State)
	}
}

func TestServer_JobStream_LastEventID(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	job := s.jobManager.CreateJob(smallConfig())
	s.jobManager.CancelJob(job.ID)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID+"/stream", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if !strings.HasPrefix(w.Body.String(), "id: 1\nevent: cancelled\ndata: ") {
		t.Errorf("Unexpected stream for a cancelled job: %q", w.Body.String())
	}

	// a client that already saw the final event gets nothing new
	req = httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID+"/stream", nil)
	req.Header.Set("Last-Event-ID", "1")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Body.Len() != 0 {
		t.Errorf("Resumed stream should be empty, got %q", w.Body.String())
	}
}
