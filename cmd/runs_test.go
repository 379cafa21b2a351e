package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/ogsolve/internal/solver"
	"github.com/cwbudde/ogsolve/internal/store"
)

func TestSelectRunsForDeletion_ByAge(t *testing.T) {
	now := time.Now()
	infos := []store.RunInfo{
		{ID: "run1", Timestamp: now.AddDate(0, 0, -10)}, // 10 days old
		{ID: "run2", Timestamp: now.AddDate(0, 0, -5)},  // 5 days old
		{ID: "run3", Timestamp: now.AddDate(0, 0, -1)},  // 1 day old
		{ID: "run4", Timestamp: now.AddDate(0, 0, -30)}, // 30 days old
	}

	toDelete := selectRunsForDeletion(infos, 0, 7)

	if len(toDelete) != 2 {
		t.Fatalf("Expected 2 runs to delete, got %d", len(toDelete))
	}
	ids := map[string]bool{}
	for _, info := range toDelete {
		ids[info.ID] = true
	}
	if !ids["run1"] || !ids["run4"] {
		t.Error("Expected run1 and run4 to be selected for deletion")
	}
}

func TestSelectRunsForDeletion_ByCount(t *testing.T) {
	now := time.Now()
	infos := []store.RunInfo{
		{ID: "run1", Timestamp: now.AddDate(0, 0, -10)},
		{ID: "run2", Timestamp: now.AddDate(0, 0, -5)},
		{ID: "run3", Timestamp: now.AddDate(0, 0, -1)},
		{ID: "run4", Timestamp: now.AddDate(0, 0, -30)},
	}

	toDelete := selectRunsForDeletion(infos, 2, 0)

	if len(toDelete) != 2 {
		t.Fatalf("Expected 2 runs to delete, got %d", len(toDelete))
	}
	// oldest first
	if toDelete[0].ID != "run4" || toDelete[1].ID != "run1" {
		t.Errorf("Expected run4 and run1 (oldest), got %s and %s", toDelete[0].ID, toDelete[1].ID)
	}
}

func TestSelectRunsForDeletion_Combined(t *testing.T) {
	now := time.Now()
	infos := []store.RunInfo{
		{ID: "run1", Timestamp: now.AddDate(0, 0, -10)},
		{ID: "run2", Timestamp: now.AddDate(0, 0, -5)},
		{ID: "run3", Timestamp: now.AddDate(0, 0, -1)},
		{ID: "run4", Timestamp: now.AddDate(0, 0, -30)},
		{ID: "run5", Timestamp: now.AddDate(0, 0, -2)},
		{ID: "run6", Timestamp: now.AddDate(0, 0, -3)},
	}

	// run1 and run4 go by age; keeping 3 also drops run2
	toDelete := selectRunsForDeletion(infos, 3, 7)

	if len(toDelete) != 3 {
		t.Fatalf("Expected 3 runs to delete, got %d", len(toDelete))
	}
	seen := map[string]int{}
	for _, info := range toDelete {
		seen[info.ID]++
	}
	for _, id := range []string{"run1", "run2", "run4"} {
		if seen[id] != 1 {
			t.Errorf("Expected %s selected exactly once, got %d", id, seen[id])
		}
	}
}

func TestSelectRunsForDeletion_KeepMoreThanExist(t *testing.T) {
	infos := []store.RunInfo{{ID: "run1", Timestamp: time.Now()}}
	if toDelete := selectRunsForDeletion(infos, 5, 0); len(toDelete) != 0 {
		t.Errorf("Expected nothing to delete, got %d", len(toDelete))
	}
}

func TestGetDirSize(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "test.txt")
	content := []byte("Hello, World!")
	if err := os.WriteFile(testFile, content, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	size, err := getDirSize(tmpDir)
	if err != nil {
		t.Fatalf("getDirSize failed: %v", err)
	}
	if size < int64(len(content)) {
		t.Errorf("Expected size >= %d, got %d", len(content), size)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1073741824, "1.0 GB"},
	}

	for _, tt := range tests {
		result := formatBytes(tt.bytes)
		if result != tt.expected {
			t.Errorf("formatBytes(%d) = %s, expected %s", tt.bytes, result, tt.expected)
		}
	}
}

func saveTestRun(t *testing.T, st *store.FSStore, id string, kss float64, age time.Duration) {
	t.Helper()
	outputs := solver.Output{
		"Kss":    solver.Scalar(kss),
		"bssmat": solver.Matrix([][]float64{{0.1, 0.2}, {0.3, 0.4}, {0.5, 0.6}}),
	}
	cfg := store.RunConfig{Kind: store.KindSS, Preset: "small", S: 3, T: 10, J: 2}
	run := store.NewRun(id, cfg, outputs, 12, 1e-10, nil)
	run.Timestamp = run.Timestamp.Add(-age)
	if err := st.SaveRun(run); err != nil {
		t.Fatalf("Failed to save run: %v", err)
	}
}

func newCmdStore(t *testing.T) (*store.FSStore, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewFSStore(dir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return st, dir
}

func TestListRuns_NoRuns(t *testing.T) {
	_, dir := newCmdStore(t)

	var out bytes.Buffer
	if err := listRuns(&out, dir); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.Contains(out.String(), "No runs found") {
		t.Errorf("Unexpected output: %s", out.String())
	}
}

func TestListRuns_WithRuns(t *testing.T) {
	st, dir := newCmdStore(t)
	saveTestRun(t, st, "run-a", 3.25, 0)
	saveTestRun(t, st, "run-b", 3.25, time.Hour)

	var out bytes.Buffer
	if err := listRuns(&out, dir); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "run-a") || !strings.Contains(text, "run-b") {
		t.Errorf("Listing should include both runs: %s", text)
	}
	if !strings.Contains(text, "Total runs: 2") {
		t.Errorf("Listing should report the total: %s", text)
	}
}

func TestShowRun(t *testing.T) {
	st, dir := newCmdStore(t)
	saveTestRun(t, st, "run-a", 3.25, 0)

	var out bytes.Buffer
	if err := showRun(&out, dir, "run-a"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	text := out.String()
	for _, want := range []string{"Run: run-a", "S=3 T=10 J=2", "Kss", "bssmat", "[3 2]"} {
		if !strings.Contains(text, want) {
			t.Errorf("Output should contain %q: %s", want, text)
		}
	}

	if err := showRun(&out, dir, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCompareRuns(t *testing.T) {
	st, dir := newCmdStore(t)
	saveTestRun(t, st, "base", 3.25, 0)
	saveTestRun(t, st, "same", 3.25+1e-9, 0)
	saveTestRun(t, st, "other", 3.5, 0)

	var out bytes.Buffer
	if err := compareRuns(&out, dir, "same", "base", 1e-6, false); err != nil {
		t.Fatalf("Runs within tolerance should match: %v", err)
	}
	if !strings.Contains(out.String(), "Runs match") {
		t.Errorf("Unexpected output: %s", out.String())
	}

	out.Reset()
	if err := compareRuns(&out, dir, "other", "base", 1e-6, false); err == nil {
		t.Fatal("Differing runs should return an error")
	}
	if !strings.Contains(out.String(), "Kss") {
		t.Errorf("Difference table should name Kss: %s", out.String())
	}
}

func TestCleanRuns_NoFlags(t *testing.T) {
	_, dir := newCmdStore(t)

	var out bytes.Buffer
	if err := cleanRuns(&out, strings.NewReader(""), dir, 0, 0, true); err == nil {
		t.Error("Expected error when no retention flag is set")
	}
}

func TestCleanRuns_KeepLast(t *testing.T) {
	st, dir := newCmdStore(t)
	saveTestRun(t, st, "old", 3.25, 48*time.Hour)
	saveTestRun(t, st, "new", 3.25, 0)

	var out bytes.Buffer
	if err := cleanRuns(&out, strings.NewReader(""), dir, 1, 0, true); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if _, err := st.LoadRun("old"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Old run should be deleted, got %v", err)
	}
	if _, err := st.LoadRun("new"); err != nil {
		t.Errorf("New run should survive: %v", err)
	}
}

func TestCleanRuns_Aborted(t *testing.T) {
	st, dir := newCmdStore(t)
	saveTestRun(t, st, "old", 3.25, 48*time.Hour)
	saveTestRun(t, st, "new", 3.25, 0)

	var out bytes.Buffer
	if err := cleanRuns(&out, strings.NewReader("n\n"), dir, 1, 0, false); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.Contains(out.String(), "Aborted") {
		t.Errorf("Expected abort message: %s", out.String())
	}
	if _, err := st.LoadRun("old"); err != nil {
		t.Errorf("Run should survive an aborted clean: %v", err)
	}
}
