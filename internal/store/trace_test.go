package store

import (
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cwbudde/ogsolve/internal/solver"
)

func TestTraceWriter_WriteAndRead(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "test-run-123"

	writer, err := NewTraceWriter(tmpDir, runID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	entries := []TraceEntry{
		{Solver: "ss", Iteration: 1, Residual: 1.0, Timestamp: time.Now()},
		{Solver: "ss", Iteration: 2, Residual: 0.4, Timestamp: time.Now()},
		{Solver: "ss", Iteration: 3, Residual: 0.05, Timestamp: time.Now()},
	}
	for _, entry := range entries {
		if err := writer.Write(entry); err != nil {
			t.Fatalf("Failed to write entry: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	tracePath := filepath.Join(tmpDir, "runs", runID, "trace.jsonl")
	if writer.Path() != tracePath {
		t.Errorf("Path = %q, want %q", writer.Path(), tracePath)
	}

	reader, err := NewTraceReader(tmpDir, runID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	readEntries, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}
	if len(readEntries) != len(entries) {
		t.Fatalf("Expected %d entries, got %d", len(entries), len(readEntries))
	}
	for i, e := range readEntries {
		if e.Iteration != entries[i].Iteration || e.Residual != entries[i].Residual || e.Solver != "ss" {
			t.Errorf("Entry %d = %+v, want %+v", i, e, entries[i])
		}
	}
}

func TestTraceWriter_Append(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "test-run-append"

	writer, err := NewTraceWriter(tmpDir, runID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	if err := writer.Write(FromProgress(solver.Progress{Solver: "ss", Iteration: 1, Residual: 1})); err != nil {
		t.Fatalf("Failed to write entry: %v", err)
	}
	writer.Close()

	// a transition path resumed from this run keeps the steady-state history
	writer, err = NewTraceWriter(tmpDir, runID, true)
	if err != nil {
		t.Fatalf("Failed to create trace writer in append mode: %v", err)
	}
	if err := writer.Write(FromProgress(solver.Progress{Solver: "tpi", Iteration: 1, Residual: 0.5})); err != nil {
		t.Fatalf("Failed to write entry: %v", err)
	}
	writer.Close()

	reader, err := NewTraceReader(tmpDir, runID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	got, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(got))
	}
	if got[0].Solver != "ss" || got[1].Solver != "tpi" {
		t.Errorf("Unexpected solvers %q, %q", got[0].Solver, got[1].Solver)
	}
	if got[1].Timestamp.IsZero() {
		t.Error("FromProgress did not stamp the entry")
	}
}

func TestTraceWriter_Flush(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "test-run-flush"

	writer, err := NewTraceWriter(tmpDir, runID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	defer writer.Close()

	if err := writer.Write(TraceEntry{Solver: "tpi", Iteration: 1, Residual: 1.0, Timestamp: time.Now()}); err != nil {
		t.Fatalf("Failed to write entry: %v", err)
	}
	if err := writer.Flush(); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}

	data, err := os.ReadFile(writer.Path())
	if err != nil {
		t.Fatalf("Failed to read trace file: %v", err)
	}
	if len(data) == 0 {
		t.Error("Trace file is empty after flush")
	}
}

func TestTraceReader_ReadIteratively(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "test-run-iter"

	writer, err := NewTraceWriter(tmpDir, runID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	for i := 1; i <= 5; i++ {
		if err := writer.Write(TraceEntry{Solver: "ss", Iteration: i, Residual: 1 / float64(i), Timestamp: time.Now()}); err != nil {
			t.Fatalf("Failed to write entry: %v", err)
		}
	}
	writer.Close()

	reader, err := NewTraceReader(tmpDir, runID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	count := 0
	for {
		entry, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Failed to read entry: %v", err)
		}
		count++
		if entry.Iteration != count {
			t.Errorf("Entry %d: got iteration %d", count, entry.Iteration)
		}
	}
	if count != 5 {
		t.Errorf("Expected to read 5 entries, got %d", count)
	}
}

func TestTraceReader_NotFound(t *testing.T) {
	_, err := NewTraceReader(t.TempDir(), "nonexistent-run")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected NotFoundError, got: %v", err)
	}
}

func TestDeleteTrace(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "test-run-delete"

	writer, err := NewTraceWriter(tmpDir, runID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	writer.Close()

	if err := DeleteTrace(tmpDir, runID); err != nil {
		t.Fatalf("DeleteTrace failed: %v", err)
	}
	if _, err := os.Stat(writer.Path()); !os.IsNotExist(err) {
		t.Error("Trace file still exists after delete")
	}
	// deleting a missing trace is not an error
	if err := DeleteTrace(tmpDir, runID); err != nil {
		t.Errorf("DeleteTrace on missing file failed: %v", err)
	}
}

func TestTraceWriter_ConcurrentWrites(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "test-run-concurrent"

	writer, err := NewTraceWriter(tmpDir, runID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	const numWriters, perWriter = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < numWriters; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if err := writer.Write(TraceEntry{Solver: "tpi", Iteration: w*perWriter + i}); err != nil {
					t.Errorf("Write failed: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reader, err := NewTraceReader(tmpDir, runID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed (interleaved lines?): %v", err)
	}
	if len(entries) != numWriters*perWriter {
		t.Errorf("Expected %d entries, got %d", numWriters*perWriter, len(entries))
	}
}

func TestReadTrace(t *testing.T) {
	tmpDir := t.TempDir()
	writer, err := NewTraceWriter(tmpDir, "run-read", false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	for i := 1; i <= 3; i++ {
		writer.Write(TraceEntry{Solver: "ss", Iteration: i, Residual: 1})
	}
	writer.Close()

	entries, err := ReadTrace(tmpDir, "run-read")
	if err != nil {
		t.Fatalf("ReadTrace failed: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("Expected 3 entries, got %d", len(entries))
	}

	if _, err := ReadTrace(tmpDir, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestTraceReader_Malformed(t *testing.T) {
	tmpDir := t.TempDir()
	dir := filepath.Join(tmpDir, "runs", "run-bad")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	data := `{"solver":"ss","iteration":1,"residual":0.5}` + "\n" + `{"solver":` + "\n"
	if err := os.WriteFile(filepath.Join(dir, "trace.jsonl"), []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadTrace(tmpDir, "run-bad"); err == nil {
		t.Error("Expected an error for a truncated entry")
	}
}

func TestSummarize(t *testing.T) {
	start := time.Now()
	entries := []TraceEntry{
		{Solver: "ss", Iteration: 1, Residual: 1, Timestamp: start},
		{Solver: "ss", Iteration: 2, Residual: 0.5, Timestamp: start.Add(time.Second)},
		{Solver: "ss", Iteration: 3, Residual: 0.25, Timestamp: start.Add(2 * time.Second)},
		{Solver: "tpi", Iteration: 1, Residual: 0.1, Timestamp: start.Add(3 * time.Second)},
	}

	summaries := Summarize(entries)
	if len(summaries) != 2 {
		t.Fatalf("Expected 2 summaries, got %d", len(summaries))
	}

	ss := summaries[0]
	if ss.Solver != "ss" || ss.Iterations != 3 {
		t.Errorf("Unexpected ss summary: %+v", ss)
	}
	if ss.First != 1 || ss.Last != 0.25 || ss.Min != 0.25 {
		t.Errorf("Unexpected ss residuals: %+v", ss)
	}
	if math.Abs(ss.Rate-0.5) > 1e-12 {
		t.Errorf("Rate = %g, want 0.5", ss.Rate)
	}
	if ss.Elapsed != 2*time.Second {
		t.Errorf("Elapsed = %s, want 2s", ss.Elapsed)
	}

	tpi := summaries[1]
	if tpi.Iterations != 1 || tpi.Rate != 0 {
		t.Errorf("A single iteration has no rate: %+v", tpi)
	}

	if len(Summarize(nil)) != 0 {
		t.Error("Empty trace should have no summaries")
	}
}
