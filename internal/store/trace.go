package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cwbudde/ogsolve/internal/solver"
)

const traceFile = "trace.jsonl"

// TraceEntry is one outer iteration of a solver, serialized as a JSON line
// in trace.jsonl. A transition run solved without a parent records the
// steady-state iterations of its parent in the parent's own trace.
type TraceEntry struct {
	// Solver is ss or tpi
	Solver string `json:"solver"`

	Iteration int     `json:"iteration"`
	Residual  float64 `json:"residual"`

	// Timestamp records when the iteration finished
	Timestamp time.Time `json:"timestamp"`
}

// FromProgress converts a solver progress report to a trace entry.
func FromProgress(p solver.Progress) TraceEntry {
	return TraceEntry{
		Solver:    p.Solver,
		Iteration: p.Iteration,
		Residual:  p.Residual,
		Timestamp: time.Now(),
	}
}

func tracePath(baseDir, runID string) string {
	return filepath.Join(runDir(baseDir, runID), traceFile)
}

// TraceWriter appends entries to a run's trace. Entries are buffered until
// Flush or Close; Write is safe for concurrent use, although the solvers
// only report from their orchestrating goroutine.
type TraceWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
	path string
}

// NewTraceWriter opens <baseDir>/runs/<runID>/trace.jsonl, truncating it
// unless appendOnly is set.
func NewTraceWriter(baseDir, runID string, appendOnly bool) (*TraceWriter, error) {
	if err := os.MkdirAll(runDir(baseDir, runID), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendOnly {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	path := tracePath(baseDir, runID)
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	buf := bufio.NewWriterSize(file, 32*1024)
	return &TraceWriter{file: file, buf: buf, enc: json.NewEncoder(buf), path: path}, nil
}

// Write buffers one entry. Encode terminates each entry with a newline.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.enc.Encode(entry); err != nil {
		return fmt.Errorf("failed to write trace entry %d: %w", entry.Iteration, err)
	}
	return nil
}

// Flush writes buffered entries and syncs the file, so a reader polling the
// trace of a running job sees every finished iteration.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace: %w", err)
	}
	return nil
}

// Close flushes and closes the trace file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	flushErr := tw.buf.Flush()
	closeErr := tw.file.Close()
	if flushErr != nil {
		return fmt.Errorf("failed to flush trace on close: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close trace: %w", closeErr)
	}
	return nil
}

// Path returns the filesystem path to the trace file.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// TraceReader streams entries from a run's trace.
type TraceReader struct {
	file *os.File
	dec  *json.Decoder
	line int
}

// NewTraceReader opens the trace of runID. A run without a trace yields a
// NotFoundError.
func NewTraceReader(baseDir, runID string) (*TraceReader, error) {
	file, err := os.Open(tracePath(baseDir, runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{RunID: runID}
		}
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	return &TraceReader{file: file, dec: json.NewDecoder(bufio.NewReader(file))}, nil
}

// Read returns the next entry, or io.EOF after the last one.
func (tr *TraceReader) Read() (*TraceEntry, error) {
	var entry TraceEntry
	if err := tr.dec.Decode(&entry); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("trace entry %d: %w", tr.line+1, err)
	}
	tr.line++
	return &entry, nil
}

// ReadAll reads the remaining entries.
func (tr *TraceReader) ReadAll() ([]TraceEntry, error) {
	var entries []TraceEntry
	for {
		entry, err := tr.Read()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
}

// Close closes the trace reader.
func (tr *TraceReader) Close() error {
	if err := tr.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// ReadTrace loads the whole trace of runID.
func ReadTrace(baseDir, runID string) ([]TraceEntry, error) {
	tr, err := NewTraceReader(baseDir, runID)
	if err != nil {
		return nil, err
	}
	defer tr.Close()
	return tr.ReadAll()
}

// DeleteTrace removes the trace of runID. A missing trace is not an error.
func DeleteTrace(baseDir, runID string) error {
	if err := os.Remove(tracePath(baseDir, runID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete trace file: %w", err)
	}
	return nil
}

// TraceSummary condenses the residual history of one solver.
type TraceSummary struct {
	Solver     string  `json:"solver"`
	Iterations int     `json:"iterations"`
	First      float64 `json:"first"`
	Last       float64 `json:"last"`
	Min        float64 `json:"min"`

	// Rate is the geometric mean ratio of successive residuals, zero when
	// there are fewer than two positive residuals. Below one the iteration
	// contracts; a damped fixed point converges linearly at roughly this rate.
	Rate float64 `json:"rate"`

	Elapsed time.Duration `json:"elapsed"`
}

// Summarize groups entries by solver, in order of first appearance.
func Summarize(entries []TraceEntry) []TraceSummary {
	var out []TraceSummary
	index := map[string]int{}
	var logRatio []float64
	var ratios []int
	var start []time.Time

	for _, e := range entries {
		i, ok := index[e.Solver]
		if !ok {
			i = len(out)
			index[e.Solver] = i
			out = append(out, TraceSummary{Solver: e.Solver, First: e.Residual, Min: e.Residual})
			logRatio = append(logRatio, 0)
			ratios = append(ratios, 0)
			start = append(start, e.Timestamp)
		} else {
			prev := out[i].Last
			if prev > 0 && e.Residual > 0 {
				logRatio[i] += math.Log(e.Residual / prev)
				ratios[i]++
			}
		}
		s := &out[i]
		s.Iterations++
		s.Last = e.Residual
		s.Min = math.Min(s.Min, e.Residual)
		if !e.Timestamp.IsZero() && !start[i].IsZero() {
			s.Elapsed = e.Timestamp.Sub(start[i])
		}
	}
	for i := range out {
		if ratios[i] > 0 {
			out[i].Rate = math.Exp(logRatio[i] / float64(ratios[i]))
		}
	}
	return out
}
