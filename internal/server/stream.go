package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// streamBuffer is the per-client backlog. A solver reports one event per
// outer iteration, so this only fills when a client stalls.
const streamBuffer = 64

// ProgressEvent is one job update. Seq increases by one per event of a job
// and doubles as the SSE event ID.
type ProgressEvent struct {
	JobID     string    `json:"jobId"`
	Seq       uint64    `json:"seq"`
	State     JobState  `json:"state"`
	Solver    string    `json:"solver,omitempty"`
	Iteration int       `json:"iteration"`
	Residual  float64   `json:"residual"`
	Timestamp time.Time `json:"timestamp"`
}

// name is the SSE event type: progress while a solver iterates, otherwise
// the job state.
func (e ProgressEvent) name() string {
	if e.State == StateRunning && e.Iteration > 0 {
		return "progress"
	}
	return string(e.State)
}

// topic holds the subscribers and the replay state of one job.
type topic struct {
	subs map[chan ProgressEvent]struct{}
	last ProgressEvent
	seq  uint64
}

// EventBroadcaster fans job events out to stream clients.
type EventBroadcaster struct {
	mu     sync.Mutex
	topics map[string]*topic
}

// NewEventBroadcaster creates a new event broadcaster
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{topics: make(map[string]*topic)}
}

func (eb *EventBroadcaster) topic(jobID string) *topic {
	t, ok := eb.topics[jobID]
	if !ok {
		t = &topic{subs: make(map[chan ProgressEvent]struct{})}
		eb.topics[jobID] = t
	}
	return t
}

// Subscribe registers a client for jobID. The job's last event, if any, is
// queued first so late clients start from the current state.
func (eb *EventBroadcaster) Subscribe(jobID string) chan ProgressEvent {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	t := eb.topic(jobID)
	ch := make(chan ProgressEvent, streamBuffer)
	t.subs[ch] = struct{}{}
	if t.seq > 0 {
		ch <- t.last
	}

	slog.Debug("SSE client subscribed", "jobID", jobID, "clients", len(t.subs))
	return ch
}

// Unsubscribe removes and closes ch. Channels already closed by CleanupJob
// are ignored.
func (eb *EventBroadcaster) Unsubscribe(jobID string, ch chan ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	t, ok := eb.topics[jobID]
	if !ok {
		return
	}
	if _, ok := t.subs[ch]; ok {
		delete(t.subs, ch)
		close(ch)
	}
	slog.Debug("SSE client unsubscribed", "jobID", jobID)
}

// Broadcast stamps event with the job's next sequence number and queues it
// for every subscriber. Progress events are dropped for a client whose
// buffer is full; a terminal event evicts the oldest queued event instead,
// so every client sees how the job ended.
func (eb *EventBroadcaster) Broadcast(event ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	t := eb.topic(event.JobID)
	t.seq++
	event.Seq = t.seq
	t.last = event

	for ch := range t.subs {
		select {
		case ch <- event:
			continue
		default:
		}
		if !event.State.Terminal() {
			slog.Warn("SSE client lagging, dropping event", "jobID", event.JobID, "seq", event.Seq)
			continue
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- event:
		default:
		}
	}
}

// LastEvent returns the most recent event of a job.
func (eb *EventBroadcaster) LastEvent(jobID string) (ProgressEvent, bool) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	t, ok := eb.topics[jobID]
	if !ok || t.seq == 0 {
		return ProgressEvent{}, false
	}
	return t.last, true
}

// CleanupJob closes every client of a job and forgets its events.
func (eb *EventBroadcaster) CleanupJob(jobID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	t, ok := eb.topics[jobID]
	if !ok {
		return
	}
	for ch := range t.subs {
		close(ch)
	}
	delete(eb.topics, jobID)
	slog.Debug("Cleaned up SSE resources", "jobID", jobID)
}

// handleJobStream streams job progress as server-sent events until the job
// reaches a terminal state or the client disconnects. A reconnecting client
// that sends Last-Event-ID skips events it has already seen.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var seen uint64
	if id := r.Header.Get("Last-Event-ID"); id != "" {
		seen, _ = strconv.ParseUint(id, 10, 64)
	}

	events := s.jobManager.broadcaster.Subscribe(jobID)
	defer s.jobManager.broadcaster.Unsubscribe(jobID, events)

	// Workers update a job before broadcasting, so a snapshot taken after
	// reading the last sequence number is at least as new as that event.
	var lastSeq uint64
	if last, ok := s.jobManager.broadcaster.LastEvent(jobID); ok {
		lastSeq = last.Seq
	}
	if snap, ok := s.jobManager.GetJob(jobID); ok {
		job = snap
	}
	initial := ProgressEvent{
		JobID:     job.ID,
		Seq:       lastSeq,
		State:     job.State,
		Solver:    job.Solver,
		Iteration: job.Iterations,
		Residual:  job.Residual,
		Timestamp: time.Now(),
	}
	if seen == 0 || initial.Seq > seen {
		if err := writeSSEEvent(w, initial); err != nil {
			slog.Error("Failed to write initial SSE event", "error", err)
			return
		}
		flusher.Flush()
		seen = initial.Seq
	}
	if job.State.Terminal() {
		return
	}

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			slog.Debug("SSE client disconnected", "jobID", jobID)
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Seq <= seen && seen > 0 {
				continue
			}
			seen = ev.Seq
			if err := writeSSEEvent(w, ev); err != nil {
				slog.Error("Failed to write SSE event", "error", err)
				return
			}
			flusher.Flush()
			if ev.State.Terminal() {
				return
			}

		case <-ping.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes one event with its ID, type and JSON payload.
func writeSSEEvent(w io.Writer, ev ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.name(), data)
	return err
}
