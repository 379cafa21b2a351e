package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/ogsolve/internal/store"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Terminal reports whether no further updates follow this state.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// JobConfig is an alias to avoid duplication with store.RunConfig
type JobConfig = store.RunConfig

// Job is one solver run requested over HTTP. Its ID doubles as the ID of the
// stored run; a transition job without a parent also records the
// steady-state run it solved first.
type Job struct {
	ID         string             `json:"id"`
	State      JobState           `json:"state"`
	Config     JobConfig          `json:"config"`
	ParentID   string             `json:"parentId,omitempty"`
	Solver     string             `json:"solver,omitempty"`
	Iterations int                `json:"iterations"`
	Residual   float64            `json:"residual"`
	Summary    map[string]float64 `json:"summary,omitempty"`
	StartTime  time.Time          `json:"startTime"`
	EndTime    *time.Time         `json:"endTime,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	cancels     map[string]context.CancelFunc
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		cancels:     make(map[string]context.CancelFunc),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob creates a new job with the given configuration
func (jm *JobManager) CreateJob(config JobConfig) *Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Config:    config,
		StartTime: time.Now(),
	}

	jm.jobs[job.ID] = job
	cp := *job
	return &cp
}

// GetJob returns a snapshot of the job with the given ID
func (jm *JobManager) GetJob(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	cp := *job
	return &cp, true
}

// ListJobs returns snapshots of all jobs, oldest first
func (jm *JobManager) ListJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]*Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		cp := *job
		jobs = append(jobs, &cp)
	}
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].StartTime.Before(jobs[k].StartTime)
	})
	return jobs
}

// UpdateJob atomically updates a job using the provided function
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	updateFn(job)
	return nil
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	runningJobs := make([]*Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			cp := *job
			runningJobs = append(runningJobs, &cp)
		}
	}
	return runningJobs
}

// setCancel registers the function that stops a job's solver.
func (jm *JobManager) setCancel(id string, cancel context.CancelFunc) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	jm.cancels[id] = cancel
}

// clearCancel releases a finished job's cancel function.
func (jm *JobManager) clearCancel(id string) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	delete(jm.cancels, id)
}

// CancelJob stops a pending or running job. It reports false when the job
// does not exist or has already finished.
func (jm *JobManager) CancelJob(id string) bool {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists || job.State.Terminal() {
		return false
	}
	if cancel, ok := jm.cancels[id]; ok {
		cancel()
		return true
	}
	// not started yet; the worker sees the state and returns
	endTime := time.Now()
	job.State = StateCancelled
	job.EndTime = &endTime
	jm.broadcaster.Broadcast(ProgressEvent{JobID: id, State: StateCancelled, Timestamp: endTime})
	return true
}

// Prune forgets terminal jobs that ended before cutoff and releases their
// stream state. Their runs stay in the store.
func (jm *JobManager) Prune(cutoff time.Time) []string {
	jm.mu.Lock()
	var pruned []string
	for id, job := range jm.jobs {
		if job.State.Terminal() && job.EndTime != nil && job.EndTime.Before(cutoff) {
			delete(jm.jobs, id)
			delete(jm.cancels, id)
			pruned = append(pruned, id)
		}
	}
	jm.mu.Unlock()

	for _, id := range pruned {
		jm.broadcaster.CleanupJob(id)
	}
	sort.Strings(pruned)
	return pruned
}
