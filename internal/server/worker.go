package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/ogsolve/internal/runner"
	"github.com/cwbudde/ogsolve/internal/solver"
)

// runJob executes a job in the background. The run is saved under the job
// ID; progress is mirrored into the job and broadcast to stream clients.
func runJob(ctx context.Context, jm *JobManager, rn *runner.Runner, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	jm.setCancel(jobID, cancel)
	defer jm.clearCancel(jobID)

	// a job cancelled before it started never runs
	if err := ctx.Err(); err != nil {
		markJobCancelled(jm, jobID)
		return err
	}
	cancelled := false
	jm.UpdateJob(jobID, func(j *Job) {
		if j.State == StateCancelled {
			cancelled = true
			return
		}
		j.State = StateRunning
	})
	if cancelled {
		return context.Canceled
	}

	slog.Info("Starting job", "job_id", jobID, "kind", job.Config.Kind, "parent", job.Config.Parent)

	start := time.Now()
	out, err := rn.Execute(ctx, jobID, job.Config, func(_ string, p solver.Progress) {
		jm.UpdateJob(jobID, func(j *Job) {
			j.Solver = p.Solver
			j.Iterations = p.Iteration
			j.Residual = p.Residual
		})
		jm.broadcaster.Broadcast(ProgressEvent{
			JobID:     jobID,
			State:     StateRunning,
			Solver:    p.Solver,
			Iteration: p.Iteration,
			Residual:  p.Residual,
			Timestamp: time.Now(),
		})
	})

	if out != nil && out.Parent != nil {
		jm.UpdateJob(jobID, func(j *Job) { j.ParentID = out.Parent.ID })
	}

	switch {
	case errors.Is(err, context.Canceled):
		markJobCancelled(jm, jobID)
		return err
	case err != nil:
		markJobFailed(jm, jobID, err)
		return err
	}

	endTime := time.Now()
	run := out.Run
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Iterations = run.Iterations
		j.Residual = run.Residual
		j.Summary = run.Summary
		if j.Summary == nil && out.Parent != nil {
			j.Summary = out.Parent.Summary
		}
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}

	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", time.Since(start),
		"iterations", run.Iterations,
		"residual", run.Residual,
	)

	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:     jobID,
		State:     StateCompleted,
		Solver:    run.Config.Kind,
		Iteration: run.Iterations,
		Residual:  run.Residual,
		Timestamp: time.Now(),
	})
	return nil
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	jm.broadcaster.Broadcast(ProgressEvent{JobID: jobID, State: StateFailed, Timestamp: endTime})
	slog.Error("Job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	jm.broadcaster.Broadcast(ProgressEvent{JobID: jobID, State: StateCancelled, Timestamp: endTime})
	slog.Info("Job cancelled", "job_id", jobID)
}
