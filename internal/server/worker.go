package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/costrisk/costrisk/internal/store"
	"github.com/costrisk/costrisk/internal/study"
)

// runJob executes a study job in the background. If st is not nil,
// checkpoints are saved per the config's cadence plus once at completion;
// if dataDir is not empty, every run outcome is appended to the study's
// trace file so the job can be resumed from the command line.
func runJob(ctx context.Context, jm *JobManager, st store.Store, dataDir string, jobID string) error {
	defer jm.Release(jobID)

	// Get the job
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	// Update state to running
	err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	})
	if err != nil {
		return err
	}

	slog.Info("Starting job", "job_id", jobID, "method", job.Config.Method, "strategy", job.Config.Strategy)

	runner, err := study.NewRunner(job.Config)
	if err != nil {
		markJobFailed(jm, jobID, err)
		broadcastState(jm, jobID)
		return err
	}
	cfg := runner.Config()

	// Derive the plan up front so status reports the baseline and totals
	// before the first run lands. Run re-derives the identical plan from
	// the seed.
	plan, err := runner.Plan()
	if err != nil {
		markJobFailed(jm, jobID, err)
		broadcastState(jm, jobID)
		return err
	}

	initialCost := plan.Starts[0].Value
	totalRuns := len(plan.Starts)
	jm.UpdateJob(jobID, func(j *Job) {
		j.Config = cfg
		j.InitialCost = initialCost
		j.BestCost = initialCost
		j.BestParams = append([]float64(nil), plan.Starts[0].X...)
		j.TotalRuns = totalRuns
	})

	var trace *store.TraceWriter
	if dataDir != "" {
		trace, err = store.NewTraceWriter(dataDir, jobID, false)
		if err != nil {
			slog.Warn("Trace recording disabled", "job_id", jobID, "error", err)
			trace = nil
		} else {
			defer trace.Close()
		}
	}

	startTime := job.StartTime
	runner.OnRun = func(res study.RunResult, bestParams []float64, bestCost float64) {
		var runs int
		jm.UpdateJob(jobID, func(j *Job) {
			j.Runs++
			j.BestCost = bestCost
			j.BestParams = append([]float64(nil), bestParams...)
			runs = j.Runs
		})

		if trace != nil {
			if err := trace.Write(store.NewTraceEntry(res)); err != nil {
				slog.Warn("Failed to record trace entry", "job_id", jobID, "run", res.Run, "error", err)
			} else if err := trace.Flush(); err != nil {
				slog.Warn("Failed to flush trace", "job_id", jobID, "error", err)
			}
		}

		if st != nil && cfg.CheckpointEvery > 0 && runs%cfg.CheckpointEvery == 0 {
			checkpoint := store.NewCheckpoint(jobID, bestParams, bestCost, initialCost, runs, totalRuns, cfg)
			if err := st.SaveCheckpoint(jobID, checkpoint); err != nil {
				slog.Warn("Failed to save checkpoint", "job_id", jobID, "error", err)
			}
		}

		jm.broadcaster.Broadcast(ProgressEvent{
			JobID:     jobID,
			State:     StateRunning,
			Runs:      runs,
			TotalRuns: totalRuns,
			BestCost:  bestCost,
			RPS:       runsPerSec(runs, time.Since(startTime)),
			Timestamp: time.Now(),
		})
	}

	result, err := runner.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			markJobCancelled(jm, jobID)
		} else {
			markJobFailed(jm, jobID, err)
		}
		broadcastState(jm, jobID)
		return err
	}

	// Update job with results
	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		if isTerminal(j.State) {
			return
		}
		j.State = StateCompleted
		j.BestParams = result.BestParams
		j.BestCost = result.BestCost
		j.InitialCost = result.InitialCost
		j.Runs = len(result.Runs)
		j.EndTime = &endTime
		j.Result = result
	})
	if err != nil {
		return err
	}

	// A final checkpoint always lands at completion so a later resume sees
	// the full set of runs.
	if st != nil {
		checkpoint := store.NewCheckpoint(jobID, result.BestParams, result.BestCost, result.InitialCost, len(result.Runs), totalRuns, cfg)
		if err := st.SaveCheckpoint(jobID, checkpoint); err != nil {
			slog.Warn("Failed to save final checkpoint", "job_id", jobID, "error", err)
		}
	}

	elapsed := endTime.Sub(startTime)
	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", elapsed,
		"initial_cost", result.InitialCost,
		"best_cost", result.BestCost,
		"runs", len(result.Runs),
		"runs_per_second", runsPerSec(len(result.Runs), elapsed),
	)

	broadcastState(jm, jobID)
	return nil
}

// broadcastState sends the job's current state to stream subscribers.
// Used for terminal transitions, where the per-run hook no longer fires.
func broadcastState(jm *JobManager, jobID string) {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return
	}

	var elapsed time.Duration
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime)
	} else {
		elapsed = time.Since(job.StartTime)
	}

	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:     jobID,
		State:     job.State,
		Runs:      job.Runs,
		TotalRuns: job.TotalRuns,
		BestCost:  job.BestCost,
		RPS:       runsPerSec(job.Runs, elapsed),
		Timestamp: time.Now(),
	})
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		if isTerminal(j.State) {
			return
		}
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled unless it already finished
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		if isTerminal(j.State) {
			return
		}
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)
}

func isTerminal(state JobState) bool {
	return state == StateCompleted || state == StateFailed || state == StateCancelled
}

func runsPerSec(runs int, elapsed time.Duration) float64 {
	if runs <= 0 || elapsed.Seconds() <= 0 {
		return 0
	}
	return float64(runs) / elapsed.Seconds()
}
