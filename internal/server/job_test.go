package server

import (
	"context"
	"testing"
	"time"

	"github.com/costrisk/costrisk/internal/study"
)

// testJobConfig returns a small valid study config for job tests.
func testJobConfig() JobConfig {
	cfg := study.DefaultConfig()
	cfg.Name = "server-test"
	cfg.Samples = 30
	cfg.Starts = 2
	cfg.Workers = 2
	cfg.Seed = 42
	return cfg
}

func TestJobManager_CreateJob(t *testing.T) {
	jm := NewJobManager()

	config := testJobConfig()
	job := jm.CreateJob(config)

	if job.ID == "" {
		t.Error("Job ID should not be empty")
	}

	if job.State != StatePending {
		t.Errorf("Initial state should be pending, got %s", job.State)
	}

	if job.Config.Name != "server-test" {
		t.Errorf("Config not set correctly")
	}
	if job.Config.Seed != 42 {
		t.Errorf("Config seed not set correctly")
	}
}

func TestJobManager_GetJob(t *testing.T) {
	jm := NewJobManager()

	job := jm.CreateJob(testJobConfig())

	retrieved, exists := jm.GetJob(job.ID)
	if !exists {
		t.Error("Job should exist")
	}

	if retrieved.ID != job.ID {
		t.Error("Retrieved wrong job")
	}

	_, exists = jm.GetJob("nonexistent")
	if exists {
		t.Error("Should not find nonexistent job")
	}
}

func TestJobManager_GetJob_Snapshot(t *testing.T) {
	jm := NewJobManager()

	job := jm.CreateJob(testJobConfig())

	snapshot, _ := jm.GetJob(job.ID)
	snapshot.State = StateFailed
	snapshot.BestCost = 999.0

	// Mutating the snapshot must not touch the stored job
	stored, _ := jm.GetJob(job.ID)
	if stored.State != StatePending {
		t.Errorf("Stored job state changed through snapshot: %s", stored.State)
	}
	if stored.BestCost != 0 {
		t.Errorf("Stored job cost changed through snapshot: %f", stored.BestCost)
	}
}

func TestJobManager_ListJobs(t *testing.T) {
	jm := NewJobManager()

	if len(jm.ListJobs()) != 0 {
		t.Error("Should start with no jobs")
	}

	jm.CreateJob(testJobConfig())
	jm.CreateJob(testJobConfig())

	jobs := jm.ListJobs()
	if len(jobs) != 2 {
		t.Errorf("Expected 2 jobs, got %d", len(jobs))
	}
}

func TestJobManager_UpdateJob(t *testing.T) {
	jm := NewJobManager()

	job := jm.CreateJob(testJobConfig())

	err := jm.UpdateJob(job.ID, func(j *Job) {
		j.State = StateRunning
		j.Runs = 3
		j.BestCost = 1251.45
	})

	if err != nil {
		t.Errorf("Update should succeed: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateRunning {
		t.Error("State should be updated")
	}
	if updated.Runs != 3 {
		t.Error("Runs should be updated")
	}
	if updated.BestCost != 1251.45 {
		t.Error("BestCost should be updated")
	}

	err = jm.UpdateJob("nonexistent", func(j *Job) {})
	if err == nil {
		t.Error("Update of nonexistent job should fail")
	}
}

func TestJobManager_Cancel(t *testing.T) {
	jm := NewJobManager()

	job := jm.CreateJob(testJobConfig())

	ctx, cancel := context.WithCancel(context.Background())
	jm.RegisterCancel(job.ID, cancel)

	if !jm.Cancel(job.ID) {
		t.Error("Cancel should report a registered worker")
	}

	select {
	case <-ctx.Done():
	default:
		t.Error("Registered cancel function was not invoked")
	}

	// A second cancel finds nothing
	if jm.Cancel(job.ID) {
		t.Error("Cancel should be a no-op once released")
	}
}

func TestJobManager_Cancel_Unregistered(t *testing.T) {
	jm := NewJobManager()

	if jm.Cancel("nonexistent") {
		t.Error("Cancel of unregistered job should report false")
	}
}

func TestJobManager_CancelAll(t *testing.T) {
	jm := NewJobManager()

	var ctxs []context.Context
	for i := 0; i < 3; i++ {
		job := jm.CreateJob(testJobConfig())
		ctx, cancel := context.WithCancel(context.Background())
		jm.RegisterCancel(job.ID, cancel)
		ctxs = append(ctxs, ctx)
	}

	jm.CancelAll()

	for i, ctx := range ctxs {
		select {
		case <-ctx.Done():
		default:
			t.Errorf("Worker %d was not cancelled", i)
		}
	}
}

func TestJobManager_ThreadSafety(t *testing.T) {
	jm := NewJobManager()

	job := jm.CreateJob(testJobConfig())

	// Simulate concurrent updates
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(runs int) {
			jm.UpdateJob(job.ID, func(j *Job) {
				j.Runs = runs
				time.Sleep(1 * time.Millisecond)
			})
			done <- true
		}(i)
	}

	// Wait for all updates
	for i := 0; i < 10; i++ {
		<-done
	}

	// Should not crash - actual value depends on scheduling
	_, exists := jm.GetJob(job.ID)
	if !exists {
		t.Error("Job should still exist after concurrent updates")
	}
}
