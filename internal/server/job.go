package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/costrisk/costrisk/internal/study"
	"github.com/google/uuid"
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

// JobConfig is an alias so API payloads share the study's config schema
type JobConfig = study.Config

// Job represents one study executed by the server
type Job struct {
	ID          string     `json:"id"`
	State       JobState   `json:"state"`
	Config      JobConfig  `json:"config"`
	BestParams  []float64  `json:"bestParams,omitempty"`
	BestCost    float64    `json:"bestCost"`
	InitialCost float64    `json:"initialCost"`
	Runs        int        `json:"runs"`
	TotalRuns   int        `json:"totalRuns"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	Error       string     `json:"error,omitempty"`

	// Result holds the full study outcome once the job completes. It is
	// served by the result endpoint rather than inlined into job JSON.
	Result *study.Result `json:"-"`
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

	snapshot := *job
	return &snapshot
}

// GetJob retrieves a snapshot of a job by ID. The worker replaces slice
// fields instead of mutating them, so the shallow copy is safe to read
// without further locking.
func (jm *JobManager) GetJob(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}

	snapshot := *job
	return &snapshot, true
}

// ListJobs returns snapshots of all jobs
func (jm *JobManager) ListJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]*Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		snapshot := *job
		jobs = append(jobs, &snapshot)
	}
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

// RegisterCancel stores the cancel function for a job's worker so an API
// delete can stop it.
func (jm *JobManager) RegisterCancel(id string, cancel context.CancelFunc) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	jm.cancels[id] = cancel
}

// Cancel invokes the registered cancel function for a job. It reports
// whether a cancellable worker was found.
func (jm *JobManager) Cancel(id string) bool {
	jm.mu.Lock()
	cancel, ok := jm.cancels[id]
	delete(jm.cancels, id)
	jm.mu.Unlock()

	if ok {
		cancel()
	}
	return ok
}

// Release drops the cancel registration once a job's worker has exited.
// The context is cancelled to free its resources; a finished worker no
// longer observes it.
func (jm *JobManager) Release(id string) {
	jm.Cancel(id)
}

// CancelAll stops every registered worker. Used on shutdown.
func (jm *JobManager) CancelAll() {
	jm.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(jm.cancels))
	for id, cancel := range jm.cancels {
		cancels = append(cancels, cancel)
		delete(jm.cancels, id)
	}
	jm.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}
