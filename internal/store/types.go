package store

import (
	"fmt"
	"math"
	"time"

	"github.com/costrisk/costrisk/internal/study"
	"github.com/costrisk/costrisk/internal/surface"
)

// Checkpoint represents saved study progress that can be resumed later.
// All fields are serialized to JSON for persistence.
//
// A checkpoint records run OUTCOMES, not optimizer internals. The sampling
// plan is fully determined by the embedded config (same seed, same
// strategy), so a resumed study re-derives the identical start list and
// simply skips the run indices the trace already covers. Backend state
// (BFGS curvature estimates, mayfly populations) is rebuilt per run and
// never persisted; a run is either complete in the trace or re-executed
// from its start point, bit-for-bit the same either way.
type Checkpoint struct {
	// StudyID is the unique identifier for this study.
	StudyID string `json:"studyId"`

	// BestParams is the best (cost, risk) point over all completed runs.
	BestParams []float64 `json:"bestParams"`

	// BestCost is the surface value achieved by BestParams.
	BestCost float64 `json:"bestCost"`

	// InitialCost is the best sampled value before any optimization,
	// kept for improvement tracking.
	InitialCost float64 `json:"initialCost"`

	// RunsCompleted counts the local runs finished when this checkpoint
	// was created; TotalRuns is the planned number of starts.
	RunsCompleted int `json:"runsCompleted"`
	TotalRuns     int `json:"totalRuns"`

	// Timestamp records when this checkpoint was created.
	Timestamp time.Time `json:"timestamp"`

	// Config holds the study configuration, needed to validate that a
	// resume re-derives the same deterministic plan.
	Config study.Config `json:"config"`
}

// CheckpointInfo contains metadata about a checkpoint without the parameter
// payload. Used for listing studies efficiently.
type CheckpointInfo struct {
	StudyID       string    `json:"studyId"`
	Name          string    `json:"name,omitempty"`
	Method        string    `json:"method"`
	BestCost      float64   `json:"bestCost"`
	RunsCompleted int       `json:"runsCompleted"`
	TotalRuns     int       `json:"totalRuns"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewCheckpoint creates a checkpoint from runtime study state.
func NewCheckpoint(studyID string, bestParams []float64, bestCost, initialCost float64, runsCompleted, totalRuns int, config study.Config) *Checkpoint {
	return &Checkpoint{
		StudyID:       studyID,
		BestParams:    bestParams,
		BestCost:      bestCost,
		InitialCost:   initialCost,
		RunsCompleted: runsCompleted,
		TotalRuns:     totalRuns,
		Timestamp:     time.Now(),
		Config:        config,
	}
}

// ToInfo converts a full Checkpoint to metadata-only CheckpointInfo.
func (c *Checkpoint) ToInfo() CheckpointInfo {
	return CheckpointInfo{
		StudyID:       c.StudyID,
		Name:          c.Config.Name,
		Method:        c.Config.Method,
		BestCost:      c.BestCost,
		RunsCompleted: c.RunsCompleted,
		TotalRuns:     c.TotalRuns,
		Timestamp:     c.Timestamp,
	}
}

// Validate checks if the checkpoint has valid data.
// Returns an error if any required field is missing or inconsistent.
func (c *Checkpoint) Validate() error {
	if c.StudyID == "" {
		return &ValidationError{Field: "StudyID", Reason: "cannot be empty"}
	}
	if len(c.BestParams) == 0 {
		return &ValidationError{Field: "BestParams", Reason: "cannot be empty"}
	}
	// The surface is two-dimensional: (cost, risk).
	if len(c.BestParams) != 2 {
		return &ValidationError{Field: "BestParams", Reason: "length must be 2"}
	}
	for _, v := range c.BestParams {
		if math.IsNaN(v) {
			return &ValidationError{Field: "BestParams", Reason: "cannot contain NaN"}
		}
	}
	if math.IsNaN(c.BestCost) {
		return &ValidationError{Field: "BestCost", Reason: "cannot be NaN"}
	}
	if math.IsNaN(c.InitialCost) {
		return &ValidationError{Field: "InitialCost", Reason: "cannot be NaN"}
	}
	if c.RunsCompleted < 0 {
		return &ValidationError{Field: "RunsCompleted", Reason: "cannot be negative"}
	}
	if c.TotalRuns <= 0 {
		return &ValidationError{Field: "TotalRuns", Reason: "must be positive"}
	}
	if c.RunsCompleted > c.TotalRuns {
		return &ValidationError{
			Field:  "RunsCompleted",
			Reason: fmt.Sprintf("exceeds total runs: %d > %d", c.RunsCompleted, c.TotalRuns),
		}
	}
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if c.Config.Samples <= 0 {
		return &ValidationError{Field: "Config.Samples", Reason: "must be positive"}
	}
	if c.Config.Starts <= 0 {
		return &ValidationError{Field: "Config.Starts", Reason: "must be positive"}
	}
	if c.Config.Method == "" {
		return &ValidationError{Field: "Config.Method", Reason: "cannot be empty"}
	}
	return nil
}

// ValidationError represents a checkpoint validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks if this checkpoint can be resumed with the given
// config. The plan is derived deterministically from the config, so any
// field that changes the plan or the objective makes the stored run
// indices meaningless.
func (c *Checkpoint) IsCompatible(config study.Config) error {
	if c.Config.Seed != config.Seed {
		return &CompatibilityError{
			Field:    "Seed",
			Expected: fmt.Sprintf("%d", c.Config.Seed),
			Actual:   fmt.Sprintf("%d", config.Seed),
		}
	}
	if c.Config.Samples != config.Samples {
		return &CompatibilityError{
			Field:    "Samples",
			Expected: fmt.Sprintf("%d", c.Config.Samples),
			Actual:   fmt.Sprintf("%d", config.Samples),
		}
	}
	if c.Config.Starts != config.Starts {
		return &CompatibilityError{
			Field:    "Starts",
			Expected: fmt.Sprintf("%d", c.Config.Starts),
			Actual:   fmt.Sprintf("%d", config.Starts),
		}
	}
	if c.Config.Strategy != config.Strategy {
		return &CompatibilityError{
			Field:    "Strategy",
			Expected: c.Config.Strategy,
			Actual:   config.Strategy,
		}
	}
	if c.Config.Method != config.Method {
		return &CompatibilityError{
			Field:    "Method",
			Expected: c.Config.Method,
			Actual:   config.Method,
		}
	}
	if !boundsEqual(c.Config.Bounds, config.Bounds) {
		return &CompatibilityError{
			Field:    "Bounds",
			Expected: boundsString(c.Config.Bounds),
			Actual:   boundsString(config.Bounds),
		}
	}
	if !surfaceEqual(c.Config.Surface, config.Surface) {
		return &CompatibilityError{
			Field:    "Surface",
			Expected: "stored coefficients",
			Actual:   "different coefficients",
		}
	}
	return nil
}

// CompatibilityError represents a checkpoint compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}

func boundsEqual(a, b *study.BoundsSpec) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func boundsString(b *study.BoundsSpec) string {
	if b == nil {
		return "default"
	}
	return fmt.Sprintf("cost %v risk %v", b.Cost, b.Risk)
}

func surfaceEqual(a, b *surface.Quadratic) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}
