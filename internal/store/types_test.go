package store

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/costrisk/costrisk/internal/study"
	"github.com/costrisk/costrisk/internal/surface"
)

func TestCheckpoint_JSONSerialization(t *testing.T) {
	cfg := study.Config{
		Name:     "serialization-study",
		Samples:  120,
		Starts:   8,
		Workers:  4,
		Seed:     42,
		Strategy: "lhs",
		Method:   "bfgs",
		MaxIters: 200,
		Tol:      1e-8,
		Bounds:   &study.BoundsSpec{Cost: [2]float64{375, 425}, Risk: [2]float64{75, 85}},
	}
	original := &Checkpoint{
		StudyID:       "test-study-123",
		BestParams:    []float64{405.0, 79.5},
		BestCost:      1250.0,
		InitialCost:   1256.8,
		RunsCompleted: 5,
		TotalRuns:     8,
		Timestamp:     time.Date(2025, 10, 23, 10, 30, 0, 0, time.UTC),
		Config:        cfg,
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Failed to marshal checkpoint: %v", err)
	}

	if len(data) == 0 {
		t.Fatal("Marshaled JSON is empty")
	}

	var restored Checkpoint
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Failed to unmarshal checkpoint: %v", err)
	}

	if restored.StudyID != original.StudyID {
		t.Errorf("StudyID mismatch: expected %s, got %s", original.StudyID, restored.StudyID)
	}
	if restored.BestCost != original.BestCost {
		t.Errorf("BestCost mismatch: expected %f, got %f", original.BestCost, restored.BestCost)
	}
	if restored.InitialCost != original.InitialCost {
		t.Errorf("InitialCost mismatch: expected %f, got %f", original.InitialCost, restored.InitialCost)
	}
	if restored.RunsCompleted != original.RunsCompleted {
		t.Errorf("RunsCompleted mismatch: expected %d, got %d", original.RunsCompleted, restored.RunsCompleted)
	}
	if restored.TotalRuns != original.TotalRuns {
		t.Errorf("TotalRuns mismatch: expected %d, got %d", original.TotalRuns, restored.TotalRuns)
	}
	if !restored.Timestamp.Equal(original.Timestamp) {
		t.Errorf("Timestamp mismatch: expected %v, got %v", original.Timestamp, restored.Timestamp)
	}
	if len(restored.BestParams) != len(original.BestParams) {
		t.Fatalf("BestParams length mismatch: expected %d, got %d", len(original.BestParams), len(restored.BestParams))
	}
	for i := range original.BestParams {
		if restored.BestParams[i] != original.BestParams[i] {
			t.Errorf("BestParams[%d] mismatch: expected %f, got %f", i, original.BestParams[i], restored.BestParams[i])
		}
	}
	if restored.Config.Name != original.Config.Name {
		t.Errorf("Config.Name mismatch: expected %s, got %s", original.Config.Name, restored.Config.Name)
	}
	if restored.Config.Strategy != original.Config.Strategy {
		t.Errorf("Config.Strategy mismatch: expected %s, got %s", original.Config.Strategy, restored.Config.Strategy)
	}
	if restored.Config.Method != original.Config.Method {
		t.Errorf("Config.Method mismatch: expected %s, got %s", original.Config.Method, restored.Config.Method)
	}
	if restored.Config.Seed != original.Config.Seed {
		t.Errorf("Config.Seed mismatch: expected %d, got %d", original.Config.Seed, restored.Config.Seed)
	}
	if restored.Config.Bounds == nil {
		t.Fatal("Config.Bounds lost in serialization")
	}
	if *restored.Config.Bounds != *original.Config.Bounds {
		t.Errorf("Config.Bounds mismatch: expected %v, got %v", *original.Config.Bounds, *restored.Config.Bounds)
	}
}

func TestCheckpoint_JSONIndented(t *testing.T) {
	checkpoint := createTestCheckpoint("indent-study")

	// Serialize with indentation (like FSStore does)
	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		t.Fatalf("Failed to marshal with indent: %v", err)
	}

	var restored Checkpoint
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Failed to unmarshal indented JSON: %v", err)
	}

	if restored.StudyID != checkpoint.StudyID {
		t.Errorf("StudyID mismatch after indented serialization")
	}
}

func TestCheckpoint_Validate_Valid(t *testing.T) {
	checkpoint := createTestCheckpoint("valid-study")

	if err := checkpoint.Validate(); err != nil {
		t.Errorf("Valid checkpoint should not have validation error: %v", err)
	}
}

func TestCheckpoint_Validate_EmptyStudyID(t *testing.T) {
	checkpoint := createTestCheckpoint("any-study")
	checkpoint.StudyID = ""

	err := checkpoint.Validate()
	if err == nil {
		t.Fatal("Expected validation error for empty StudyID")
	}

	if _, ok := err.(*ValidationError); !ok {
		t.Errorf("Expected ValidationError, got %T", err)
	}
}

func TestCheckpoint_Validate_BadBestParams(t *testing.T) {
	testCases := []struct {
		name       string
		bestParams []float64
	}{
		{"nil params", nil},
		{"empty params", []float64{}},
		{"too few params", []float64{405.0}},
		{"too many params", []float64{405.0, 79.5, 1.0}},
		{"NaN param", []float64{math.NaN(), 79.5}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			checkpoint := createTestCheckpoint("params-study")
			checkpoint.BestParams = tc.bestParams

			if err := checkpoint.Validate(); err == nil {
				t.Fatalf("Expected validation error for %s", tc.name)
			}
		})
	}
}

func TestCheckpoint_Validate_BadCosts(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(c *Checkpoint)
	}{
		{"NaN best cost", func(c *Checkpoint) { c.BestCost = math.NaN() }},
		{"NaN initial cost", func(c *Checkpoint) { c.InitialCost = math.NaN() }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			checkpoint := createTestCheckpoint("cost-study")
			tc.mutate(checkpoint)

			if err := checkpoint.Validate(); err == nil {
				t.Fatalf("Expected validation error for %s", tc.name)
			}
		})
	}
}

func TestCheckpoint_Validate_BadRunCounts(t *testing.T) {
	testCases := []struct {
		name          string
		runsCompleted int
		totalRuns     int
	}{
		{"negative runs completed", -1, 8},
		{"zero total runs", 0, 0},
		{"negative total runs", 0, -3},
		{"completed exceeds total", 9, 8},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			checkpoint := createTestCheckpoint("runs-study")
			checkpoint.RunsCompleted = tc.runsCompleted
			checkpoint.TotalRuns = tc.totalRuns

			if err := checkpoint.Validate(); err == nil {
				t.Fatalf("Expected validation error for %s", tc.name)
			}
		})
	}
}

func TestCheckpoint_Validate_ZeroTimestamp(t *testing.T) {
	checkpoint := createTestCheckpoint("timestamp-study")
	checkpoint.Timestamp = time.Time{}

	if err := checkpoint.Validate(); err == nil {
		t.Fatal("Expected validation error for zero timestamp")
	}
}

func TestCheckpoint_Validate_InvalidConfig(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(cfg *study.Config)
	}{
		{"zero samples", func(cfg *study.Config) { cfg.Samples = 0 }},
		{"zero starts", func(cfg *study.Config) { cfg.Starts = 0 }},
		{"empty method", func(cfg *study.Config) { cfg.Method = "" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			checkpoint := createTestCheckpoint("config-study")
			tc.mutate(&checkpoint.Config)

			if err := checkpoint.Validate(); err == nil {
				t.Fatalf("Expected validation error for %s", tc.name)
			}
		})
	}
}

func TestCheckpoint_IsCompatible_Compatible(t *testing.T) {
	checkpoint := createTestCheckpoint("compat-study")
	config := checkpoint.Config

	if err := checkpoint.IsCompatible(config); err != nil {
		t.Errorf("Compatible configs should not return error: %v", err)
	}
}

func TestCheckpoint_IsCompatible_AllowsExecutionChanges(t *testing.T) {
	// Workers and checkpoint cadence do not change the deterministic plan
	// or the objective, so a resume may override them freely.
	checkpoint := createTestCheckpoint("exec-study")
	config := checkpoint.Config
	config.Workers = checkpoint.Config.Workers + 3
	config.CheckpointEvery = 1

	if err := checkpoint.IsCompatible(config); err != nil {
		t.Errorf("Execution-only changes should be compatible: %v", err)
	}
}

func TestCheckpoint_IsCompatible_DifferentSeed(t *testing.T) {
	checkpoint := createTestCheckpoint("seed-study")
	config := checkpoint.Config
	config.Seed = checkpoint.Config.Seed + 1

	err := checkpoint.IsCompatible(config)
	if err == nil {
		t.Fatal("Expected compatibility error for different Seed")
	}

	if _, ok := err.(*CompatibilityError); !ok {
		t.Errorf("Expected CompatibilityError, got %T", err)
	}
}

func TestCheckpoint_IsCompatible_PlanFields(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(cfg *study.Config)
	}{
		{"different samples", func(cfg *study.Config) { cfg.Samples++ }},
		{"different starts", func(cfg *study.Config) { cfg.Starts++ }},
		{"different strategy", func(cfg *study.Config) { cfg.Strategy = "uniform" }},
		{"different method", func(cfg *study.Config) { cfg.Method = "neldermead" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			checkpoint := createTestCheckpoint("plan-study")
			config := checkpoint.Config
			tc.mutate(&config)

			err := checkpoint.IsCompatible(config)
			if err == nil {
				t.Fatalf("Expected compatibility error for %s", tc.name)
			}
			if _, ok := err.(*CompatibilityError); !ok {
				t.Errorf("Expected CompatibilityError, got %T", err)
			}
		})
	}
}

func TestCheckpoint_IsCompatible_DifferentBounds(t *testing.T) {
	checkpoint := createTestCheckpoint("bounds-study")
	checkpoint.Config.Bounds = &study.BoundsSpec{Cost: [2]float64{375, 425}, Risk: [2]float64{75, 85}}

	// Different box
	config := checkpoint.Config
	config.Bounds = &study.BoundsSpec{Cost: [2]float64{380, 420}, Risk: [2]float64{75, 85}}
	if err := checkpoint.IsCompatible(config); err == nil {
		t.Fatal("Expected compatibility error for different Bounds")
	}

	// Explicit vs default box
	config.Bounds = nil
	if err := checkpoint.IsCompatible(config); err == nil {
		t.Fatal("Expected compatibility error for missing Bounds")
	}

	// Same box again
	config.Bounds = &study.BoundsSpec{Cost: [2]float64{375, 425}, Risk: [2]float64{75, 85}}
	if err := checkpoint.IsCompatible(config); err != nil {
		t.Errorf("Identical bounds should be compatible: %v", err)
	}
}

func TestCheckpoint_IsCompatible_DifferentSurface(t *testing.T) {
	checkpoint := createTestCheckpoint("surface-study")
	q := surface.Default()
	checkpoint.Config.Surface = &q

	// Changed coefficient
	altered := q
	altered.A20 = q.A20 * 2
	config := checkpoint.Config
	config.Surface = &altered
	if err := checkpoint.IsCompatible(config); err == nil {
		t.Fatal("Expected compatibility error for different Surface")
	}

	// Explicit vs default surface
	config.Surface = nil
	if err := checkpoint.IsCompatible(config); err == nil {
		t.Fatal("Expected compatibility error for missing Surface")
	}

	// Identical coefficients through a different pointer
	same := q
	config.Surface = &same
	if err := checkpoint.IsCompatible(config); err != nil {
		t.Errorf("Identical surface should be compatible: %v", err)
	}
}

func TestCheckpointInfo_FromCheckpoint(t *testing.T) {
	checkpoint := createTestCheckpoint("info-study")

	info := checkpoint.ToInfo()

	if info.StudyID != checkpoint.StudyID {
		t.Errorf("StudyID mismatch: expected %s, got %s", checkpoint.StudyID, info.StudyID)
	}
	if info.Name != checkpoint.Config.Name {
		t.Errorf("Name mismatch: expected %s, got %s", checkpoint.Config.Name, info.Name)
	}
	if info.Method != checkpoint.Config.Method {
		t.Errorf("Method mismatch: expected %s, got %s", checkpoint.Config.Method, info.Method)
	}
	if info.BestCost != checkpoint.BestCost {
		t.Errorf("BestCost mismatch: expected %f, got %f", checkpoint.BestCost, info.BestCost)
	}
	if info.RunsCompleted != checkpoint.RunsCompleted {
		t.Errorf("RunsCompleted mismatch: expected %d, got %d", checkpoint.RunsCompleted, info.RunsCompleted)
	}
	if info.TotalRuns != checkpoint.TotalRuns {
		t.Errorf("TotalRuns mismatch: expected %d, got %d", checkpoint.TotalRuns, info.TotalRuns)
	}
	if !info.Timestamp.Equal(checkpoint.Timestamp) {
		t.Errorf("Timestamp mismatch")
	}
}

func TestNewCheckpoint(t *testing.T) {
	studyID := "new-study"
	bestParams := []float64{404.2, 79.3}
	bestCost := 1250.3
	initialCost := 1259.7
	runsCompleted := 3
	totalRuns := 8
	config := study.DefaultConfig()

	checkpoint := NewCheckpoint(studyID, bestParams, bestCost, initialCost, runsCompleted, totalRuns, config)

	if checkpoint.StudyID != studyID {
		t.Errorf("StudyID mismatch: expected %s, got %s", studyID, checkpoint.StudyID)
	}
	if checkpoint.BestCost != bestCost {
		t.Errorf("BestCost mismatch: expected %f, got %f", bestCost, checkpoint.BestCost)
	}
	if checkpoint.InitialCost != initialCost {
		t.Errorf("InitialCost mismatch: expected %f, got %f", initialCost, checkpoint.InitialCost)
	}
	if checkpoint.RunsCompleted != runsCompleted {
		t.Errorf("RunsCompleted mismatch: expected %d, got %d", runsCompleted, checkpoint.RunsCompleted)
	}
	if checkpoint.TotalRuns != totalRuns {
		t.Errorf("TotalRuns mismatch: expected %d, got %d", totalRuns, checkpoint.TotalRuns)
	}
	if checkpoint.Timestamp.IsZero() {
		t.Error("Timestamp should not be zero")
	}
	if len(checkpoint.BestParams) != len(bestParams) {
		t.Errorf("BestParams length mismatch")
	}

	if err := checkpoint.Validate(); err != nil {
		t.Errorf("Fresh checkpoint should validate: %v", err)
	}
}
