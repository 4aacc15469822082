package study

import (
	"context"
	"errors"
	"testing"

	"github.com/costrisk/costrisk/internal/opt"
	"github.com/costrisk/costrisk/internal/surface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Samples:  60,
		Starts:   4,
		Workers:  2,
		Seed:     7,
		Strategy: "lhs",
		Method:   "bfgs",
		MaxIters: 300,
		Tol:      1e-10,
	}
}

func TestRunnerFindsVertex(t *testing.T) {
	r, err := NewRunner(testConfig())
	require.NoError(t, err)

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	// The vertex is interior to the default box, so the reported minimum
	// must match the closed form.
	v, err := surface.Default().Vertex()
	require.NoError(t, err)
	assert.InDelta(t, v[0], res.BestParams[0], 1e-4)
	assert.InDelta(t, v[1], res.BestParams[1], 1e-4)
	assert.InDelta(t, 1250.0, res.BestCost, 1e-6)

	assert.LessOrEqual(t, res.BestCost, res.InitialCost)
	assert.Equal(t, 60, res.Samples)
	assert.NotEmpty(t, res.Runs)
	assert.Equal(t, len(res.Runs), res.Summary.Completed)
	assert.Greater(t, res.Summary.Converged, 0)
	assert.GreaterOrEqual(t, res.Summary.MaxCost, res.Summary.MinCost)
	assert.InDelta(t, res.BestCost, res.Summary.MinCost, 1e-9)
}

func TestRunnerConstrainedBox(t *testing.T) {
	cfg := testConfig()
	cfg.Bounds = &BoundsSpec{Cost: [2]float64{375, 400}, Risk: [2]float64{75, 85}}
	cfg.Convergence = &ConvergenceConfig{Enabled: false}

	r, err := NewRunner(cfg)
	require.NoError(t, err)

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	wantX, wantVal := surface.Default().MinimumInBox(cfg.Bounds.ToBounds())
	assert.InDelta(t, wantX[0], res.BestParams[0], 1e-3)
	assert.InDelta(t, wantX[1], res.BestParams[1], 1e-3)
	assert.InDelta(t, wantVal, res.BestCost, 1e-3)
	assert.True(t, r.Bounds().Contains(res.BestParams))
}

func TestRunnerMayfly(t *testing.T) {
	cfg := testConfig()
	cfg.Starts = 2
	cfg.Method = "mayfly"
	cfg.MaxIters = 80
	cfg.PopSize = 20
	cfg.Convergence = &ConvergenceConfig{Enabled: false}

	r, err := NewRunner(cfg)
	require.NoError(t, err)

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, res.Runs, 2)
	assert.True(t, r.Bounds().Contains(res.BestParams))
	assert.GreaterOrEqual(t, res.BestCost, 1250.0-1e-6)
	assert.Less(t, res.BestCost, 1270.0)
	assert.LessOrEqual(t, res.BestCost, res.InitialCost)
}

func TestPlanDeterministic(t *testing.T) {
	r, err := NewRunner(testConfig())
	require.NoError(t, err)

	p1, err := r.Plan()
	require.NoError(t, err)
	p2, err := r.Plan()
	require.NoError(t, err)

	require.Equal(t, len(p1.Starts), len(p2.Starts))
	for i := range p1.Starts {
		assert.Equal(t, p1.Starts[i].X, p2.Starts[i].X)
		assert.Equal(t, p1.Starts[i].Value, p2.Starts[i].Value)
	}

	// Starts come best first.
	for i := 1; i < len(p1.Starts); i++ {
		assert.LessOrEqual(t, p1.Starts[i-1].Value, p1.Starts[i].Value)
	}

	cfg := testConfig()
	cfg.Seed = 8
	other, err := NewRunner(cfg)
	require.NoError(t, err)
	p3, err := other.Plan()
	require.NoError(t, err)
	assert.NotEqual(t, p1.Starts[0].X, p3.Starts[0].X)
}

func TestResumeSkipsCompletedRuns(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 1
	cfg.Convergence = &ConvergenceConfig{Enabled: false}

	r, err := NewRunner(cfg)
	require.NoError(t, err)

	prior := map[int]RunResult{
		0: {Run: 0, X: []float64{405, 79.5}, Cost: 1250, Converged: true, Status: "prior"},
		2: {Run: 2, X: []float64{404, 79.6}, Cost: 1250.2, Converged: true, Status: "prior"},
	}

	var executed []int
	r.OnRun = func(res RunResult, _ []float64, _ float64) {
		executed = append(executed, res.Run)
	}

	res, err := r.Resume(context.Background(), prior)
	require.NoError(t, err)

	assert.Len(t, res.Runs, 4)
	assert.ElementsMatch(t, []int{1, 3}, executed)
	assert.Equal(t, "prior", res.Runs[0].Status)
	assert.Equal(t, "prior", res.Runs[2].Status)
	assert.InDelta(t, 1250.0, res.BestCost, 1e-6)
}

func TestRunnerEarlyStop(t *testing.T) {
	cfg := testConfig()
	cfg.Starts = 8
	cfg.Workers = 1
	cfg.Convergence = &ConvergenceConfig{Enabled: true, Patience: 1, Threshold: 0.5}

	r, err := NewRunner(cfg)
	require.NoError(t, err)

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	// Every run reaches ~1250, so nothing clears a 50% improvement bar.
	assert.True(t, res.EarlyStopped)
	assert.GreaterOrEqual(t, len(res.Runs), 2)
	assert.InDelta(t, 1250.0, res.BestCost, 1e-6)
}

func TestRunnerEarlyStopDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Starts = 8
	cfg.Convergence = &ConvergenceConfig{Enabled: false}

	r, err := NewRunner(cfg)
	require.NoError(t, err)

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, res.EarlyStopped)
	assert.Len(t, res.Runs, 8)
}

func TestRunnerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, err := NewRunner(testConfig())
	require.NoError(t, err)

	_, err = r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

type panicBackend struct{}

func (panicBackend) Run(eval func([]float64) float64, x0, lower, upper []float64) (opt.Result, error) {
	panic("solver exploded")
}

type errorBackend struct{}

func (errorBackend) Run(eval func([]float64) float64, x0, lower, upper []float64) (opt.Result, error) {
	return opt.Result{}, errors.New("backend unavailable")
}

func TestRunnerSurvivesPanickingBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Convergence = &ConvergenceConfig{Enabled: false}

	r, err := NewRunner(cfg)
	require.NoError(t, err)
	r.optimizer = panicBackend{}

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, res.Runs, 4)
	for _, run := range res.Runs {
		assert.NotEmpty(t, run.Err)
		assert.False(t, run.Converged)
		assert.Equal(t, "panic", run.Status)
	}
	assert.Equal(t, 0, res.Summary.Completed)
	// With no usable run the best sampled point stands.
	assert.Equal(t, res.InitialCost, res.BestCost)
}

func TestRunnerRecordsBackendErrors(t *testing.T) {
	cfg := testConfig()
	cfg.Convergence = &ConvergenceConfig{Enabled: false}

	r, err := NewRunner(cfg)
	require.NoError(t, err)
	r.optimizer = errorBackend{}

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, res.Runs, 4)
	for _, run := range res.Runs {
		assert.Equal(t, "error", run.Status)
		assert.Contains(t, run.Err, "backend unavailable")
	}
}

func TestNewRunnerRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Starts = 100 // exceeds samples
	_, err := NewRunner(cfg)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Method = "annealing"
	_, err = NewRunner(cfg)
	assert.Error(t, err)
}
