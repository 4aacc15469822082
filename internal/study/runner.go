package study

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/costrisk/costrisk/internal/opt"
	"github.com/costrisk/costrisk/internal/sample"
	"github.com/costrisk/costrisk/internal/surface"
)

// RunResult is the outcome of one local optimization run.
type RunResult struct {
	Run        int           `json:"run"`
	Start      []float64     `json:"start"`
	StartValue float64       `json:"startValue"`
	X          []float64     `json:"x"`
	Cost       float64       `json:"cost"`
	Converged  bool          `json:"converged"`
	Status     string        `json:"status"`
	FuncEvals  int           `json:"funcEvals,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`

	// Err is set when the run failed outright (backend error or panic)
	// instead of merely not converging.
	Err string `json:"error,omitempty"`
}

// Plan is the deterministic pre-optimization phase: every evaluated sample
// and the starts selected from them, best first.
type Plan struct {
	Samples []sample.Point `json:"samples"`
	Starts  []sample.Point `json:"starts"`
}

// Summary aggregates the final costs of runs that produced a solution.
type Summary struct {
	Completed int     `json:"completed"`
	Converged int     `json:"converged"`
	MeanCost  float64 `json:"meanCost"`
	StdCost   float64 `json:"stdCost"`
	MinCost   float64 `json:"minCost"`
	MaxCost   float64 `json:"maxCost"`
}

// Result is the whole-study outcome.
type Result struct {
	Config       Config        `json:"config"`
	Samples      int           `json:"samples"`
	InitialCost  float64       `json:"initialCost"`
	BestParams   []float64     `json:"bestParams"`
	BestCost     float64       `json:"bestCost"`
	Runs         []RunResult   `json:"runs"`
	Summary      Summary       `json:"summary"`
	Elapsed      time.Duration `json:"elapsed"`
	EarlyStopped bool          `json:"earlyStopped,omitempty"`
}

// Runner executes a study: sampling, start selection, and the parallel
// multistart over the configured backend.
type Runner struct {
	cfg       Config
	surface   surface.Quadratic
	bounds    surface.Bounds
	optimizer opt.Optimizer

	// OnRun, when set, observes every completed run together with the best
	// solution so far. It is called from the collecting goroutine, one run
	// at a time.
	OnRun func(res RunResult, bestParams []float64, bestCost float64)
}

// NewRunner resolves surface, bounds and backend from the config. Defaults
// are applied to unset fields first.
func NewRunner(cfg Config) (*Runner, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid study config: %w", err)
	}

	q := surface.Default()
	if cfg.Surface != nil {
		q = *cfg.Surface
	}
	b := surface.DefaultBounds()
	if cfg.Bounds != nil {
		b = cfg.Bounds.ToBounds()
	}

	var optimizer opt.Optimizer
	switch cfg.Method {
	case "bfgs":
		backend := opt.NewBFGS(cfg.MaxIters, cfg.Tol)
		backend.Grad = q.Grad
		optimizer = backend
	case "neldermead":
		optimizer = opt.NewNelderMead(cfg.MaxIters, cfg.Tol)
	case "mayfly":
		optimizer = opt.NewMayfly(cfg.MaxIters, cfg.PopSize, cfg.Seed)
	}

	return &Runner{cfg: cfg, surface: q, bounds: b, optimizer: optimizer}, nil
}

// Config returns the effective config with defaults applied.
func (r *Runner) Config() Config {
	return r.cfg
}

// Bounds returns the box the study searches.
func (r *Runner) Bounds() surface.Bounds {
	return r.bounds
}

// Plan samples the box, evaluates the surface and selects the starts. The
// sampler is rebuilt from the seed on every call, so the plan is identical
// across calls and across processes for the same config.
func (r *Runner) Plan() (*Plan, error) {
	smp, ok := sample.ByName(r.cfg.Strategy, r.cfg.Seed)
	if !ok {
		return nil, fmt.Errorf("unknown sampling strategy %q", r.cfg.Strategy)
	}

	pts := smp.Sample(r.cfg.Samples, r.bounds)
	if len(pts) == 0 {
		return nil, fmt.Errorf("strategy %q produced no points for n=%d", r.cfg.Strategy, r.cfg.Samples)
	}

	evaluated := sample.Evaluate(pts, r.surface.Eval)
	starts := sample.SelectBest(evaluated, r.cfg.Starts)
	slog.Info("Plan ready",
		"samples", len(evaluated),
		"starts", len(starts),
		"best_sampled", starts[0].Value,
	)
	return &Plan{Samples: evaluated, Starts: starts}, nil
}

// Run executes the full pipeline.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	return r.Resume(ctx, nil)
}

// Resume executes the pipeline while skipping run indices already present
// in prior, merging those into the final result. Run is Resume with no
// prior runs.
func (r *Runner) Resume(ctx context.Context, prior map[int]RunResult) (*Result, error) {
	started := time.Now()

	plan, err := r.Plan()
	if err != nil {
		return nil, err
	}

	byRun := make(map[int]RunResult, len(plan.Starts))
	for i, res := range prior {
		if i >= 0 && i < len(plan.Starts) {
			byRun[i] = res
		}
	}

	// The best sampled point is the baseline every run must beat.
	bestParams := plan.Starts[0].X
	bestCost := plan.Starts[0].Value
	conv := DefaultConvergenceConfig()
	if r.cfg.Convergence != nil {
		conv = *r.cfg.Convergence
	}
	tracker := NewTracker(conv)
	for i := 0; i < len(plan.Starts); i++ {
		res, ok := byRun[i]
		if !ok || res.Err != "" {
			continue
		}
		if res.Cost < bestCost {
			bestParams, bestCost = res.X, res.Cost
		}
		tracker.Update(res.Cost)
	}

	type task struct {
		run   int
		start sample.Point
	}
	pending := make([]task, 0, len(plan.Starts))
	for i, s := range plan.Starts {
		if _, done := byRun[i]; !done {
			pending = append(pending, task{run: i, start: s})
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan task)
	results := make(chan RunResult)

	workers := r.cfg.Workers
	if workers > len(pending) {
		workers = len(pending)
	}
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tk := range jobs {
				results <- r.runOne(tk.run, tk.start)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, tk := range pending {
			select {
			case <-runCtx.Done():
				return
			default:
			}
			select {
			case jobs <- tk:
			case <-runCtx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	earlyStopped := false
	for res := range results {
		byRun[res.Run] = res
		if res.Err == "" && res.Cost < bestCost {
			bestParams, bestCost = res.X, res.Cost
		}
		if r.OnRun != nil {
			r.OnRun(res, bestParams, bestCost)
		}
		if res.Err == "" && tracker.Update(res.Cost) && !earlyStopped {
			earlyStopped = true
			cancel()
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runs := make([]RunResult, 0, len(byRun))
	for i := 0; i < len(plan.Starts); i++ {
		if res, ok := byRun[i]; ok {
			runs = append(runs, res)
		}
	}

	result := &Result{
		Config:       r.cfg,
		Samples:      len(plan.Samples),
		InitialCost:  plan.Starts[0].Value,
		BestParams:   bestParams,
		BestCost:     bestCost,
		Runs:         runs,
		Summary:      summarize(runs),
		Elapsed:      time.Since(started),
		EarlyStopped: earlyStopped,
	}
	slog.Info("Study complete",
		"runs", len(runs),
		"best_cost", result.BestCost,
		"initial_cost", result.InitialCost,
		"early_stopped", earlyStopped,
		"elapsed", result.Elapsed,
	)
	return result, nil
}

// runOne optimizes a single start. Panics and backend errors become failed
// runs so the rest of the study keeps going.
func (r *Runner) runOne(run int, start sample.Point) (res RunResult) {
	begun := time.Now()
	res = RunResult{Run: run, Start: start.X, StartValue: start.Value}

	defer func() {
		res.Elapsed = time.Since(begun)
		if rec := recover(); rec != nil {
			res.X = start.X
			res.Cost = start.Value
			res.Status = "panic"
			res.Err = fmt.Sprintf("solver panic: %v", rec)
			slog.Error("Optimization run panicked", "run", run, "panic", rec)
		}
	}()

	out, err := r.optimizer.Run(r.surface.Eval, start.X, r.bounds.Lower, r.bounds.Upper)
	if err != nil {
		res.X = start.X
		res.Cost = start.Value
		res.Status = "error"
		res.Err = err.Error()
		slog.Warn("Optimization run failed", "run", run, "error", err)
		return res
	}

	res.X = r.bounds.Clamp(out.X)
	res.Cost = out.Cost
	res.Converged = out.Converged
	res.Status = out.Status
	res.FuncEvals = out.FuncEvals
	if !out.Converged {
		slog.Warn("Run did not converge", "run", run, "status", out.Status, "cost", out.Cost)
	}
	return res
}

// summarize aggregates runs that produced a solution.
func summarize(runs []RunResult) Summary {
	costs := make([]float64, 0, len(runs))
	converged := 0
	for _, res := range runs {
		if res.Err != "" {
			continue
		}
		costs = append(costs, res.Cost)
		if res.Converged {
			converged++
		}
	}

	s := Summary{Completed: len(costs), Converged: converged}
	if len(costs) == 0 {
		return s
	}
	s.MeanCost = stat.Mean(costs, nil)
	s.MinCost = floats.Min(costs)
	s.MaxCost = floats.Max(costs)
	if len(costs) > 1 {
		s.StdCost = stat.StdDev(costs, nil)
	}
	return s
}
