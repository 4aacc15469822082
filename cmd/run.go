package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/costrisk/costrisk/internal/store"
	"github.com/costrisk/costrisk/internal/study"
)

var (
	runStudyFile string
	runName      string
	runSamples   int
	runStarts    int
	runWorkers   int
	runSeed      int64
	runStrategy  string
	runMethod    string
	runIters     int
	runTol       float64
	runPop       int
	runOut       string
	runSave      bool
	runProfile   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a full exploration study",
	Long: `Samples the feasible box, evaluates the cost surface, promotes the best
samples to local optimization runs and aggregates the outcomes. The study is
configured from a YAML file, from flags, or both; flags win.`,
	RunE: runStudy,
}

func init() {
	runCmd.Flags().StringVar(&runStudyFile, "study", "", "Study definition YAML file")
	runCmd.Flags().StringVar(&runName, "name", "", "Study name")
	runCmd.Flags().IntVar(&runSamples, "samples", 0, "Number of samples drawn from the box")
	runCmd.Flags().IntVar(&runStarts, "starts", 0, "Number of local optimization runs")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "Concurrent runs (default: number of CPUs)")
	runCmd.Flags().Int64Var(&runSeed, "seed", 0, "Random seed")
	runCmd.Flags().StringVar(&runStrategy, "strategy", "", "Sampling strategy: lhs, uniform, grid")
	runCmd.Flags().StringVar(&runMethod, "method", "", "Optimizer: bfgs, neldermead, mayfly")
	runCmd.Flags().IntVar(&runIters, "iters", 0, "Max iterations per run")
	runCmd.Flags().Float64Var(&runTol, "tol", 0, "Gradient tolerance")
	runCmd.Flags().IntVar(&runPop, "pop", 0, "Population size (mayfly)")
	runCmd.Flags().StringVar(&runOut, "out", "", "Write the full result JSON to this file")
	runCmd.Flags().BoolVar(&runSave, "save", false, "Persist checkpoint and trace under the data dir")
	runCmd.Flags().StringVar(&runProfile, "profile", "", "Write a profile: cpu or mem")

	rootCmd.AddCommand(runCmd)
}

func runStudy(cmd *cobra.Command, args []string) error {
	switch runProfile {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath(".")).Stop()
	default:
		return fmt.Errorf("unknown profile mode %q (want cpu or mem)", runProfile)
	}

	cfg, err := buildRunConfig(cmd)
	if err != nil {
		return err
	}

	runner, err := study.NewRunner(cfg)
	if err != nil {
		return err
	}
	cfg = runner.Config()

	slog.Info("Starting study",
		"name", cfg.Name,
		"samples", cfg.Samples,
		"starts", cfg.Starts,
		"method", cfg.Method,
		"strategy", cfg.Strategy,
	)

	// Wire persistence before the first run lands
	var (
		st      *store.FSStore
		trace   *store.TraceWriter
		studyID string
	)
	if runSave {
		studyID = cfg.Name
		if studyID == "" {
			studyID = uuid.New().String()
		}

		st, err = store.NewFSStore(dataDir)
		if err != nil {
			return fmt.Errorf("failed to open data directory: %w", err)
		}
		trace, err = store.NewTraceWriter(dataDir, studyID, false)
		if err != nil {
			return fmt.Errorf("failed to open trace: %w", err)
		}
		defer trace.Close()

		// Checkpoints need the sampled baseline; Run re-derives the
		// identical plan from the seed.
		plan, err := runner.Plan()
		if err != nil {
			return err
		}
		runner.OnRun = persistRuns(st, trace, studyID, cfg, plan.Starts[0].Value, 0)
	}

	result, err := runner.Run(context.Background())
	if err != nil {
		return err
	}

	if st != nil {
		checkpoint := store.NewCheckpoint(studyID, result.BestParams, result.BestCost, result.InitialCost, len(result.Runs), cfg.Starts, cfg)
		if err := st.SaveCheckpoint(studyID, checkpoint); err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}
		fmt.Printf("Saved study %s under %s\n\n", studyID, dataDir)
	}

	printResult(result)

	if runOut != "" {
		if err := writeResultJSON(runOut, result); err != nil {
			return err
		}
		fmt.Printf("\nWrote %s\n", runOut)
	}

	return nil
}

// buildRunConfig loads the study file if given and overlays changed flags.
func buildRunConfig(cmd *cobra.Command) (study.Config, error) {
	var cfg study.Config
	if runStudyFile != "" {
		loaded, err := study.LoadConfig(runStudyFile)
		if err != nil {
			return study.Config{}, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("name") {
		cfg.Name = runName
	}
	if flags.Changed("samples") {
		cfg.Samples = runSamples
	}
	if flags.Changed("starts") {
		cfg.Starts = runStarts
	}
	if flags.Changed("workers") {
		cfg.Workers = runWorkers
	}
	if flags.Changed("seed") {
		cfg.Seed = runSeed
	}
	if flags.Changed("strategy") {
		cfg.Strategy = runStrategy
	}
	if flags.Changed("method") {
		cfg.Method = runMethod
	}
	if flags.Changed("iters") {
		cfg.MaxIters = runIters
	}
	if flags.Changed("tol") {
		cfg.Tol = runTol
	}
	if flags.Changed("pop") {
		cfg.PopSize = runPop
	}
	return cfg, nil
}

// persistRuns returns an OnRun hook that appends every run to the trace and
// saves a checkpoint per the config's cadence. priorDone counts runs that
// landed in an earlier execution of a resumed study.
func persistRuns(st store.Store, trace *store.TraceWriter, studyID string, cfg study.Config, initialCost float64, priorDone int) func(study.RunResult, []float64, float64) {
	done := priorDone
	return func(res study.RunResult, bestParams []float64, bestCost float64) {
		done++

		if err := trace.Write(store.NewTraceEntry(res)); err != nil {
			slog.Warn("Failed to record trace entry", "study_id", studyID, "run", res.Run, "error", err)
		} else if err := trace.Flush(); err != nil {
			slog.Warn("Failed to flush trace", "study_id", studyID, "error", err)
		}

		if cfg.CheckpointEvery > 0 && done%cfg.CheckpointEvery == 0 {
			checkpoint := store.NewCheckpoint(studyID, bestParams, bestCost, initialCost, done, cfg.Starts, cfg)
			if err := st.SaveCheckpoint(studyID, checkpoint); err != nil {
				slog.Warn("Failed to save checkpoint", "study_id", studyID, "error", err)
			}
		}
	}
}

// printResult writes the per-run table, non-convergence warnings and the
// aggregate summary to stdout.
func printResult(result *study.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTART\tSTART COST\tMINIMUM\tCOST\tCONVERGED\tSTATUS")
	for _, res := range result.Runs {
		status := res.Status
		if res.Err != "" {
			status = res.Err
		}
		fmt.Fprintf(w, "%d\t(%.2f, %.2f)\t%.2f\t(%.3f, %.3f)\t%.4f\t%t\t%s\n",
			res.Run,
			res.Start[0], res.Start[1],
			res.StartValue,
			res.X[0], res.X[1],
			res.Cost,
			res.Converged,
			status,
		)
	}
	w.Flush()

	for _, res := range result.Runs {
		if res.Err != "" {
			fmt.Printf("Warning: run %d failed: %s\n", res.Run, res.Err)
		} else if !res.Converged {
			fmt.Printf("Warning: run %d did not converge: %s\n", res.Run, res.Status)
		}
	}

	improvement := result.InitialCost - result.BestCost
	pct := 0.0
	if result.InitialCost != 0 {
		pct = improvement / result.InitialCost * 100
	}

	fmt.Printf("\nBest: C=%.4f R=%.4f cost=%.4f\n", result.BestParams[0], result.BestParams[1], result.BestCost)
	fmt.Printf("Improvement: %.4f -> %.4f (%.2f%%)\n", result.InitialCost, result.BestCost, pct)
	early := ""
	if result.EarlyStopped {
		early = " (stopped early)"
	}
	fmt.Printf("Runs: %d completed, %d converged%s\n", result.Summary.Completed, result.Summary.Converged, early)
	fmt.Printf("Final costs: mean=%.4f std=%.4f min=%.4f max=%.4f\n",
		result.Summary.MeanCost, result.Summary.StdCost, result.Summary.MinCost, result.Summary.MaxCost)
	fmt.Printf("Elapsed: %s\n", result.Elapsed.Round(time.Millisecond))
}

// writeResultJSON stores the full result for later analysis.
func writeResultJSON(path string, result *study.Result) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}
