package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/costrisk/costrisk/internal/store"
	"github.com/costrisk/costrisk/internal/study"
)

var (
	resumeWorkers   int
	resumeStudyFile string
)

var resumeCmd = &cobra.Command{
	Use:   "resume <study-id>",
	Short: "Resume a stored study",
	Long: `Loads the checkpoint and run trace of a stored study, re-derives the
deterministic plan and finishes the remaining runs. Failed runs are retried;
completed runs are kept as recorded.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().IntVar(&resumeWorkers, "workers", 0, "Override the stored worker count")
	resumeCmd.Flags().StringVar(&resumeStudyFile, "study", "", "Study YAML to validate against the checkpoint")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	studyID := args[0]

	st, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to open data directory: %w", err)
	}

	checkpoint, err := st.LoadCheckpoint(studyID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no stored study %q under %s", studyID, dataDir)
		}
		return err
	}
	if err := checkpoint.Validate(); err != nil {
		return fmt.Errorf("stored checkpoint is unusable: %w", err)
	}

	cfg := checkpoint.Config
	if resumeStudyFile != "" {
		loaded, err := study.LoadConfig(resumeStudyFile)
		if err != nil {
			return err
		}
		loaded.ApplyDefaults()
		if err := checkpoint.IsCompatible(loaded); err != nil {
			return fmt.Errorf("study file does not match the stored run: %w", err)
		}
		cfg = loaded
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = resumeWorkers
	}

	// Recorded runs are skipped; failed ones are retried
	prior := map[int]study.RunResult{}
	reader, err := store.NewTraceReader(dataDir, studyID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to open trace: %w", err)
		}
		slog.Warn("No trace recorded, rerunning every run", "study_id", studyID)
	} else {
		entries, err := reader.ReadAll()
		reader.Close()
		if err != nil {
			return fmt.Errorf("failed to read trace: %w", err)
		}
		prior = store.PriorRuns(entries)
	}

	runner, err := study.NewRunner(cfg)
	if err != nil {
		return err
	}
	cfg = runner.Config()

	fmt.Printf("Resuming study %s: %d of %d runs recorded\n\n", studyID, len(prior), cfg.Starts)
	slog.Info("Resuming study",
		"study_id", studyID,
		"recorded_runs", len(prior),
		"starts", cfg.Starts,
		"workers", cfg.Workers,
	)

	trace, err := store.NewTraceWriter(dataDir, studyID, true)
	if err != nil {
		return fmt.Errorf("failed to open trace: %w", err)
	}
	defer trace.Close()

	runner.OnRun = persistRuns(st, trace, studyID, cfg, checkpoint.InitialCost, len(prior))

	result, err := runner.Resume(context.Background(), prior)
	if err != nil {
		return err
	}

	updated := store.NewCheckpoint(studyID, result.BestParams, result.BestCost, result.InitialCost, len(result.Runs), cfg.Starts, cfg)
	if err := st.SaveCheckpoint(studyID, updated); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	printResult(result)
	return nil
}
