package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/costrisk/costrisk/internal/store"
)

var (
	keepLast      int
	olderThanDays int
	forceClean    bool
)

var studiesCmd = &cobra.Command{
	Use:   "studies",
	Short: "Manage stored studies",
	Long: `Manage the studies stored under the data dir, including listing their
checkpoints and cleaning old ones. Stored studies can be resumed with the
resume command.`,
}

var listStudiesCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored studies",
	Long:  `Display all stored studies with their checkpoint metadata and disk usage.`,
	RunE:  runListStudies,
}

var cleanStudiesCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old stored studies",
	Long: `Delete stored studies based on a retention policy, either keeping the
most recent N studies or deleting studies older than N days.`,
	RunE: runCleanStudies,
}

func init() {
	rootCmd.AddCommand(studiesCmd)
	studiesCmd.AddCommand(listStudiesCmd)
	studiesCmd.AddCommand(cleanStudiesCmd)

	cleanStudiesCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the most recent N studies (0 = keep all)")
	cleanStudiesCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete studies older than N days (0 = no age limit)")
	cleanStudiesCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func runListStudies(cmd *cobra.Command, args []string) error {
	studyStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to open data directory: %w", err)
	}

	infos, err := studyStore.ListCheckpoints()
	if err != nil {
		return fmt.Errorf("failed to list studies: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No stored studies found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STUDY ID\tNAME\tMETHOD\tRUNS\tBEST COST\tUPDATED\tSIZE")
	fmt.Fprintln(w, "--------\t----\t------\t----\t---------\t-------\t----")

	for _, info := range infos {
		studyDir := filepath.Join(dataDir, "studies", info.StudyID)
		sizeStr := "unknown"
		if size, err := getDirSize(studyDir); err == nil {
			sizeStr = formatBytes(size)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%.4f\t%s\t%s\n",
			displayID(info.StudyID),
			info.Name,
			info.Method,
			info.RunsCompleted,
			info.TotalRuns,
			info.BestCost,
			info.Timestamp.Format("2006-01-02 15:04:05"),
			sizeStr,
		)
	}

	w.Flush()

	fmt.Printf("\nTotal studies: %d\n", len(infos))
	return nil
}

func runCleanStudies(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	studyStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to open data directory: %w", err)
	}

	infos, err := studyStore.ListCheckpoints()
	if err != nil {
		return fmt.Errorf("failed to list studies: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No stored studies to clean.")
		return nil
	}

	toDelete := selectStudiesForDeletion(infos, keepLast, olderThanDays)
	if len(toDelete) == 0 {
		fmt.Println("No stored studies match the deletion criteria.")
		return nil
	}

	fmt.Printf("Found %d stored studies to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Printf("  - %s (%d/%d runs, %s)\n",
			displayID(info.StudyID),
			info.RunsCompleted,
			info.TotalRuns,
			info.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}

	if !forceClean {
		fmt.Print("\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		if err := studyStore.DeleteCheckpoint(info.StudyID); err != nil {
			slog.Error("Failed to delete study", "study_id", info.StudyID, "error", err)
			failed++
		} else {
			slog.Info("Deleted study", "study_id", info.StudyID)
			deleted++
		}
	}

	fmt.Printf("\nDeleted %d stored studies, %d failed.\n", deleted, failed)
	return nil
}

// selectStudiesForDeletion applies the retention policy: studies older than
// the age cutoff plus the oldest beyond the keep-last count.
func selectStudiesForDeletion(infos []store.CheckpointInfo, keepLast int, olderThanDays int) []store.CheckpointInfo {
	var toDelete []store.CheckpointInfo
	selected := make(map[string]bool)

	if olderThanDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -olderThanDays)
		for _, info := range infos {
			if info.Timestamp.Before(cutoff) {
				toDelete = append(toDelete, info)
				selected[info.StudyID] = true
			}
		}
	}

	if keepLast > 0 && len(infos) > keepLast {
		sorted := make([]store.CheckpointInfo, len(infos))
		copy(sorted, infos)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		})

		for _, info := range sorted[:len(sorted)-keepLast] {
			if !selected[info.StudyID] {
				toDelete = append(toDelete, info)
				selected[info.StudyID] = true
			}
		}
	}

	return toDelete
}

// displayID truncates long study IDs for table display
func displayID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
