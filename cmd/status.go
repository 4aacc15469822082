package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var serverURL string

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		url := fmt.Sprintf("%s/api/v1/jobs", serverURL)
		return listJobs(url)
	}

	jobID := args[0]
	url := fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID)
	return getJobStatus(url, jobID)
}

func listJobs(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var jobs []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Printf("Job ID: %s\n", job["id"])
		fmt.Printf("  State: %s\n", job["state"])
		if config, ok := job["config"].(map[string]interface{}); ok {
			fmt.Printf("  Method: %s\n", config["method"])
			fmt.Printf("  Samples: %v, starts: %v\n", config["samples"], config["starts"])
		}
		if job["bestCost"] != nil && job["bestCost"].(float64) > 0 {
			fmt.Printf("  Cost: %.2f -> %.2f\n", job["initialCost"], job["bestCost"])
		}
		fmt.Println()
	}

	return nil
}

func getJobStatus(url, jobID string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var status map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Job: %s\n", status["id"])
	fmt.Printf("State: %s\n", status["state"])
	fmt.Println()

	if config, ok := status["config"].(map[string]interface{}); ok {
		fmt.Println("Configuration:")
		fmt.Printf("  Method: %s\n", config["method"])
		fmt.Printf("  Strategy: %s\n", config["strategy"])
		fmt.Printf("  Samples: %v\n", config["samples"])
		fmt.Printf("  Starts: %v\n", config["starts"])
		fmt.Printf("  Seed: %v\n", config["seed"])
		fmt.Println()
	}

	fmt.Println("Progress:")
	fmt.Printf("  Runs: %v/%v\n", status["runs"], status["totalRuns"])
	if status["initialCost"] != nil && status["initialCost"].(float64) > 0 {
		fmt.Printf("  Initial Cost: %.2f\n", status["initialCost"])
	}
	if status["bestCost"] != nil && status["bestCost"].(float64) > 0 {
		fmt.Printf("  Best Cost: %.2f\n", status["bestCost"])
		improvement := status["initialCost"].(float64) - status["bestCost"].(float64)
		improvementPct := (improvement / status["initialCost"].(float64)) * 100
		fmt.Printf("  Improvement: %.2f (%.1f%%)\n", improvement, improvementPct)
	}

	if status["elapsed"] != nil {
		elapsed := time.Duration(status["elapsed"].(float64) * float64(time.Second))
		fmt.Printf("  Elapsed: %s\n", elapsed.Round(time.Millisecond))
	}

	if status["runsPerSec"] != nil && status["runsPerSec"].(float64) > 0 {
		fmt.Printf("  Throughput: %.1f runs/sec\n", status["runsPerSec"])
	}

	if status["error"] != nil && status["error"].(string) != "" {
		fmt.Printf("\nError: %s\n", status["error"])
	}

	return nil
}
