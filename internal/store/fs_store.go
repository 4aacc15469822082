package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// FSStore implements the Store interface using filesystem-based
// persistence. Checkpoints live under <baseDir>/studies/<studyID>/.
//
// Thread-safety: this implementation relies on atomic file operations
// (rename) and does not require locks. Multiple goroutines can safely call
// methods concurrently.
type FSStore struct {
	baseDir string // Root directory for all study data (e.g., "./data")
}

// NewFSStore creates a new filesystem-based store.
// The baseDir is created if it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSStore{
		baseDir: baseDir,
	}, nil
}

// studyDir returns the directory path for a given study ID.
func (fs *FSStore) studyDir(studyID string) string {
	return filepath.Join(fs.baseDir, "studies", studyID)
}

// checkpointPath returns the path to the checkpoint.json file for a study.
func (fs *FSStore) checkpointPath(studyID string) string {
	return filepath.Join(fs.studyDir(studyID), "checkpoint.json")
}

// SaveCheckpoint atomically saves a checkpoint for the given study.
// Uses the temp file + rename pattern to ensure atomicity.
func (fs *FSStore) SaveCheckpoint(studyID string, checkpoint *Checkpoint) error {
	if studyID == "" {
		return fmt.Errorf("studyID cannot be empty")
	}
	if checkpoint == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}

	studyDir := fs.studyDir(studyID)
	if err := os.MkdirAll(studyDir, 0755); err != nil {
		return fmt.Errorf("failed to create study directory: %w", err)
	}

	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint: %w", err)
	}

	// Write to a temporary file first.
	tempPath := fs.checkpointPath(studyID) + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp checkpoint file: %w", err)
	}

	// Atomic rename to the final location.
	finalPath := fs.checkpointPath(studyID)
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename checkpoint file: %w", err)
	}

	slog.Debug("Checkpoint saved", "study_id", studyID, "path", finalPath)
	return nil
}

// LoadCheckpoint retrieves the checkpoint for the given study.
func (fs *FSStore) LoadCheckpoint(studyID string) (*Checkpoint, error) {
	if studyID == "" {
		return nil, fmt.Errorf("studyID cannot be empty")
	}

	path := fs.checkpointPath(studyID)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, &NotFoundError{StudyID: studyID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat checkpoint file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to deserialize checkpoint: %w", err)
	}

	slog.Debug("Checkpoint loaded", "study_id", studyID, "path", path)
	return &checkpoint, nil
}

// ListCheckpoints returns metadata for all stored studies.
func (fs *FSStore) ListCheckpoints() ([]CheckpointInfo, error) {
	studiesDir := filepath.Join(fs.baseDir, "studies")

	if _, err := os.Stat(studiesDir); os.IsNotExist(err) {
		// Nothing stored yet.
		return []CheckpointInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat studies directory: %w", err)
	}

	entries, err := os.ReadDir(studiesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read studies directory: %w", err)
	}

	var infos []CheckpointInfo

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		studyID := entry.Name()
		checkpointPath := fs.checkpointPath(studyID)

		if _, err := os.Stat(checkpointPath); os.IsNotExist(err) {
			continue // Skip directories without checkpoint.json
		}

		checkpoint, err := fs.LoadCheckpoint(studyID)
		if err != nil {
			slog.Warn("Failed to load checkpoint for listing", "study_id", studyID, "error", err)
			continue // Skip corrupted checkpoints
		}

		infos = append(infos, checkpoint.ToInfo())
	}

	slog.Debug("Listed checkpoints", "count", len(infos))
	return infos, nil
}

// DeleteCheckpoint removes the checkpoint and all associated artifacts.
func (fs *FSStore) DeleteCheckpoint(studyID string) error {
	if studyID == "" {
		return fmt.Errorf("studyID cannot be empty")
	}

	studyDir := fs.studyDir(studyID)

	if _, err := os.Stat(studyDir); os.IsNotExist(err) {
		return &NotFoundError{StudyID: studyID}
	} else if err != nil {
		return fmt.Errorf("failed to stat study directory: %w", err)
	}

	if err := os.RemoveAll(studyDir); err != nil {
		return fmt.Errorf("failed to remove study directory: %w", err)
	}

	slog.Debug("Checkpoint deleted", "study_id", studyID, "path", studyDir)
	return nil
}
