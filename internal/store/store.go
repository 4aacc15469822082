package store

// Store defines the interface for study checkpoint persistence.
// Implementations must be thread-safe and handle concurrent access
// gracefully.
//
// Error handling conventions:
//   - Return nil error on success
//   - Return ErrNotFound if the checkpoint doesn't exist (for Load/Delete)
//   - Return descriptive errors for I/O, serialization, or validation failures
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveCheckpoint atomically saves a checkpoint for the given study.
	// An existing checkpoint for this studyID is overwritten. The
	// implementation should use atomic write strategies (temp file +
	// rename) so a crash cannot leave a corrupt checkpoint behind.
	SaveCheckpoint(studyID string, checkpoint *Checkpoint) error

	// LoadCheckpoint retrieves the checkpoint for the given study.
	// Returns ErrNotFound if no checkpoint exists for this studyID.
	// Returns an error if the checkpoint exists but cannot be read or
	// deserialized.
	LoadCheckpoint(studyID string) (*Checkpoint, error)

	// ListCheckpoints returns metadata for all stored studies. The
	// returned slice may be empty. Returns an error if the studies
	// directory cannot be scanned.
	ListCheckpoints() ([]CheckpointInfo, error)

	// DeleteCheckpoint removes the checkpoint and all associated
	// artifacts for the given study:
	//   - checkpoint.json
	//   - trace.jsonl
	//
	// Returns ErrNotFound if no checkpoint exists for this studyID.
	DeleteCheckpoint(studyID string) error
}

// ErrNotFound is returned when a requested checkpoint does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing checkpoint error.
type NotFoundError struct {
	StudyID string
}

func (e *NotFoundError) Error() string {
	if e.StudyID != "" {
		return "checkpoint not found: " + e.StudyID
	}
	return "checkpoint not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
