package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/costrisk/costrisk/internal/study"
)

// TraceEntry records the outcome of one completed optimization run.
// Each entry is serialized as a JSON line in trace.jsonl; together the
// lines tell a resume which run indices are already done.
type TraceEntry struct {
	// Run is the run index within the study's deterministic plan.
	Run int `json:"run"`

	// Start is the selected start point for this run.
	Start []float64 `json:"start,omitempty"`

	// Params is the best point the run found.
	Params []float64 `json:"params"`

	// Cost is the surface value at Params.
	Cost float64 `json:"cost"`

	// Converged and Status carry the backend's termination report.
	Converged bool   `json:"converged"`
	Status    string `json:"status,omitempty"`

	// Error is set for runs that failed outright.
	Error string `json:"error,omitempty"`

	// Timestamp records when this entry was written.
	Timestamp time.Time `json:"timestamp"`
}

// NewTraceEntry converts a run result into its trace form.
func NewTraceEntry(res study.RunResult) TraceEntry {
	return TraceEntry{
		Run:       res.Run,
		Start:     res.Start,
		Params:    res.X,
		Cost:      res.Cost,
		Converged: res.Converged,
		Status:    res.Status,
		Error:     res.Err,
		Timestamp: time.Now(),
	}
}

// ToRunResult converts a trace entry back into the run result a resumed
// study merges in.
func (e TraceEntry) ToRunResult() study.RunResult {
	return study.RunResult{
		Run:       e.Run,
		Start:     e.Start,
		X:         e.Params,
		Cost:      e.Cost,
		Converged: e.Converged,
		Status:    e.Status,
		Err:       e.Error,
	}
}

// TraceWriter writes trace entries to a JSONL file.
// It uses buffered I/O for performance and is safe for concurrent use.
type TraceWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
}

// NewTraceWriter creates a new trace writer for the given study.
// The trace file is created at <baseDir>/studies/<studyID>/trace.jsonl.
// If append is true, new entries are appended to an existing file.
func NewTraceWriter(baseDir, studyID string, append bool) (*TraceWriter, error) {
	studyDir := filepath.Join(baseDir, "studies", studyID)

	if err := os.MkdirAll(studyDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create study directory: %w", err)
	}

	path := filepath.Join(studyDir, "trace.jsonl")

	var file *os.File
	var err error
	if append {
		file, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	} else {
		file, err = os.Create(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	writer := bufio.NewWriterSize(file, 64*1024) // 64KB buffer

	return &TraceWriter{
		file:   file,
		writer: writer,
		path:   path,
	}, nil
}

// Write appends a trace entry to the file.
// The entry is buffered and will be written on Flush() or Close().
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal trace entry: %w", err)
	}

	if _, err := tw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}

	if err := tw.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

// Flush writes any buffered data to the file.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace writer: %w", err)
	}

	// Also sync to disk for durability.
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace file: %w", err)
	}

	return nil
}

// Close flushes buffered data and closes the trace file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		tw.file.Close() // Try to close anyway
		return fmt.Errorf("failed to flush on close: %w", err)
	}

	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}

	return nil
}

// Path returns the filesystem path to the trace file.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// TraceReader reads trace entries from a JSONL file.
type TraceReader struct {
	file    *os.File
	scanner *bufio.Scanner
}

// NewTraceReader creates a new trace reader for the given study.
func NewTraceReader(baseDir, studyID string) (*TraceReader, error) {
	path := filepath.Join(baseDir, "studies", studyID, "trace.jsonl")

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{StudyID: studyID}
		}
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	// Larger buffer in case entries grow params.
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &TraceReader{
		file:    file,
		scanner: scanner,
	}, nil
}

// Read reads the next trace entry from the file.
// Returns io.EOF when no more entries are available.
func (tr *TraceReader) Read() (*TraceEntry, error) {
	if !tr.scanner.Scan() {
		if err := tr.scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan trace line: %w", err)
		}
		return nil, io.EOF
	}

	line := tr.scanner.Bytes()
	var entry TraceEntry
	if err := json.Unmarshal(line, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace entry: %w", err)
	}

	return &entry, nil
}

// ReadAll reads all trace entries from the file.
func (tr *TraceReader) ReadAll() ([]TraceEntry, error) {
	var entries []TraceEntry

	for {
		entry, err := tr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	return entries, nil
}

// Close closes the trace reader.
func (tr *TraceReader) Close() error {
	if err := tr.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// PriorRuns folds trace entries into the prior-run map a resumed study
// consumes. Later entries for the same run index win. Failed runs are left
// out so a resume retries them.
func PriorRuns(entries []TraceEntry) map[int]study.RunResult {
	prior := make(map[int]study.RunResult, len(entries))
	for _, e := range entries {
		if e.Error != "" {
			continue
		}
		prior[e.Run] = e.ToRunResult()
	}
	return prior
}

// DeleteTrace removes the trace file for the given study.
// Returns nil if the file doesn't exist.
func DeleteTrace(baseDir, studyID string) error {
	path := filepath.Join(baseDir, "studies", studyID, "trace.jsonl")

	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete trace file: %w", err)
	}

	return nil
}
