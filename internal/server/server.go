package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/costrisk/costrisk/internal/store"
)

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	store      store.Store
	dataDir    string
	addr       string
	server     *http.Server
}

// NewServer creates a new HTTP server. When dataDir is non-empty, job
// checkpoints and run traces are persisted beneath it; an empty dataDir
// keeps all job state in memory.
func NewServer(addr, dataDir string) (*Server, error) {
	s := &Server{
		jobManager: NewJobManager(),
		dataDir:    dataDir,
		addr:       addr,
	}

	if dataDir != "" {
		fs, err := store.NewFSStore(dataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open data directory: %w", err)
		}
		s.store = fs
	}

	return s, nil
}

// Handler builds the route table wrapped in the server middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown stops all running workers and gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	s.jobManager.CancelAll()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	// Parse job ID from path
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]

	// Route based on method and subpath
	switch {
	case len(parts) == 1 && r.Method == http.MethodDelete:
		s.handleCancelJob(w, r, jobID)
	case len(parts) == 1 || parts[1] == "status":
		s.handleGetJobStatus(w, r, jobID)
	case parts[1] == "result":
		s.handleGetJobResult(w, r, jobID)
	case parts[1] == "trace":
		s.handleGetJobTrace(w, r, jobID)
	case parts[1] == "stream":
		s.handleJobStream(w, r, jobID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var config JobConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	// Fill unset fields, then validate the effective config
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		http.Error(w, fmt.Sprintf("Invalid study config: %v", err), http.StatusBadRequest)
		return
	}

	// Create job
	job := s.jobManager.CreateJob(config)

	// Start worker in background, cancellable through the API
	jobCtx, cancel := context.WithCancel(context.Background())
	s.jobManager.RegisterCancel(job.ID, cancel)
	go runJob(jobCtx, s.jobManager, s.store, s.dataDir, job.ID)

	// Return job
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(job)
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.jobManager.ListJobs()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(jobs)
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	// Compute elapsed time and throughput
	var elapsed time.Duration
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime)
	} else {
		elapsed = time.Since(job.StartTime)
	}

	// Create response
	response := map[string]interface{}{
		"id":          job.ID,
		"state":       job.State,
		"config":      job.Config,
		"bestParams":  job.BestParams,
		"bestCost":    job.BestCost,
		"initialCost": job.InitialCost,
		"runs":        job.Runs,
		"totalRuns":   job.TotalRuns,
		"elapsed":     elapsed.Seconds(),
		"runsPerSec":  runsPerSec(job.Runs, elapsed),
		"startTime":   job.StartTime,
		"endTime":     job.EndTime,
		"error":       job.Error,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleGetJobResult handles GET /api/v1/jobs/:id/result.
// The full study result exists only once the job completes.
func (s *Server) handleGetJobResult(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	if job.State != StateCompleted || job.Result == nil {
		http.Error(w, "Result not ready", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job.Result)
}

// handleGetJobTrace handles GET /api/v1/jobs/:id/trace.
// Serves the per-run outcomes recorded so far, including for running jobs.
func (s *Server) handleGetJobTrace(w http.ResponseWriter, r *http.Request, jobID string) {
	if _, exists := s.jobManager.GetJob(jobID); !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	if s.dataDir == "" {
		http.Error(w, "Trace recording is disabled", http.StatusNotFound)
		return
	}

	reader, err := store.NewTraceReader(s.dataDir, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "No trace recorded yet", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("Failed to open trace: %v", err), http.StatusInternalServerError)
		return
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read trace: %v", err), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []store.TraceEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// handleCancelJob handles DELETE /api/v1/jobs/:id
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	if isTerminal(job.State) {
		http.Error(w, fmt.Sprintf("Job already %s", job.State), http.StatusConflict)
		return
	}

	// Stop the worker and mark the job immediately so the API reflects the
	// cancellation without waiting for the worker to unwind.
	s.jobManager.Cancel(jobID)
	markJobCancelled(s.jobManager, jobID)

	cancelled, _ := s.jobManager.GetJob(jobID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cancelled)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
