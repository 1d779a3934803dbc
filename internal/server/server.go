package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cwbudde/polyroot/internal/config"
	"github.com/cwbudde/polyroot/internal/poly"
	"github.com/cwbudde/polyroot/internal/problems"
	"github.com/cwbudde/polyroot/internal/store"
)

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	addr       string
	server     *http.Server
	env        workerEnv

	// slots bounds the number of concurrently solving jobs
	slots  chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a new HTTP server. A nil store disables report
// persistence; a filesystem store also enables iteration traces.
func NewServer(cfg config.Config, st store.Store) *Server {
	workers := cfg.Server.Workers
	if workers < 1 {
		workers = 1
	}

	env := workerEnv{Solver: cfg.Solver, Store: st}
	if fs, ok := st.(*store.FSStore); ok {
		env.TraceDir = fs.BaseDir()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		jobManager: NewJobManager(),
		addr:       cfg.Server.Addr,
		env:        env,
		slots:      make(chan struct{}, workers),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Handler returns the routed and wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)
	mux.HandleFunc("/api/v1/reports", s.handleListReports)
	mux.HandleFunc("/api/v1/reports/", s.handleReportWithID)
	mux.HandleFunc("/api/v1/problems", s.handleListProblems)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("/metrics", promhttp.HandlerFor(poly.Registry(), promhttp.HandlerOpts{}))

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "addr", s.addr, "workers", cap(s.slots))
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests, cancels queued jobs and waits for
// running ones until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	s.cancel()

	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("Jobs still running at shutdown", "running", len(s.jobManager.GetRunningJobs()))
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// submit queues a job on the worker pool
func (s *Server) submit(jobID string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case s.slots <- struct{}{}:
		case <-s.ctx.Done():
			markJobCancelled(s.jobManager, jobID)
			return
		}
		defer func() { <-s.slots }()

		runJob(s.ctx, s.jobManager, s.env, jobID)
	}()
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	jobID, sub, ok := splitID(r.URL.Path, "/api/v1/jobs/")
	if !ok {
		writeError(w, http.StatusBadRequest, "job ID required")
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodDelete:
		s.handleDeleteJob(w, r, jobID)
	case sub == "" || sub == "status":
		s.handleGetJobStatus(w, r, jobID)
	case sub == "stream":
		s.handleJobStream(w, r, jobID)
	case sub == "trace":
		s.handleGetTrace(w, r, jobID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req JobConfig
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	if req.Problem == "" {
		writeError(w, http.StatusBadRequest, "problem is required")
		return
	}
	resolved, err := Resolve(req, s.env.Solver)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job := s.jobManager.CreateJob(resolved)
	s.submit(job.ID)

	writeJSON(w, http.StatusCreated, job)
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	var elapsed time.Duration
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime)
	} else {
		elapsed = time.Since(job.StartTime)
	}

	response := map[string]any{
		"id":         job.ID,
		"state":      job.State,
		"config":     job.Config,
		"method":     job.Method,
		"iterations": job.Iterations,
		"residual":   job.Residual,
		"attempts":   job.Attempts,
		"elapsed":    elapsed.Seconds(),
		"startTime":  job.StartTime,
		"endTime":    job.EndTime,
		"error":      job.Error,
	}
	if job.Report != nil {
		response["report"] = job.Report
	}

	writeJSON(w, http.StatusOK, response)
}

// handleDeleteJob handles DELETE /api/v1/jobs/:id
func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if _, exists := s.jobManager.GetJob(jobID); !exists {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err := s.jobManager.DeleteJob(jobID); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetTrace handles GET /api/v1/jobs/:id/trace
func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request, jobID string) {
	if s.env.TraceDir == "" {
		writeError(w, http.StatusNotFound, "tracing disabled")
		return
	}

	reader, err := store.NewTraceReader(s.env.TraceDir, jobID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "trace not found")
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []store.TraceEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleListReports handles GET /api/v1/reports
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.env.Store == nil {
		writeJSON(w, http.StatusOK, []store.ReportInfo{})
		return
	}

	infos, err := s.env.Store.ListReports()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// handleReportWithID handles GET and DELETE /api/v1/reports/:id
func (s *Server) handleReportWithID(w http.ResponseWriter, r *http.Request) {
	id, sub, ok := splitID(r.URL.Path, "/api/v1/reports/")
	if !ok || sub != "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if s.env.Store == nil {
		writeError(w, http.StatusNotFound, "report store disabled")
		return
	}

	var err error
	switch r.Method {
	case http.MethodGet:
		var report *store.Report
		if report, err = s.env.Store.LoadReport(id); err == nil {
			writeJSON(w, http.StatusOK, report)
			return
		}
	case http.MethodDelete:
		if err = s.env.Store.DeleteReport(id); err == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// problemInfo is the listing projection of a catalog system
type problemInfo struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Dim         int       `json:"dim"`
	U0          []float64 `json:"u0"`
	Params      []float64 `json:"params,omitempty"`
	Solvable    bool      `json:"solvable"`
	Analytic    bool      `json:"analyticJacobian"`
}

// handleListProblems handles GET /api/v1/problems
func (s *Server) handleListProblems(w http.ResponseWriter, r *http.Request) {
	names := problems.Names()
	infos := make([]problemInfo, 0, len(names))
	for _, name := range names {
		sys, err := problems.Get(name)
		if err != nil {
			continue
		}
		infos = append(infos, problemInfo{
			Name:        sys.Name,
			Description: sys.Description,
			Dim:         sys.Dim(),
			U0:          sys.U0,
			Params:      sys.P,
			Solvable:    sys.Solvable(),
			Analytic:    sys.J != nil,
		})
	}
	writeJSON(w, http.StatusOK, infos)
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
