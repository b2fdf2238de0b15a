package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// HealthServer serves the health checks of the schedule command:
//   - /health: liveness, always 200
//   - /health/ready: 200 once the scheduler has started, 503 before
//   - /health/jobs: the last scheduled run of every job
type HealthServer struct {
	addr    string
	logger  *slog.Logger
	isReady atomic.Bool

	mu   sync.RWMutex
	jobs map[string]JobStatus
}

// JobStatus describes the last scheduled run of a job.
type JobStatus struct {
	Job         string    `json:"job"`
	LastRun     time.Time `json:"last_run"`
	LastSuccess time.Time `json:"last_success,omitzero"`
	Selected    int       `json:"selected"`
	Completed   int       `json:"completed"`
	Failed      int       `json:"failed"`
	Error       string    `json:"error,omitempty"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// NewHealthServer creates a health server listening on addr. It starts not
// ready.
func NewHealthServer(addr string, logger *slog.Logger) *HealthServer {
	return &HealthServer{
		addr:   addr,
		logger: logger,
		jobs:   make(map[string]JobStatus),
	}
}

// Handler returns the health check routes.
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleLiveness)
	mux.HandleFunc("GET /health/ready", h.handleReadiness)
	mux.HandleFunc("GET /health/jobs", h.handleJobs)
	return mux
}

// Start serves until ctx is cancelled, then shuts down with a 5 second grace
// period and returns http.ErrServerClosed.
func (h *HealthServer) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         h.addr,
		Handler:      h.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		h.logger.Info("health server starting", slog.String("addr", h.addr))
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			h.logger.Error("health server shutdown failed", slog.Any("error", err))
			return err
		}
		h.logger.Info("health server stopped")
		return http.ErrServerClosed
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("health server failed", slog.Any("error", err))
		}
		return err
	}
}

// SetReady marks the scheduler as started or stopped.
func (h *HealthServer) SetReady(ready bool) {
	h.isReady.Store(ready)
	h.logger.Info("health server readiness changed", slog.Bool("ready", ready))
}

// RecordRun stores the status of a finished scheduled run. A zero
// LastSuccess keeps the previous one.
func (h *HealthServer) RecordRun(st JobStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if st.LastSuccess.IsZero() {
		st.LastSuccess = h.jobs[st.Job].LastSuccess
	}
	h.jobs[st.Job] = st
}

// Jobs returns the recorded job statuses sorted by job name.
func (h *HealthServer) Jobs() []JobStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]JobStatus, 0, len(h.jobs))
	for _, st := range h.jobs {
		out = append(out, st)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Job < out[k].Job })
	return out
}

func (h *HealthServer) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (h *HealthServer) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	if h.isReady.Load() {
		h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
		return
	}
	h.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "not ready"})
}

func (h *HealthServer) handleJobs(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.Jobs())
}

func (h *HealthServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode health response", slog.Any("error", err))
	}
}
