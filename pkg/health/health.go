// Package health provides the Application Master's HTTP liveness and
// readiness endpoints.
package health

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/skein-project/skein/pkg/master"
	"github.com/skein-project/skein/pkg/metrics"
	"github.com/skein-project/skein/pkg/types"
)

// Server provides HTTP health check endpoints for an Application Master.
type Server struct {
	m   *master.Master
	mux *http.ServeMux
}

// NewServer builds a health Server wired to m.
func NewServer(m *master.Master) *Server {
	mux := http.NewServeMux()
	hs := &Server{m: m, mux: mux}

	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readyHandler)
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

// Start starts the health check HTTP server. Blocks until the listener
// fails or is closed.
func (hs *Server) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse is the /ready payload.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// healthHandler is a liveness check: 200 as long as the process is alive.
func (hs *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Timestamp: time.Now()})
}

// readyHandler reports whether the master's application is still running,
// i.e. has not reached a terminal state.
func (hs *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	checks := make(map[string]string)
	ready := true
	var message string

	if hs.m == nil {
		// Daemon mode: no single application master to probe, so
		// liveness and readiness coincide.
		checks["master"] = "n/a"
	} else {
		report := hs.m.Report()
		checks["master"] = string(report.State)
		if report.State == types.ApplicationFinished || report.State == types.ApplicationFailed || report.State == types.ApplicationKilled {
			ready = false
			message = "application has terminated"
		}
	}

	status := "ready"
	code := http.StatusOK
	if !ready {
		status = "not ready"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, ReadyResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
		Message:   message,
	})
}

// Handler returns the underlying http.Handler for embedding elsewhere.
func (hs *Server) Handler() http.Handler { return hs.mux }

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
