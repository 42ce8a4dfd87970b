// Package api serves read-only loop status over HTTP and websockets so
// dashboards can follow a run without touching the state files.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hochfrequenz/claude-loop-orchestrator/internal/domain"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/history"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/observer"
)

// TaskStore is the read-only queue view the API serves.
type TaskStore interface {
	List(q domain.TaskStatus) ([]*domain.Task, error)
	Counts() (map[domain.TaskStatus]int, error)
}

// History is the read-only audit view the API serves.
type History interface {
	ListRounds(runID string) ([]history.RoundSummary, error)
	ListIterations(runID string) ([]history.IterationRow, error)
	RecentOutcomes(limit int) ([]history.RunOutcome, error)
}

// Server is the HTTP API server
type Server struct {
	tasks    TaskStore
	hist     History
	observer *observer.Observer
	addr     string
	mux      *http.ServeMux
	hub      *Hub
}

// NewServer creates a new API server
func NewServer(tasks TaskStore, hist History, obs *observer.Observer, addr string) *Server {
	s := &Server{
		tasks:    tasks,
		hist:     hist,
		observer: obs,
		addr:     addr,
		mux:      http.NewServeMux(),
		hub:      NewHub(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/status", s.statusHandler())
	s.mux.HandleFunc("/api/tasks", s.listTasksHandler())
	s.mux.HandleFunc("/api/rounds", s.listRoundsHandler())
	s.mux.HandleFunc("/api/runs", s.listRunsHandler())
	s.mux.HandleFunc("/ws", s.wsHandler())
}

// Start runs the hub and the HTTP server, pushing each observer snapshot to
// connected websocket clients.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)
	if s.observer != nil {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case snap := <-s.observer.Updates:
					s.hub.Broadcast(snap)
				}
			}
		}()
	}

	server := &http.Server{Addr: s.addr, Handler: s.mux}
	go func() {
		<-ctx.Done()
		server.Close()
	}()
	return server.ListenAndServe()
}

// Handler exposes the route mux for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
