package api

import (
	"net/http"
	"strconv"

	"github.com/hochfrequenz/claude-loop-orchestrator/internal/domain"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/observer"
)

// StatusResponse is the /api/status payload.
type StatusResponse struct {
	Snapshot observer.Snapshot         `json:"snapshot"`
	Queues   map[domain.TaskStatus]int `json:"queues"`
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{}
		if s.observer != nil {
			resp.Snapshot = s.observer.Latest()
		}
		if s.tasks != nil {
			if counts, err := s.tasks.Counts(); err == nil {
				resp.Queues = counts
			}
		}
		writeJSON(w, resp)
	}
}

func (s *Server) listTasksHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.tasks == nil {
			writeError(w, http.StatusServiceUnavailable, "task store unavailable")
			return
		}

		queues := domain.Queues
		if q := r.URL.Query().Get("queue"); q != "" {
			queues = []domain.TaskStatus{domain.TaskStatus(q)}
		}

		tasks := []*domain.Task{}
		for _, q := range queues {
			list, err := s.tasks.List(q)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			tasks = append(tasks, list...)
		}
		writeJSON(w, tasks)
	}
}

func (s *Server) listRoundsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.hist == nil {
			writeError(w, http.StatusServiceUnavailable, "history unavailable")
			return
		}
		runID := r.URL.Query().Get("run")
		if runID == "" {
			writeError(w, http.StatusBadRequest, "run query parameter required")
			return
		}
		rounds, err := s.hist.ListRounds(runID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, rounds)
	}
}

func (s *Server) listRunsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.hist == nil {
			writeError(w, http.StatusServiceUnavailable, "history unavailable")
			return
		}
		limit := 20
		if l := r.URL.Query().Get("limit"); l != "" {
			if n, err := strconv.Atoi(l); err == nil && n > 0 {
				limit = n
			}
		}
		outcomes, err := s.hist.RecentOutcomes(limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, outcomes)
	}
}
