package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hochfrequenz/claude-loop-orchestrator/internal/domain"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/history"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/observer"
)

type mockTasks struct {
	tasks map[domain.TaskStatus][]*domain.Task
}

func (m *mockTasks) List(q domain.TaskStatus) ([]*domain.Task, error) {
	return m.tasks[q], nil
}

func (m *mockTasks) Counts() (map[domain.TaskStatus]int, error) {
	counts := make(map[domain.TaskStatus]int)
	for q, list := range m.tasks {
		counts[q] = len(list)
	}
	return counts, nil
}

type mockHistory struct {
	rounds   []history.RoundSummary
	outcomes []history.RunOutcome
}

func (m *mockHistory) ListRounds(string) ([]history.RoundSummary, error)     { return m.rounds, nil }
func (m *mockHistory) ListIterations(string) ([]history.IterationRow, error) { return nil, nil }
func (m *mockHistory) RecentOutcomes(int) ([]history.RunOutcome, error)      { return m.outcomes, nil }

func TestStatusHandler(t *testing.T) {
	tasks := &mockTasks{tasks: map[domain.TaskStatus][]*domain.Task{
		domain.StatusPending:   {domain.NewTask("T-1", "One", "")},
		domain.StatusCompleted: {domain.NewTask("T-2", "Two", ""), domain.NewTask("T-3", "Three", "")},
	}}

	server := NewServer(tasks, nil, nil, ":0")
	req := httptest.NewRequest("GET", "/api/status", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp StatusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Queues[domain.StatusPending] != 1 || resp.Queues[domain.StatusCompleted] != 2 {
		t.Errorf("queue counts = %v", resp.Queues)
	}
}

func TestListTasksHandlerFiltersByQueue(t *testing.T) {
	tasks := &mockTasks{tasks: map[domain.TaskStatus][]*domain.Task{
		domain.StatusPending:   {domain.NewTask("T-1", "One", "")},
		domain.StatusCompleted: {domain.NewTask("T-2", "Two", "")},
	}}

	server := NewServer(tasks, nil, nil, ":0")
	req := httptest.NewRequest("GET", "/api/tasks?queue=pending", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	var got []*domain.Task
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "T-1" {
		t.Errorf("filtered tasks = %+v, want only T-1", got)
	}
}

func TestListRoundsRequiresRunID(t *testing.T) {
	server := NewServer(nil, &mockHistory{}, nil, ":0")
	req := httptest.NewRequest("GET", "/api/rounds", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 without run param", w.Code)
	}
}

func TestListRoundsHandler(t *testing.T) {
	hist := &mockHistory{rounds: []history.RoundSummary{
		{RoundID: "r-1", Iteration: 5, Verdict: domain.RoundContinue},
		{RoundID: "r-2", Iteration: 10, Verdict: domain.RoundComplete},
	}}
	server := NewServer(nil, hist, nil, ":0")
	req := httptest.NewRequest("GET", "/api/rounds?run=run-1", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	var got []history.RoundSummary
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1].Verdict != domain.RoundComplete {
		t.Errorf("rounds = %+v", got)
	}
}

func TestListRunsHandler(t *testing.T) {
	hist := &mockHistory{outcomes: []history.RunOutcome{
		{RunID: "run-1", Outcome: "council_approved", Iterations: 12},
	}}
	server := NewServer(nil, hist, nil, ":0")
	req := httptest.NewRequest("GET", "/api/runs", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	var got []history.RunOutcome
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Outcome != "council_approved" {
		t.Errorf("runs = %+v", got)
	}
}

func TestWebsocketReceivesBroadcast(t *testing.T) {
	server := NewServer(nil, nil, nil, ":0")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.hub.Run(ctx)

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing websocket: %v", err)
	}
	defer conn.Close()

	// Registration happens inside the handler goroutine; give it a moment.
	time.Sleep(50 * time.Millisecond)
	server.hub.Broadcast(observer.Snapshot{Iteration: 9, Status: "running"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snap observer.Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	if snap.Iteration != 9 || snap.Status != "running" {
		t.Errorf("snapshot = %+v", snap)
	}
}
