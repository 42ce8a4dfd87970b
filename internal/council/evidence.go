package council

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hochfrequenz/claude-loop-orchestrator/internal/domain"
)

// Evidence is the bundle every council member evaluates. It is assembled
// once per round and passed identically to each member.
type Evidence struct {
	GitStatus        string                    `json:"git_status"`
	RecentLog        string                    `json:"recent_log"`
	TestResults      string                    `json:"test_results"`
	PRDTitle         string                    `json:"prd_title"`
	PRDText          string                    `json:"prd_text"`
	PRDPresent       bool                      `json:"prd_present"`
	QueueCounts      map[domain.TaskStatus]int `json:"queue_counts"`
	DoneSignals      int                       `json:"done_signals"`
	Iteration        int                       `json:"iteration"`
	TodoCount        int                       `json:"todo_count"`
	UncommittedFiles int                       `json:"uncommitted_files"`
}

// VCS is the read-only repository view evidence assembly needs.
type VCS interface {
	Status() (string, error)
	RecentLog(n int) (string, error)
	ChangedFileCount() (int, error)
}

// QueueCounter supplies task-queue counts, typically the task store.
type QueueCounter interface {
	Counts() (map[domain.TaskStatus]int, error)
}

// prdFrontmatter is the YAML front-matter block of a PRD markdown file.
type prdFrontmatter struct {
	Title  string `yaml:"title"`
	Status string `yaml:"status"`
}

// AssembleEvidence gathers the evidence bundle from the external
// collaborators. Individual collectors failing leave their field empty
// rather than failing the round; the council's fallback handles a fully
// unavailable environment.
func AssembleEvidence(repo VCS, queues QueueCounter, prdPath, testResultPath string, iteration, doneSignals int) Evidence {
	ev := Evidence{Iteration: iteration, DoneSignals: doneSignals}

	if repo != nil {
		if status, err := repo.Status(); err == nil {
			ev.GitStatus = status
		}
		if log, err := repo.RecentLog(10); err == nil {
			ev.RecentLog = log
		}
		if n, err := repo.ChangedFileCount(); err == nil {
			ev.UncommittedFiles = n
		}
	}

	if queues != nil {
		if counts, err := queues.Counts(); err == nil {
			ev.QueueCounts = counts
		}
	}

	if data, err := os.ReadFile(testResultPath); err == nil {
		ev.TestResults = string(data)
	}

	if data, err := os.ReadFile(prdPath); err == nil {
		ev.PRDPresent = true
		fm, body := splitFrontmatter(data)
		ev.PRDText = body
		ev.PRDTitle = fm.Title
		ev.TodoCount = strings.Count(body, "TODO") + strings.Count(body, "FIXME")
	}

	return ev
}

// splitFrontmatter parses a leading YAML front-matter block, returning the
// parsed header and the remaining body.
func splitFrontmatter(content []byte) (prdFrontmatter, string) {
	var fm prdFrontmatter
	text := string(content)
	if !strings.HasPrefix(text, "---\n") {
		return fm, text
	}
	rest := text[4:]
	end := strings.Index(rest, "\n---")
	if end == -1 {
		return fm, text
	}
	if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
		return prdFrontmatter{}, text
	}
	return fm, strings.TrimPrefix(rest[end+4:], "\n")
}

// Summary renders a short human-readable digest for prompts and audit logs.
func (e Evidence) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "iteration: %d\n", e.Iteration)
	if e.PRDPresent {
		fmt.Fprintf(&b, "prd: %s\n", e.PRDTitle)
	} else {
		b.WriteString("prd: absent\n")
	}
	fmt.Fprintf(&b, "uncommitted files: %d\n", e.UncommittedFiles)
	fmt.Fprintf(&b, "todo/fixme markers: %d\n", e.TodoCount)
	for _, q := range domain.Queues {
		if n, ok := e.QueueCounts[q]; ok {
			fmt.Fprintf(&b, "queue %s: %d\n", q, n)
		}
	}
	return b.String()
}
