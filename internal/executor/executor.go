// Package executor adapts external AI coding CLIs behind a common
// interface. Each provider declares a capability descriptor instead of
// scattering provider-specific branches through the loop, and emits a typed
// event stream so downstream heuristics match structured events rather than
// raw transcript text.
package executor

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/domain"
)

// sessionNamespace is a fixed UUID namespace for deterministic session IDs,
// so the same stream always resumes the same provider session.
var sessionNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// SessionID returns the deterministic session UUID for a stream.
func SessionID(streamID string) string {
	return uuid.NewSHA1(sessionNamespace, []byte(streamID)).String()
}

// EventKind discriminates transcript events.
type EventKind string

const (
	EventText           EventKind = "text"
	EventToolInvocation EventKind = "tool_invocation"
	EventSessionResult  EventKind = "session_result"
)

// SessionResult is the terminal marker of an executor session.
type SessionResult struct {
	Success bool
	Err     string
}

// Event is one element of the executor transcript stream.
type Event struct {
	Kind   EventKind
	Text   string
	Tool   string
	Result *SessionResult
}

// Request describes one executor invocation.
type Request struct {
	Prompt    string
	Tier      domain.Tier
	WorkDir   string
	SessionID string
	Resume    bool
	LogPath   string
}

// Result is the captured outcome of one invocation.
type Result struct {
	Events   []Event
	ExitCode int
	Duration time.Duration
}

// Transcript flattens the text events into a single string for components
// that still need plain text (rate-limit scanning, audit logs).
func (r *Result) Transcript() string {
	var b strings.Builder
	for _, ev := range r.Events {
		switch ev.Kind {
		case EventText:
			b.WriteString(ev.Text)
			b.WriteByte('\n')
		case EventSessionResult:
			if ev.Result != nil && ev.Result.Err != "" {
				b.WriteString(ev.Result.Err)
				b.WriteByte('\n')
			}
		}
	}
	return b.String()
}

// SessionResult returns the terminal result event, or nil if the session
// ended without one (crash, kill).
func (r *Result) SessionResult() *SessionResult {
	for i := len(r.Events) - 1; i >= 0; i-- {
		if r.Events[i].Kind == EventSessionResult {
			return r.Events[i].Result
		}
	}
	return nil
}

// Capabilities describes what a provider supports, replacing per-provider
// case statements in the controller.
type Capabilities struct {
	// RateLimitPattern is a provider-specific regexp fragment recognized in
	// transcripts, in addition to the generic indicators.
	RateLimitPattern string
	// SupportsParallel reports whether multiple sessions may run at once.
	SupportsParallel bool
	// TierParams maps capability tiers to provider model parameters.
	TierParams map[domain.Tier]string
}

// Executor is the external agent CLI consumed by the iteration controller.
type Executor interface {
	Name() string
	Capabilities() Capabilities
	Invoke(ctx context.Context, req Request) (*Result, error)
}
