// Package schedule gates unattended runs to configured cron windows: the
// loop launches iterations only while a window is open.
package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Window is a cron-defined span during which the loop may run. Start opens
// the window, and it stays open for Duration.
type Window struct {
	// Cron is a standard five-field expression for the window start.
	Cron string
	// Duration is how long the window stays open after each start.
	Duration time.Duration
}

// Validate checks the window definition.
func (w Window) Validate() error {
	if w.Duration <= 0 {
		return fmt.Errorf("window duration must be positive, got %s", w.Duration)
	}
	if _, err := parser.Parse(w.Cron); err != nil {
		return fmt.Errorf("parsing cron expression %q: %w", w.Cron, err)
	}
	return nil
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Schedule is a set of run windows. An empty schedule is always open, so
// interactive runs need no configuration.
type Schedule struct {
	windows []Window
	now     func() time.Time
}

// New creates a Schedule from the given windows.
func New(windows []Window) (*Schedule, error) {
	for _, w := range windows {
		if err := w.Validate(); err != nil {
			return nil, err
		}
	}
	return &Schedule{windows: windows, now: time.Now}, nil
}

// InWindow reports whether the loop may run right now.
func (s *Schedule) InWindow() bool {
	if len(s.windows) == 0 {
		return true
	}
	now := s.now()
	for _, w := range s.windows {
		if openAt(w, now) {
			return true
		}
	}
	return false
}

// openAt reports whether a window started within Duration before t. The
// most recent start is found by walking Next() forward from t-Duration.
func openAt(w Window, t time.Time) bool {
	sched, err := parser.Parse(w.Cron)
	if err != nil {
		return false
	}
	probe := t.Add(-w.Duration)
	for {
		next := sched.Next(probe)
		if next.IsZero() || next.After(t) {
			return false
		}
		if t.Sub(next) < w.Duration {
			return true
		}
		probe = next
	}
}

// NextOpen returns when the next window opens. Returns the zero time for an
// always-open schedule, and ok=false if no window opens within a year.
func (s *Schedule) NextOpen() (time.Time, bool) {
	if len(s.windows) == 0 {
		return time.Time{}, true
	}
	now := s.now()
	if s.InWindow() {
		return now, true
	}

	var earliest time.Time
	for _, w := range s.windows {
		sched, err := parser.Parse(w.Cron)
		if err != nil {
			continue
		}
		next := sched.Next(now)
		if next.IsZero() {
			continue
		}
		if earliest.IsZero() || next.Before(earliest) {
			earliest = next
		}
	}
	if earliest.IsZero() || earliest.After(now.AddDate(1, 0, 0)) {
		return time.Time{}, false
	}
	return earliest, true
}
