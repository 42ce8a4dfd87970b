package loop

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	stopFile  = "STOP"
	pauseFile = "PAUSE"

	// signalTick bounds how stale a signal check can be: waits re-check at
	// second granularity even when fsnotify misses an event.
	signalTick = time.Second
)

// Signals watches flag files in the run directory. Touching STOP requests a
// cooperative stop at the next iteration boundary or wait tick; touching
// PAUSE blocks the loop until the file is removed. The watcher is advisory;
// every check also stats the files so a missed event only delays detection
// by one tick.
type Signals struct {
	dir     string
	watcher *fsnotify.Watcher
	changed chan struct{}
	cancel  context.CancelFunc
}

// NewSignals creates a signal watcher over the given run directory.
func NewSignals(dir string) (*Signals, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s := &Signals{dir: dir, changed: make(chan struct{}, 1)}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		// Polling alone still honors every signal within one tick.
		return s, nil
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return s, nil
	}
	s.watcher = watcher
	return s, nil
}

// Start begins forwarding watcher events. Safe to call when the watcher
// could not be created; polling covers that case.
func (s *Signals) Start(ctx context.Context) {
	if s.watcher == nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-s.watcher.Events:
				if !ok {
					return
				}
				name := filepath.Base(event.Name)
				if name == stopFile || name == pauseFile {
					select {
					case s.changed <- struct{}{}:
					default:
					}
				}
			case _, ok := <-s.watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
}

// Stop releases the watcher.
func (s *Signals) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.watcher != nil {
		s.watcher.Close()
	}
}

// StopRequested reports whether the STOP flag file exists.
func (s *Signals) StopRequested() bool {
	_, err := os.Stat(filepath.Join(s.dir, stopFile))
	return err == nil
}

// PauseRequested reports whether the PAUSE flag file exists.
func (s *Signals) PauseRequested() bool {
	_, err := os.Stat(filepath.Join(s.dir, pauseFile))
	return err == nil
}

// RequestStop creates the STOP flag file.
func (s *Signals) RequestStop() error {
	return os.WriteFile(filepath.Join(s.dir, stopFile), nil, 0o644)
}

// RequestPause creates the PAUSE flag file.
func (s *Signals) RequestPause() error {
	return os.WriteFile(filepath.Join(s.dir, pauseFile), nil, 0o644)
}

// ClearPause removes the PAUSE flag file.
func (s *Signals) ClearPause() error {
	err := os.Remove(filepath.Join(s.dir, pauseFile))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// ClearStop removes the STOP flag file, typically on resume.
func (s *Signals) ClearStop() error {
	err := os.Remove(filepath.Join(s.dir, stopFile))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Wait sleeps for d, waking early when a stop is requested or the context
// is cancelled. Returns true if the full wait completed.
func (s *Signals) Wait(ctx context.Context, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		if s.StopRequested() {
			return false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		tick := signalTick
		if remaining < tick {
			tick = remaining
		}
		select {
		case <-ctx.Done():
			return false
		case <-s.changed:
		case <-time.After(tick):
		}
	}
}

// WaitWhilePaused blocks while the PAUSE flag is present. Returns false if a
// stop arrives or the context is cancelled during the pause.
func (s *Signals) WaitWhilePaused(ctx context.Context) bool {
	for s.PauseRequested() {
		if s.StopRequested() {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-s.changed:
		case <-time.After(signalTick):
		}
	}
	return !s.StopRequested()
}
